package transport

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/grouptalk/internal/protocol"
)

type wsMessage struct {
	mt   int
	data []byte
}

type fakeWS struct {
	in  []wsMessage
	out []wsMessage
}

func (f *fakeWS) ReadMessage() (int, []byte, error) {
	if len(f.in) == 0 {
		return 0, nil, io.EOF
	}
	m := f.in[0]
	f.in = f.in[1:]
	return m.mt, m.data, nil
}

func (f *fakeWS) WriteMessage(mt int, data []byte) error {
	f.out = append(f.out, wsMessage{mt, data})
	return nil
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeWS) Close() error                     { return nil }

func TestWSFramer(t *testing.T) {
	ws := &fakeWS{}
	f := NewWSFramer(ws, "test")

	if err := f.WriteEnvelope(protocol.New(protocol.CodeChat, 3, protocol.Text("hi"))); err != nil {
		t.Fatal(err)
	}
	if len(ws.out) != 1 || ws.out[0].mt != websocket.BinaryMessage {
		t.Fatalf("written = %+v", ws.out)
	}

	ws.in = []wsMessage{
		{websocket.TextMessage, []byte("hello")},
		ws.out[0],
	}
	if _, err := f.ReadEnvelope(); !errors.Is(err, protocol.ErrMalformedEnvelope) {
		t.Fatalf("text message: got %v, want ErrMalformedEnvelope", err)
	}
	env, err := f.ReadEnvelope()
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := env.Text(); env.Origin() != 3 || text != "hi" {
		t.Fatalf("got %s %q", env, text)
	}
	if _, err := f.ReadEnvelope(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want EOF", err)
	}
}
