package transport

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/grouptalk/internal/protocol"
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsFramer carries one envelope per binary WebSocket message.
type wsFramer struct {
	conn   WSConn
	remote string
}

func NewWSFramer(conn WSConn, remote string) Framer {
	return &wsFramer{conn: conn, remote: remote}
}

func (f *wsFramer) ReadEnvelope() (protocol.Envelope, error) {
	mt, data, err := f.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	if mt != websocket.BinaryMessage {
		return protocol.Envelope{}, fmt.Errorf("%w: websocket message type %d", protocol.ErrMalformedEnvelope, mt)
	}
	return protocol.Unmarshal(data)
}

func (f *wsFramer) WriteEnvelope(env protocol.Envelope) error {
	data, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	return f.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (f *wsFramer) SetWriteDeadline(t time.Time) error { return f.conn.SetWriteDeadline(t) }
func (f *wsFramer) Close() error                       { return f.conn.Close() }
func (f *wsFramer) RemoteAddr() string                 { return f.remote }
