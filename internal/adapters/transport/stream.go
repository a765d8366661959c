package transport

import (
	"bufio"
	"net"
	"time"

	"github.com/dkeye/grouptalk/internal/protocol"
)

// streamFramer frames envelopes on a byte stream as consecutive CBOR items.
type streamFramer struct {
	conn net.Conn
	bw   *bufio.Writer
	enc  *protocol.Encoder
	dec  *protocol.Decoder
}

// NewStreamFramer wraps a stream socket such as a TCP connection or net.Pipe end.
func NewStreamFramer(conn net.Conn) Framer {
	bw := bufio.NewWriter(conn)
	return &streamFramer{
		conn: conn,
		bw:   bw,
		enc:  protocol.NewEncoder(bw),
		dec:  protocol.NewDecoder(bufio.NewReader(conn)),
	}
}

func (f *streamFramer) ReadEnvelope() (protocol.Envelope, error) {
	return f.dec.Decode()
}

func (f *streamFramer) WriteEnvelope(env protocol.Envelope) error {
	if err := f.enc.Encode(env); err != nil {
		return err
	}
	return f.bw.Flush()
}

func (f *streamFramer) SetWriteDeadline(t time.Time) error { return f.conn.SetWriteDeadline(t) }
func (f *streamFramer) Close() error                       { return f.conn.Close() }
func (f *streamFramer) RemoteAddr() string                 { return f.conn.RemoteAddr().String() }
