package core

import (
	"errors"

	"github.com/dkeye/grouptalk/internal/protocol"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Connection is one client's framed envelope stream.
// Owned by the adapter; sessions borrow it and hand it over on migration,
// so exactly one session reads Inbox at a time.
type Connection interface {
	// Send queues env for the writer. It never blocks on the network.
	Send(env protocol.Envelope) error
	// SendBatch queues envs in order as one unit. The send queue limit does
	// not apply, so a batch is either queued whole or not at all.
	SendBatch(envs []protocol.Envelope) error
	// Inbox yields decoded inbound envelopes in arrival order.
	Inbox() <-chan protocol.Envelope
	// Done is closed once the connection is closed by either side.
	Done() <-chan struct{}
	// Close flushes what is already queued and closes the socket. Idempotent.
	Close()
	RemoteAddr() string
}
