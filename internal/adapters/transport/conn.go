// Package transport carries envelopes over byte streams and WebSockets.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/queue"
)

// Framer reads and writes whole envelopes on an underlying connection.
type Framer interface {
	ReadEnvelope() (protocol.Envelope, error)
	WriteEnvelope(env protocol.Envelope) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

type Options struct {
	// SendQueueLimit caps pending outbound envelopes; 0 means unbounded.
	SendQueueLimit int
	WriteTimeout   time.Duration
}

// Conn is a transport endpoint. It implements core.Connection.
type Conn struct {
	framer Framer
	opts   Options

	out   *queue.Queue[protocol.Envelope]
	inbox chan protocol.Envelope
	done  chan struct{}

	closeOnce  sync.Once
	framerOnce sync.Once
	logger     zerolog.Logger
}

var _ core.Connection = (*Conn)(nil)

func NewConn(sid domain.SessionID, f Framer, opts Options) *Conn {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Conn{
		framer: f,
		opts:   opts,
		out:    queue.New[protocol.Envelope](),
		inbox:  make(chan protocol.Envelope, 16),
		done:   make(chan struct{}),
		logger: log.With().
			Str("module", "transport.conn").
			Int64("sid", int64(sid)).
			Str("remote", f.RemoteAddr()).
			Logger(),
	}
}

// Start runs the read and write pumps until the connection closes or ctx ends.
func (c *Conn) Start(ctx context.Context) {
	go c.writePump(ctx)
	go c.readPump()
}

func (c *Conn) Send(env protocol.Envelope) error {
	select {
	case <-c.done:
		return core.ErrConnClosed
	default:
	}
	switch err := c.out.PushBounded(env, c.opts.SendQueueLimit); {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrFull):
		return core.ErrBackpressure
	default:
		return core.ErrConnClosed
	}
}

func (c *Conn) SendBatch(envs []protocol.Envelope) error {
	select {
	case <-c.done:
		return core.ErrConnClosed
	default:
	}
	if err := c.out.PushAll(envs); err != nil {
		return core.ErrConnClosed
	}
	return nil
}

func (c *Conn) Inbox() <-chan protocol.Envelope { return c.inbox }
func (c *Conn) Done() <-chan struct{}           { return c.done }
func (c *Conn) RemoteAddr() string              { return c.framer.RemoteAddr() }

// Close stops accepting sends. The write pump flushes what is queued, then
// closes the socket.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conn) closeFramer() {
	c.framerOnce.Do(func() {
		c.out.Close()
		if err := c.framer.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("close socket")
		}
	})
}

func (c *Conn) writePump(ctx context.Context) {
	defer c.closeFramer()
	for {
		for _, env := range c.out.Drain() {
			if err := c.write(env); err != nil {
				c.logger.Info().Err(err).Msg("writePump write error")
				c.Close()
				return
			}
		}
		select {
		case <-ctx.Done():
			c.Close()
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		case <-c.out.Wait():
		}
	}
}

func (c *Conn) flush() {
	for _, env := range c.out.Drain() {
		if err := c.write(env); err != nil {
			return
		}
	}
}

func (c *Conn) write(env protocol.Envelope) error {
	if err := c.framer.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.framer.WriteEnvelope(env)
}

func (c *Conn) readPump() {
	defer c.Close()
	for {
		env, err := c.framer.ReadEnvelope()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedEnvelope) {
				c.logger.Warn().Err(err).Msg("dropping malformed envelope")
				continue
			}
			if isClosedErr(err) {
				c.logger.Debug().Err(err).Msg("readPump closed")
			} else {
				c.logger.Info().Err(err).Msg("readPump read error")
			}
			return
		}
		c.logger.Debug().Stringer("env", env).Msg("received")
		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF)
}
