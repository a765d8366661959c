package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
)

// AdmitFunc takes ownership of a freshly accepted connection.
type AdmitFunc func(ctx context.Context, sid domain.SessionID, conn core.Connection)

// Acceptor listens on one TCP port and hands every accepted connection,
// tagged with a monotonic session id, to its AdmitFunc.
type Acceptor struct {
	ln    net.Listener
	admit AdmitFunc
	opts  Options
	next  atomic.Int64
}

// Listen binds addr. A bind failure is returned as is: the server cannot start without it.
func Listen(addr string, admit AdmitFunc, opts Options) (*Acceptor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Acceptor{ln: ln, admit: admit, opts: opts}, nil
}

func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Serve accepts until ctx ends or the listener is closed.
func (a *Acceptor) Serve(ctx context.Context) error {
	logger := log.With().Str("module", "transport.acceptor").Str("addr", a.ln.Addr().String()).Logger()
	stop := context.AfterFunc(ctx, func() { _ = a.ln.Close() })
	defer stop()

	logger.Info().Msg("accepting connections")
	for {
		nc, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info().Msg("acceptor stopped")
				return nil
			}
			logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		a.AdmitFramer(ctx, NewStreamFramer(nc))
	}
}

// AdmitFramer assigns the next session id to f and admits it. Other
// transports (WebSocket) enter the server through here as well.
func (a *Acceptor) AdmitFramer(ctx context.Context, f Framer) {
	sid := domain.SessionID(a.next.Add(1))
	conn := NewConn(sid, f, a.opts)
	conn.Start(ctx)
	log.Info().Str("module", "transport.acceptor").Int64("sid", int64(sid)).Str("remote", f.RemoteAddr()).Msg("connection accepted")
	a.admit(ctx, sid, conn)
}

// Close stops accepting. Connections already admitted are unaffected.
func (a *Acceptor) Close() error {
	return a.ln.Close()
}
