// Package server wires the acceptor, the orchestrator and the admin API
// into one process-level unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/grouptalk/internal/adapters/http"
	"github.com/dkeye/grouptalk/internal/adapters/transport"
	"github.com/dkeye/grouptalk/internal/app"
	"github.com/dkeye/grouptalk/internal/app/orch"
	"github.com/dkeye/grouptalk/internal/config"
)

type Server struct {
	cfg        *config.Config
	InstanceID string
	Orch       *orch.Orchestrator

	acceptor *transport.Acceptor
	httpLn   net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

func New(cfg *config.Config) *Server {
	return &Server{
		cfg:        cfg,
		InstanceID: uuid.NewString(),
		Orch: orch.New(
			app.NewRegistry(),
			app.NewRoomIDGenerator(cfg.RoomIDAttempts),
			app.SimplePolicy{},
			app.NewRequestLimiter(cfg.RoomRequestLimit, cfg.RoomRequestWindow),
		),
	}
}

// Start binds the listeners and runs everything in the background. Failing
// to bind is the only fatal startup error.
func (s *Server) Start(ctx context.Context) error {
	acc, err := transport.Listen(fmt.Sprintf(":%d", s.cfg.Port), s.Orch.Admit, transport.Options{
		SendQueueLimit: s.cfg.SendQueueLimit,
		WriteTimeout:   s.cfg.WriteTimeout,
	})
	if err != nil {
		return err
	}
	s.acceptor = acc

	if s.cfg.HTTPPort > 0 {
		s.httpLn, err = net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.HTTPPort))
		if err != nil {
			_ = acc.Close()
			return fmt.Errorf("listen http: %w", err)
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error { return s.Orch.Run(gctx) })
	g.Go(func() error { return acc.Serve(gctx) })
	if s.httpLn != nil {
		s.serveHTTP(gctx, g)
	}

	log.Info().Str("module", "server").Str("addr", acc.Addr().String()).Str("instance", s.InstanceID).Msg("server started")
	return nil
}

func (s *Server) serveHTTP(ctx context.Context, g *errgroup.Group) {
	srv := &http.Server{
		Handler:           router.SetupRouter(ctx, s.cfg, s.InstanceID, s.Orch, s.acceptor),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info().Str("module", "server").Str("addr", s.httpLn.Addr().String()).Msg("admin api started")
		if err := srv.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// Addr is the bound client listener address.
func (s *Server) Addr() net.Addr {
	return s.acceptor.Addr()
}

// Stop closes the acceptor, every room and every lobby session, and waits
// for them. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		s.stopErr = s.group.Wait()
		log.Info().Str("module", "server").Msg("server stopped")
	})
	return s.stopErr
}
