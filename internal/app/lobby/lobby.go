// Package lobby implements the session of a connected client that is not in a room.
package lobby

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
)

// Session owns its connection's read loop until it is detached for a room
// migration or closed.
type Session struct {
	user  *domain.User
	conn  core.Connection
	instr *core.InstructionQueue

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func New(user *domain.User, conn core.Connection, instr *core.InstructionQueue) *Session {
	return &Session{
		user:  user,
		conn:  conn,
		instr: instr,
		logger: log.With().
			Str("module", "app.lobby").
			Int64("sid", int64(user.ID)).
			Logger(),
	}
}

func (s *Session) ID() domain.SessionID  { return s.user.ID }
func (s *Session) Conn() core.Connection { return s.conn }

// User returns a copy of the session's user meta.
func (s *Session) User() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.user
}

// Greet sends the client its session id.
func (s *Session) Greet() error {
	sid := s.user.ID
	return s.conn.Send(protocol.New(protocol.CodeInit, sid, protocol.Text(strconv.FormatInt(int64(sid), 10))))
}

// AcknowledgeLeave tells a client returning from a room that it is back in the lobby.
func (s *Session) AcknowledgeLeave() error {
	return s.conn.Send(protocol.New(protocol.CodeLeaveRoom, s.user.ID, nil))
}

// Start runs the read loop under ctx.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info().Msg("lobby session started")
	go s.run(ctx, done)
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.Done():
			// The orchestrator owns cleanup; report and stop reading.
			s.logger.Info().Msg("connection lost")
			s.instr.Push(core.Instruction{Code: protocol.CodeDisconnect, SessionID: s.user.ID})
			return
		case env := <-s.conn.Inbox():
			s.handle(env)
		}
	}
}

func (s *Session) handle(env protocol.Envelope) {
	switch env.Code() {
	case protocol.CodeSetName:
		name, _ := env.Text()
		s.mu.Lock()
		err := s.user.SetUsername(name)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn().Err(err).Msg("rejected display name")
			return
		}
		s.logger.Info().Str("username", name).Msg("display name set")
	case protocol.CodeJoinRoom, protocol.CodeCreateRoom:
		arg, ok := env.Text()
		if !ok {
			s.logger.Warn().Stringer("code", env.Code()).Msg("missing room argument")
			return
		}
		s.instr.Push(core.Instruction{Code: env.Code(), SessionID: s.user.ID, Arg: arg})
	case protocol.CodeDisconnect:
		s.instr.Push(core.Instruction{Code: protocol.CodeDisconnect, SessionID: s.user.ID})
	default:
		s.logger.Warn().Stringer("code", env.Code()).Msg("envelope not valid in lobby")
	}
}

// Detach stops the read loop without closing the connection and waits for it to exit.
func (s *Session) Detach() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close detaches and closes the connection. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.Detach()
		s.conn.Close()
		s.logger.Info().Msg("lobby session closed")
	})
}
