package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
)

var ErrMemberInactive = errors.New("member inactive")

// Member is a client bound to one room. It owns its connection's read loop
// until the room removes it.
type Member struct {
	meta *domain.Member
	conn core.Connection
	room *Room
	// since is the room broadcast sequence at registration time.
	since uint64

	active atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

var _ core.Handoff = (*Member)(nil)

func newMember(r *Room, user *domain.User, conn core.Connection) *Member {
	ctx, cancel := context.WithCancel(r.ctx)
	m := &Member{
		meta:   domain.NewMember(user, r.meta),
		conn:   conn,
		room:   r,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: r.logger.With().
			Str("module", "app.room.member").
			Int64("sid", int64(user.ID)).
			Logger(),
	}
	m.active.Store(true)
	return m
}

func (m *Member) ID() domain.SessionID  { return m.meta.User.ID }
func (m *Member) DisplayName() string   { return m.meta.User.Username }
func (m *Member) Conn() core.Connection { return m.conn }
func (m *Member) Active() bool          { return m.active.Load() }

func (m *Member) start(wg *conc.WaitGroup) {
	wg.Go(m.run)
}

func (m *Member) run() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.conn.Done():
			m.logger.Info().Msg("connection lost")
			m.room.instructions.Push(core.Instruction{Code: protocol.CodeDisconnect, SessionID: m.ID()})
			return
		case env := <-m.conn.Inbox():
			if !m.handle(env) {
				// Membership changes are the room's call; stop reading so the
				// next owner of the connection sees every later envelope.
				<-m.ctx.Done()
				return
			}
		}
	}
}

// handle routes one inbound envelope and reports whether to keep reading.
func (m *Member) handle(env protocol.Envelope) bool {
	switch env.Code() {
	case protocol.CodeChat:
		if text, ok := env.Text(); !ok || text == "" {
			m.logger.Debug().Msg("empty chat ignored")
			return true
		}
		m.room.publish(env.WithOrigin(m.ID()), true)
	case protocol.CodeAudio:
		if _, ok := env.Audio(); !ok {
			m.logger.Warn().Msg("audio envelope without frame")
			return true
		}
		m.room.publish(env.WithOrigin(m.ID()), false)
	case protocol.CodeLeaveRoom, protocol.CodeDisconnect:
		m.room.instructions.Push(core.Instruction{Code: env.Code(), SessionID: m.ID()})
		return false
	default:
		m.logger.Warn().Stringer("code", env.Code()).Msg("envelope not valid in room")
	}
	return true
}

// Deliver writes env to the client. After the first failure the member stays
// inactive and drops every later write.
func (m *Member) Deliver(env protocol.Envelope) error {
	if !m.active.Load() {
		return ErrMemberInactive
	}
	if err := m.conn.Send(env); err != nil {
		m.deactivate()
		return err
	}
	return nil
}

func (m *Member) deactivate() {
	m.active.Store(false)
}

// Detach stops the read loop and leaves the connection open for a lobby session.
func (m *Member) Detach() {
	m.cancel()
	<-m.done
}

// Close tells the client it left the room, then closes its connection. Idempotent.
func (m *Member) Close() {
	m.once.Do(func() {
		m.deactivate()
		_ = m.conn.Send(protocol.New(protocol.CodeLeaveRoom, m.ID(), nil))
		m.conn.Close()
		m.cancel()
	})
}
