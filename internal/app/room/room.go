// Package room implements a room actor, its broadcaster and its member sessions.
package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/queue"
)

var ErrRoomClosed = errors.New("room closed")

// outbound is a broadcast queue entry. seq orders it against member joins:
// a member only receives entries enqueued after it was registered.
type outbound struct {
	seq uint64
	env protocol.Envelope
}

type Options struct {
	// Orchestrator receives LEAVE_ROOM handoffs and removal reports.
	Orchestrator *core.InstructionQueue
	Policy       core.Policy
	// OnClose runs once, after the room has stopped accepting members.
	OnClose func(id domain.RoomID)
}

// Room is a threadsafe in-memory room. It closes itself when its last member leaves.
type Room struct {
	meta domain.Room
	opts Options

	mu      sync.RWMutex
	members map[domain.SessionID]*Member
	replay  []protocol.Envelope
	seq     uint64
	closed  bool

	broadcast    *queue.Queue[outbound]
	instructions *core.InstructionQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	once   sync.Once
	logger zerolog.Logger
}

// New starts the room's instruction loop and broadcaster under ctx.
func New(ctx context.Context, meta domain.Room, opts Options) *Room {
	ctx, cancel := context.WithCancel(ctx)
	r := &Room{
		meta:         meta,
		opts:         opts,
		members:      make(map[domain.SessionID]*Member),
		broadcast:    queue.New[outbound](),
		instructions: queue.New[core.Instruction](),
		ctx:          ctx,
		cancel:       cancel,
		logger: log.With().
			Str("module", "app.room").
			Str("room", string(meta.ID)).
			Logger(),
	}
	b := &broadcaster{room: r, logger: r.logger.With().Str("module", "app.room.broadcaster").Logger()}
	r.wg.Go(r.run)
	r.wg.Go(func() { b.run(ctx) })
	r.logger.Info().Str("name", string(meta.Name)).Msg("room opened")
	return r
}

func (r *Room) ID() domain.RoomID     { return r.meta.ID }
func (r *Room) Name() domain.RoomName { return r.meta.Name }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) Info() core.RoomInfo {
	return core.RoomInfo{ID: r.meta.ID, Name: r.meta.Name, MemberCount: r.MemberCount()}
}

// MembersSnapshot returns the current members ordered by session id.
func (r *Room) MembersSnapshot() []core.MemberDTO {
	r.mu.RLock()
	out := make([]core.MemberDTO, 0, len(r.members))
	for sid, m := range r.members {
		out = append(out, core.MemberDTO{ID: sid, Username: m.DisplayName()})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// AddMember binds conn to a new member session. The client gets ROOM_CHANGED
// and the whole replay log before any live broadcast. If that batch cannot be
// queued the member is not registered.
func (r *Room) AddMember(user domain.User, conn core.Connection) (*Member, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRoomClosed
	}
	sid := user.ID

	batch := make([]protocol.Envelope, 0, len(r.replay)+1)
	batch = append(batch, protocol.New(protocol.CodeRoomChanged, sid, protocol.Pair{
		First:  string(r.meta.ID),
		Second: string(r.meta.Name),
	}))
	batch = append(batch, r.replay...)
	if err := conn.SendBatch(batch); err != nil {
		r.mu.Unlock()
		r.logger.Warn().Err(err).Int64("sid", int64(sid)).Int("replay", len(r.replay)).Msg("replay not delivered")
		return nil, fmt.Errorf("send replay: %w", err)
	}

	m := newMember(r, &user, conn)
	m.since = r.seq
	r.members[sid] = m
	joined := protocol.New(protocol.CodeMemberJoined, sid, protocol.Text(user.Username))
	r.replay = append(r.replay, joined)
	r.enqueueLocked(joined)
	r.enqueueLocked(protocol.New(protocol.CodeChat, sid,
		protocol.Text(fmt.Sprintf("%s has joined the group.", user.Username))))
	r.mu.Unlock()

	m.start(&r.wg)
	r.logger.Info().Int64("sid", int64(sid)).Str("username", user.Username).Msg("member added")
	return m, nil
}

// publish queues env for fan-out; recorded envelopes also go to the replay log.
func (r *Room) publish(env protocol.Envelope, record bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if record {
		r.replay = append(r.replay, env)
	}
	r.enqueueLocked(env)
	return true
}

func (r *Room) enqueueLocked(env protocol.Envelope) {
	r.seq++
	r.broadcast.Push(outbound{seq: r.seq, env: env})
}

// Disconnect asks the room to force sid out, as if its socket had failed.
func (r *Room) Disconnect(sid domain.SessionID) bool {
	return r.instructions.Push(core.Instruction{Code: protocol.CodeDisconnect, SessionID: sid})
}

func (r *Room) snapshot() []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// remove drops sid from membership and its join record from the replay log.
// Removing the last member marks the room closed under the same lock, so no
// join can slip in before Close runs; emptied reports that case.
func (r *Room) remove(sid domain.SessionID) (m *Member, emptied, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok = r.members[sid]
	if !ok {
		return nil, false, false
	}
	delete(r.members, sid)
	if len(r.members) == 0 {
		r.closed = true
		emptied = true
	}
	kept := r.replay[:0]
	for _, env := range r.replay {
		if env.Code() == protocol.CodeMemberJoined && env.Origin() == sid {
			continue
		}
		kept = append(kept, env)
	}
	r.replay = kept
	m.deactivate()
	return m, emptied, true
}

func (r *Room) run() {
	for {
		for _, in := range r.instructions.Drain() {
			r.handle(in)
		}
		select {
		case <-r.ctx.Done():
			return
		case <-r.instructions.Wait():
		}
	}
}

func (r *Room) handle(in core.Instruction) {
	logger := r.logger.With().Int64("sid", int64(in.SessionID)).Stringer("code", in.Code).Logger()
	switch in.Code {
	case protocol.CodeLeaveRoom:
		m, emptied, ok := r.remove(in.SessionID)
		if !ok {
			logger.Debug().Msg("leave for unknown member dropped")
			return
		}
		r.opts.Orchestrator.Push(core.Instruction{
			Code:      protocol.CodeLeaveRoom,
			SessionID: in.SessionID,
			Handoff:   m,
			Room:      r.meta.ID,
		})
		r.publish(protocol.New(protocol.CodeMemberLeft, in.SessionID, protocol.Text(m.DisplayName())), false)
		logger.Info().Msg("member left")
		if emptied {
			r.Close()
		}
	case protocol.CodeDisconnect:
		m, emptied, ok := r.remove(in.SessionID)
		if !ok {
			logger.Debug().Msg("disconnect for unknown member dropped")
			return
		}
		m.Close()
		r.opts.Orchestrator.Push(core.Instruction{
			Code:      protocol.CodeDisconnect,
			SessionID: in.SessionID,
			Room:      r.meta.ID,
		})
		r.publish(protocol.New(protocol.CodeMemberLeft, in.SessionID, protocol.Text(m.DisplayName())), false)
		logger.Info().Msg("member disconnected")
		if emptied {
			r.Close()
		}
	default:
		logger.Warn().Msg("unknown room instruction")
	}
}

// Close stops the room and force-closes any remaining member sockets. Each
// of those members is reported to the orchestrator as disconnected.
// It is idempotent and may run concurrently with other closes.
func (r *Room) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		members := make([]*Member, 0, len(r.members))
		for _, m := range r.members {
			members = append(members, m)
		}
		clear(r.members)
		r.replay = nil
		r.mu.Unlock()

		r.cancel()
		for _, m := range members {
			m.Close()
			r.opts.Orchestrator.Push(core.Instruction{
				Code:      protocol.CodeDisconnect,
				SessionID: m.ID(),
				Room:      r.meta.ID,
			})
		}
		r.broadcast.Close()
		r.instructions.Close()
		if r.opts.OnClose != nil {
			r.opts.OnClose(r.meta.ID)
		}
		r.logger.Info().Int("members", len(members)).Msg("room closed")
	})
}

// Wait blocks until the room's goroutines have exited. Call it after Close,
// never from inside the room.
func (r *Room) Wait() {
	r.wg.Wait()
}
