// Package orch owns global session and room state and applies membership
// instructions one at a time.
package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/app"
	"github.com/dkeye/grouptalk/internal/app/lobby"
	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/queue"
)

type Orchestrator struct {
	Registry *app.Registry
	RoomIDs  *app.RoomIDGenerator
	Policy   core.Policy
	// Limiter caps JOIN_ROOM and CREATE_ROOM requests per session; nil means unlimited.
	Limiter *app.RequestLimiter

	queue *core.InstructionQueue
}

func New(reg *app.Registry, ids *app.RoomIDGenerator, policy core.Policy, limiter *app.RequestLimiter) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		RoomIDs:  ids,
		Policy:   policy,
		Limiter:  limiter,
		queue:    queue.New[core.Instruction](),
	}
}

// Instructions is the global queue every session reports to.
func (o *Orchestrator) Instructions() *core.InstructionQueue {
	return o.queue
}

// Admit registers a freshly accepted connection as a lobby session and greets it.
func (o *Orchestrator) Admit(ctx context.Context, sid domain.SessionID, conn core.Connection) {
	lob := lobby.New(domain.NewUser(sid), conn, o.queue)
	o.Registry.BindLobby(sid, lob)
	if err := lob.Greet(); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Int64("sid", int64(sid)).Msg("greeting failed")
	}
	lob.Start(ctx)
}

// Run consumes instructions until ctx ends, then closes every room and lobby.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("module", "app.orch").Msg("orchestrator started")
	for {
		for _, in := range o.queue.Drain() {
			o.handle(ctx, in)
		}
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-o.queue.Wait():
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, in core.Instruction) {
	switch in.Code {
	case protocol.CodeJoinRoom:
		o.join(ctx, in)
	case protocol.CodeCreateRoom:
		o.create(ctx, in)
	case protocol.CodeLeaveRoom:
		o.leave(ctx, in)
	case protocol.CodeDisconnect:
		o.disconnect(in)
	default:
		log.Warn().Str("module", "app.orch").Int64("sid", int64(in.SessionID)).Stringer("code", in.Code).Msg("unknown instruction")
	}
}

func (o *Orchestrator) shutdown() {
	rooms := o.Registry.Rooms()
	for _, rm := range rooms {
		rm.Close()
	}
	for _, rm := range rooms {
		rm.Wait()
	}
	for _, lob := range o.Registry.Lobbies() {
		lob.Close()
	}
	log.Info().Str("module", "app.orch").Int("rooms", len(rooms)).Msg("orchestrator stopped")
}
