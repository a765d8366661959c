package orch

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/app/lobby"
	"github.com/dkeye/grouptalk/internal/app/room"
	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
)

// join moves a lobby session into an existing room. Unknown rooms are dropped
// without a reply to the client.
func (o *Orchestrator) join(ctx context.Context, in core.Instruction) {
	logger := log.With().Str("module", "app.orch").Int64("sid", int64(in.SessionID)).Str("room", in.Arg).Logger()
	lob, ok := o.Registry.Lobby(in.SessionID)
	if !ok {
		logger.Warn().Msg("join from a session not in the lobby dropped")
		return
	}
	if !o.Limiter.Allow(in.SessionID) {
		logger.Warn().Msg("join over the request limit dropped")
		return
	}
	rm, ok := o.Registry.Room(domain.RoomID(strings.ToUpper(strings.TrimSpace(in.Arg))))
	if !ok {
		logger.Warn().Msg("join to unknown room dropped")
		return
	}
	o.migrate(ctx, lob, rm)
}

func (o *Orchestrator) create(ctx context.Context, in core.Instruction) {
	logger := log.With().Str("module", "app.orch").Int64("sid", int64(in.SessionID)).Logger()
	lob, ok := o.Registry.Lobby(in.SessionID)
	if !ok {
		logger.Warn().Msg("create from a session not in the lobby dropped")
		return
	}
	if !o.Limiter.Allow(in.SessionID) {
		logger.Warn().Msg("create over the request limit dropped")
		return
	}
	id, err := o.RoomIDs.Next()
	if err != nil {
		logger.Error().Err(err).Msg("create room failed")
		return
	}
	name := strings.TrimSpace(in.Arg)
	if name == "" {
		name = string(id)
	}
	rm := room.New(ctx, domain.Room{ID: id, Name: domain.RoomName(name)}, room.Options{
		Orchestrator: o.queue,
		Policy:       o.Policy,
		OnClose:      o.Registry.RemoveRoom,
	})
	o.Registry.AddRoom(rm)
	logger.Info().Str("room", string(id)).Str("name", name).Msg("room created")
	if !o.migrate(ctx, lob, rm) {
		rm.Close()
	}
}

// migrate hands a lobby session's connection to a new member of rm and
// reports whether it succeeded.
func (o *Orchestrator) migrate(ctx context.Context, lob *lobby.Session, rm *room.Room) bool {
	logger := log.With().Str("module", "app.orch").Int64("sid", int64(lob.ID())).Str("room", string(rm.ID())).Logger()
	lob.Detach()
	m, err := rm.AddMember(lob.User(), lob.Conn())
	if err != nil {
		logger.Warn().Err(err).Msg("migration failed, staying in lobby")
		lob.Start(ctx)
		return false
	}
	o.Registry.BindMember(m.ID(), rm.ID())
	logger.Info().Msg("session joined room")
	return true
}

// leave turns a departed member back into a lobby session on the same connection.
func (o *Orchestrator) leave(ctx context.Context, in core.Instruction) {
	logger := log.With().Str("module", "app.orch").Int64("sid", int64(in.SessionID)).Logger()
	h := in.Handoff
	if h == nil {
		logger.Warn().Msg("leave without handoff dropped")
		return
	}
	h.Detach()
	user := &domain.User{ID: h.ID(), Username: h.DisplayName()}
	lob := lobby.New(user, h.Conn(), o.queue)
	o.Registry.BindLobby(user.ID, lob)
	if err := lob.AcknowledgeLeave(); err != nil {
		logger.Debug().Err(err).Msg("leave acknowledgement not sent")
	}
	lob.Start(ctx)
	logger.Info().Str("room", string(in.Room)).Msg("session returned to lobby")
}

// disconnect removes whichever session is registered under the id. Reports
// from a room mean the member is already gone from it.
func (o *Orchestrator) disconnect(in core.Instruction) {
	sid := in.SessionID
	logger := log.With().Str("module", "app.orch").Int64("sid", int64(sid)).Logger()
	if in.Room != "" {
		if rid, ok := o.Registry.RoomOf(sid); ok && rid == in.Room {
			o.Registry.Unbind(sid)
			o.Limiter.Forget(sid)
		}
		return
	}
	if lob, ok := o.Registry.Lobby(sid); ok {
		lob.Close()
		o.Registry.Unbind(sid)
		o.Limiter.Forget(sid)
		logger.Info().Msg("lobby session disconnected")
		return
	}
	if rid, ok := o.Registry.RoomOf(sid); ok {
		if rm, ok := o.Registry.Room(rid); ok && rm.Disconnect(sid) {
			return
		}
		o.Registry.Unbind(sid)
		return
	}
	logger.Debug().Msg("disconnect for unknown session dropped")
}
