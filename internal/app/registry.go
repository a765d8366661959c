package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/app/lobby"
	"github.com/dkeye/grouptalk/internal/app/room"
	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
)

// sessionEntry tracks where a session currently lives: a lobby session
// while roomless, a room id once it is a member.
type sessionEntry struct {
	RoomID domain.RoomID
	Lobby  *lobby.Session
}

// Registry is the concurrency-safe store of sessions and rooms. The
// orchestrator owns it; acceptors, rooms and the admin API read it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
	rooms    map[domain.RoomID]*room.Room
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*sessionEntry),
		rooms:    make(map[domain.RoomID]*room.Room),
	}
}

// BindLobby records sid as roomless, served by lob.
func (r *Registry) BindLobby(sid domain.SessionID, lob *lobby.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Lobby: lob}
	log.Debug().Str("module", "app.registry").Int64("sid", int64(sid)).Msg("bound lobby")
}

// BindMember records sid as a member of roomID.
func (r *Registry) BindMember(sid domain.SessionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{RoomID: roomID}
	log.Debug().Str("module", "app.registry").Int64("sid", int64(sid)).Str("room", string(roomID)).Msg("bound member")
}

func (r *Registry) Lobby(sid domain.SessionID) (*lobby.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.Lobby == nil {
		return nil, false
	}
	return e.Lobby, true
}

func (r *Registry) RoomOf(sid domain.SessionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomID == "" {
		return "", false
	}
	return e.RoomID, true
}

// Unbind forgets sid. It reports whether sid was known.
func (r *Registry) Unbind(sid domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return false
	}
	delete(r.sessions, sid)
	log.Debug().Str("module", "app.registry").Int64("sid", int64(sid)).Msg("unbind session")
	return true
}

func (r *Registry) Known(sid domain.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sid]
	return ok
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Lobbies() []*lobby.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*lobby.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Lobby != nil {
			out = append(out, e.Lobby)
		}
	}
	return out
}

func (r *Registry) AddRoom(rm *room.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[rm.ID()] = rm
	log.Info().Str("module", "app.registry").Str("room", string(rm.ID())).Msg("room registered")
}

func (r *Registry) Room(id domain.RoomID) (*room.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

func (r *Registry) RemoveRoom(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room unregistered")
}

func (r *Registry) Rooms() []*room.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*room.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm)
	}
	return out
}

// List returns a stable, id-ordered view of the active rooms.
func (r *Registry) List() []core.RoomInfo {
	rooms := r.Rooms()
	out := make([]core.RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, rm.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
