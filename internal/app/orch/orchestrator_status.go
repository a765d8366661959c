package orch

import (
	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
)

// Rooms lists the active rooms.
func (o *Orchestrator) Rooms() []core.RoomInfo {
	return o.Registry.List()
}

func (o *Orchestrator) RoomMembers(id domain.RoomID) (core.RoomInfo, []core.MemberDTO, bool) {
	rm, ok := o.Registry.Room(id)
	if !ok {
		return core.RoomInfo{}, nil, false
	}
	return rm.Info(), rm.MembersSnapshot(), true
}

func (o *Orchestrator) SessionCount() int {
	return o.Registry.SessionCount()
}

// Disconnect queues a forced disconnect for sid and reports whether sid is known.
func (o *Orchestrator) Disconnect(sid domain.SessionID) bool {
	if !o.Registry.Known(sid) {
		return false
	}
	return o.queue.Push(core.Instruction{Code: protocol.CodeDisconnect, SessionID: sid})
}
