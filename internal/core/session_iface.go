package core

import (
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/queue"
)

// Instruction is a membership request travelling on the orchestrator's
// or a room's instruction queue.
type Instruction struct {
	Code      protocol.Code
	SessionID domain.SessionID
	// Arg is the room id for JOIN_ROOM and the room name for CREATE_ROOM.
	Arg string
	// Handoff is set on LEAVE_ROOM sent by a room to the orchestrator.
	Handoff Handoff
	// Room is set when a room reports a member it has already removed.
	Room domain.RoomID
}

type InstructionQueue = queue.Queue[Instruction]

// Handoff is what a departing member leaves behind for the lobby session
// that replaces it.
type Handoff interface {
	ID() domain.SessionID
	DisplayName() string
	Conn() Connection
	// Detach stops the member's read loop without closing the connection
	// and returns once the loop has exited.
	Detach()
}
