package client

import (
	"github.com/dkeye/grouptalk/internal/domain"
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Events is the presentation sink. Callbacks run on the client's receive
// goroutine (speaking changes on audio goroutines) and must not block.
type Events interface {
	ConnectionChanged(state ConnState)
	SessionAssigned(id domain.SessionID)
	RoomChanged(id domain.RoomID, name domain.RoomName)
	LeftRoom()
	ChatReceived(from domain.SessionID, name, text string)
	MemberJoined(id domain.SessionID, name string)
	MemberLeft(id domain.SessionID, name string)
	SpeakingChanged(id domain.SessionID, speaking bool)
}

// NopEvents ignores every event. Embed it to implement a subset.
type NopEvents struct{}

func (NopEvents) ConnectionChanged(ConnState)                   {}
func (NopEvents) SessionAssigned(domain.SessionID)              {}
func (NopEvents) RoomChanged(domain.RoomID, domain.RoomName)    {}
func (NopEvents) LeftRoom()                                     {}
func (NopEvents) ChatReceived(domain.SessionID, string, string) {}
func (NopEvents) MemberJoined(domain.SessionID, string)         {}
func (NopEvents) MemberLeft(domain.SessionID, string)           {}
func (NopEvents) SpeakingChanged(domain.SessionID, bool)        {}
