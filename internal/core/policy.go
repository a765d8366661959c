package core

import "github.com/dkeye/grouptalk/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case NoAction:
		return "none"
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop_frame"
	default:
		return "unknown"
	}
}

// Policy decides what a broadcaster does when delivery to a member fails.
type Policy interface {
	OnSendFailure(room domain.RoomID, member domain.SessionID, err error) BackpressureAction
}
