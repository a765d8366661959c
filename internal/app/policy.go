package app

import (
	"errors"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
)

// SimplePolicy kicks members whose outbound queue overflows. A closed
// connection needs no action: its read loop already reports the disconnect.
type SimplePolicy struct{}

var _ core.Policy = SimplePolicy{}

func (SimplePolicy) OnSendFailure(_ domain.RoomID, _ domain.SessionID, err error) core.BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return core.KickMember
	}
	return core.NoAction
}
