package core

import (
	"github.com/dkeye/grouptalk/internal/domain"
)

// PublishResult reports delivery stats of one fan-out.
type PublishResult struct {
	SendTo  int
	Dropped []domain.SessionID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.SessionID `json:"id"`
	Username string           `json:"username"`
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}
