package app

import (
	"sync"
	"time"

	"github.com/dkeye/grouptalk/internal/domain"
)

// RequestLimiter is a sliding-window limit on room requests per session.
type RequestLimiter struct {
	mu      sync.Mutex
	history map[domain.SessionID][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewRequestLimiter allows limit requests per window. A limit below 1 disables it.
func NewRequestLimiter(limit int, window time.Duration) *RequestLimiter {
	return &RequestLimiter{
		history: make(map[domain.SessionID][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (rl *RequestLimiter) Allow(sid domain.SessionID) bool {
	if rl == nil || rl.limit < 1 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.window)

	attempts := rl.history[sid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}
	rl.history[sid] = append(fresh, now)
	return true
}

// Forget drops the history of a session that is gone.
func (rl *RequestLimiter) Forget(sid domain.SessionID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, sid)
}
