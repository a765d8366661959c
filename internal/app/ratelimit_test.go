package app

import (
	"testing"
	"time"
)

func TestRequestLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRequestLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow(1) || !rl.Allow(1) {
		t.Fatal("requests within the limit rejected")
	}
	if rl.Allow(1) {
		t.Fatal("third request in the window allowed")
	}
	if !rl.Allow(2) {
		t.Fatal("limit leaked across sessions")
	}

	now = now.Add(11 * time.Second)
	if !rl.Allow(1) {
		t.Fatal("request after the window rejected")
	}

	rl.Forget(1)
	if !rl.Allow(1) || !rl.Allow(1) {
		t.Fatal("history survived Forget")
	}
}

func TestRequestLimiterDisabled(t *testing.T) {
	var nilLimiter *RequestLimiter
	if !nilLimiter.Allow(1) {
		t.Fatal("nil limiter rejected a request")
	}
	rl := NewRequestLimiter(0, time.Second)
	for range 100 {
		if !rl.Allow(1) {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}
