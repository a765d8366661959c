package app

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/dkeye/grouptalk/internal/domain"
)

var ErrRoomIDSpaceExhausted = errors.New("room id space exhausted")

// RoomIDGenerator hands out random room ids. Every id it ever produced is
// remembered, so ids of closed rooms are not reused for the process lifetime.
type RoomIDGenerator struct {
	mu       sync.Mutex
	used     map[domain.RoomID]struct{}
	attempts int
	intn     func(n int) int
}

// NewRoomIDGenerator bounds each Next call to attempts draws (minimum 1).
func NewRoomIDGenerator(attempts int) *RoomIDGenerator {
	return newRoomIDGenerator(attempts, rand.IntN)
}

func newRoomIDGenerator(attempts int, intn func(n int) int) *RoomIDGenerator {
	if attempts < 1 {
		attempts = 1
	}
	return &RoomIDGenerator{
		used:     make(map[domain.RoomID]struct{}),
		attempts: attempts,
		intn:     intn,
	}
}

func (g *RoomIDGenerator) Next() (domain.RoomID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for range g.attempts {
		id := g.draw()
		if _, taken := g.used[id]; taken {
			continue
		}
		g.used[id] = struct{}{}
		return id, nil
	}
	return "", ErrRoomIDSpaceExhausted
}

func (g *RoomIDGenerator) draw() domain.RoomID {
	var b strings.Builder
	b.Grow(domain.RoomIDLength)
	for range domain.RoomIDLength {
		b.WriteByte(domain.RoomIDAlphabet[g.intn(len(domain.RoomIDAlphabet))])
	}
	return domain.RoomID(b.String())
}

// Used reports how many ids have been handed out.
func (g *RoomIDGenerator) Used() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.used)
}
