package audio

import "sync/atomic"

type IndicatorState int32

const (
	Idle IndicatorState = iota
	Speaking
)

func (s IndicatorState) String() string {
	if s == Speaking {
		return "speaking"
	}
	return "idle"
}

// indicator is a speaking/idle flag that reports only real transitions.
type indicator struct {
	state atomic.Int32 // Zero by default (Idle)
}

func (i *indicator) Get() IndicatorState {
	return IndicatorState(i.state.Load())
}

// Set stores s and reports whether it differs from the previous state.
func (i *indicator) Set(s IndicatorState) bool {
	return IndicatorState(i.state.Swap(int32(s))) != s
}
