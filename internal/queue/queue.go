// Package queue provides the unbounded multi-producer, single-consumer FIFO
// that every actor loop drains.
//
// Consumers follow the drain-then-wait pattern:
//
//	for {
//		for _, v := range q.Drain() {
//			handle(v)
//		}
//		select {
//		case <-ctx.Done():
//			return
//		case <-q.Wait():
//		}
//	}
//
// A Push that lands between Drain and Wait leaves a token in the wake
// channel, so no wakeup is lost.
package queue

import (
	"errors"
	"sync"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	wake   chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{wake: make(chan struct{}, 1)}
}

// Push appends v. It reports false if the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	return q.PushBounded(v, 0) == nil
}

// PushBounded appends v unless limit > 0 items are already pending.
func (q *Queue[T]) PushBounded(v T, limit int) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if limit > 0 && len(q.items) >= limit {
		q.mu.Unlock()
		return ErrFull
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// PushAll appends vs as one contiguous run, ignoring any limit.
func (q *Queue[T]) PushAll(vs []T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, vs...)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Drain removes and returns every pending item, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Wait fires after at least one Push since the previous receive.
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.wake
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and discards pending items. It is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
