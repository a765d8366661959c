package queue

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDrainIsFIFO(t *testing.T) {
	q := New[int]()
	for i := range 5 {
		q.Push(i)
	}
	got := q.Drain()
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v, want 0..4 in order", got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len after drain = %d", q.Len())
	}
}

func TestPerProducerOrder(t *testing.T) {
	type item struct{ producer, n int }
	q := New[item]()
	const producers, per = 8, 200

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range per {
				q.Push(item{p, n})
			}
		}()
	}
	wg.Wait()

	next := make([]int, producers)
	for _, it := range q.Drain() {
		if it.n != next[it.producer] {
			t.Fatalf("producer %d: got %d, want %d", it.producer, it.n, next[it.producer])
		}
		next[it.producer]++
	}
	for p, n := range next {
		if n != per {
			t.Fatalf("producer %d delivered %d items", p, n)
		}
	}
}

func TestWaitWakesAfterPush(t *testing.T) {
	q := New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push("x")
	}()
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no wakeup")
	}
	if got := q.Drain(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("got %v", got)
	}
}

func TestPushBetweenDrainAndWaitIsNotLost(t *testing.T) {
	q := New[int]()
	q.Push(1)
	<-q.Wait()
	q.Drain()
	q.Push(2)
	select {
	case <-q.Wait():
	default:
		t.Fatal("wake token lost")
	}
}

func TestPushBounded(t *testing.T) {
	q := New[int]()
	if err := q.PushBounded(1, 2); err != nil {
		t.Fatal(err)
	}
	if err := q.PushBounded(2, 2); err != nil {
		t.Fatal(err)
	}
	if err := q.PushBounded(3, 2); !errors.Is(err, ErrFull) {
		t.Fatalf("got %v, want ErrFull", err)
	}
}

func TestPushAllIgnoresLimit(t *testing.T) {
	q := New[int]()
	if err := q.PushBounded(1, 2); err != nil {
		t.Fatal(err)
	}
	if err := q.PushAll([]int{2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-q.Wait():
	default:
		t.Fatal("no wake token after PushAll")
	}
	got := q.Drain()
	if len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Fatalf("got %v", got)
	}
	q.Close()
	if err := q.PushAll([]int{5}); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestClose(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()
	q.Close()
	if q.Push(2) {
		t.Fatal("push after close succeeded")
	}
	if err := q.PushBounded(3, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
	if got := q.Drain(); len(got) != 0 {
		t.Fatalf("closed queue still holds %v", got)
	}
}
