package audio

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/grouptalk/internal/audio/mocks"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
)

func pcm(seq uint32) []byte {
	return bytes.Repeat([]byte{byte(seq + 1)}, 64)
}

func frame(t *testing.T, seq uint32) protocol.Audio {
	t.Helper()
	f, err := EncodeFrame(pcm(seq), CodecNone, seq)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

type notifications struct {
	mu  sync.Mutex
	got []bool
}

func (n *notifications) record(_ domain.SessionID, speaking bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, speaking)
}

func (n *notifications) list() []bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]bool(nil), n.got...)
}

func TestChannelDropsStaleFrames(t *testing.T) {
	ctrl := gomock.NewController(t)
	spk := mocks.NewMockSpeaker(ctrl)
	gomock.InOrder(
		spk.EXPECT().Write(pcm(0)).Return(64, nil),
		spk.EXPECT().Write(pcm(1)).Return(64, nil),
		spk.EXPECT().Write(pcm(3)).Return(64, nil),
		spk.EXPECT().Write(pcm(4)).Return(64, nil),
		spk.EXPECT().Close().Return(nil),
	)

	ch := NewChannel(7, spk, ChannelConfig{}, nil)
	want := []bool{true, true, true, false, true}
	for i, seq := range []uint32{0, 1, 3, 2, 4} {
		if got := ch.Accept(frame(t, seq)); got != want[i] {
			t.Fatalf("Accept(seq %d) = %v, want %v", seq, got, want[i])
		}
	}
	if ch.HighWater() != 4 {
		t.Fatalf("HighWater = %d", ch.HighWater())
	}
	ch.Close()
}

func TestIndicatorFollowsActivity(t *testing.T) {
	clock := newFakeClock()
	var n notifications
	ch := NewChannel(7, nil, ChannelConfig{Now: clock.Now}, n.record)

	ch.Accept(frame(t, 0))
	if ch.Indicator() != Speaking {
		t.Fatal("not speaking after a fresh frame")
	}

	clock.Advance(500 * time.Millisecond)
	ch.Tick()
	if ch.Indicator() != Speaking {
		t.Fatal("idle before the timeout")
	}

	clock.Advance(500 * time.Millisecond)
	ch.Tick()
	if ch.Indicator() != Idle {
		t.Fatal("still speaking after the timeout")
	}

	// seq 0 equals the high-water mark, so it is still fresh.
	ch.Accept(frame(t, 0))
	if ch.Indicator() != Speaking {
		t.Fatal("frame at the high-water mark rejected")
	}
	clock.Advance(time.Second)
	ch.Accept(frame(t, 2))
	clock.Advance(time.Second)
	// A stale frame is not activity.
	ch.Accept(frame(t, 1))
	if ch.Indicator() != Idle {
		t.Fatal("stale frame kept the indicator on")
	}

	want := []bool{true, false, true, false}
	got := n.list()
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("notifications = %v, want %v", got, want)
		}
	}
}

func TestChannelEviction(t *testing.T) {
	clock := newFakeClock()
	ch := NewChannel(7, nil, ChannelConfig{Now: clock.Now}, nil)

	clock.Advance(4 * time.Minute)
	if ch.ShouldEvict() {
		t.Fatal("evictable before five minutes")
	}
	ch.Accept(frame(t, 0))
	clock.Advance(4 * time.Minute)
	if ch.ShouldEvict() {
		t.Fatal("fresh frame did not refresh activity")
	}
	clock.Advance(time.Minute)
	if !ch.ShouldEvict() {
		t.Fatal("not evictable after five silent minutes")
	}
}

func TestResetAcceptsRestartedStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	spk := mocks.NewMockSpeaker(ctrl)
	spk.EXPECT().Write(gomock.Any()).Return(64, nil).Times(2)

	ch := NewChannel(7, spk, ChannelConfig{}, nil)
	if !ch.Accept(frame(t, 10)) {
		t.Fatal("first frame rejected")
	}
	ch.Reset()
	if !ch.Accept(frame(t, 0)) {
		t.Fatal("restarted stream rejected after Reset")
	}
}

func TestSpeakerFailureDisablesPlayback(t *testing.T) {
	ctrl := gomock.NewController(t)
	spk := mocks.NewMockSpeaker(ctrl)
	gomock.InOrder(
		spk.EXPECT().Write(gomock.Any()).Return(0, errors.New("device gone")),
		spk.EXPECT().Close().Return(nil),
	)

	ch := NewChannel(7, spk, ChannelConfig{}, nil)
	if ch.Accept(frame(t, 0)) {
		t.Fatal("failed write reported as played")
	}
	if ch.Accept(frame(t, 1)) {
		t.Fatal("played after the speaker failed")
	}
	if ch.HighWater() != 1 {
		t.Fatalf("HighWater = %d", ch.HighWater())
	}
	ch.Close()
}

func TestChannelLoopPlaysPushedFrames(t *testing.T) {
	ctrl := gomock.NewController(t)
	spk := mocks.NewMockSpeaker(ctrl)
	played := make(chan []byte, 4)
	spk.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		played <- p
		return len(p), nil
	}).Times(2)
	closed := make(chan struct{})
	spk.EXPECT().Close().DoAndReturn(func() error {
		close(closed)
		return nil
	})

	ch := NewChannel(7, spk, ChannelConfig{}, nil)
	ch.Start(context.Background())
	ch.Push(frame(t, 0))
	ch.Push(frame(t, 1))
	for seq := range uint32(2) {
		select {
		case p := <-played:
			if !bytes.Equal(p, pcm(seq)) {
				t.Fatalf("played %v, want frame %d", p[:4], seq)
			}
		case <-time.After(time.Second):
			t.Fatal("frame not played")
		}
	}

	ch.Close()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("speaker not closed")
	}
}
