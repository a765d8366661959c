package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/grouptalk/internal/audio"
	"github.com/dkeye/grouptalk/internal/audio/mocks"
	"github.com/dkeye/grouptalk/internal/config"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/server"
)

type recorder struct {
	NopEvents
	states   chan ConnState
	sessions chan domain.SessionID
	rooms    chan domain.RoomID
	left     chan struct{}
	chats    chan string
	joined   chan string
	departed chan string
	speaking chan domain.SessionID
}

func newRecorder() *recorder {
	return &recorder{
		states:   make(chan ConnState, 64),
		sessions: make(chan domain.SessionID, 8),
		rooms:    make(chan domain.RoomID, 8),
		left:     make(chan struct{}, 8),
		chats:    make(chan string, 64),
		joined:   make(chan string, 8),
		departed: make(chan string, 8),
		speaking: make(chan domain.SessionID, 8),
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (r *recorder) ConnectionChanged(s ConnState) { offer(r.states, s) }

func (r *recorder) SessionAssigned(id domain.SessionID) { offer(r.sessions, id) }

func (r *recorder) RoomChanged(id domain.RoomID, _ domain.RoomName) { offer(r.rooms, id) }

func (r *recorder) LeftRoom() { offer(r.left, struct{}{}) }

func (r *recorder) MemberJoined(_ domain.SessionID, name string) { offer(r.joined, name) }

func (r *recorder) MemberLeft(_ domain.SessionID, name string) { offer(r.departed, name) }

func (r *recorder) ChatReceived(_ domain.SessionID, name, text string) {
	offer(r.chats, fmt.Sprintf("%s: %s", name, text))
}

func (r *recorder) SpeakingChanged(id domain.SessionID, speaking bool) {
	if speaking {
		offer(r.speaking, id)
	}
}

func await[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// awaitValue skips values until want arrives.
func awaitValue[T comparable](t *testing.T, ch chan T, want T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if v == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Port = 0
	cfg.HTTPPort = 0
	srv := server.New(cfg)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return fmt.Sprintf("127.0.0.1:%d", srv.Addr().(*net.TCPAddr).Port)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Client.ReconnectInterval = 50 * time.Millisecond
	cfg.Client.DialTimeout = time.Second
	return cfg
}

func connect(t *testing.T, addr, name string, dev Devices) (*Client, *recorder) {
	t.Helper()
	rec := newRecorder()
	c, err := New(testConfig(), rec, dev)
	if err != nil {
		t.Fatal(err)
	}
	// Not connected yet: the name is kept and sent after INIT.
	if err := c.SetName(name); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SetName before connect: %v", err)
	}
	c.Start(context.Background(), addr)
	t.Cleanup(c.Close)
	await(t, rec.sessions, "session id")
	return c, rec
}

func TestChatBetweenClients(t *testing.T) {
	addr := startServer(t)
	alice, ra := connect(t, addr, "alice", Devices{})
	bob, rb := connect(t, addr, "bob", Devices{})

	if err := alice.CreateRoom("Study"); err != nil {
		t.Fatal(err)
	}
	id := await(t, ra.rooms, "alice's room")
	if alice.Room() != id {
		t.Fatalf("Room() = %q, want %q", alice.Room(), id)
	}

	if err := bob.JoinRoom(id); err != nil {
		t.Fatal(err)
	}
	if got := await(t, rb.rooms, "bob's room"); got != id {
		t.Fatalf("bob joined %q, want %q", got, id)
	}
	if got := await(t, rb.joined, "replayed join"); got != "alice" {
		t.Fatalf("bob saw %q join", got)
	}
	if got := await(t, ra.joined, "bob's join"); got != "bob" {
		t.Fatalf("alice saw %q join", got)
	}

	if err := alice.Chat("hello"); err != nil {
		t.Fatal(err)
	}
	awaitValue(t, rb.chats, "alice: hello")

	if err := bob.LeaveRoom(); err != nil {
		t.Fatal(err)
	}
	await(t, rb.left, "bob leaving")
	if got := await(t, ra.departed, "bob's departure"); got != "bob" {
		t.Fatalf("alice saw %q leave", got)
	}
	if bob.Room() != "" {
		t.Fatalf("bob still in %q", bob.Room())
	}
}

func TestAudioReachesOtherClient(t *testing.T) {
	addr := startServer(t)
	ctrl := gomock.NewController(t)

	cfg := testConfig()
	var frames atomic.Int32
	mic := mocks.NewMockMicrophone(ctrl)
	mic.EXPECT().Available().DoAndReturn(func() int {
		for {
			n := frames.Load()
			if n <= 0 {
				return 0
			}
			if frames.CompareAndSwap(n, n-1) {
				return cfg.Audio.FrameSize
			}
		}
	}).AnyTimes()
	mic.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		for i := range p {
			p[i] = 50
		}
		return len(p), nil
	}).AnyTimes()
	mic.EXPECT().Flush().AnyTimes()
	ptt := mocks.NewMockGate(ctrl)
	ptt.EXPECT().Active().Return(true).AnyTimes()

	played := make(chan []byte, 16)
	speakers := audio.SpeakerFactoryFunc(func() (audio.Speaker, error) {
		spk := mocks.NewMockSpeaker(ctrl)
		spk.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			offer(played, bytes.Clone(p))
			return len(p), nil
		}).AnyTimes()
		spk.EXPECT().Close().Return(nil).AnyTimes()
		return spk, nil
	})

	alice, ra := connect(t, addr, "alice", Devices{Microphone: mic, PushToTalk: ptt})
	bob, rb := connect(t, addr, "bob", Devices{Speakers: speakers})

	if err := alice.CreateRoom("Band"); err != nil {
		t.Fatal(err)
	}
	id := await(t, ra.rooms, "alice's room")
	if err := bob.JoinRoom(id); err != nil {
		t.Fatal(err)
	}
	await(t, rb.rooms, "bob's room")
	await(t, ra.joined, "bob's join")

	frames.Store(3)
	pcm := await(t, played, "played frame")
	if len(pcm) != cfg.Audio.FrameSize || pcm[0] != 50 {
		t.Fatalf("played %d bytes starting with %d", len(pcm), pcm[0])
	}
	if got := await(t, rb.speaking, "speaking indicator"); got != alice.ID() {
		t.Fatalf("speaking indicator for %d, want %d", got, alice.ID())
	}
}

func TestReconnectsUntilClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	rec := newRecorder()
	c, err := New(testConfig(), rec, Devices{})
	if err != nil {
		t.Fatal(err)
	}
	c.Start(context.Background(), addr)

	for range 2 {
		awaitValue(t, rec.states, StateConnecting)
		awaitValue(t, rec.states, StateDisconnected)
	}

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the reconnect loop")
	}
	if err := c.Chat("anyone?"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Chat while disconnected: %v", err)
	}
}

func TestNewRejectsUnknownCodec(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.Codec = "mp3"
	if _, err := New(cfg, nil, Devices{}); !errors.Is(err, audio.ErrUnknownCodec) {
		t.Fatalf("got %v, want ErrUnknownCodec", err)
	}
}

func TestNameResendFailureIsLogged(t *testing.T) {
	c, err := New(testConfig(), nil, Devices{})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	c.logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	c.name = "alice"

	c.handle(context.Background(), protocol.New(protocol.CodeInit, 3, protocol.Text("3")))

	if c.ID() != 3 {
		t.Fatalf("ID = %d, want 3", c.ID())
	}
	if out := buf.String(); !strings.Contains(out, "display name not re-sent") || !strings.Contains(out, ErrNotConnected.Error()) {
		t.Fatalf("log = %q", out)
	}
}
