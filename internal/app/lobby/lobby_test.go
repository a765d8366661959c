package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/core/coretest"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/queue"
)

func startSession(t *testing.T) (*Session, *coretest.Conn, *core.InstructionQueue) {
	t.Helper()
	conn := coretest.NewConn()
	instr := queue.New[core.Instruction]()
	s := New(domain.NewUser(5), conn, instr)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s, conn, instr
}

func waitInstruction(t *testing.T, q *core.InstructionQueue) core.Instruction {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if items := q.Drain(); len(items) > 0 {
			if len(items) != 1 {
				t.Fatalf("got %d instructions, want 1: %+v", len(items), items)
			}
			return items[0]
		}
		select {
		case <-q.Wait():
		case <-deadline:
			t.Fatal("timed out waiting for an instruction")
		}
	}
}

func TestGreetSendsSessionID(t *testing.T) {
	s, conn, _ := startSession(t)
	if err := s.Greet(); err != nil {
		t.Fatal(err)
	}
	env := conn.Next(t)
	if text, _ := env.Text(); env.Code() != protocol.CodeInit || env.Origin() != 5 || text != "5" {
		t.Fatalf("INIT = %s %q", env, text)
	}
}

func TestSetName(t *testing.T) {
	s, conn, instr := startSession(t)

	conn.Receive(protocol.New(protocol.CodeSetName, 0, protocol.Text("  alice ")))
	conn.Receive(protocol.New(protocol.CodeSetName, 0, protocol.Text("   ")))
	// JOIN is processed after both names, in order.
	conn.Receive(protocol.New(protocol.CodeJoinRoom, 0, protocol.Text("ABCDEF")))
	waitInstruction(t, instr)

	if got := s.User().Username; got != "alice" {
		t.Fatalf("username = %q", got)
	}
}

func TestRoomRequestsBecomeInstructions(t *testing.T) {
	tests := []struct {
		name string
		code protocol.Code
		arg  string
	}{
		{"join", protocol.CodeJoinRoom, "QWERTY"},
		{"create", protocol.CodeCreateRoom, "Study"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn, instr := startSession(t)
			conn.Receive(protocol.New(tt.code, 0, protocol.Text(tt.arg)))
			in := waitInstruction(t, instr)
			if in.Code != tt.code || in.SessionID != 5 || in.Arg != tt.arg {
				t.Fatalf("instruction = %+v", in)
			}
		})
	}
}

func TestInvalidEnvelopesAreDropped(t *testing.T) {
	_, conn, instr := startSession(t)
	conn.Receive(protocol.New(protocol.CodeChat, 0, protocol.Text("too early")))
	conn.Receive(protocol.New(protocol.CodeJoinRoom, 0, nil))
	conn.Receive(protocol.New(protocol.CodeCreateRoom, 0, protocol.Text("Study")))

	in := waitInstruction(t, instr)
	if in.Code != protocol.CodeCreateRoom {
		t.Fatalf("instruction = %+v", in)
	}
	if conn.Closed() {
		t.Fatal("invalid envelope closed the connection")
	}
}

func TestConnectionLossReportsDisconnect(t *testing.T) {
	_, conn, instr := startSession(t)
	conn.Close()
	if in := waitInstruction(t, instr); in.Code != protocol.CodeDisconnect || in.SessionID != 5 {
		t.Fatalf("instruction = %+v", in)
	}
}

func TestDetachKeepsConnectionOpen(t *testing.T) {
	s, conn, instr := startSession(t)
	s.Detach()

	conn.Receive(protocol.New(protocol.CodeJoinRoom, 0, protocol.Text("ABCDEF")))
	time.Sleep(20 * time.Millisecond)
	if instr.Len() != 0 {
		t.Fatal("detached session still reading")
	}
	if conn.Closed() {
		t.Fatal("Detach closed the connection")
	}

	// A restarted session picks up what arrived meanwhile.
	s.Start(context.Background())
	if in := waitInstruction(t, instr); in.Arg != "ABCDEF" {
		t.Fatalf("instruction = %+v", in)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, conn, _ := startSession(t)
	s.Close()
	s.Close()
	if !conn.Closed() {
		t.Fatal("connection still open")
	}
}
