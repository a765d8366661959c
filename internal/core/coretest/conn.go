// Package coretest provides an in-memory core.Connection for package tests.
package coretest

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/protocol"
)

// Conn records everything sent to it and lets tests inject inbound envelopes.
type Conn struct {
	mu      sync.Mutex
	sent    []protocol.Envelope
	sendErr error

	out   chan protocol.Envelope
	inbox chan protocol.Envelope
	done  chan struct{}
	once  sync.Once
}

var _ core.Connection = (*Conn)(nil)

func NewConn() *Conn {
	return &Conn{
		out:   make(chan protocol.Envelope, 1024),
		inbox: make(chan protocol.Envelope, 64),
		done:  make(chan struct{}),
	}
}

func (c *Conn) Send(env protocol.Envelope) error {
	select {
	case <-c.done:
		return core.ErrConnClosed
	default:
	}
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	select {
	case c.out <- env:
	default:
	}
	return nil
}

func (c *Conn) SendBatch(envs []protocol.Envelope) error {
	select {
	case <-c.done:
		return core.ErrConnClosed
	default:
	}
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, envs...)
	c.mu.Unlock()
	for _, env := range envs {
		select {
		case c.out <- env:
		default:
		}
	}
	return nil
}

func (c *Conn) Inbox() <-chan protocol.Envelope { return c.inbox }
func (c *Conn) Done() <-chan struct{}           { return c.done }
func (c *Conn) RemoteAddr() string              { return "coretest" }

func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// FailSends makes every later Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Receive injects env as if the peer had sent it.
func (c *Conn) Receive(env protocol.Envelope) {
	c.inbox <- env
}

// Sent returns a copy of everything sent so far.
func (c *Conn) Sent() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.sent...)
}

// Next waits for the next sent envelope.
func (c *Conn) Next(t testing.TB) protocol.Envelope {
	t.Helper()
	select {
	case env := <-c.out:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an outbound envelope")
		return protocol.Envelope{}
	}
}

// NextCode skips sent envelopes until one with code arrives.
func (c *Conn) NextCode(t testing.TB, code protocol.Code) protocol.Envelope {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case env := <-c.out:
			if env.Code() == code {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", code)
			return protocol.Envelope{}
		}
	}
}

// Quiet fails the test if anything is sent within d.
func (c *Conn) Quiet(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case env := <-c.out:
		t.Fatalf("unexpected envelope %s", env)
	case <-time.After(d):
	}
}
