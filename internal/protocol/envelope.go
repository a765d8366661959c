// Package protocol defines the Envelope, the only unit exchanged on a client connection.
package protocol

import (
	"fmt"

	"github.com/dkeye/grouptalk/internal/domain"
)

// Code identifies what an Envelope means. Values are part of the wire format.
type Code uint8

const (
	CodeInit Code = iota + 1
	CodeChat
	CodeJoinRoom
	CodeCreateRoom
	CodeSetName
	CodeRoomChanged
	CodeMemberJoined
	CodeAudio
	CodeLeaveRoom
	CodeMemberLeft
	CodeDisconnect
)

func (c Code) String() string {
	switch c {
	case CodeInit:
		return "INIT"
	case CodeChat:
		return "CHAT"
	case CodeJoinRoom:
		return "JOIN_ROOM"
	case CodeCreateRoom:
		return "CREATE_ROOM"
	case CodeSetName:
		return "SET_NAME"
	case CodeRoomChanged:
		return "ROOM_CHANGED"
	case CodeMemberJoined:
		return "MEMBER_JOINED"
	case CodeAudio:
		return "AUDIO"
	case CodeLeaveRoom:
		return "LEAVE_ROOM"
	case CodeMemberLeft:
		return "MEMBER_LEFT"
	case CodeDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the known codes.
func (c Code) Valid() bool {
	return c >= CodeInit && c <= CodeDisconnect
}

// Kind tags the payload variant on the wire.
type Kind uint8

const (
	KindNone Kind = iota
	KindText
	KindPair
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindText:
		return "text"
	case KindPair:
		return "pair"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Payload is the closed set of envelope bodies: None, Text, Pair and Audio.
type Payload interface {
	Kind() Kind
}

type None struct{}

type Text string

// Pair carries two strings, e.g. room id and room name in ROOM_CHANGED.
type Pair struct {
	First  string
	Second string
}

// Audio is one compressed PCM frame. Size is the decoded length in bytes.
type Audio struct {
	Seq   uint32
	Codec uint8
	Size  int
	Data  []byte
}

func (None) Kind() Kind  { return KindNone }
func (Text) Kind() Kind  { return KindText }
func (Pair) Kind() Kind  { return KindPair }
func (Audio) Kind() Kind { return KindAudio }

// Envelope is immutable once built; use the With* helpers to derive a copy.
type Envelope struct {
	code    Code
	origin  domain.SessionID
	payload Payload
}

// New builds an envelope. A nil payload is stored as None.
func New(code Code, origin domain.SessionID, payload Payload) Envelope {
	if payload == nil {
		payload = None{}
	}
	return Envelope{code: code, origin: origin, payload: payload}
}

func (e Envelope) Code() Code               { return e.code }
func (e Envelope) Origin() domain.SessionID { return e.origin }

func (e Envelope) Payload() Payload {
	if e.payload == nil {
		return None{}
	}
	return e.payload
}

// WithOrigin returns a copy of e stamped with origin.
func (e Envelope) WithOrigin(origin domain.SessionID) Envelope {
	e.origin = origin
	return e
}

// Text returns the text payload, if that is what e carries.
func (e Envelope) Text() (string, bool) {
	t, ok := e.payload.(Text)
	return string(t), ok
}

func (e Envelope) Pair() (Pair, bool) {
	p, ok := e.payload.(Pair)
	return p, ok
}

func (e Envelope) Audio() (Audio, bool) {
	a, ok := e.payload.(Audio)
	return a, ok
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s from %d (%s)", e.code, e.origin, e.Payload().Kind())
}
