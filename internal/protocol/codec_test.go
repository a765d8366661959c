package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestStreamPreservesTypeAndPayload(t *testing.T) {
	sent := []Envelope{
		New(CodeInit, 7, Text("7")),
		New(CodeRoomChanged, 7, Pair{First: "ABCDEF", Second: "Study"}),
		New(CodeAudio, 7, Audio{Seq: 42, Codec: 2, Size: 4, Data: []byte{0, 1, 0xfe, 0xff}}),
		New(CodeLeaveRoom, 7, nil),
		New(CodeChat, 9, Text("")),
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, env := range sent {
		if err := enc.Encode(env); err != nil {
			t.Fatalf("encode %s: %v", env, err)
		}
	}

	dec := NewDecoder(&buf)
	for i, want := range sent {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("decode #%d: %v", i, err)
		}
		if got.Code() != want.Code() || got.Origin() != want.Origin() {
			t.Fatalf("#%d: got %s, want %s", i, got, want)
		}
		if got.Payload().Kind() != want.Payload().Kind() {
			t.Fatalf("#%d: payload kind %s, want %s", i, got.Payload().Kind(), want.Payload().Kind())
		}
	}
}

func TestAudioPayloadIsByteExact(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	raw, err := Marshal(New(CodeAudio, 3, Audio{Seq: 1, Size: len(data), Data: data}))
	if err != nil {
		t.Fatal(err)
	}
	env, err := Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	a, ok := env.Audio()
	if !ok {
		t.Fatalf("payload is %T", env.Payload())
	}
	if !bytes.Equal(a.Data, data) || a.Size != len(data) || a.Seq != 1 {
		t.Fatalf("audio payload changed in transit: %+v", a)
	}
}

func TestDecoderSkipsMalformedItem(t *testing.T) {
	var buf bytes.Buffer
	junk, err := cbor.Marshal(42)
	if err != nil {
		t.Fatal(err)
	}
	buf.Write(junk)
	if err := NewEncoder(&buf).Encode(New(CodeChat, 1, Text("after"))); err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(&buf)
	if _, err := dec.Decode(); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("first decode: got %v, want ErrMalformedEnvelope", err)
	}
	env, err := dec.Decode()
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if text, _ := env.Text(); text != "after" {
		t.Fatalf("got %q, want %q", text, "after")
	}
}

func TestUnknownPayloadKindIsMalformed(t *testing.T) {
	raw, err := encMode.Marshal(wireEnvelope{Code: CodeChat, Kind: Kind(99)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(raw); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("got %v, want ErrMalformedEnvelope", err)
	}
}

func TestUnknownCodeStillDecodes(t *testing.T) {
	raw, err := Marshal(New(Code(200), 1, nil))
	if err != nil {
		t.Fatal(err)
	}
	env, err := Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if env.Code().Valid() {
		t.Fatalf("code %s should not be valid", env.Code())
	}
	if got := env.Code().String(); got != "unknown(200)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestWithOriginCopies(t *testing.T) {
	a := New(CodeChat, 1, Text("hi"))
	b := a.WithOrigin(2)
	if a.Origin() != 1 || b.Origin() != 2 {
		t.Fatalf("origins: %d, %d", a.Origin(), b.Origin())
	}
}
