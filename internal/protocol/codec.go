package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/dkeye/grouptalk/internal/domain"
)

// ErrMalformedEnvelope marks a well-formed CBOR item that is not a valid envelope.
// The stream stays usable after it.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// encMode uses Core Deterministic Encoding so equal envelopes encode to equal bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxMapPairs:      64,
		MaxArrayElements: 64,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// wireEnvelope is the on-stream layout. Integer keys keep frames small.
type wireEnvelope struct {
	Code   Code   `cbor:"1,keyasint"`
	Origin int64  `cbor:"2,keyasint"`
	Kind   Kind   `cbor:"3,keyasint"`
	Text   string `cbor:"4,keyasint,omitempty"`
	Second string `cbor:"5,keyasint,omitempty"`
	Seq    uint32 `cbor:"6,keyasint,omitempty"`
	Codec  uint8  `cbor:"7,keyasint,omitempty"`
	Size   int    `cbor:"8,keyasint,omitempty"`
	Data   []byte `cbor:"9,keyasint,omitempty"`
}

func (e Envelope) MarshalCBOR() ([]byte, error) {
	w := wireEnvelope{Code: e.code, Origin: int64(e.origin)}
	switch p := e.Payload().(type) {
	case None:
		w.Kind = KindNone
	case Text:
		w.Kind = KindText
		w.Text = string(p)
	case Pair:
		w.Kind = KindPair
		w.Text, w.Second = p.First, p.Second
	case Audio:
		w.Kind = KindAudio
		w.Seq, w.Codec, w.Size, w.Data = p.Seq, p.Codec, p.Size, p.Data
	default:
		return nil, fmt.Errorf("encode %s: unsupported payload %T", e.code, p)
	}
	return encMode.Marshal(w)
}

func (e *Envelope) UnmarshalCBOR(data []byte) error {
	var w wireEnvelope
	if err := decMode.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	var p Payload
	switch w.Kind {
	case KindNone:
		p = None{}
	case KindText:
		p = Text(w.Text)
	case KindPair:
		p = Pair{First: w.Text, Second: w.Second}
	case KindAudio:
		if w.Size < 0 {
			return fmt.Errorf("%w: negative audio size %d", ErrMalformedEnvelope, w.Size)
		}
		p = Audio{Seq: w.Seq, Codec: w.Codec, Size: w.Size, Data: w.Data}
	default:
		return fmt.Errorf("%w: payload kind %s", ErrMalformedEnvelope, w.Kind)
	}
	*e = New(w.Code, domain.SessionID(w.Origin), p)
	return nil
}

// Marshal encodes a single envelope, for message-oriented transports.
func Marshal(e Envelope) ([]byte, error) {
	return e.MarshalCBOR()
}

// Unmarshal decodes a single envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := decMode.Unmarshal(data, &e)
	if err != nil && !errors.Is(err, ErrMalformedEnvelope) {
		err = fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return e, err
}

// Encoder writes one CBOR data item per envelope; item boundaries are the framing.
type Encoder struct {
	enc *cbor.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: encMode.NewEncoder(w)}
}

func (e *Encoder) Encode(env Envelope) error {
	return e.enc.Encode(env)
}

// Decoder reads envelopes written by Encoder. A decode error wrapping
// ErrMalformedEnvelope has consumed the bad item; any other error is fatal for the stream.
type Decoder struct {
	dec *cbor.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

func (d *Decoder) Decode() (Envelope, error) {
	var env Envelope
	err := d.dec.Decode(&env)
	var typeErr *cbor.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		err = fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, err
}
