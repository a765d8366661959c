package audio

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/dkeye/grouptalk/internal/protocol"
)

// Codec identifies the compression of an audio frame. Values travel on the
// wire in protocol.Audio.Codec.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

// MaxFrameSize bounds the decoded size a peer may announce.
const MaxFrameSize = 1 << 20

var (
	ErrIncompressible = errors.New("frame is incompressible")
	ErrUnknownCodec   = errors.New("unknown audio codec")
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("audio: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameSize))
	if err != nil {
		panic("audio: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress returns data compressed with c, or ErrIncompressible when the
// result would not be smaller.
func Compress(data []byte, c Codec) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecLZ4:
		bound := lz4.CompressBlockBound(len(data))
		dst := make([]byte, bound)
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			return nil, ErrIncompressible
		}
		return dst[:n], nil
	case CodecZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return nil, ErrIncompressible
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c)
	}
}

// Decompress reverses Compress. size must match the original length.
func Decompress(data []byte, c Codec, size int) ([]byte, error) {
	if size < 0 || size > MaxFrameSize {
		return nil, fmt.Errorf("frame size %d out of range", size)
	}
	switch c {
	case CodecNone:
		if len(data) != size {
			return nil, fmt.Errorf("raw frame: size %d does not match expected %d", len(data), size)
		}
		return data, nil
	case CodecLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return dst, nil
	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c)
	}
}

// EncodeFrame packs pcm into an audio payload, storing it raw when c cannot shrink it.
func EncodeFrame(pcm []byte, c Codec, seq uint32) (protocol.Audio, error) {
	data, err := Compress(pcm, c)
	if errors.Is(err, ErrIncompressible) {
		data, c, err = pcm, CodecNone, nil
	}
	if err != nil {
		return protocol.Audio{}, err
	}
	return protocol.Audio{Seq: seq, Codec: uint8(c), Size: len(pcm), Data: data}, nil
}

func DecodeFrame(f protocol.Audio) ([]byte, error) {
	return Decompress(f.Data, Codec(f.Codec), f.Size)
}
