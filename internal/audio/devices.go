package audio

//go:generate mockgen -source=devices.go -destination=mocks/devices.go -package=mocks

// Microphone is a capture device producing raw PCM
// (16 kHz, 16 bit, mono, signed, little-endian).
type Microphone interface {
	// Available reports how many bytes can be read without blocking.
	Available() int
	Read(p []byte) (int, error)
	// Flush discards buffered input.
	Flush()
}

// Speaker is a playback device consuming raw PCM.
type Speaker interface {
	Write(p []byte) (int, error)
	Close() error
}

// Gate is the push-to-talk signal.
type Gate interface {
	Active() bool
}
