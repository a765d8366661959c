package audio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/queue"
)

// CaptureConfig controls microphone capture and silence suppression.
type CaptureConfig struct {
	// FrameSize is the PCM byte count of one frame.
	FrameSize     int
	Amplification float64
	// Threshold is the minimum Level of a transmitted frame.
	Threshold float64
	// Grace keeps capturing this long after push-to-talk is released.
	Grace time.Duration
	Poll  time.Duration
	Codec Codec
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		FrameSize:     10000,
		Amplification: 1,
		Threshold:     0.5,
		Grace:         50 * time.Millisecond,
		Poll:          10 * time.Millisecond,
		Codec:         CodecZstd,
	}
}

// Capture reads gated microphone frames and sends the loud enough ones as
// AUDIO envelopes with a strictly increasing sequence number.
type Capture struct {
	origin    domain.SessionID
	mic       Microphone
	gate      Gate
	cfg       CaptureConfig
	send      func(protocol.Envelope) error
	onTalking func(bool)

	frames   *queue.Queue[[]byte]
	seq      uint32
	lastTalk time.Time
	talking  bool
	logger   zerolog.Logger
}

func NewCapture(origin domain.SessionID, mic Microphone, gate Gate, cfg CaptureConfig, send func(protocol.Envelope) error, onTalking func(bool)) *Capture {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultCaptureConfig().FrameSize
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultCaptureConfig().Poll
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Capture{
		origin:    origin,
		mic:       mic,
		gate:      gate,
		cfg:       cfg,
		send:      send,
		onTalking: onTalking,
		frames:    queue.New[[]byte](),
		logger: log.With().
			Str("module", "audio.capture").
			Int64("sid", int64(origin)).
			Logger(),
	}
}

// Run captures and sends until ctx ends or the microphone fails.
func (c *Capture) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		c.captureLoop(ctx)
	})
	wg.Go(func() { c.sendLoop(ctx) })
	wg.Wait()
	c.setTalking(false)
}

func (c *Capture) captureLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Poll)
	defer ticker.Stop()
	for {
		if err := c.Poll(); err != nil {
			c.logger.Warn().Err(err).Msg("microphone failed, capture disabled")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll applies the push-to-talk gate once and queues every complete frame
// the microphone has ready.
func (c *Capture) Poll() error {
	now := c.cfg.Now()
	pressed := c.gate != nil && c.gate.Active()
	if pressed {
		c.lastTalk = now
	}
	if !pressed && now.Sub(c.lastTalk) >= c.cfg.Grace {
		c.mic.Flush()
		c.setTalking(false)
		return nil
	}
	c.setTalking(true)
	for c.mic.Available() >= c.cfg.FrameSize {
		frame := make([]byte, c.cfg.FrameSize)
		if _, err := io.ReadFull(c.mic, frame); err != nil {
			return err
		}
		c.frames.Push(frame)
	}
	return nil
}

func (c *Capture) sendLoop(ctx context.Context) {
	for {
		for _, frame := range c.frames.Drain() {
			c.Transmit(frame)
		}
		select {
		case <-ctx.Done():
			return
		case <-c.frames.Wait():
		}
	}
}

// Transmit amplifies frame in place and sends it if it clears the threshold.
// It reports whether an envelope was handed to the writer.
func (c *Capture) Transmit(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	Amplify(frame, c.cfg.Amplification)
	if Level(frame) < c.cfg.Threshold {
		return false
	}
	payload, err := EncodeFrame(frame, c.cfg.Codec, c.seq)
	if err != nil {
		c.logger.Debug().Err(err).Msg("frame dropped")
		return false
	}
	c.seq++
	if err := c.send(protocol.New(protocol.CodeAudio, c.origin, payload)); err != nil {
		c.logger.Debug().Err(err).Uint32("seq", payload.Seq).Msg("send failed")
		return false
	}
	return true
}

func (c *Capture) setTalking(v bool) {
	if c.talking == v {
		return
	}
	c.talking = v
	if c.onTalking != nil {
		c.onTalking(v)
	}
}

// Amplify scales the 16-bit little-endian samples of frame by gain,
// saturating at the int16 range. A trailing odd byte is left as is.
func Amplify(frame []byte, gain float64) {
	if gain == 1 {
		return
	}
	for i := 0; i+1 < len(frame); i += 2 {
		v := math.Round(float64(int16(binary.LittleEndian.Uint16(frame[i:]))) * gain)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(v)))
	}
}

// Level is the scaled average rectified amplitude of frame. Each byte counts
// as one signed sample, not as half of an int16; the 0.5 default threshold
// is calibrated to that.
func Level(frame []byte) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum int64
	for _, b := range frame {
		v := int64(int8(b))
		if v < 0 {
			v = -v
		}
		sum += v
	}
	scaled := int64(float64(sum) * 2.5)
	return float64(scaled/int64(len(frame))) / 100
}
