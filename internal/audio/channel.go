package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
	"github.com/dkeye/grouptalk/internal/queue"
)

// ChannelConfig sets the playback timings of relay channels.
type ChannelConfig struct {
	// SpeakingTimeout flips a channel to idle when no fresh frame arrived for this long.
	SpeakingTimeout time.Duration
	// EvictAfter marks a channel for eviction after this long without a fresh frame.
	EvictAfter time.Duration
	// Poll is how often an otherwise quiet channel re-checks its indicator.
	Poll time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		SpeakingTimeout: time.Second,
		EvictAfter:      5 * time.Minute,
		Poll:            100 * time.Millisecond,
	}
}

func (c ChannelConfig) withDefaults() ChannelConfig {
	d := DefaultChannelConfig()
	if c.SpeakingTimeout <= 0 {
		c.SpeakingTimeout = d.SpeakingTimeout
	}
	if c.EvictAfter <= 0 {
		c.EvictAfter = d.EvictAfter
	}
	if c.Poll <= 0 {
		c.Poll = d.Poll
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Channel plays one remote sender's frames in sequence order. Frames older
// than the high-water mark are dropped.
type Channel struct {
	sender domain.SessionID
	cfg    ChannelConfig
	notify func(sender domain.SessionID, speaking bool)

	frames *queue.Queue[protocol.Audio]

	mu           sync.Mutex
	sink         Speaker
	highWater    uint32
	lastActivity time.Time
	speaking     indicator

	cancel context.CancelFunc
	logger zerolog.Logger
}

// NewChannel creates a channel; sink may be nil, in which case frames are
// tracked for the indicator but not played.
func NewChannel(sender domain.SessionID, sink Speaker, cfg ChannelConfig, notify func(domain.SessionID, bool)) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		sender:       sender,
		cfg:          cfg,
		notify:       notify,
		frames:       queue.New[protocol.Audio](),
		sink:         sink,
		lastActivity: cfg.Now(),
		logger: log.With().
			Str("module", "audio.channel").
			Int64("sender", int64(sender)).
			Logger(),
	}
}

func (ch *Channel) Sender() domain.SessionID { return ch.sender }

// Start runs the playback loop until ctx ends or Close is called.
func (ch *Channel) Start(ctx context.Context) {
	ctx, ch.cancel = context.WithCancel(ctx)
	go ch.loop(ctx)
}

// Push queues a frame for playback.
func (ch *Channel) Push(f protocol.Audio) bool {
	return ch.frames.Push(f)
}

func (ch *Channel) loop(ctx context.Context) {
	defer ch.closeSink()
	ticker := time.NewTicker(ch.cfg.Poll)
	defer ticker.Stop()
	for {
		for _, f := range ch.frames.Drain() {
			ch.Accept(f)
		}
		ch.Tick()
		select {
		case <-ctx.Done():
			ch.setIndicator(Idle)
			return
		case <-ch.frames.Wait():
		case <-ticker.C:
		}
	}
}

// Accept processes one frame synchronously and reports whether it was played.
func (ch *Channel) Accept(f protocol.Audio) bool {
	ch.mu.Lock()
	if f.Seq < ch.highWater {
		ch.mu.Unlock()
		ch.logger.Debug().Uint32("seq", f.Seq).Uint32("high_water", ch.highWater).Msg("stale frame dropped")
		ch.Tick()
		return false
	}
	ch.highWater = f.Seq
	ch.lastActivity = ch.cfg.Now()
	sink := ch.sink
	ch.mu.Unlock()

	ch.setIndicator(Speaking)

	pcm, err := DecodeFrame(f)
	if err != nil {
		ch.logger.Debug().Err(err).Uint32("seq", f.Seq).Msg("frame dropped")
		return false
	}
	if sink == nil {
		return false
	}
	if _, err := sink.Write(pcm); err != nil {
		ch.logger.Warn().Err(err).Msg("speaker failed, playback disabled")
		ch.mu.Lock()
		ch.sink = nil
		ch.mu.Unlock()
		_ = sink.Close()
		return false
	}
	return true
}

// Tick flips the indicator to idle once the speaking timeout has passed.
func (ch *Channel) Tick() {
	ch.mu.Lock()
	quiet := ch.cfg.Now().Sub(ch.lastActivity) >= ch.cfg.SpeakingTimeout
	ch.mu.Unlock()
	if quiet {
		ch.setIndicator(Idle)
	}
}

func (ch *Channel) setIndicator(s IndicatorState) {
	if ch.speaking.Set(s) && ch.notify != nil {
		ch.notify(ch.sender, s == Speaking)
	}
}

func (ch *Channel) Indicator() IndicatorState {
	return ch.speaking.Get()
}

func (ch *Channel) HighWater() uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.highWater
}

// Reset zeroes the high-water mark so a rejoining sender's stream is accepted.
func (ch *Channel) Reset() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.highWater = 0
}

// ShouldEvict reports whether the channel has been silent long enough to be dropped.
func (ch *Channel) ShouldEvict() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.cfg.Now().Sub(ch.lastActivity) >= ch.cfg.EvictAfter
}

// Close stops the loop. The sink is closed by the loop on its way out.
func (ch *Channel) Close() {
	ch.frames.Close()
	if ch.cancel != nil {
		ch.cancel()
		return
	}
	ch.closeSink()
}

func (ch *Channel) closeSink() {
	ch.mu.Lock()
	sink := ch.sink
	ch.sink = nil
	ch.mu.Unlock()
	if sink != nil {
		_ = sink.Close()
	}
}
