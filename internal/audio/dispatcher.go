package audio

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
)

// SpeakerFactory opens one playback sink per remote sender.
type SpeakerFactory interface {
	OpenSpeaker() (Speaker, error)
}

// SpeakerFactoryFunc adapts a function to SpeakerFactory.
type SpeakerFactoryFunc func() (Speaker, error)

func (f SpeakerFactoryFunc) OpenSpeaker() (Speaker, error) { return f() }

// Dispatcher demultiplexes inbound AUDIO envelopes into per-sender channels.
type Dispatcher struct {
	ctx      context.Context
	speakers SpeakerFactory
	cfg      ChannelConfig
	notify   func(sender domain.SessionID, speaking bool)

	mu       sync.RWMutex
	channels map[domain.SessionID]*Channel
}

// NewDispatcher runs channels under ctx. speakers may be nil when no output
// device is available; indicators still work then.
func NewDispatcher(ctx context.Context, speakers SpeakerFactory, cfg ChannelConfig, notify func(domain.SessionID, bool)) *Dispatcher {
	return &Dispatcher{
		ctx:      ctx,
		speakers: speakers,
		cfg:      cfg.withDefaults(),
		notify:   notify,
		channels: make(map[domain.SessionID]*Channel),
	}
}

// Dispatch routes an AUDIO envelope to its sender's channel, creating it on
// first use, and evicts other channels that have been silent too long.
func (d *Dispatcher) Dispatch(env protocol.Envelope) bool {
	frame, ok := env.Audio()
	if !ok {
		return false
	}
	sender := env.Origin()
	ch := d.channel(sender)
	d.evictIdle(sender)
	return ch.Push(frame)
}

func (d *Dispatcher) channel(sender domain.SessionID) *Channel {
	d.mu.RLock()
	ch, ok := d.channels[sender]
	d.mu.RUnlock()
	if ok {
		return ch
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok = d.channels[sender]; ok {
		return ch
	}
	ch = NewChannel(sender, d.openSpeaker(sender), d.cfg, d.notify)
	ch.Start(d.ctx)
	d.channels[sender] = ch
	log.Debug().Str("module", "audio.dispatcher").Int64("sender", int64(sender)).Msg("channel created")
	return ch
}

func (d *Dispatcher) openSpeaker(sender domain.SessionID) Speaker {
	if d.speakers == nil {
		return nil
	}
	sink, err := d.speakers.OpenSpeaker()
	if err != nil {
		log.Warn().Err(err).Str("module", "audio.dispatcher").Int64("sender", int64(sender)).Msg("no speaker, playback disabled")
		return nil
	}
	return sink
}

func (d *Dispatcher) evictIdle(except domain.SessionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sid, ch := range d.channels {
		if sid == except || !ch.ShouldEvict() {
			continue
		}
		ch.Close()
		delete(d.channels, sid)
		log.Debug().Str("module", "audio.dispatcher").Int64("sender", int64(sid)).Msg("idle channel evicted")
	}
}

// Reset restarts sender's sequence tracking, e.g. after MEMBER_LEFT.
func (d *Dispatcher) Reset(sender domain.SessionID) {
	d.mu.RLock()
	ch, ok := d.channels[sender]
	d.mu.RUnlock()
	if ok {
		ch.Reset()
	}
}

// Channel returns sender's channel, if one exists.
func (d *Dispatcher) Channel(sender domain.SessionID) (*Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[sender]
	return ch, ok
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels)
}

// CloseAll stops and forgets every channel.
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sid, ch := range d.channels {
		ch.Close()
		delete(d.channels, sid)
	}
}
