package room

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/protocol"
)

// broadcaster drains the room's broadcast queue and fans every envelope out
// to all members except its origin.
type broadcaster struct {
	room   *Room
	logger zerolog.Logger
}

func (b *broadcaster) run(ctx context.Context) {
	q := b.room.broadcast
	for {
		for _, item := range q.Drain() {
			b.deliver(item)
		}
		select {
		case <-ctx.Done():
			b.logger.Debug().Msg("broadcaster stopped")
			return
		case <-q.Wait():
		}
	}
}

func (b *broadcaster) deliver(item outbound) core.PublishResult {
	res := core.PublishResult{}
	// Delivery happens outside the room lock.
	for _, m := range b.room.snapshot() {
		if m.ID() == item.env.Origin() || m.since >= item.seq {
			continue
		}
		if err := m.Deliver(item.env); err != nil {
			res.Dropped = append(res.Dropped, m.ID())
			b.onFailure(m, err)
			continue
		}
		res.SendTo++
	}
	if item.env.Code() != protocol.CodeAudio {
		b.logger.Debug().
			Stringer("env", item.env).
			Int("sent_to", res.SendTo).
			Int("dropped", len(res.Dropped)).
			Msg("broadcast result")
	}
	return res
}

func (b *broadcaster) onFailure(m *Member, err error) {
	action := core.NoAction
	if b.room.opts.Policy != nil {
		action = b.room.opts.Policy.OnSendFailure(b.room.ID(), m.ID(), err)
	}
	b.logger.Info().Err(err).Int64("sid", int64(m.ID())).Stringer("action", action).Msg("delivery failed")
	switch action {
	case core.KickMember:
		b.room.instructions.Push(core.Instruction{Code: protocol.CodeDisconnect, SessionID: m.ID()})
	case core.MarkSlow, core.DropFrame, core.NoAction:
	}
}
