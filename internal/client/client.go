// Package client is the client side of a chat session: connection upkeep,
// envelope dispatch to the presentation sink, and audio in both directions.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/grouptalk/internal/adapters/transport"
	"github.com/dkeye/grouptalk/internal/audio"
	"github.com/dkeye/grouptalk/internal/config"
	"github.com/dkeye/grouptalk/internal/domain"
	"github.com/dkeye/grouptalk/internal/protocol"
)

var ErrNotConnected = errors.New("not connected")

// Devices are the host's audio endpoints. Any of them may be nil, which
// disables the matching audio direction.
type Devices struct {
	Microphone audio.Microphone
	Speakers   audio.SpeakerFactory
	PushToTalk audio.Gate
}

type Client struct {
	cfg     *config.Config
	events  Events
	dev     Devices
	dialer  transport.Dialer
	capture audio.CaptureConfig
	channel audio.ChannelConfig

	mu          sync.Mutex
	conn        *transport.Conn
	id          domain.SessionID
	name        string
	room        domain.RoomID
	names       map[domain.SessionID]string
	dispatcher  *audio.Dispatcher
	stopCapture context.CancelFunc

	cancel context.CancelFunc
	wg     conc.WaitGroup
	logger zerolog.Logger
}

func New(cfg *config.Config, events Events, dev Devices) (*Client, error) {
	codec, err := audio.ParseCodec(cfg.Audio.Codec)
	if err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	if events == nil {
		events = NopEvents{}
	}
	return &Client{
		cfg:    cfg,
		events: events,
		dev:    dev,
		dialer: transport.Dialer{
			Timeout: cfg.Client.DialTimeout,
			Options: transport.Options{WriteTimeout: cfg.WriteTimeout},
		},
		capture: audio.CaptureConfig{
			FrameSize:     cfg.Audio.FrameSize,
			Amplification: cfg.Audio.Amplification,
			Threshold:     cfg.Audio.Threshold,
			Grace:         cfg.Audio.TalkGrace,
			Codec:         codec,
		},
		channel: audio.ChannelConfig{
			SpeakingTimeout: cfg.Audio.SpeakingTimeout,
			EvictAfter:      cfg.Audio.EvictAfter,
			Poll:            cfg.Audio.IndicatorPoll,
		},
		names:  make(map[domain.SessionID]string),
		logger: log.With().Str("module", "client").Logger(),
	}, nil
}

// Start connects to host in the background and keeps reconnecting until
// ctx ends or Close is called. host may carry a port; the configured port
// is used otherwise.
func (c *Client) Start(ctx context.Context, host string) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))
	}
	c.wg.Go(func() { c.run(ctx, addr) })
}

func (c *Client) run(ctx context.Context, addr string) {
	logger := c.logger.With().Str("addr", addr).Logger()
	for {
		c.events.ConnectionChanged(StateConnecting)
		conn, err := c.dialer.DialContext(ctx, addr)
		if err == nil {
			logger.Info().Msg("connected")
			c.events.ConnectionChanged(StateConnected)
			c.serve(ctx, conn)
			logger.Info().Msg("connection lost")
		} else {
			logger.Warn().Err(err).Msg("connect failed")
		}
		c.events.ConnectionChanged(StateDisconnected)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.Client.ReconnectInterval):
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *transport.Conn) {
	sctx, cancel := context.WithCancel(ctx)
	dispatcher := audio.NewDispatcher(sctx, c.dev.Speakers, c.channel, c.events.SpeakingChanged)
	c.mu.Lock()
	c.conn = conn
	c.dispatcher = dispatcher
	c.mu.Unlock()

	defer func() {
		c.leftRoom(false)
		c.mu.Lock()
		c.conn = nil
		c.dispatcher = nil
		c.mu.Unlock()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case <-sctx.Done():
			return
		case <-conn.Done():
			return
		case env := <-conn.Inbox():
			c.handle(sctx, env)
		}
	}
}

func (c *Client) handle(ctx context.Context, env protocol.Envelope) {
	origin := env.Origin()
	switch env.Code() {
	case protocol.CodeInit:
		c.mu.Lock()
		c.id = origin
		name := c.name
		c.mu.Unlock()
		c.events.SessionAssigned(origin)
		if name != "" {
			if err := c.Send(protocol.New(protocol.CodeSetName, origin, protocol.Text(name))); err != nil {
				c.logger.Debug().Err(err).Msg("display name not re-sent")
			}
		}
	case protocol.CodeRoomChanged:
		p, _ := env.Pair()
		c.mu.Lock()
		c.room = domain.RoomID(p.First)
		clear(c.names)
		c.mu.Unlock()
		c.events.RoomChanged(domain.RoomID(p.First), domain.RoomName(p.Second))
		c.startCapture(ctx)
	case protocol.CodeMemberJoined:
		name, _ := env.Text()
		c.mu.Lock()
		c.names[origin] = name
		c.mu.Unlock()
		c.events.MemberJoined(origin, name)
	case protocol.CodeChat:
		text, _ := env.Text()
		c.events.ChatReceived(origin, c.nameOf(origin), text)
	case protocol.CodeAudio:
		c.mu.Lock()
		d := c.dispatcher
		c.mu.Unlock()
		if d != nil {
			d.Dispatch(env)
		}
	case protocol.CodeMemberLeft:
		name, _ := env.Text()
		c.mu.Lock()
		delete(c.names, origin)
		d := c.dispatcher
		c.mu.Unlock()
		if d != nil {
			d.Reset(origin)
		}
		c.events.MemberLeft(origin, name)
	case protocol.CodeLeaveRoom:
		c.leftRoom(true)
	default:
		c.logger.Warn().Stringer("code", env.Code()).Msg("unexpected envelope")
	}
}

func (c *Client) nameOf(id domain.SessionID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.names[id]; ok {
		return name
	}
	return domain.DefaultUsername
}

func (c *Client) startCapture(ctx context.Context) {
	if c.dev.Microphone == nil {
		return
	}
	c.mu.Lock()
	if c.stopCapture != nil {
		c.stopCapture()
	}
	cctx, cancel := context.WithCancel(ctx)
	c.stopCapture = cancel
	id := c.id
	c.mu.Unlock()

	capture := audio.NewCapture(id, c.dev.Microphone, c.dev.PushToTalk, c.capture, c.Send, func(talking bool) {
		c.events.SpeakingChanged(id, talking)
	})
	c.wg.Go(func() { capture.Run(cctx) })
}

// leftRoom drops all room state. notify is false when the connection was lost.
func (c *Client) leftRoom(notify bool) {
	c.mu.Lock()
	inRoom := c.room != ""
	c.room = ""
	clear(c.names)
	if c.stopCapture != nil {
		c.stopCapture()
		c.stopCapture = nil
	}
	d := c.dispatcher
	c.mu.Unlock()
	if d != nil {
		d.CloseAll()
	}
	if notify || inRoom {
		c.events.LeftRoom()
	}
}

// ID returns the session id assigned by the server, 0 before INIT.
func (c *Client) ID() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Room returns the current room id, empty while in the lobby.
func (c *Client) Room() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Send queues env on the current connection.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(env)
}

func (c *Client) send(code protocol.Code, payload protocol.Payload) error {
	return c.Send(protocol.New(code, c.ID(), payload))
}

// SetName sets the display name; it is re-sent after every reconnect.
func (c *Client) SetName(name string) error {
	u := domain.User{}
	if err := u.SetUsername(name); err != nil {
		return err
	}
	c.mu.Lock()
	c.name = u.Username
	c.mu.Unlock()
	return c.send(protocol.CodeSetName, protocol.Text(u.Username))
}

func (c *Client) CreateRoom(name string) error {
	return c.send(protocol.CodeCreateRoom, protocol.Text(name))
}

func (c *Client) JoinRoom(id domain.RoomID) error {
	return c.send(protocol.CodeJoinRoom, protocol.Text(string(id)))
}

func (c *Client) LeaveRoom() error {
	return c.send(protocol.CodeLeaveRoom, nil)
}

func (c *Client) Chat(text string) error {
	if text == "" {
		return nil
	}
	return c.send(protocol.CodeChat, protocol.Text(text))
}

// Close leaves the room, says goodbye and stops reconnecting. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	conn, inRoom, cancel := c.conn, c.room != "", c.cancel
	c.mu.Unlock()
	if conn != nil {
		if inRoom {
			_ = conn.Send(protocol.New(protocol.CodeLeaveRoom, c.ID(), nil))
		}
		_ = conn.Send(protocol.New(protocol.CodeDisconnect, c.ID(), nil))
		conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
