// Package twitchirc adapts go-twitch-irc to the chat.Transport interface.
package twitchirc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-tender/chat"
)

var errNotConnected = errors.New("twitchirc: not connected")

// Option configures a Client.
type Option func(*Client)

// WithMaxReconnectInterval caps the delay between link re-dials.
func WithMaxReconnectInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxInterval = d
		}
	}
}

// WithAddress overrides the IRC server address.
func WithAddress(addr string) Option {
	return func(c *Client) { c.irc.IrcAddress = addr }
}

// Client is a chat.Transport backed by go-twitch-irc. Every callback is
// registered in New, before any connection attempt.
type Client struct {
	irc         *twitch.Client
	login       string
	events      chan chat.Event
	done        chan struct{}
	closeOnce   sync.Once
	maxInterval time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	open    bool
	running bool
	ready   chan error
	joins   map[string]chan struct{}
	self    chat.UserState
	bo      *backoff.ExponentialBackOff
}

// New returns a client for creds. It does not connect.
func New(creds chat.Credentials, opts ...Option) *Client {
	login := strings.ToLower(creds.Username)
	c := &Client{
		irc:         twitch.NewClient(login, creds.Password()),
		login:       login,
		events:      make(chan chat.Event, 256),
		done:        make(chan struct{}),
		maxInterval: 30 * time.Second,
		log:         slog.Default().With(slog.String("component", "twitchirc")),
		joins:       make(map[string]chan struct{}),
		self:        chat.UserState{Login: login, DisplayName: creds.Username},
	}
	for _, o := range opts {
		o(c)
	}
	c.bo = backoff.NewExponentialBackOff()
	c.bo.MaxInterval = c.maxInterval

	c.irc.OnConnect(c.onConnect)
	c.irc.OnReconnectMessage(func(twitch.ReconnectMessage) {
		c.log.Info("server requested reconnect")
		c.emit(chat.Reconnecting{})
	})
	c.irc.OnGlobalUserStateMessage(c.onGlobalUserState)
	c.irc.OnUserStateMessage(c.onUserState)
	c.irc.OnSelfJoinMessage(c.onSelfJoin)
	c.irc.OnRoomStateMessage(func(m twitch.RoomStateMessage) {
		for _, ev := range translateRoomState(m) {
			c.emit(ev)
		}
	})
	c.irc.OnClearChatMessage(func(m twitch.ClearChatMessage) { c.emit(translateClearChat(m)) })
	c.irc.OnClearMessage(func(m twitch.ClearMessage) { c.emit(translateClearMessage(m)) })
	c.irc.OnPrivateMessage(func(m twitch.PrivateMessage) { c.emit(translatePrivate(m)) })
	c.irc.OnWhisperMessage(func(m twitch.WhisperMessage) { c.emit(translateWhisper(m)) })
	c.irc.OnNoticeMessage(func(m twitch.NoticeMessage) { c.emit(translateNotice(m)) })
	c.irc.OnUserNoticeMessage(func(m twitch.UserNoticeMessage) { c.emit(translateUserNotice(m)) })
	c.irc.OnUnsetMessage(func(m twitch.RawMessage) { c.emit(translateRaw(m)) })
	return c
}

// Dial is a chat.Dialer using default options.
func Dial(creds chat.Credentials) chat.Transport { return New(creds) }

// Dialer returns a chat.Dialer applying opts to every client.
func Dialer(opts ...Option) chat.Dialer {
	return func(creds chat.Credentials) chat.Transport { return New(creds, opts...) }
}

// Events implements chat.Transport.
func (c *Client) Events() <-chan chat.Event { return c.events }

// Connect dials the server and blocks until the first successful login or
// until the first attempt failed. Later link losses are re-dialed in the
// background with exponential backoff.
func (c *Client) Connect(ctx context.Context) error {
	ready := make(chan error, 1)
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("twitchirc: already connecting")
	}
	c.running = true
	c.ready = ready
	c.mu.Unlock()

	c.emit(chat.Connecting{})
	go c.run()

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		_ = c.irc.Disconnect()
		return fmt.Errorf("connect: %w", ctx.Err())
	}
}

func (c *Client) run() {
	for {
		err := c.irc.Connect()
		c.setOpen(false)

		if c.closed() || errors.Is(err, twitch.ErrClientDisconnected) {
			c.finish(nil)
			return
		}
		if c.signalReady(err) || errors.Is(err, twitch.ErrLoginAuthenticationFailed) {
			// Never got in, or the server rejected the token: re-dialing cannot help.
			c.finish(err)
			return
		}

		c.mu.Lock()
		wait := c.bo.NextBackOff()
		c.mu.Unlock()
		c.log.Warn("chat link lost; reconnecting", slog.Any("err", err), slog.Duration("wait", wait))
		c.emit(chat.Reconnecting{})
		select {
		case <-c.done:
			c.finish(nil)
			return
		case <-time.After(wait):
		}
		c.emit(chat.Connecting{})
	}
}

func (c *Client) finish(err error) {
	c.mu.Lock()
	c.running = false
	for room, ch := range c.joins {
		close(ch)
		delete(c.joins, room)
	}
	c.mu.Unlock()
	c.emit(chat.Disconnected{Err: err})
}

// signalReady hands err to a pending Connect call. It reports whether one was waiting.
func (c *Client) signalReady(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready == nil {
		return false
	}
	c.ready <- err
	c.ready = nil
	return true
}

func (c *Client) onConnect() {
	if c.closed() {
		// Connect gave up before the dial finished; drop the late link.
		_ = c.irc.Disconnect()
		return
	}
	c.setOpen(true)
	c.mu.Lock()
	c.bo.Reset()
	c.mu.Unlock()
	c.emit(chat.Connected{})
	c.signalReady(nil)
}

func (c *Client) onGlobalUserState(m twitch.GlobalUserStateMessage) {
	c.rememberSelf(m.User, m.Tags)
	c.emit(chat.Authenticated{})
	if len(m.EmoteSets) > 0 {
		c.emit(chat.EmoteSets{SetIDs: m.EmoteSets})
	}
}

func (c *Client) onUserState(m twitch.UserStateMessage) {
	c.rememberSelf(m.User, m.Tags)
}

func (c *Client) rememberSelf(u twitch.User, tags map[string]string) {
	st := userState(u, tags)
	c.mu.Lock()
	defer c.mu.Unlock()
	if st.Login == "" {
		st.Login = c.login
	}
	if st.DisplayName == "" {
		st.DisplayName = c.self.DisplayName
	}
	c.self = st
}

func (c *Client) onSelfJoin(m twitch.UserJoinMessage) {
	room := normalizeChannel(m.Channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.joins[room]; ok {
		close(ch)
		delete(c.joins, room)
	}
}

// Join requests room and waits for the server to confirm it.
func (c *Client) Join(ctx context.Context, room string) error {
	room = normalizeChannel(room)
	joined := make(chan struct{})
	c.mu.Lock()
	c.joins[room] = joined
	c.mu.Unlock()

	c.irc.Join(room)
	select {
	case <-joined:
		if !c.IsOpen() {
			return fmt.Errorf("join %s: %w", room, errNotConnected)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("join %s: %w", room, ctx.Err())
	case <-c.done:
		return fmt.Errorf("join %s: %w", room, errNotConnected)
	}
}

// Disconnect closes the IRC connection; the re-dial loop ends.
func (c *Client) Disconnect() error {
	return c.irc.Disconnect()
}

// IsOpen reports whether the connection is currently established.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Client) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

// Close stops event delivery.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// emit delivers ev unless the client was closed. Nil events are dropped.
func (c *Client) emit(ev chat.Event) {
	if ev == nil || c.closed() {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Say sends text to room and emits its local echo.
func (c *Client) Say(room, text string) error {
	return c.send(room, text, chat.MessageChat, text)
}

// Action sends a /me message.
func (c *Client) Action(room, text string) error {
	return c.send(room, "/me "+text, chat.MessageAction, text)
}

// Whisper sends a private message through the room's /w command.
func (c *Client) Whisper(room, recipient, text string) error {
	return c.send(room, "/w "+recipient+" "+text, chat.MessageWhisper, text)
}

func (c *Client) send(room, line string, typ chat.MessageType, text string) error {
	if !c.IsOpen() {
		return errNotConnected
	}
	c.irc.Say(normalizeChannel(room), line)
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()
	self.SentAt = time.Now()
	c.emit(chat.Message{Type: typ, User: self, Text: text, Self: true})
	return nil
}
