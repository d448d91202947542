package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/chat-tender/telemetry"
)

// Credentials are the login details for the chat connection.
type Credentials struct {
	Username string
	Token    string
}

// Password returns the token in the form expected by the IRC PASS command.
func (c Credentials) Password() string {
	return "oauth:" + strings.TrimPrefix(c.Token, "oauth:")
}

func (c *Credentials) valid() bool {
	return c != nil && c.Username != "" && strings.TrimPrefix(c.Token, "oauth:") != ""
}

// Transport is the connection to the chat server. Events are delivered on a
// single channel in upstream order.
type Transport interface {
	Events() <-chan Event
	// Connect blocks until the server accepted the connection.
	Connect(ctx context.Context) error
	// Join blocks until the room was joined.
	Join(ctx context.Context, room string) error
	Disconnect() error
	IsOpen() bool
	// Close stops event delivery. It is safe to call more than once.
	Close()

	Say(room, text string) error
	Action(room, text string) error
	Whisper(room, recipient, text string) error
}

// Dialer builds a Transport bound to no room.
type Dialer func(Credentials) Transport

const (
	defaultConnectTimeout = 15 * time.Second
	fetchTimeout          = 10 * time.Second
)

// Option configures a Session.
type Option func(*Session)

// WithFetchers sets the supplementary metadata fetchers.
func WithFetchers(f Fetchers) Option { return func(s *Session) { s.fetchers = f } }

// WithConnectTimeout bounds Connect and Join in Start.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// Session owns the transport for one room and runs the event pipeline.
type Session struct {
	creds          *Credentials
	transport      Transport
	sink           Sink
	fetchers       Fetchers
	connectTimeout time.Duration
	log            *slog.Logger

	roster     *Roster
	rooms      *RoomTracker
	whisper    *WhisperSlot
	classifier *Classifier

	status atomic.Int32

	// mu guards the fields below. Holding the read lock while applying a
	// late fetch result keeps it ordered against Stop.
	mu         sync.RWMutex
	generation uint64
	room       string
	failure    error
	stopped    bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewSession prepares a session. Missing credentials are recorded as a fatal
// configuration failure reported by Err and by Start.
func NewSession(creds *Credentials, dial Dialer, sink Sink, opts ...Option) *Session {
	s := &Session{
		sink:           sink,
		connectTimeout: defaultConnectTimeout,
		log:            slog.Default().With(slog.String("component", "chat")),
		roster:         NewRoster(),
		rooms:          &RoomTracker{},
		whisper:        &WhisperSlot{},
	}
	for _, o := range opts {
		o(s)
	}
	if !creds.valid() {
		s.failure = &Failure{Class: ClassConfiguration, Op: "initialize", Err: ErrMissingCredentials}
		telemetry.IncSessionFailure(ClassConfiguration.String())
		s.log.Error("chat session not configured", slog.Any("err", s.failure))
		return s
	}
	c := *creds
	s.creds = &c
	s.transport = dial(c)
	s.classifier = NewClassifier(c.Username, s.roster, s.rooms, s.whisper)
	return s
}

// Start connects and joins room. The event loop is listening before the
// connection is attempted. Any failure is fatal for the session.
func (s *Session) Start(ctx context.Context, room string) error {
	if err := s.Err(); err != nil {
		return err
	}
	room = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(room), "#"))
	if room == "" {
		return s.fail(&Failure{Class: ClassConfiguration, Op: "start", Err: ErrMissingRoom})
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.loopDone != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.loopCancel, s.loopDone = cancel, make(chan struct{})
	s.room = room
	s.mu.Unlock()
	go s.run(loopCtx, s.transport.Events(), s.loopDone)

	cctx, ccancel := context.WithTimeout(ctx, s.connectTimeout)
	defer ccancel()
	if err := s.transport.Connect(cctx); err != nil {
		return s.fail(&Failure{Class: ClassConnection, Op: "connect", Err: err})
	}
	if err := s.transport.Join(cctx, room); err != nil {
		return s.fail(&Failure{Class: ClassConnection, Op: "join", Err: err})
	}
	s.log.Info("chat session started", slog.String("room", room), slog.String("user", s.creds.Username))
	return nil
}

// Stop disconnects and resets all session state. Disconnect errors are
// logged and swallowed. Results of fetches still in flight are discarded.
func (s *Session) Stop() {
	if t := s.transport; t != nil {
		if t.IsOpen() {
			if err := t.Disconnect(); err != nil {
				f := &Failure{Class: ClassTeardown, Op: "disconnect", Err: err}
				telemetry.IncSessionFailure(ClassTeardown.String())
				s.log.Warn("chat disconnect failed", slog.Any("err", f))
			}
		}
		t.Close()
	}
	s.stopLoop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.stopped = true
	s.room = ""
	s.roster.Reset()
	s.rooms.Reset()
	s.whisper.Take()
	s.setStatus(StatusDisconnected)
	s.sink.Reset()
	telemetry.SetChatters(0)
}

func (s *Session) stopLoop() {
	s.mu.Lock()
	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel, s.loopDone = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Session) fail(f *Failure) error {
	telemetry.IncSessionFailure(f.Class.String())
	s.log.Error("chat session failed", slog.String("class", f.Class.String()), slog.String("op", f.Op), slog.Any("err", f.Err))
	if f.Class == ClassConnection {
		if t := s.transport; t != nil {
			if t.IsOpen() {
				_ = t.Disconnect()
			}
			t.Close()
		}
	}
	s.stopLoop()
	s.mu.Lock()
	s.failure = f
	s.mu.Unlock()
	s.setStatus(StatusDisconnected)
	return f
}

// Err returns the fatal failure of the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// Failed reports whether the session ended with a fatal failure.
func (s *Session) Failed() bool { return s.Err() != nil }

// Status returns the current connection status.
func (s *Session) Status() ConnectionStatus { return ConnectionStatus(s.status.Load()) }

// Room returns the joined room, empty before Start and after Stop.
func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Username returns the local login.
func (s *Session) Username() string {
	if s.creds == nil {
		return ""
	}
	return s.creds.Username
}

// Say sends a chat message to the room.
func (s *Session) Say(text string) error {
	room, err := s.sendable()
	if err != nil {
		return err
	}
	return s.transport.Say(room, text)
}

// Action sends a /me message to the room.
func (s *Session) Action(text string) error {
	room, err := s.sendable()
	if err != nil {
		return err
	}
	return s.transport.Action(room, text)
}

// Whisper sends a private message. The recipient is remembered so the echo
// can be addressed to it.
func (s *Session) Whisper(recipient, text string) error {
	room, err := s.sendable()
	if err != nil {
		return err
	}
	recipient = strings.TrimPrefix(strings.TrimSpace(recipient), "@")
	if recipient == "" {
		return errors.New("chat: whisper recipient required")
	}
	s.whisper.Set(recipient)
	if err := s.transport.Whisper(room, recipient, text); err != nil {
		s.whisper.Take()
		return err
	}
	return nil
}

func (s *Session) sendable() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return "", fmt.Errorf("%w: %w", ErrSessionFailed, s.failure)
	}
	if s.stopped {
		return "", ErrStopped
	}
	if s.room == "" {
		return "", ErrNotStarted
	}
	return s.room, nil
}

func (s *Session) run(ctx context.Context, events <-chan Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev Event) {
	telemetry.IncEvent(ev.EventName())
	switch e := ev.(type) {
	case Connecting:
		s.setStatus(StatusConnecting)
	case Connected:
		s.setStatus(StatusConnected)
	case Authenticated:
		s.setStatus(StatusLogon)
	case Reconnecting:
		telemetry.IncReconnect()
		s.setStatus(StatusReconnecting)
	case Disconnected:
		if e.Err != nil {
			s.log.Warn("chat disconnected", slog.Any("err", e.Err))
		}
		s.setStatus(StatusDisconnected)
		s.rooms.Reset()
		s.sink.SetRoomConfiguration(RoomConfiguration{})
	default:
		out := s.classifier.Classify(ev)
		if out.Suppressed {
			telemetry.IncSuppressed(ev.EventName())
			s.log.Debug("chat event suppressed", slog.String("event", ev.EventName()))
		}
		s.apply(out)
	}
}

func (s *Session) apply(out Outcome) {
	if out.Room != nil {
		s.sink.SetRoomConfiguration(*out.Room)
	}
	if out.Moderator != nil {
		s.sink.SetModeratorStatus(*out.Moderator)
	}
	if len(out.Purge) > 0 {
		s.sink.RemoveEntries(out.Purge)
		telemetry.AddPurged(len(out.Purge))
	}
	if e := out.Entry; e != nil {
		s.sink.AppendEntry(*e)
		telemetry.IncEntry(string(e.Kind))
		if out.Chatter != nil {
			s.sink.RecordChatterActivity(*out.Chatter, e.ID)
			telemetry.SetChatters(s.roster.Chatters().Len())
		}
		if len(out.ClipSlugs) > 0 {
			s.enrichClips(e.ID, out.ClipSlugs)
		}
	}
	if len(out.EmoteSetIDs) > 0 {
		s.resolveEmoteSets(out.EmoteSetIDs)
	}
	if out.RefreshRoomID != "" {
		s.refreshMetadata(out.RefreshRoomID)
	}
}

func (s *Session) setStatus(st ConnectionStatus) {
	s.status.Store(int32(st))
	telemetry.SetConnectionStatus(int(st))
	s.sink.SetConnectionStatus(st)
}

func (s *Session) currentGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// applyIfCurrent runs fn unless the session was stopped since gen was read.
func (s *Session) applyIfCurrent(gen uint64, fn func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.generation != gen {
		return false
	}
	fn()
	return true
}

// fetch runs fn in the background and hands its result to apply if the
// session generation is unchanged. Failures are logged and dropped.
func fetch[T any](s *Session, name string, fn func(context.Context) (T, error), apply func(T)) {
	gen := s.currentGeneration()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		start := time.Now()
		v, err := fn(ctx)
		telemetry.ObserveFetch(name, time.Since(start))
		if err != nil {
			telemetry.IncFetchFailure(name)
			s.log.Debug("metadata fetch failed", slog.String("fetcher", name), slog.Any("err", &Failure{Class: ClassTransientFetch, Op: name, Err: err}))
			return
		}
		if !s.applyIfCurrent(gen, func() { apply(v) }) {
			s.log.Debug("discarding stale fetch result", slog.String("fetcher", name))
		}
	}()
}

func (s *Session) enrichClips(entryID string, slugs []string) {
	f := s.fetchers.Clips
	if f == nil {
		return
	}
	fetch(s, "clips", func(ctx context.Context) (map[string]Clip, error) {
		return f.FetchClips(ctx, slugs)
	}, func(clips map[string]Clip) {
		if len(clips) > 0 {
			s.sink.PatchEntry(entryID, EntryPatch{Clips: clips})
		}
	})
}

func (s *Session) resolveEmoteSets(ids []string) {
	f := s.fetchers.EmoteSets
	if f == nil {
		return
	}
	fetch(s, "emote_sets", func(ctx context.Context) ([]string, error) {
		return f.ResolveEmoteSets(ctx, ids)
	}, func(codes []string) {
		s.sink.SetEmoteSets(ProviderTwitch, codes)
	})
}

func (s *Session) refreshMetadata(roomID string) {
	f := s.fetchers.Metadata
	if f == nil {
		return
	}
	channel := s.Room()
	fetch(s, "metadata", func(ctx context.Context) ([]string, error) {
		return f.Refresh(ctx, roomID, channel)
	}, func(codes []string) {
		s.sink.SetEmoteSets(ProviderBTTV, codes)
	})
}
