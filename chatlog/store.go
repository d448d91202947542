// Package chatlog is the in-memory presentation sink of the chat pipeline.
// It keeps a bounded log of entries and the state the session reports, and
// fans every change out to subscribers.
package chatlog

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/telemetry"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 500

// UpdateKind tags an Update.
type UpdateKind string

const (
	UpdateEntry     UpdateKind = "entry"
	UpdatePatch     UpdateKind = "patch"
	UpdateReplace   UpdateKind = "replace"
	UpdateRemove    UpdateKind = "remove"
	UpdateRoom      UpdateKind = "room"
	UpdateStatus    UpdateKind = "status"
	UpdateModerator UpdateKind = "moderator"
	UpdateEmotes    UpdateKind = "emotes"
	UpdateChatter   UpdateKind = "chatter"
	UpdateReset     UpdateKind = "reset"
)

// Update is one change to the store, as delivered to subscribers.
type Update struct {
	Kind      UpdateKind              `json:"kind"`
	Entry     *chat.Entry             `json:"entry,omitempty"`
	ID        string                  `json:"id,omitempty"`
	Patch     *chat.EntryPatch        `json:"patch,omitempty"`
	IDs       []string                `json:"ids,omitempty"`
	Room      *chat.RoomConfiguration `json:"room,omitempty"`
	Status    *chat.ConnectionStatus  `json:"status,omitempty"`
	Moderator *bool                   `json:"moderator,omitempty"`
	Provider  string                  `json:"provider,omitempty"`
	Emotes    []string                `json:"emotes,omitempty"`
	Chatter   *ChatterView            `json:"chatter,omitempty"`
}

// ChatterView is a chatter together with the ids of its retained messages.
type ChatterView struct {
	chat.Chatter
	Messages []string `json:"messages"`
}

// Snapshot is a copy of everything the store holds.
type Snapshot struct {
	Entries   []chat.Entry           `json:"entries"`
	Chatters  []ChatterView          `json:"chatters"`
	Room      chat.RoomConfiguration `json:"room"`
	Status    chat.ConnectionStatus  `json:"status"`
	Moderator bool                   `json:"moderator"`
	EmoteSets map[string][]string    `json:"emoteSets"`
}

// Store implements chat.Sink.
type Store struct {
	mu        sync.RWMutex
	limit     int
	entries   []chat.Entry
	chatters  map[string]*ChatterView
	room      chat.RoomConfiguration
	status    chat.ConnectionStatus
	moderator bool
	emotes    map[string][]string

	subs    map[int]chan Update
	nextSub int
}

var _ chat.Sink = (*Store)(nil)

// New returns a store keeping at most limit entries (DefaultLimit if limit <= 0).
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit:    limit,
		chatters: make(map[string]*ChatterView),
		emotes:   make(map[string][]string),
		subs:     make(map[int]chan Update),
	}
}

// Limit returns the maximum number of retained entries.
func (s *Store) Limit() int { return s.limit }

// AppendEntry adds e, evicting the oldest entry when the log is full. An entry
// whose id is already in the log replaces the existing one in place.
func (s *Store) AppendEntry(e chat.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.IndexFunc(s.entries, func(x chat.Entry) bool { return x.ID == e.ID }); i >= 0 {
		s.entries[i] = e
		s.publish(Update{Kind: UpdateReplace, ID: e.ID, Entry: &e})
		return
	}
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.limit; over > 0 {
		evicted := make([]string, 0, over)
		for _, old := range s.entries[:over] {
			evicted = append(evicted, old.ID)
		}
		s.entries = slices.Delete(s.entries, 0, over)
		s.forgetMessages(evicted)
	}
	s.publish(Update{Kind: UpdateEntry, Entry: &e})
}

// PatchEntry merges p into the entry with the given id. Unknown ids are
// ignored since the entry may have been evicted or purged meanwhile.
func (s *Store) PatchEntry(id string, p chat.EntryPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.entries, func(e chat.Entry) bool { return e.ID == id })
	if i < 0 {
		return
	}
	e := s.entries[i]
	// Snapshots share the old map.
	e.Clips = maps.Clone(e.Clips)
	p.Apply(&e)
	s.entries[i] = e
	s.publish(Update{Kind: UpdatePatch, ID: id, Patch: &p})
}

// RemoveEntries deletes every entry whose id is listed.
func (s *Store) RemoveEntries(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = slices.DeleteFunc(s.entries, func(e chat.Entry) bool { return slices.Contains(ids, e.ID) })
	s.forgetMessages(ids)
	s.publish(Update{Kind: UpdateRemove, IDs: slices.Clone(ids)})
}

// forgetMessages drops ids from chatter histories. Callers hold mu.
func (s *Store) forgetMessages(ids []string) {
	for _, v := range s.chatters {
		v.Messages = slices.DeleteFunc(v.Messages, func(id string) bool { return slices.Contains(ids, id) })
	}
}

func (s *Store) SetRoomConfiguration(cfg chat.RoomConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = cfg
	s.publish(Update{Kind: UpdateRoom, Room: &cfg})
}

func (s *Store) SetConnectionStatus(st chat.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	s.publish(Update{Kind: UpdateStatus, Status: &st})
}

func (s *Store) SetModeratorStatus(mod bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moderator = mod
	s.publish(Update{Kind: UpdateModerator, Moderator: &mod})
}

// RecordChatterActivity stores the latest view of c and links entryID to it.
func (s *Store) RecordChatterActivity(c chat.Chatter, entryID string) {
	if c.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.chatters[c.ID]
	if !ok {
		v = &ChatterView{}
		s.chatters[c.ID] = v
	}
	v.Chatter = c
	if entryID != "" && !slices.Contains(v.Messages, entryID) {
		v.Messages = append(v.Messages, entryID)
	}
	s.publish(Update{Kind: UpdateChatter, Chatter: cloneView(v)})
}

// SetEmoteSets replaces the codes known for provider.
func (s *Store) SetEmoteSets(provider string, codes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes = slices.Clone(codes)
	s.emotes[provider] = codes
	s.publish(Update{Kind: UpdateEmotes, Provider: provider, Emotes: codes})
}

// Reset clears the store. Subscribers stay attached.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.chatters = make(map[string]*ChatterView)
	s.room = chat.RoomConfiguration{}
	s.status = chat.StatusDisconnected
	s.moderator = false
	s.emotes = make(map[string][]string)
	s.publish(Update{Kind: UpdateReset})
}

// Entries returns a copy of the last n entries, oldest first. n <= 0 means all.
func (s *Store) Entries(n int) []chat.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.entries) {
		start = len(s.entries) - n
	}
	return slices.Clone(s.entries[start:])
}

// Chatter returns the view of the chatter with id.
func (s *Store) Chatter(id string) (ChatterView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.chatters[id]
	if !ok {
		return ChatterView{}, false
	}
	return *cloneView(v), true
}

// Chatters returns every known chatter ordered by login.
func (s *Store) Chatters() []ChatterView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chattersLocked()
}

func (s *Store) chattersLocked() []ChatterView {
	out := make([]ChatterView, 0, len(s.chatters))
	for _, v := range s.chatters {
		out = append(out, *cloneView(v))
	}
	slices.SortFunc(out, func(a, b ChatterView) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Status returns the last reported connection status.
func (s *Store) Status() chat.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns a copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emotes := make(map[string][]string, len(s.emotes))
	for k, v := range s.emotes {
		emotes[k] = slices.Clone(v)
	}
	return Snapshot{
		Entries:   slices.Clone(s.entries),
		Chatters:  s.chattersLocked(),
		Room:      s.room,
		Status:    s.status,
		Moderator: s.moderator,
		EmoteSets: emotes,
	}
}

// Subscribe registers a listener receiving every later update. Slow
// listeners lose updates once buffer is full. cancel closes the channel and
// may be called more than once.
func (s *Store) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Update, buffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()
	telemetry.AddStreamSubscribers(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
			telemetry.AddStreamSubscribers(-1)
		})
	}
}

// publish sends u to every subscriber without blocking. Callers hold mu.
func (s *Store) publish(u Update) {
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			telemetry.IncStreamDropped()
		}
	}
}

func cloneView(v *ChatterView) *ChatterView {
	return &ChatterView{Chatter: v.Chatter, Messages: slices.Clone(v.Messages)}
}
