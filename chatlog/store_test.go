package chatlog

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/onnwee/chat-tender/chat"
)

func chatEntry(id, userID string) chat.Entry {
	return chat.Entry{
		ID:   id,
		Kind: chat.KindChat,
		Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Text: "hello " + id,
		User: &chat.Chatter{ID: userID, Name: userID, DisplayName: userID},
	}
}

func entryIDs(entries []chat.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestAppendEvictsOldest(t *testing.T) {
	s := New(3)
	for i := range 5 {
		id := fmt.Sprintf("m%d", i)
		s.AppendEntry(chatEntry(id, "u1"))
		s.RecordChatterActivity(chat.Chatter{ID: "u1", Name: "alice"}, id)
	}

	if got := entryIDs(s.Entries(0)); !slices.Equal(got, []string{"m2", "m3", "m4"}) {
		t.Errorf("entries = %v", got)
	}
	if got := entryIDs(s.Entries(2)); !slices.Equal(got, []string{"m3", "m4"}) {
		t.Errorf("Entries(2) = %v", got)
	}
	v, ok := s.Chatter("u1")
	if !ok {
		t.Fatal("chatter u1 missing")
	}
	if !slices.Equal(v.Messages, []string{"m2", "m3", "m4"}) {
		t.Errorf("messages = %v", v.Messages)
	}
}

func TestNewDefaultLimit(t *testing.T) {
	if got := New(0).Limit(); got != DefaultLimit {
		t.Errorf("Limit() = %d, want %d", got, DefaultLimit)
	}
}

func TestPatchEntry(t *testing.T) {
	s := New(10)
	s.AppendEntry(chatEntry("m1", "u1"))
	before := s.Snapshot()

	s.PatchEntry("m1", chat.EntryPatch{Clips: map[string]chat.Clip{"Slug": {Slug: "Slug", Title: "t"}}})
	s.PatchEntry("missing", chat.EntryPatch{Clips: map[string]chat.Clip{"x": {}}})

	got := s.Entries(0)
	if len(got) != 1 || got[0].Clips["Slug"].Title != "t" {
		t.Errorf("entries = %+v", got)
	}
	if before.Entries[0].Clips != nil {
		t.Error("patch leaked into an earlier snapshot")
	}
}

func TestAppendReplacesExistingID(t *testing.T) {
	s := New(10)
	sub, cancel := s.Subscribe(4)
	defer cancel()

	s.AppendEntry(chatEntry("m1", "u1"))
	s.AppendEntry(chatEntry("m2", "u1"))
	again := chatEntry("m1", "u1")
	again.Text = "edited"
	s.AppendEntry(again)

	got := s.Entries(0)
	if ids := entryIDs(got); !slices.Equal(ids, []string{"m1", "m2"}) {
		t.Fatalf("entries = %v", ids)
	}
	if got[0].Text != "edited" {
		t.Errorf("m1 text = %q, want replaced", got[0].Text)
	}

	want := []UpdateKind{UpdateEntry, UpdateEntry, UpdateReplace}
	for i, kind := range want {
		u := <-sub
		if u.Kind != kind {
			t.Errorf("update %d kind = %s, want %s", i, u.Kind, kind)
		}
	}
}

func TestRedeliveredWhisperKeepsOneEntry(t *testing.T) {
	s := New(0)
	c := chat.NewClassifier("me", chat.NewRoster(), &chat.RoomTracker{}, &chat.WhisperSlot{})
	msg := chat.Message{
		Type: chat.MessageWhisper,
		User: chat.UserState{ID: "7", Login: "carol", ThreadID: "1_7", MessageID: "42"},
		Text: "hey",
	}
	for range 2 {
		out := c.Classify(msg)
		if out.Entry == nil {
			t.Fatal("no whisper entry")
		}
		s.AppendEntry(*out.Entry)
	}

	if ids := entryIDs(s.Entries(0)); !slices.Equal(ids, []string{"1_7-42"}) {
		t.Errorf("entries = %v, want [1_7-42]", ids)
	}
}

func TestRecordChatterActivityOncePerEntry(t *testing.T) {
	s := New(10)
	s.RecordChatterActivity(chat.Chatter{ID: "u1", Name: "alice"}, "m1")
	s.RecordChatterActivity(chat.Chatter{ID: "u1", Name: "alice"}, "m1")

	v, _ := s.Chatter("u1")
	if !slices.Equal(v.Messages, []string{"m1"}) {
		t.Errorf("messages = %v, want [m1]", v.Messages)
	}
}

func TestRemoveEntries(t *testing.T) {
	s := New(10)
	for _, id := range []string{"a", "b", "c"} {
		s.AppendEntry(chatEntry(id, "u1"))
		s.RecordChatterActivity(chat.Chatter{ID: "u1", Name: "alice"}, id)
	}
	s.RemoveEntries([]string{"a", "c"})

	if got := entryIDs(s.Entries(0)); !slices.Equal(got, []string{"b"}) {
		t.Errorf("entries = %v", got)
	}
	v, _ := s.Chatter("u1")
	if !slices.Equal(v.Messages, []string{"b"}) {
		t.Errorf("messages = %v", v.Messages)
	}
}

func TestChattersSortedAndUpdated(t *testing.T) {
	s := New(10)
	s.RecordChatterActivity(chat.Chatter{ID: "2", Name: "zed", Color: "#000000"}, "m1")
	s.RecordChatterActivity(chat.Chatter{ID: "1", Name: "amy"}, "m2")
	s.RecordChatterActivity(chat.Chatter{ID: "2", Name: "zed", Color: "#FFFFFF", IsMod: true}, "")
	s.RecordChatterActivity(chat.Chatter{}, "m3")

	got := s.Chatters()
	if len(got) != 2 || got[0].Name != "amy" || got[1].Name != "zed" {
		t.Fatalf("chatters = %+v", got)
	}
	if got[1].Color != "#FFFFFF" || !got[1].IsMod || !slices.Equal(got[1].Messages, []string{"m1"}) {
		t.Errorf("zed = %+v", got[1])
	}
}

func TestSnapshotAndReset(t *testing.T) {
	s := New(10)
	s.AppendEntry(chatEntry("m1", "u1"))
	s.RecordChatterActivity(chat.Chatter{ID: "u1", Name: "alice"}, "m1")
	s.SetRoomConfiguration(chat.RoomConfiguration{RoomID: "42", SlowModeSeconds: 30})
	s.SetConnectionStatus(chat.StatusLogon)
	s.SetModeratorStatus(true)
	s.SetEmoteSets(chat.ProviderBTTV, []string{"monkaS"})

	snap := s.Snapshot()
	if len(snap.Entries) != 1 || len(snap.Chatters) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Room.RoomID != "42" || snap.Status != chat.StatusLogon || !snap.Moderator {
		t.Errorf("snapshot state = %+v", snap)
	}
	if !slices.Equal(snap.EmoteSets[chat.ProviderBTTV], []string{"monkaS"}) {
		t.Errorf("emote sets = %v", snap.EmoteSets)
	}

	s.Reset()
	snap = s.Snapshot()
	if len(snap.Entries) != 0 || len(snap.Chatters) != 0 || len(snap.EmoteSets) != 0 {
		t.Errorf("after Reset snapshot = %+v", snap)
	}
	if snap.Status != chat.StatusDisconnected || snap.Moderator || snap.Room.RoomID != "" {
		t.Errorf("after Reset state = %+v", snap)
	}
}

func TestSubscribeReceivesUpdatesInOrder(t *testing.T) {
	s := New(10)
	ch, cancel := s.Subscribe(8)
	defer cancel()

	s.SetConnectionStatus(chat.StatusConnected)
	s.AppendEntry(chatEntry("m1", "u1"))
	s.RemoveEntries([]string{"m1"})
	s.Reset()

	want := []UpdateKind{UpdateStatus, UpdateEntry, UpdateRemove, UpdateReset}
	for i, kind := range want {
		select {
		case u := <-ch:
			if u.Kind != kind {
				t.Errorf("update %d kind = %s, want %s", i, u.Kind, kind)
			}
			if u.Kind == UpdateEntry && u.Entry.ID != "m1" {
				t.Errorf("entry update = %+v", u.Entry)
			}
		case <-time.After(time.Second):
			t.Fatalf("update %d not delivered", i)
		}
	}
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	s := New(10)
	ch, cancel := s.Subscribe(1)
	s.AppendEntry(chatEntry("m1", "u1"))
	s.AppendEntry(chatEntry("m2", "u1"))

	u := <-ch
	if u.Entry.ID != "m1" {
		t.Errorf("first update = %+v", u.Entry)
	}
	select {
	case u := <-ch:
		t.Errorf("unexpected update %+v", u)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel open after cancel")
	}
	// Publishing after cancel must not panic.
	s.AppendEntry(chatEntry("m3", "u1"))
}
