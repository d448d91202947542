package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-tender/chat"
)

type recordedSend struct {
	kind, recipient, text string
}

type fakeSender struct {
	sent []recordedSend
	err  error
}

func (f *fakeSender) Say(text string) error {
	f.sent = append(f.sent, recordedSend{kind: "say", text: text})
	return f.err
}

func (f *fakeSender) Action(text string) error {
	f.sent = append(f.sent, recordedSend{kind: "action", text: text})
	return f.err
}

func (f *fakeSender) Whisper(recipient, text string) error {
	f.sent = append(f.sent, recordedSend{kind: "whisper", recipient: recipient, text: text})
	return f.err
}

func TestSendLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []recordedSend
		wantErr error
	}{
		{name: "say", line: "hello there", want: []recordedSend{{kind: "say", text: "hello there"}}},
		{name: "blank", line: "   ", want: nil},
		{name: "action", line: "/me waves", want: []recordedSend{{kind: "action", text: "waves"}}},
		{name: "whisper", line: "/w Bob  hi bob ", want: []recordedSend{{kind: "whisper", recipient: "Bob", text: "hi bob"}}},
		{name: "whisper without text", line: "/w bob", wantErr: errWhisperUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{}
			err := sendLine(s, tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(s.sent) != len(tt.want) {
				t.Fatalf("sent = %+v, want %+v", s.sent, tt.want)
			}
			for i := range tt.want {
				if s.sent[i] != tt.want[i] {
					t.Errorf("sent[%d] = %+v, want %+v", i, s.sent[i], tt.want[i])
				}
			}
		})
	}
}

func TestSendLinePropagatesError(t *testing.T) {
	s := &fakeSender{err: chat.ErrNotStarted}
	if err := sendLine(s, "hi"); !errors.Is(err, chat.ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
}

func TestRenderEntry(t *testing.T) {
	user := &chat.Chatter{ID: "1", Name: "alice", DisplayName: "Alice", Color: "#FF0000", IsMod: true}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		entry chat.Entry
		want  []string
	}{
		{name: "chat", entry: chat.Entry{Kind: chat.KindChat, Time: at, Text: "hi", User: user}, want: []string{"@Alice", ": hi"}},
		{name: "action", entry: chat.Entry{Kind: chat.KindAction, Time: at, Text: "waves", User: user}, want: []string{"* ", "@Alice", "waves"}},
		{name: "cheer", entry: chat.Entry{Kind: chat.KindCheer, Time: at, Text: "cheer100 gg", User: user, Bits: 100}, want: []string{"cheered 100", "cheer100 gg"}},
		{name: "whisper", entry: chat.Entry{Kind: chat.KindWhisper, Time: at, Text: "psst", User: user}, want: []string{"whispers:", "psst"}},
		{name: "notice", entry: chat.Entry{Kind: chat.KindNotice, Time: at, Text: "Chat was cleared by a moderator."}, want: []string{"Chat was cleared"}},
		{
			name:  "notification html",
			entry: chat.Entry{Kind: chat.KindNotification, Time: at, Text: "<b>bob</b> subscribed", HTML: true, SubMessage: "yay"},
			want:  []string{"bob subscribed", "\n  yay"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderEntry(tt.entry)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("renderEntry() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestConsoleSinkVerbosity(t *testing.T) {
	var quiet, loud bytes.Buffer
	for _, s := range []*consoleSink{newConsoleSink(&quiet, false), newConsoleSink(&loud, true)} {
		s.SetRoomConfiguration(chat.RoomConfiguration{EmoteOnly: true, SlowModeSeconds: 30})
		s.SetModeratorStatus(true)
		s.SetEmoteSets(chat.ProviderBTTV, []string{"a", "b"})
		s.RemoveEntries([]string{"x"})
		s.SetConnectionStatus(chat.StatusConnected)
	}
	if strings.Contains(quiet.String(), "room:") || strings.Contains(quiet.String(), "emotes") {
		t.Errorf("quiet output contains verbose lines: %q", quiet.String())
	}
	if !strings.Contains(quiet.String(), chat.StatusConnected.String()) {
		t.Errorf("quiet output missing status: %q", quiet.String())
	}
	for _, w := range []string{"room: emote-only, slow 30s", "moderator: true", "bttv emotes: 2", "(1 messages removed)"} {
		if !strings.Contains(loud.String(), w) {
			t.Errorf("verbose output missing %q: %q", w, loud.String())
		}
	}
}

func TestConsoleSinkRoomUnchanged(t *testing.T) {
	var buf bytes.Buffer
	s := newConsoleSink(&buf, true)
	cfg := chat.RoomConfiguration{R9K: true}
	s.SetRoomConfiguration(cfg)
	s.SetRoomConfiguration(cfg)
	if n := strings.Count(buf.String(), "room:"); n != 1 {
		t.Fatalf("room printed %d times, want 1", n)
	}
	s.Reset()
	s.SetRoomConfiguration(cfg)
	if n := strings.Count(buf.String(), "room:"); n != 2 {
		t.Fatalf("room printed %d times after reset, want 2", n)
	}
}

func TestDescribeRoomNormal(t *testing.T) {
	if got := describeRoom(chat.RoomConfiguration{}); got != "normal" {
		t.Fatalf("describeRoom = %q", got)
	}
}
