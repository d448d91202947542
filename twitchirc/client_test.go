package twitchirc

import (
	"context"
	"errors"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-tender/chat"
)

func next(t *testing.T, c *Client) chat.Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return nil
	}
}

func TestClientSendRequiresConnection(t *testing.T) {
	c := New(chat.Credentials{Username: "Me", Token: "abc"})
	if err := c.Say("room", "hi"); !errors.Is(err, errNotConnected) {
		t.Errorf("Say while closed = %v", err)
	}
}

func TestClientConnectLifecycleEvents(t *testing.T) {
	c := New(chat.Credentials{Username: "Me", Token: "abc"})
	c.onConnect()
	if !c.IsOpen() {
		t.Fatal("IsOpen = false after connect")
	}
	if _, ok := next(t, c).(chat.Connected); !ok {
		t.Error("want Connected")
	}

	c.onGlobalUserState(twitch.GlobalUserStateMessage{
		User:      twitch.User{Name: "me", DisplayName: "Me", Color: "#00FF7F"},
		Tags:      map[string]string{},
		EmoteSets: []string{"0", "42"},
	})
	if _, ok := next(t, c).(chat.Authenticated); !ok {
		t.Error("want Authenticated")
	}
	if ev, ok := next(t, c).(chat.EmoteSets); !ok || len(ev.SetIDs) != 2 {
		t.Errorf("want EmoteSets, got %#v", ev)
	}
}

func TestClientSelfEchoUsesUserState(t *testing.T) {
	c := New(chat.Credentials{Username: "Me", Token: "abc"})
	c.setOpen(true)
	c.onUserState(twitch.UserStateMessage{
		User: twitch.User{Name: "me", DisplayName: "Me", Color: "#1E90FF", Badges: map[string]int{"moderator": 1}},
		Tags: map[string]string{"mod": "1"},
	})

	tests := []struct {
		send func() error
		typ  chat.MessageType
	}{
		{func() error { return c.Say("#room", "hello") }, chat.MessageChat},
		{func() error { return c.Action("#room", "hello") }, chat.MessageAction},
		{func() error { return c.Whisper("#room", "bob", "hello") }, chat.MessageWhisper},
	}
	for _, tt := range tests {
		if err := tt.send(); err != nil {
			t.Fatalf("%s: %v", tt.typ, err)
		}
		ev, ok := next(t, c).(chat.Message)
		if !ok {
			t.Fatalf("%s: echo is not a message", tt.typ)
		}
		if !ev.Self || ev.Type != tt.typ || ev.Text != "hello" {
			t.Errorf("%s: echo = %+v", tt.typ, ev)
		}
		if ev.User.Color != "#1E90FF" || !ev.User.Mod || ev.User.Login != "me" {
			t.Errorf("%s: echo user = %+v", tt.typ, ev.User)
		}
	}
}

func TestClientJoinWaitsForSelfJoin(t *testing.T) {
	c := New(chat.Credentials{Username: "me", Token: "abc"})
	c.setOpen(true)

	errc := make(chan error, 1)
	go func() { errc <- c.Join(context.Background(), "#Room") }()

	deadline := time.Now().Add(time.Second)
	for {
		c.mu.Lock()
		_, waiting := c.joins["room"]
		c.mu.Unlock()
		if waiting || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	c.onSelfJoin(twitch.UserJoinMessage{Channel: "room", User: "me"})

	if err := <-errc; err != nil {
		t.Fatalf("Join: %v", err)
	}
}

func TestClientJoinHonorsContext(t *testing.T) {
	c := New(chat.Credentials{Username: "me", Token: "abc"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Join(ctx, "room"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Join = %v, want deadline exceeded", err)
	}
}

func TestClientCloseStopsEvents(t *testing.T) {
	c := New(chat.Credentials{Username: "me", Token: "abc"})
	c.Close()
	c.Close()
	c.onConnect()
	select {
	case ev := <-c.Events():
		t.Errorf("event after Close: %#v", ev)
	default:
	}
}

func TestClientLateConnectAfterCloseStaysClosed(t *testing.T) {
	c := New(chat.Credentials{Username: "me", Token: "abc"})
	ready := make(chan error, 1)
	c.ready = ready
	c.Close()

	c.onConnect()
	if c.IsOpen() {
		t.Error("IsOpen = true after a connect that completed past Close")
	}
	select {
	case err := <-ready:
		t.Errorf("late connect signalled readiness: %v", err)
	default:
	}
	if err := c.Say("room", "hi"); !errors.Is(err, errNotConnected) {
		t.Errorf("Say after late connect = %v", err)
	}
}
