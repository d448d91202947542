package chat

import "time"

// Event is one upstream occurrence delivered by a Transport. The set of
// concrete types is closed; Session and Classifier switch over them.
type Event interface {
	// EventName is a stable identifier used for logging and metrics labels.
	EventName() string
}

// MessageType distinguishes the ways a chatter can produce a message.
type MessageType string

const (
	MessageChat    MessageType = "chat"
	MessageAction  MessageType = "action"
	MessageCheer   MessageType = "cheer"
	MessageWhisper MessageType = "whisper"
)

// UserState is the sender metadata attached to an incoming message.
type UserState struct {
	ID          string
	Login       string
	DisplayName string
	Color       string
	Mod         bool
	Badges      map[string]int

	// MessageID is the upstream message id. ThreadID is only set on whispers.
	MessageID string
	ThreadID  string
	SentAt    time.Time
	Bits      int
}

// Name returns the display name, falling back to the login.
func (u UserState) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Login
}

// Lifecycle events.
type (
	Connecting    struct{}
	Connected     struct{}
	Authenticated struct{}
	Reconnecting  struct{}
	Disconnected  struct{ Err error }
)

// RoomState is a complete snapshot of the room's modes. FollowersOnly is -1
// when the mode is off, otherwise the required follow age in minutes.
// Slow is the slow mode interval in seconds, 0 when off.
type RoomState struct {
	Channel         string
	RoomID          string
	EmoteOnly       bool
	FollowersOnly   int
	R9K             bool
	Slow            int
	SubscribersOnly bool
}

// Room mode changes.
type (
	FollowersOnlyToggled struct {
		Enabled bool
		Minutes int
	}
	EmoteOnlyToggled   struct{ Enabled bool }
	R9KToggled         struct{ Enabled bool }
	SubscribersToggled struct{ Enabled bool }
	SlowModeToggled    struct {
		Enabled bool
		Seconds int
	}
)

// Chat content and moderation.
type (
	ChatCleared struct{}

	// Message is a chat line, action or whisper. Self is set on local echoes of
	// messages sent through the session.
	Message struct {
		Type MessageType
		User UserState
		Text string
		Self bool
	}

	// Cheer is a chat message carrying bits.
	Cheer struct {
		User UserState
		Text string
	}

	// MessageDeleted is a moderator removing a single message.
	MessageDeleted struct {
		Username  string
		MessageID string
	}

	UserBanned struct {
		Username string
		UserID   string
		Reason   string
	}

	UserTimedOut struct {
		Username string
		UserID   string
		Reason   string
		Seconds  int
	}

	ModList      struct{ Mods []string }
	ModAdded     struct{ Username string }
	ModRemoved   struct{ Username string }
	ServerNotice struct {
		MsgID string
		Text  string
	}
)

// Hosting and raids.
type (
	// Hosted is another channel hosting Channel.
	Hosted struct {
		Channel string
		Hoster  string
		Viewers int
		Auto    bool
	}
	// Hosting is the current room hosting Target.
	Hosting struct {
		Target  string
		Viewers int
	}
	Unhosted struct{}
	Raid     struct {
		Raider  string
		Viewers int
	}
)

// Subscriptions and rituals.
type (
	Subscription struct {
		Username string
		Prime    bool
		Message  string
	}
	Resubscription struct {
		Username string
		Months   int
		Prime    bool
		Message  string
	}
	SubGift struct {
		Username  string
		Recipient string
	}
	Ritual struct {
		Username string
		Name     string
	}
)

// EmoteSets lists the emote set ids available to the logged in user.
type EmoteSets struct{ SetIDs []string }

func (Connecting) EventName() string           { return "connecting" }
func (Connected) EventName() string            { return "connected" }
func (Authenticated) EventName() string        { return "logon" }
func (Reconnecting) EventName() string         { return "reconnecting" }
func (Disconnected) EventName() string         { return "disconnected" }
func (RoomState) EventName() string            { return "roomstate" }
func (FollowersOnlyToggled) EventName() string { return "followersonly" }
func (EmoteOnlyToggled) EventName() string     { return "emoteonly" }
func (R9KToggled) EventName() string           { return "r9kbeta" }
func (SubscribersToggled) EventName() string   { return "subscribers" }
func (SlowModeToggled) EventName() string      { return "slowmode" }
func (ChatCleared) EventName() string          { return "clearchat" }
func (m Message) EventName() string            { return string(m.Type) }
func (Cheer) EventName() string                { return "cheer" }
func (MessageDeleted) EventName() string       { return "messagedeleted" }
func (UserBanned) EventName() string           { return "ban" }
func (UserTimedOut) EventName() string         { return "timeout" }
func (ModList) EventName() string              { return "mods" }
func (ModAdded) EventName() string             { return "mod" }
func (ModRemoved) EventName() string           { return "unmod" }
func (ServerNotice) EventName() string         { return "notice" }
func (Hosted) EventName() string               { return "hosted" }
func (Hosting) EventName() string              { return "hosting" }
func (Unhosted) EventName() string             { return "unhost" }
func (Raid) EventName() string                 { return "raid" }
func (Subscription) EventName() string         { return "subscription" }
func (Resubscription) EventName() string       { return "resub" }
func (SubGift) EventName() string              { return "subgift" }
func (Ritual) EventName() string               { return "ritual" }
func (EmoteSets) EventName() string            { return "emotesets" }
