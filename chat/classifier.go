package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is everything one event changes. The Session applies it to the Sink.
type Outcome struct {
	// Entry is the log entry to append, if any.
	Entry *Entry
	// Chatter is the sender snapshot to record activity for against Entry.
	Chatter *Chatter
	// Purge lists entry ids to remove from the log.
	Purge []string
	// Room is set when the room configuration changed.
	Room *RoomConfiguration
	// Moderator is set when the local moderator status changed.
	Moderator *bool
	// ClipSlugs are clip references in Entry awaiting resolution.
	ClipSlugs []string
	// EmoteSetIDs are emote sets to resolve for the local user.
	EmoteSetIDs []string
	// RefreshRoomID requests a metadata refresh for the room.
	RefreshRoomID string
	// Suppressed is set when the event was deliberately dropped.
	Suppressed bool
}

// Classifier turns events into Outcomes. It is not safe for concurrent use;
// the Session calls it from its dispatch goroutine only.
type Classifier struct {
	login   string
	roster  *Roster
	rooms   *RoomTracker
	whisper *WhisperSlot

	now   func() time.Time
	newID func() string
}

// NewClassifier returns a classifier for the local user login.
func NewClassifier(login string, roster *Roster, rooms *RoomTracker, whisper *WhisperSlot) *Classifier {
	return &Classifier{
		login:   strings.ToLower(login),
		roster:  roster,
		rooms:   rooms,
		whisper: whisper,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Classify handles one non-lifecycle event. Lifecycle events and unknown
// event types yield an empty Outcome.
func (c *Classifier) Classify(ev Event) Outcome {
	switch e := ev.(type) {
	case Message:
		return c.message(e.Type, e.User, e.Text, e.Self)
	case Cheer:
		return c.message(MessageCheer, e.User, e.Text, false)
	case RoomState:
		cfg := c.rooms.Apply(e)
		return Outcome{Room: &cfg, RefreshRoomID: cfg.RoomID}
	case FollowersOnlyToggled:
		return c.toggle(FlagFollowersOnly, e.Enabled, e.Minutes)
	case EmoteOnlyToggled:
		return c.toggle(FlagEmoteOnly, e.Enabled, 0)
	case R9KToggled:
		return c.toggle(FlagR9K, e.Enabled, 0)
	case SlowModeToggled:
		return c.toggle(FlagSlowMode, e.Enabled, e.Seconds)
	case SubscribersToggled:
		return c.toggle(FlagSubscribersOnly, e.Enabled, 0)
	case ChatCleared:
		return Outcome{Entry: c.notice(chatClearedText, e.EventName())}
	case MessageDeleted:
		return Outcome{Purge: []string{e.MessageID}}
	case UserBanned:
		return c.moderation(e.Username, e.UserID, banText(e.Username, e.Reason), e.EventName())
	case UserTimedOut:
		return c.moderation(e.Username, e.UserID, timeoutText(e.Username, e.Seconds, e.Reason), e.EventName())
	case ModList:
		for _, m := range e.Mods {
			if c.isLocal(m) {
				return c.setModerator(true)
			}
		}
		return Outcome{}
	case ModAdded:
		if c.isLocal(e.Username) {
			return c.setModerator(true)
		}
		return Outcome{}
	case ModRemoved:
		if c.isLocal(e.Username) {
			return c.setModerator(false)
		}
		return Outcome{}
	case ServerNotice:
		return Outcome{Entry: c.notice(e.Text, e.EventName())}
	case Hosted:
		if strings.EqualFold(e.Hoster, e.Channel) {
			return Outcome{Suppressed: true}
		}
		return Outcome{Entry: c.notification(hostedText(e.Hoster, e.Auto, e.Viewers), e.EventName(), "")}
	case Hosting:
		return Outcome{Entry: c.notice(hostingText(e.Target, e.Viewers), e.EventName())}
	case Unhosted:
		return Outcome{Entry: c.notice(unhostText, e.EventName())}
	case Raid:
		return Outcome{Entry: c.notification(raidText(e.Raider, e.Viewers), e.EventName(), "")}
	case Subscription:
		return Outcome{Entry: c.notification(subscriptionText(e.Username, e.Prime), e.EventName(), e.Message)}
	case Resubscription:
		return Outcome{Entry: c.notification(resubText(e.Username, e.Months, e.Prime), e.EventName(), e.Message)}
	case SubGift:
		return Outcome{Entry: c.notification(subGiftText(e.Username, e.Recipient), e.EventName(), "")}
	case Ritual:
		if e.Name != "new_chatter" {
			return Outcome{}
		}
		return Outcome{Entry: c.notification(newChatterText(e.Username), e.EventName(), "")}
	case EmoteSets:
		return Outcome{EmoteSetIDs: e.SetIDs}
	}
	return Outcome{}
}

func (c *Classifier) message(typ MessageType, u UserState, text string, self bool) Outcome {
	var (
		id     string
		sentAt = u.SentAt
		out    Outcome
	)

	switch typ {
	case MessageChat, MessageAction, MessageCheer:
		if self {
			id, u.ID, sentAt = c.newID(), SelfID, c.now()
		} else {
			id = u.MessageID
		}
	case MessageWhisper:
		sentAt = c.now()
		if self {
			recipient, ok := c.whisper.Take()
			if !ok {
				return Outcome{Suppressed: true}
			}
			id, u.ID = c.newID(), SelfID
			u.Login, u.DisplayName = recipient, recipient
		} else {
			id = u.ThreadID + "-" + u.MessageID
		}
	default:
		return Outcome{}
	}
	if id == "" || id == "-" {
		id = c.newID()
	}
	if sentAt.IsZero() {
		sentAt = c.now()
	}

	if c.isLocal(u.Login) && u.Mod && !c.roster.IsModerator() {
		out = c.setModerator(true)
	}

	var sender Chatter
	if typ == MessageWhisper {
		// Whisper partners are not room participants and stay out of the roster.
		sender = Chatter{ID: u.ID, DisplayName: u.Name(), Name: strings.ToLower(u.Login), Color: u.Color, IsMod: u.Mod}
		if known, ok := c.roster.Chatters().Get(u.ID); ok && sender.Color == "" {
			sender.Color = known.Color
		}
		if sender.Color == "" {
			sender.Color = GenerateColor()
		}
	} else {
		rec := c.roster.Chatters().Upsert(u)
		if rec.Color == "" {
			rec.Color = GenerateColor()
		}
		c.roster.RecordMessage(rec.ID, id)
		sender = *rec
		snapshot := sender
		out.Chatter = &snapshot
	}

	entry := &Entry{
		ID:   id,
		Kind: EntryKind(typ),
		Time: sentAt,
		Text: text,
		User: &sender,
		Self: self,
	}
	if typ == MessageCheer {
		entry.Bits = u.Bits
	}
	out.Entry = entry
	out.ClipSlugs = ExtractClipSlugs(text)
	return out
}

func (c *Classifier) toggle(flag RoomFlag, enabled bool, extra int) Outcome {
	cfg, text := c.rooms.Toggle(flag, enabled, extra)
	return Outcome{Room: &cfg, Entry: c.notice(text, flag.String())}
}

func (c *Classifier) moderation(username, userID, text, event string) Outcome {
	id := userID
	if id == "" {
		if known, ok := c.roster.Chatters().Lookup(username); ok {
			id = known.ID
		}
	}
	out := Outcome{Purge: c.roster.PurgeAllFor(id)}
	if c.isLocal(username) && id != SelfID {
		// Messages the local user sent are recorded under SelfID.
		out.Purge = append(out.Purge, c.roster.PurgeAllFor(SelfID)...)
	}
	if c.roster.IsModerator() {
		out.Entry = c.notice(text, event)
	}
	return out
}

func (c *Classifier) setModerator(mod bool) Outcome {
	c.roster.SetModeratorStatus(mod)
	return Outcome{Moderator: &mod}
}

func (c *Classifier) isLocal(login string) bool {
	return c.login != "" && strings.EqualFold(login, c.login)
}

func (c *Classifier) notice(text, event string) *Entry {
	return &Entry{ID: c.newID(), Kind: KindNotice, Time: c.now(), Text: text, Event: event}
}

func (c *Classifier) notification(text, event, sub string) *Entry {
	return &Entry{ID: c.newID(), Kind: KindNotification, Time: c.now(), Text: text, Event: event, SubMessage: sub}
}
