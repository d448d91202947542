package twitchirc

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-tender/chat"
)

// jtv announces incoming hosts as a private message.
var hostedPattern = regexp.MustCompile(`^(\S+) is now (auto )?hosting you(?: for(?: up to)? (\d+) viewers?)?\.?$`)

var roomStateKeys = []string{"emote-only", "followers-only", "r9k", "slow", "subs-only"}

func userState(u twitch.User, tags map[string]string) chat.UserState {
	badges := make(map[string]int, len(u.Badges))
	for k, v := range u.Badges {
		badges[k] = v
	}
	return chat.UserState{
		ID:          u.ID,
		Login:       strings.ToLower(u.Name),
		DisplayName: u.DisplayName,
		Color:       u.Color,
		Mod:         tags["mod"] == "1" || badges["moderator"] > 0 || badges["broadcaster"] > 0,
		Badges:      badges,
	}
}

func translatePrivate(m twitch.PrivateMessage) chat.Event {
	if m.User.Name == "jtv" {
		if ev, ok := parseHosted(m.Channel, m.Message); ok {
			return ev
		}
		return nil
	}
	u := userState(m.User, m.Tags)
	u.MessageID = m.ID
	u.SentAt = sentAt(m.Time, m.Tags)
	u.Bits = m.Bits
	if m.Bits > 0 {
		return chat.Cheer{User: u, Text: m.Message}
	}
	typ := chat.MessageChat
	if m.Action {
		typ = chat.MessageAction
	}
	return chat.Message{Type: typ, User: u, Text: m.Message}
}

func parseHosted(channel, text string) (chat.Hosted, bool) {
	sm := hostedPattern.FindStringSubmatch(strings.TrimSpace(text))
	if sm == nil {
		return chat.Hosted{}, false
	}
	viewers, _ := strconv.Atoi(sm[3])
	return chat.Hosted{Channel: normalizeChannel(channel), Hoster: sm[1], Viewers: viewers, Auto: sm[2] != ""}, true
}

func translateWhisper(m twitch.WhisperMessage) chat.Event {
	u := userState(m.User, m.Tags)
	u.MessageID = m.MessageID
	u.ThreadID = m.ThreadID
	return chat.Message{Type: chat.MessageWhisper, User: u, Text: m.Message}
}

func translateClearChat(m twitch.ClearChatMessage) chat.Event {
	if m.TargetUsername == "" {
		return chat.ChatCleared{}
	}
	// Tag values arrive already unescaped.
	reason := m.Tags["ban-reason"]
	if m.BanDuration > 0 {
		return chat.UserTimedOut{Username: m.TargetUsername, UserID: m.TargetUserID, Reason: reason, Seconds: m.BanDuration}
	}
	return chat.UserBanned{Username: m.TargetUsername, UserID: m.TargetUserID, Reason: reason}
}

func translateClearMessage(m twitch.ClearMessage) chat.Event {
	if m.TargetMsgID == "" {
		return nil
	}
	return chat.MessageDeleted{Username: m.Login, MessageID: m.TargetMsgID}
}

// translateRoomState turns the join-time snapshot (all keys present) into a
// RoomState and every later partial update into one toggle per key.
func translateRoomState(m twitch.RoomStateMessage) []chat.Event {
	full := true
	for _, k := range roomStateKeys {
		if _, ok := m.State[k]; !ok {
			full = false
			break
		}
	}
	if full {
		return []chat.Event{chat.RoomState{
			Channel:         normalizeChannel(m.Channel),
			RoomID:          m.RoomID,
			EmoteOnly:       m.State["emote-only"] == 1,
			FollowersOnly:   m.State["followers-only"],
			R9K:             m.State["r9k"] == 1,
			Slow:            m.State["slow"],
			SubscribersOnly: m.State["subs-only"] == 1,
		}}
	}

	var out []chat.Event
	for _, k := range roomStateKeys {
		v, ok := m.State[k]
		if !ok {
			continue
		}
		switch k {
		case "emote-only":
			out = append(out, chat.EmoteOnlyToggled{Enabled: v == 1})
		case "followers-only":
			out = append(out, chat.FollowersOnlyToggled{Enabled: v >= 0, Minutes: max(v, 0)})
		case "r9k":
			out = append(out, chat.R9KToggled{Enabled: v == 1})
		case "slow":
			out = append(out, chat.SlowModeToggled{Enabled: v > 0, Seconds: v})
		case "subs-only":
			out = append(out, chat.SubscribersToggled{Enabled: v == 1})
		}
	}
	return out
}

// Mode changes are also announced as ROOMSTATE; the NOTICE duplicates are dropped.
var droppedNotices = map[string]bool{
	"emote_only_on": true, "emote_only_off": true,
	"followers_on": true, "followers_on_zero": true, "followers_off": true,
	"r9k_on": true, "r9k_off": true,
	"slow_on": true, "slow_off": true,
	"subs_on": true, "subs_off": true,
	"host_on": true, "host_off": true,
}

func translateNotice(m twitch.NoticeMessage) chat.Event {
	switch {
	case m.MsgID == "room_mods":
		return chat.ModList{Mods: parseModList(m.Message)}
	case m.MsgID == "no_mods":
		return chat.ModList{}
	case droppedNotices[m.MsgID]:
		return nil
	}
	return chat.ServerNotice{MsgID: m.MsgID, Text: m.Message}
}

func parseModList(text string) []string {
	_, list, ok := strings.Cut(text, ":")
	if !ok {
		return nil
	}
	var mods []string
	for _, name := range strings.Split(strings.TrimSuffix(strings.TrimSpace(list), "."), ",") {
		if name = strings.TrimSpace(name); name != "" {
			mods = append(mods, strings.ToLower(name))
		}
	}
	return mods
}

func translateUserNotice(m twitch.UserNoticeMessage) chat.Event {
	user := m.User.DisplayName
	if user == "" {
		user = m.User.Name
	}
	params := m.MsgParams
	prime := params["msg-param-sub-plan"] == "Prime"
	switch m.MsgID {
	case "sub":
		return chat.Subscription{Username: user, Prime: prime, Message: m.Message}
	case "resub":
		months := atoi(params["msg-param-cumulative-months"])
		if months == 0 {
			months = atoi(params["msg-param-months"])
		}
		return chat.Resubscription{Username: user, Months: months, Prime: prime, Message: m.Message}
	case "subgift", "anonsubgift":
		recipient := params["msg-param-recipient-display-name"]
		if recipient == "" {
			recipient = params["msg-param-recipient-user-name"]
		}
		return chat.SubGift{Username: user, Recipient: recipient}
	case "ritual":
		return chat.Ritual{Username: user, Name: params["msg-param-ritual-name"]}
	case "raid":
		raider := params["msg-param-displayName"]
		if raider == "" {
			raider = user
		}
		return chat.Raid{Raider: raider, Viewers: atoi(params["msg-param-viewerCount"])}
	}
	return nil
}

// translateRaw handles commands go-twitch-irc does not parse.
func translateRaw(m twitch.RawMessage) chat.Event {
	params := rawParams(m.Raw, m.RawType)
	switch m.RawType {
	case "MODE":
		// :jtv MODE #channel +o username
		if len(params) < 3 {
			return nil
		}
		switch params[1] {
		case "+o":
			return chat.ModAdded{Username: params[2]}
		case "-o":
			return chat.ModRemoved{Username: params[2]}
		}
	case "HOSTTARGET":
		// :tmi.twitch.tv HOSTTARGET #channel :target viewers
		if len(params) < 2 {
			return nil
		}
		target := strings.TrimPrefix(params[1], ":")
		if target == "-" {
			return chat.Unhosted{}
		}
		var viewers int
		if len(params) > 2 {
			viewers = atoi(params[2])
		}
		return chat.Hosting{Target: target, Viewers: viewers}
	}
	return nil
}

func rawParams(raw, command string) []string {
	fields := strings.Fields(raw)
	for i, f := range fields {
		if f == command {
			return fields[i+1:]
		}
	}
	return nil
}

func sentAt(t time.Time, tags map[string]string) time.Time {
	if !t.IsZero() {
		return t
	}
	if ts := tags["tmi-sent-ts"]; ts != "" {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Time{}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}
