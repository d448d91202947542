package chat

// RoomConfiguration is the current set of room modes.
type RoomConfiguration struct {
	RoomID               string `json:"roomId"`
	FollowersOnly        bool   `json:"followersOnly"`
	FollowersOnlyMinutes int    `json:"followersOnlyMinutes,omitempty"`
	EmoteOnly            bool   `json:"emoteOnly"`
	R9K                  bool   `json:"r9k"`
	SubscribersOnly      bool   `json:"subscribersOnly"`
	SlowModeSeconds      int    `json:"slowModeSeconds"`
}

// RoomFlag names a single room mode.
type RoomFlag int

const (
	FlagFollowersOnly RoomFlag = iota
	FlagEmoteOnly
	FlagR9K
	FlagSlowMode
	FlagSubscribersOnly
)

func (f RoomFlag) String() string {
	switch f {
	case FlagFollowersOnly:
		return "followersonly"
	case FlagEmoteOnly:
		return "emoteonly"
	case FlagR9K:
		return "r9kbeta"
	case FlagSlowMode:
		return "slowmode"
	case FlagSubscribersOnly:
		return "subscribers"
	default:
		return "unknown"
	}
}

// RoomTracker keeps the RoomConfiguration of the joined room.
type RoomTracker struct {
	cfg RoomConfiguration
}

// Apply replaces the configuration with a full room-state snapshot.
func (t *RoomTracker) Apply(rs RoomState) RoomConfiguration {
	t.cfg = RoomConfiguration{
		RoomID:          rs.RoomID,
		FollowersOnly:   rs.FollowersOnly >= 0,
		EmoteOnly:       rs.EmoteOnly,
		R9K:             rs.R9K,
		SubscribersOnly: rs.SubscribersOnly,
		SlowModeSeconds: max(rs.Slow, 0),
	}
	if rs.FollowersOnly > 0 {
		t.cfg.FollowersOnlyMinutes = rs.FollowersOnly
	}
	return t.cfg
}

// Toggle patches a single mode and returns the new configuration together with
// the notice text announcing the change. extra is the slow mode interval in
// seconds or the followers-only age in minutes; it is ignored otherwise.
// Followers-only is the one mode stored in two fields: toggling it sets
// FollowersOnly and resets FollowersOnlyMinutes together.
func (t *RoomTracker) Toggle(flag RoomFlag, enabled bool, extra int) (RoomConfiguration, string) {
	switch flag {
	case FlagFollowersOnly:
		t.cfg.FollowersOnly = enabled
		t.cfg.FollowersOnlyMinutes = 0
		if enabled && extra > 0 {
			t.cfg.FollowersOnlyMinutes = extra
		}
	case FlagEmoteOnly:
		t.cfg.EmoteOnly = enabled
	case FlagR9K:
		t.cfg.R9K = enabled
	case FlagSlowMode:
		t.cfg.SlowModeSeconds = 0
		if enabled {
			t.cfg.SlowModeSeconds = max(extra, 0)
		}
	case FlagSubscribersOnly:
		t.cfg.SubscribersOnly = enabled
	}
	return t.cfg, toggleText(flag, enabled, extra)
}

// Current returns the tracked configuration.
func (t *RoomTracker) Current() RoomConfiguration { return t.cfg }

// Reset returns the tracker to the empty configuration.
func (t *RoomTracker) Reset() { t.cfg = RoomConfiguration{} }
