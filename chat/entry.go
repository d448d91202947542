package chat

import "time"

// EntryKind tags a NormalizedLogEntry.
type EntryKind string

const (
	KindChat         EntryKind = "chat"
	KindAction       EntryKind = "action"
	KindCheer        EntryKind = "cheer"
	KindWhisper      EntryKind = "whisper"
	KindNotice       EntryKind = "notice"
	KindNotification EntryKind = "notification"
)

// Entry is one line of the chat log. Message kinds carry a sender snapshot;
// notices and notifications only carry text.
type Entry struct {
	ID   string    `json:"id"`
	Kind EntryKind `json:"type"`
	Time time.Time `json:"time"`
	Text string    `json:"message"`

	User  *Chatter        `json:"user,omitempty"`
	Self  bool            `json:"self,omitempty"`
	Bits  int             `json:"bits,omitempty"`
	Clips map[string]Clip `json:"clips,omitempty"`

	// Event names the upstream event a notice or notification came from.
	Event      string `json:"event,omitempty"`
	HTML       bool   `json:"html,omitempty"`
	SubMessage string `json:"subMessage,omitempty"`
}

// IsMessage reports whether the entry was authored by a chatter.
func (e Entry) IsMessage() bool {
	switch e.Kind {
	case KindChat, KindAction, KindCheer, KindWhisper:
		return true
	}
	return false
}

// Clip is the metadata of a clip referenced in a message.
type Clip struct {
	Slug            string    `json:"slug"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	EmbedURL        string    `json:"embedUrl,omitempty"`
	BroadcasterName string    `json:"broadcasterName"`
	CreatorName     string    `json:"creatorName"`
	ThumbnailURL    string    `json:"thumbnailUrl"`
	ViewCount       int       `json:"viewCount"`
	Duration        float64   `json:"duration"`
	CreatedAt       time.Time `json:"createdAt"`
}

// EntryPatch is a partial update applied to an already emitted entry.
type EntryPatch struct {
	Clips map[string]Clip `json:"clips,omitempty"`
}

// Apply merges the patch into e.
func (p EntryPatch) Apply(e *Entry) {
	if len(p.Clips) == 0 {
		return
	}
	if e.Clips == nil {
		e.Clips = make(map[string]Clip, len(p.Clips))
	}
	for slug, c := range p.Clips {
		e.Clips[slug] = c
	}
}
