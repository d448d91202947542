package chat

import "slices"

// Roster tracks the chatters seen in the room, the ids of the log entries each
// of them authored, and whether the local user moderates the room.
type Roster struct {
	chatters  *Registry
	history   map[string][]string
	moderator bool
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{chatters: NewRegistry(), history: make(map[string][]string)}
}

// Chatters returns the registry backing the roster.
func (r *Roster) Chatters() *Registry { return r.chatters }

// RecordMessage appends entryID to the chatter's history. Ids already
// recorded for the chatter are ignored.
func (r *Roster) RecordMessage(chatterID, entryID string) {
	if chatterID == "" || entryID == "" || slices.Contains(r.history[chatterID], entryID) {
		return
	}
	r.history[chatterID] = append(r.history[chatterID], entryID)
}

// Messages returns a copy of the chatter's recorded entry ids.
func (r *Roster) Messages(chatterID string) []string {
	return append([]string(nil), r.history[chatterID]...)
}

// PurgeAllFor returns every entry id recorded for the chatter and clears the
// history. A chatter with no history yields an empty result.
func (r *Roster) PurgeAllFor(chatterID string) []string {
	ids := r.history[chatterID]
	delete(r.history, chatterID)
	return ids
}

// SetModeratorStatus records whether the local user is a moderator.
func (r *Roster) SetModeratorStatus(mod bool) { r.moderator = mod }

// IsModerator reports the local user's moderator status.
func (r *Roster) IsModerator() bool { return r.moderator }

// Reset clears chatters, histories and moderator status.
func (r *Roster) Reset() {
	r.chatters.Reset()
	clear(r.history)
	r.moderator = false
}
