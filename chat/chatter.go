package chat

import (
	"math/rand/v2"
	"strings"
)

// SelfID is the chatter id given to messages sent by the local user.
const SelfID = "self"

// Palette is the set of colors assigned to chatters that never picked one.
var Palette = []string{
	"#FF0000", "#0000FF", "#008000", "#B22222", "#FF7F50",
	"#9ACD32", "#FF4500", "#2E8B57", "#DAA520", "#D2691E",
	"#5F9EA0", "#1E90FF", "#FF69B4", "#8A2BE2", "#00FF7F",
}

// GenerateColor picks a random palette color.
func GenerateColor() string {
	return Palette[rand.IntN(len(Palette))] //nolint:gosec // cosmetic only
}

// Chatter is a participant seen in the room.
type Chatter struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	IsMod       bool   `json:"isMod"`
}

// Registry holds one Chatter per id. Records are created on first sight,
// updated in place and never removed until Reset.
type Registry struct {
	byID   map[string]*Chatter
	byName map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Chatter), byName: make(map[string]string)}
}

// Upsert returns the record for u, creating it when unknown. Names and the mod
// flag follow the latest message; an empty color never replaces a known one.
func (r *Registry) Upsert(u UserState) *Chatter {
	login := strings.ToLower(u.Login)
	c, ok := r.byID[u.ID]
	if !ok {
		c = &Chatter{ID: u.ID}
		r.byID[u.ID] = c
	}
	if u.DisplayName != "" {
		c.DisplayName = u.DisplayName
	}
	if login != "" {
		if c.Name != "" && c.Name != login {
			delete(r.byName, c.Name)
		}
		c.Name = login
		r.byName[login] = u.ID
	}
	if c.DisplayName == "" {
		c.DisplayName = u.Login
	}
	if u.Color != "" {
		c.Color = u.Color
	}
	c.IsMod = u.Mod
	return c
}

// Get returns the record with the given id.
func (r *Registry) Get(id string) (*Chatter, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Lookup finds a record by login name, case-insensitively.
func (r *Registry) Lookup(login string) (*Chatter, bool) {
	id, ok := r.byName[strings.ToLower(login)]
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// Len returns the number of known chatters.
func (r *Registry) Len() int { return len(r.byID) }

// Reset forgets every chatter.
func (r *Registry) Reset() {
	clear(r.byID)
	clear(r.byName)
}
