package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/metadata"
)

// ChatSession is the part of chat.Session the HTTP API drives.
type ChatSession interface {
	Status() chat.ConnectionStatus
	Err() error
	Room() string
	Username() string
	Say(text string) error
	Action(text string) error
	Whisper(recipient, text string) error
}

// MetadataSource exposes the current room metadata.
type MetadataSource interface {
	Snapshot() *metadata.Snapshot
}

// Deps are the collaborators of the HTTP API. DB and Metadata are optional.
type Deps struct {
	DB       *sql.DB
	Session  ChatSession
	Log      *chatlog.Store
	Metadata MetadataSource
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db       *sql.DB
	session  ChatSession
	log      *chatlog.Store
	metadata MetadataSource
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		db:       d.DB,
		session:  d.Session,
		log:      d.Log,
		metadata: d.Metadata,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
