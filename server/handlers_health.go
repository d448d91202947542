package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/onnwee/chat-tender/chat"
)

// HandleHealthz responds to liveness probes. The database is pinged when configured.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the chat session is online and has not failed.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"session", func() error {
			if err := h.session.Err(); err != nil {
				return err
			}
			if st := h.session.Status(); !st.Online() {
				return fmt.Errorf("chat %s", st)
			}
			return nil
		}},
	}
	if h.db != nil {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"database", func() error { return h.db.PingContext(r.Context()) }})
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Status       chat.ConnectionStatus `json:"status"`
	Room         string                `json:"room"`
	Username     string                `json:"username"`
	Failed       bool                  `json:"failed"`
	Error        string                `json:"error,omitempty"`
	FailureClass string                `json:"failureClass,omitempty"`
	Entries      int                   `json:"entries"`
	Chatters     int                   `json:"chatters"`
	Moderator    bool                  `json:"moderator"`
}

// HandleStatus returns a lightweight summary of the session and the log.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := h.log.Snapshot()
	resp := statusResponse{
		Status:    h.session.Status(),
		Room:      h.session.Room(),
		Username:  h.session.Username(),
		Entries:   len(snap.Entries),
		Chatters:  len(snap.Chatters),
		Moderator: snap.Moderator,
	}
	if err := h.session.Err(); err != nil {
		resp.Failed = true
		resp.Error = err.Error()
		var f *chat.Failure
		if errors.As(err, &f) {
			resp.FailureClass = f.Class.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
