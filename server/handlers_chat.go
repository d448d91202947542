package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/telemetry"
)

const (
	streamBuffer       = 256
	keepAliveInterval  = 15 * time.Second
	maxSendBodyBytes   = 4 << 10
	defaultLogResponse = 100
)

// HandleChatLog returns the newest entries, oldest first. ?limit caps the count.
func (h *Handlers) HandleChatLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", defaultLogResponse)
	if limit <= 0 || limit > h.log.Limit() {
		limit = h.log.Limit()
	}
	writeJSON(w, http.StatusOK, h.log.Entries(limit))
}

// HandleChatChatters returns every chatter seen since the session started.
func (h *Handlers) HandleChatChatters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.log.Chatters())
}

// HandleChatMetadata returns badges, cheermotes and third-party emotes of the room.
func (h *Handlers) HandleChatMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.metadata == nil {
		http.Error(w, "metadata disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.metadata.Snapshot())
}

// HandleChatSSE streams a snapshot followed by every store update using
// Server-Sent Events. The event name is the update kind.
func (h *Handlers) HandleChatSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "sse"))
	updates, cancel := h.log.Subscribe(streamBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeSSE(w, "snapshot", h.log.Snapshot()); err != nil {
		log.Warn("failed to write SSE snapshot", slog.Any("err", err))
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSSE(w, string(u.Kind), u); err != nil {
				log.Debug("SSE client gone", slog.Any("err", err))
				return
			}
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// wsFrame is one WebSocket text message.
type wsFrame struct {
	Kind     string            `json:"kind"`
	Snapshot *chatlog.Snapshot `json:"snapshot,omitempty"`
	Update   *chatlog.Update   `json:"update,omitempty"`
}

// HandleChatWS streams the same data as HandleChatSSE over a WebSocket.
// Messages from the client are read and discarded; reading stops at close.
func (h *Handlers) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "ws"))

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	go func() {
		defer stop()
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	updates, cancel := h.log.Subscribe(streamBuffer)
	defer cancel()

	send := func(f wsFrame) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return wsutil.WriteServerText(conn, data)
	}

	snap := h.log.Snapshot()
	if err := send(wsFrame{Kind: "snapshot", Snapshot: &snap}); err != nil {
		log.Debug("websocket write failed", slog.Any("err", err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := send(wsFrame{Kind: string(u.Kind), Update: &u}); err != nil {
				log.Debug("websocket write failed", slog.Any("err", err))
				return
			}
		}
	}
}

type sayRequest struct {
	Message string `json:"message"`
	Action  bool   `json:"action"`
}

type whisperRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// HandleChatSay sends a chat message (or a /me action) to the joined room.
func (h *Handlers) HandleChatSay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sayRequest
	if !decodeSend(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}
	send := h.session.Say
	if req.Action {
		send = h.session.Action
	}
	h.finishSend(w, r, send(req.Message))
}

// HandleChatWhisper sends a whisper to the given recipient.
func (h *Handlers) HandleChatWhisper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req whisperRequest
	if !decodeSend(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Recipient) == "" || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "recipient and message required", http.StatusBadRequest)
		return
	}
	h.finishSend(w, r, h.session.Whisper(req.Recipient, req.Message))
}

func decodeSend(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBodyBytes)).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handlers) finishSend(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, chat.ErrNotStarted), errors.Is(err, chat.ErrStopped):
		status = http.StatusConflict
	case errors.Is(err, chat.ErrSessionFailed):
		status = http.StatusServiceUnavailable
	}
	telemetry.LoggerWithCorr(r.Context()).Warn("chat send failed", slog.Any("err", err), slog.Int("status", status))
	http.Error(w, err.Error(), status)
}
