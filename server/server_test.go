package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/metadata"
)

type fakeSession struct {
	mu       sync.Mutex
	status   chat.ConnectionStatus
	err      error
	sendErr  error
	said     []string
	actions  []string
	whispers []string
}

func (f *fakeSession) Status() chat.ConnectionStatus { return f.status }
func (f *fakeSession) Err() error                    { return f.err }
func (f *fakeSession) Room() string                  { return "someroom" }
func (f *fakeSession) Username() string              { return "tender" }

func (f *fakeSession) Say(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
	return f.sendErr
}

func (f *fakeSession) Action(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, text)
	return f.sendErr
}

func (f *fakeSession) Whisper(recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whispers = append(f.whispers, recipient+":"+text)
	return f.sendErr
}

type fakeMetadata struct{ snap *metadata.Snapshot }

func (f fakeMetadata) Snapshot() *metadata.Snapshot { return f.snap }

func clearServerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ADMIN_USERNAME", "ADMIN_PASSWORD", "ADMIN_TOKEN", "RATE_LIMIT_ENABLED", "RATE_LIMIT_REQUESTS_PER_IP", "RATE_LIMIT_WINDOW_SECONDS", "ENV", "CORS_PERMISSIVE", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
}

func newTestMux(t *testing.T, sess *fakeSession) (http.Handler, *chatlog.Store) {
	t.Helper()
	clearServerEnv(t)
	store := chatlog.New(10)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewMux(ctx, Deps{
		Session:  sess,
		Log:      store,
		Metadata: fakeMetadata{snap: &metadata.Snapshot{RoomID: "42", Channel: "someroom"}},
	})
	return h, store
}

func testEntry(id string) chat.Entry {
	return chat.Entry{ID: id, Kind: chat.KindChat, Text: "hi " + id, User: &chat.Chatter{ID: "u1", Name: "alice"}}
}

func TestHealthzOK(t *testing.T) {
	h, _ := newTestMux(t, &fakeSession{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		sess       *fakeSession
		wantStatus int
	}{
		{"logged on", &fakeSession{status: chat.StatusLogon}, http.StatusOK},
		{"connected", &fakeSession{status: chat.StatusConnected}, http.StatusOK},
		{"reconnecting", &fakeSession{status: chat.StatusReconnecting}, http.StatusServiceUnavailable},
		{"failed", &fakeSession{status: chat.StatusLogon, err: &chat.Failure{Class: chat.ClassConnection, Op: "connect", Err: errors.New("boom")}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestMux(t, tt.sess)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestStatus(t *testing.T) {
	sess := &fakeSession{
		status: chat.StatusDisconnected,
		err:    &chat.Failure{Class: chat.ClassConfiguration, Op: "credentials", Err: chat.ErrMissingCredentials},
	}
	h, store := newTestMux(t, sess)
	store.AppendEntry(testEntry("m1"))
	store.RecordChatterActivity(chat.Chatter{ID: "u1", Name: "alice"}, "m1")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var got struct {
		Status       string `json:"status"`
		Room         string `json:"room"`
		Failed       bool   `json:"failed"`
		FailureClass string `json:"failureClass"`
		Entries      int    `json:"entries"`
		Chatters     int    `json:"chatters"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "disconnected" || got.Room != "someroom" || !got.Failed || got.FailureClass != "configuration" {
		t.Errorf("status = %+v", got)
	}
	if got.Entries != 1 || got.Chatters != 1 {
		t.Errorf("counts = %+v", got)
	}
}

func TestChatLogLimit(t *testing.T) {
	h, store := newTestMux(t, &fakeSession{})
	for _, id := range []string{"a", "b", "c"} {
		store.AppendEntry(testEntry(id))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat/log?limit=2", nil))
	var entries []chat.Entry
	if err := json.NewDecoder(rr.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "b" || entries[1].ID != "c" {
		t.Errorf("entries = %+v", entries)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/log", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /chat/log = %d", rr.Code)
	}
}

func TestChatMetadata(t *testing.T) {
	h, _ := newTestMux(t, &fakeSession{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat/metadata", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"roomId":"42"`) {
		t.Errorf("metadata = %d %s", rr.Code, rr.Body.String())
	}
}

func TestChatSay(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sendErr    error
		wantStatus int
	}{
		{"message", `{"message":"hello"}`, nil, http.StatusAccepted},
		{"action", `{"message":"waves","action":true}`, nil, http.StatusAccepted},
		{"empty", `{"message":"  "}`, nil, http.StatusBadRequest},
		{"invalid json", `{`, nil, http.StatusBadRequest},
		{"not started", `{"message":"hello"}`, chat.ErrNotStarted, http.StatusConflict},
		{"failed", `{"message":"hello"}`, chat.ErrSessionFailed, http.StatusServiceUnavailable},
		{"transport", `{"message":"hello"}`, errors.New("not connected"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{sendErr: tt.sendErr}
			h, _ := newTestMux(t, sess)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/say", strings.NewReader(tt.body)))
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}

	sess := &fakeSession{}
	h, _ := newTestMux(t, sess)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat/say", strings.NewReader(`{"message":"waves","action":true}`)))
	if len(sess.actions) != 1 || sess.actions[0] != "waves" || len(sess.said) != 0 {
		t.Errorf("said = %v, actions = %v", sess.said, sess.actions)
	}
}

func TestChatWhisper(t *testing.T) {
	sess := &fakeSession{}
	h, _ := newTestMux(t, sess)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/whisper", strings.NewReader(`{"recipient":"bob","message":"psst"}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(sess.whispers) != 1 || sess.whispers[0] != "bob:psst" {
		t.Errorf("whispers = %v", sess.whispers)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/whisper", strings.NewReader(`{"message":"psst"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing recipient status = %d", rr.Code)
	}
}

func TestSendEndpointsRequireAuth(t *testing.T) {
	sess := &fakeSession{}
	clearServerEnv(t)
	t.Setenv("ADMIN_TOKEN", "secret-token")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewMux(ctx, Deps{Session: sess, Log: chatlog.New(10)})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/say", strings.NewReader(`{"message":"hello"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat/say", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("X-Admin-Token", "secret-token")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Errorf("authenticated status = %d", rr.Code)
	}

	// Read endpoints stay open.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat/log", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("/chat/log status = %d", rr.Code)
	}
}

func TestChatSSE(t *testing.T) {
	h, store := newTestMux(t, &fakeSession{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	store.AppendEntry(testEntry("before"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/chat/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /chat/stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read SSE: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}

	event, data := readEvent()
	if event != "snapshot" || !strings.Contains(data, `"id":"before"`) {
		t.Fatalf("first event = %s %s", event, data)
	}

	store.AppendEntry(testEntry("after"))
	event, data = readEvent()
	if event != "entry" || !strings.Contains(data, `"id":"after"`) {
		t.Errorf("second event = %s %s", event, data)
	}
}

func TestChatWebSocket(t *testing.T) {
	h, store := newTestMux(t, &fakeSession{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, br, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/chat/ws")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Frames sent right after the handshake may already sit in br.
	var rd io.Reader = conn
	if br != nil {
		rd = br
		defer ws.PutReader(br)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{rd, conn}

	read := func() wsFrame {
		t.Helper()
		data, err := wsutil.ReadServerText(rw)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f wsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		return f
	}

	if f := read(); f.Kind != "snapshot" || f.Snapshot == nil {
		t.Fatalf("first frame = %+v", f)
	}
	store.SetConnectionStatus(chat.StatusLogon)
	f := read()
	if f.Kind != "status" || f.Update == nil || f.Update.Status == nil || *f.Update.Status != chat.StatusLogon {
		t.Errorf("status frame = %+v", f)
	}
}

func TestStartAndShutdown(t *testing.T) {
	clearServerEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, Deps{Session: &fakeSession{}, Log: chatlog.New(10)}, "127.0.0.1:0") }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
