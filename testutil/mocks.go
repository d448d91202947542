package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer serves canned Twitch Helix, Twitch OAuth and BetterTTV
// responses. Requests are routed by path only, so one server stands in for
// every upstream host when reached through Client.
type MockTwitchServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		handler, ok := m.handlers[r.URL.Path]
		m.hits[r.URL.Path]++
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Client returns an HTTP client that sends every request to the mock server,
// whatever host the URL names.
func (m *MockTwitchServer) Client() *http.Client {
	return &http.Client{Transport: &rewriteTransport{host: strings.TrimPrefix(m.URL, "http://")}}
}

type rewriteTransport struct{ host string }

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(req)
}

// Handle registers a handler for an exact path.
func (m *MockTwitchServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// HandleJSON serves body as JSON on path.
func (m *MockTwitchServer) HandleJSON(path string, body any) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	})
}

// Hits returns how many requests reached path.
func (m *MockTwitchServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

func helixData(data any) map[string]any { return map[string]any{"data": data} }

// MockOAuthTokenResponse serves an app access token from /oauth2/token.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.HandleJSON("/oauth2/token", map[string]any{
		"access_token": accessToken,
		"expires_in":   expiresIn,
		"token_type":   "bearer",
	})
}

// MockUserResponse serves /helix/users with a single user.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.HandleJSON("/helix/users", helixData([]map[string]string{{"id": userID, "login": login}}))
}

// MockClipsResponse serves /helix/clips.
func (m *MockTwitchServer) MockClipsResponse(clips []map[string]any) {
	m.HandleJSON("/helix/clips", helixData(clips))
}

// MockBadgesResponse serves the global and channel badge endpoints.
func (m *MockTwitchServer) MockBadgesResponse(global, channel []map[string]any) {
	m.HandleJSON("/helix/chat/badges/global", helixData(global))
	m.HandleJSON("/helix/chat/badges", helixData(channel))
}

// MockCheermotesResponse serves /helix/bits/cheermotes.
func (m *MockTwitchServer) MockCheermotesResponse(cheermotes []map[string]any) {
	m.HandleJSON("/helix/bits/cheermotes", helixData(cheermotes))
}

// MockEmoteSetsResponse serves /helix/chat/emotes/set.
func (m *MockTwitchServer) MockEmoteSetsResponse(emotes []map[string]any) {
	m.HandleJSON("/helix/chat/emotes/set", helixData(emotes))
}

// MockBTTVResponse serves the BetterTTV global emotes and one channel.
func (m *MockTwitchServer) MockBTTVResponse(global []map[string]any, twitchUserID string, channel map[string]any) {
	m.HandleJSON("/3/cached/emotes/global", global)
	m.HandleJSON("/3/cached/users/twitch/"+twitchUserID, channel)
}
