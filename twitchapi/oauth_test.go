package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestComputeExpiry(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn int
		wantAfter time.Duration
	}{
		{
			name:      "4 hours",
			expiresIn: 14400,
			wantAfter: 4 * time.Hour,
		},
		{
			name:      "1 hour",
			expiresIn: 3600,
			wantAfter: 1 * time.Hour,
		},
		{
			name:      "zero defaults to 60 minutes",
			expiresIn: 0,
			wantAfter: 60 * time.Minute,
		},
		{
			name:      "negative defaults to 60 minutes",
			expiresIn: -100,
			wantAfter: 60 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			expiry := ComputeExpiry(tt.expiresIn)
			after := time.Now()

			expectedExpiry := before.Add(tt.wantAfter)

			// Allow 2 second tolerance
			if expiry.Before(expectedExpiry.Add(-2*time.Second)) || expiry.After(after.Add(tt.wantAfter).Add(2*time.Second)) {
				t.Errorf("ComputeExpiry(%d) = %v, want approximately %v", tt.expiresIn, expiry, expectedExpiry)
			}
		})
	}
}

func TestRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.Form.Get("client_id"); got != "cid" {
			t.Errorf("client_id = %q", got)
		}
		if got := r.Form.Get("client_secret"); got != "secret" {
			t.Errorf("client_secret = %q", got)
		}
		if _, _, ok := r.BasicAuth(); ok {
			t.Error("credentials sent in an Authorization header")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    14400,
			"scope":         []string{"chat:read", "chat:edit"},
			"token_type":    "bearer",
		})
	}))
	defer server.Close()

	hc := &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL}}
	res, err := RefreshToken(context.Background(), hc, "cid", "secret", "old-refresh")
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if res.AccessToken != "new-access" || res.RefreshToken != "new-refresh" {
		t.Errorf("tokens = %q/%q", res.AccessToken, res.RefreshToken)
	}
	if res.ExpiresIn < 14390 || res.ExpiresIn > 14400 {
		t.Errorf("ExpiresIn = %d, want ~14400", res.ExpiresIn)
	}
	if !slices.Equal(res.Scope, []string{"chat:read", "chat:edit"}) {
		t.Errorf("Scope = %v", res.Scope)
	}
}

func TestRefreshTokenKeepsOldRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-access",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	}))
	defer server.Close()

	res, err := RefreshToken(context.Background(), &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL}}, "cid", "secret", "old-refresh")
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if res.RefreshToken != "old-refresh" {
		t.Errorf("RefreshToken = %q, want old-refresh", res.RefreshToken)
	}
}

func TestRefreshTokenErrors(t *testing.T) {
	if _, err := RefreshToken(context.Background(), nil, "", "secret", "r"); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("missing client id error = %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","message":"Invalid refresh token"}`))
	}))
	defer server.Close()

	_, err := RefreshToken(context.Background(), &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL}}, "cid", "secret", "bad")
	if err == nil || !strings.Contains(err.Error(), "twitch refresh failed") {
		t.Errorf("RefreshToken() error = %v", err)
	}
}
