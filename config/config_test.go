package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_CHANNEL", "TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN", "TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET",
		"CHAT_LOG_LIMIT", "CHAT_CONNECT_TIMEOUT", "CHAT_RECONNECT_MAX_INTERVAL", "DB_DSN", "HTTP_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ChatLogLimit != 500 {
		t.Errorf("ChatLogLimit = %d, want 500", cfg.ChatLogLimit)
	}
	if cfg.ChatConnectTimeout != 15*time.Second || cfg.ChatReconnectMaxInterval != 30*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.ChatConnectTimeout, cfg.ChatReconnectMaxInterval)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBDsn != "" || cfg.HelixEnabled() {
		t.Errorf("optional features enabled by default: %+v", cfg)
	}
	if cfg.Credentials() != nil {
		t.Error("Credentials() without env should be nil")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNEL", " #SomeRoom ")
	t.Setenv("CHAT_LOG_LIMIT", "50")
	t.Setenv("CHAT_CONNECT_TIMEOUT", "3s")
	t.Setenv("CHAT_RECONNECT_MAX_INTERVAL", "1m")
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "SomeRoom" {
		t.Errorf("TwitchChannel = %q", cfg.TwitchChannel)
	}
	if cfg.ChatLogLimit != 50 || cfg.ChatConnectTimeout != 3*time.Second || cfg.ChatReconnectMaxInterval != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.HelixEnabled() {
		t.Error("HelixEnabled() = false")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct{ key, value string }{
		{"CHAT_LOG_LIMIT", "lots"},
		{"CHAT_LOG_LIMIT", "-1"},
		{"CHAT_CONNECT_TIMEOUT", "soon"},
		{"CHAT_RECONNECT_MAX_INTERVAL", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.key)
			}
		})
	}
}

func TestValidateChatReady(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	creds := cfg.Credentials()
	if creds == nil || creds.Username != "bot" || creds.Password() != "oauth:token" {
		t.Errorf("Credentials() = %+v", creds)
	}

	t.Setenv("TWITCH_CHANNEL", "")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:")
	cfg, _ = Load()
	err := cfg.ValidateChatReady()
	if err == nil {
		t.Fatal("expected error when missing twitch envs")
	}
	if !strings.Contains(err.Error(), "TWITCH_CHANNEL") || !strings.Contains(err.Error(), "TWITCH_OAUTH_TOKEN") || strings.Contains(err.Error(), "TWITCH_BOT_USERNAME") {
		t.Errorf("error = %v", err)
	}
	if cfg.Credentials() != nil {
		t.Error("Credentials() with empty token should be nil")
	}
}
