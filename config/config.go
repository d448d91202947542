// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., Twitch chat), use ValidateChatReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-tender/chat"
)

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string

	// Chat pipeline
	ChatLogLimit             int
	ChatConnectTimeout       time.Duration
	ChatReconnectMaxInterval time.Duration

	// Database (optional token store)
	DBDsn string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateChatReady() when you require the chat session. Missing Helix credentials disable
// metadata enrichment, a missing DB_DSN disables the token store.
func Load() (*Config, error) {
	cfg := &Config{
		TwitchChannel:      strings.TrimPrefix(strings.TrimSpace(os.Getenv("TWITCH_CHANNEL")), "#"),
		TwitchBotUsername:  strings.TrimSpace(os.Getenv("TWITCH_BOT_USERNAME")),
		TwitchOAuthToken:   strings.TrimSpace(os.Getenv("TWITCH_OAUTH_TOKEN")),
		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		DBDsn:              os.Getenv("DB_DSN"),
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	var err error
	if cfg.ChatLogLimit, err = intEnv("CHAT_LOG_LIMIT", 500); err != nil {
		return nil, err
	}
	if cfg.ChatConnectTimeout, err = durationEnv("CHAT_CONNECT_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ChatReconnectMaxInterval, err = durationEnv("CHAT_RECONNECT_MAX_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", key, v)
	}
	return d, nil
}

// ValidateChatReady checks the fields the chat session needs.
func (c *Config) ValidateChatReady() error {
	var missing []string
	if c.TwitchChannel == "" {
		missing = append(missing, "TWITCH_CHANNEL")
	}
	if c.TwitchBotUsername == "" {
		missing = append(missing, "TWITCH_BOT_USERNAME")
	}
	if strings.TrimPrefix(c.TwitchOAuthToken, "oauth:") == "" {
		missing = append(missing, "TWITCH_OAUTH_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing twitch env: require %s", strings.Join(missing, ", "))
	}
	return nil
}

// HelixEnabled reports whether app credentials for the Helix API are set.
func (c *Config) HelixEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

// Credentials returns the chat login, or nil when username or token is missing.
func (c *Config) Credentials() *chat.Credentials {
	if c.TwitchBotUsername == "" || strings.TrimPrefix(c.TwitchOAuthToken, "oauth:") == "" {
		return nil
	}
	return &chat.Credentials{Username: c.TwitchBotUsername, Token: c.TwitchOAuthToken}
}
