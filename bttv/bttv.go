// Package bttv is a client for the BetterTTV emote API.
package bttv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	apiBaseURL = "https://api.betterttv.net/3"
	cdnBaseURL = "https://cdn.betterttv.net/emote"
)

// Emote is a BetterTTV emote.
type Emote struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	ImageType string `json:"imageType"`
}

// URL returns the CDN address of the emote at size 1, 2 or 3.
func (e Emote) URL(size int) string {
	if size < 1 || size > 3 {
		size = 1
	}
	return fmt.Sprintf("%s/%s/%dx", cdnBaseURL, e.ID, size)
}

// Channel holds the emotes and known bots of a Twitch channel.
type Channel struct {
	Bots          []string `json:"bots"`
	ChannelEmotes []Emote  `json:"channelEmotes"`
	SharedEmotes  []Emote  `json:"sharedEmotes"`
}

// Emotes returns the channel and shared emotes together.
func (c *Channel) Emotes() []Emote {
	out := make([]Emote, 0, len(c.ChannelEmotes)+len(c.SharedEmotes))
	out = append(out, c.ChannelEmotes...)
	return append(out, c.SharedEmotes...)
}

// Client talks to the BetterTTV API.
type Client struct {
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// GlobalEmotes lists emotes available in every channel.
func (c *Client) GlobalEmotes(ctx context.Context) ([]Emote, error) {
	var out []Emote
	if _, err := c.get(ctx, "/cached/emotes/global", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChannelEmotes returns the emotes of the channel with the given Twitch user
// id. Channels unknown to BetterTTV yield an empty Channel.
func (c *Client) ChannelEmotes(ctx context.Context, twitchUserID string) (*Channel, error) {
	if twitchUserID == "" {
		return nil, fmt.Errorf("twitchUserID empty")
	}
	var out Channel
	found, err := c.get(ctx, "/cached/users/twitch/"+twitchUserID, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Channel{}, nil
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("bttv %s failed: %s: %s", path, resp.Status, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("bttv %s: decode: %w", path, err)
	}
	return true, nil
}
