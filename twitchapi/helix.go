// Package twitchapi contains minimal helpers to interact with the Twitch Helix
// APIs used for chat enrichment (clips, badges, cheermotes, emote sets), using
// an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const helixBaseURL = "https://api.twitch.tv/helix"

// Helix limits on ids per request.
const (
	maxClipIDs     = 100
	maxEmoteSetIDs = 25
)

// HelixClient provides the Helix calls needed for chat metadata.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// get performs an authenticated GET and decodes the JSON body into out. A 401
// invalidates the app token and the request is retried once with a new one.
func (hc *HelixClient) get(ctx context.Context, path string, q url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		tok, err := hc.AppTokenSource.Get(ctx)
		if err != nil {
			return err
		}
		status, err := hc.do(ctx, tok, path, q, out)
		if status == http.StatusUnauthorized && attempt == 0 {
			hc.AppTokenSource.Invalidate(tok)
			continue
		}
		return err
	}
}

func (hc *HelixClient) do(ctx context.Context, tok, path string, q url.Values, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixBaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("helix %s failed: %s: %s", path, resp.Status, string(b))
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/users", url.Values{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// Clip is a clip as returned by Helix.
type Clip struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	EmbedURL        string    `json:"embed_url"`
	BroadcasterName string    `json:"broadcaster_name"`
	CreatorName     string    `json:"creator_name"`
	Title           string    `json:"title"`
	ViewCount       int       `json:"view_count"`
	CreatedAt       time.Time `json:"created_at"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	Duration        float64   `json:"duration"`
}

// GetClips looks up clips by id (the slug in clip URLs).
func (hc *HelixClient) GetClips(ctx context.Context, ids []string) ([]Clip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Clip
	for start := 0; start < len(ids); start += maxClipIDs {
		end := min(start+maxClipIDs, len(ids))
		var body struct {
			Data []Clip `json:"data"`
		}
		if err := hc.get(ctx, "/clips", url.Values{"id": ids[start:end]}, &body); err != nil {
			return nil, err
		}
		out = append(out, body.Data...)
	}
	return out, nil
}

// BadgeVersion is one version of a chat badge.
type BadgeVersion struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ImageURL1x string `json:"image_url_1x"`
	ImageURL2x string `json:"image_url_2x"`
	ImageURL4x string `json:"image_url_4x"`
}

// BadgeSet is a chat badge and its versions.
type BadgeSet struct {
	SetID    string         `json:"set_id"`
	Versions []BadgeVersion `json:"versions"`
}

// GetGlobalChatBadges lists the badges available in every channel.
func (hc *HelixClient) GetGlobalChatBadges(ctx context.Context) ([]BadgeSet, error) {
	var body struct {
		Data []BadgeSet `json:"data"`
	}
	if err := hc.get(ctx, "/chat/badges/global", url.Values{}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetChannelChatBadges lists the custom badges of a channel.
func (hc *HelixClient) GetChannelChatBadges(ctx context.Context, broadcasterID string) ([]BadgeSet, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	var body struct {
		Data []BadgeSet `json:"data"`
	}
	if err := hc.get(ctx, "/chat/badges", url.Values{"broadcaster_id": {broadcasterID}}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// CheermoteTier is one bits threshold of a cheermote.
type CheermoteTier struct {
	ID      string `json:"id"`
	MinBits int    `json:"min_bits"`
	Color   string `json:"color"`
}

// Cheermote is a cheer prefix and its tiers.
type Cheermote struct {
	Prefix string          `json:"prefix"`
	Type   string          `json:"type"`
	Order  int             `json:"order"`
	Tiers  []CheermoteTier `json:"tiers"`
}

// GetCheermotes lists the cheermotes usable in a channel. An empty
// broadcasterID returns the global set.
func (hc *HelixClient) GetCheermotes(ctx context.Context, broadcasterID string) ([]Cheermote, error) {
	q := url.Values{}
	if broadcasterID != "" {
		q.Set("broadcaster_id", broadcasterID)
	}
	var body struct {
		Data []Cheermote `json:"data"`
	}
	if err := hc.get(ctx, "/bits/cheermotes", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Emote is an emote belonging to an emote set.
type Emote struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmoteType  string `json:"emote_type"`
	EmoteSetID string `json:"emote_set_id"`
	OwnerID    string `json:"owner_id"`
}

// GetEmoteSets lists the emotes of the given emote sets.
func (hc *HelixClient) GetEmoteSets(ctx context.Context, setIDs []string) ([]Emote, error) {
	if len(setIDs) == 0 {
		return nil, nil
	}
	var out []Emote
	for start := 0; start < len(setIDs); start += maxEmoteSetIDs {
		end := min(start+maxEmoteSetIDs, len(setIDs))
		var body struct {
			Data []Emote `json:"data"`
		}
		if err := hc.get(ctx, "/chat/emotes/set", url.Values{"emote_set_id": setIDs[start:end]}, &body); err != nil {
			return nil, err
		}
		out = append(out, body.Data...)
	}
	return out, nil
}
