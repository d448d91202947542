// Package metadata fetches the supplementary data used to decorate chat
// entries: badges, cheermotes, third-party emotes, clips and emote sets.
//
// Room scoped data is kept in an immutable Snapshot that is swapped as a whole
// on every Refresh, so readers never observe a half-updated table.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chat-tender/bttv"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/telemetry"
	"github.com/onnwee/chat-tender/twitchapi"
)

var errHelixDisabled = errors.New("metadata: helix client not configured")

// Helix is the subset of the Helix API used here.
type Helix interface {
	GetUserID(ctx context.Context, login string) (string, error)
	GetClips(ctx context.Context, ids []string) ([]twitchapi.Clip, error)
	GetGlobalChatBadges(ctx context.Context) ([]twitchapi.BadgeSet, error)
	GetChannelChatBadges(ctx context.Context, broadcasterID string) ([]twitchapi.BadgeSet, error)
	GetCheermotes(ctx context.Context, broadcasterID string) ([]twitchapi.Cheermote, error)
	GetEmoteSets(ctx context.Context, setIDs []string) ([]twitchapi.Emote, error)
}

// BTTV is the subset of the BetterTTV API used here.
type BTTV interface {
	GlobalEmotes(ctx context.Context) ([]bttv.Emote, error)
	ChannelEmotes(ctx context.Context, twitchUserID string) (*bttv.Channel, error)
}

// Snapshot is the room scoped metadata loaded by one Refresh. It must not be
// modified after it was published.
type Snapshot struct {
	RoomID      string                                       `json:"roomId"`
	Channel     string                                       `json:"channel"`
	Badges      map[string]map[string]twitchapi.BadgeVersion `json:"badges"`
	Cheermotes  []twitchapi.Cheermote                        `json:"cheermotes"`
	Emotes      map[string]bttv.Emote                        `json:"emotes"`
	Bots        []string                                     `json:"bots"`
	RefreshedAt time.Time                                    `json:"refreshedAt"`
}

// Badge looks up a badge image by set and version.
func (s *Snapshot) Badge(set, version string) (twitchapi.BadgeVersion, bool) {
	v, ok := s.Badges[set][version]
	return v, ok
}

// EmoteCodes returns the sorted third-party emote codes.
func (s *Snapshot) EmoteCodes() []string {
	codes := make([]string, 0, len(s.Emotes))
	for code := range s.Emotes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// IsBot reports whether login is a known bot of the channel.
func (s *Snapshot) IsBot(login string) bool {
	return slices.ContainsFunc(s.Bots, func(b string) bool { return strings.EqualFold(b, login) })
}

// Cache implements chat.ClipFetcher, chat.EmoteSetResolver and
// chat.MetadataRefresher. helix and bttv may each be nil.
type Cache struct {
	helix Helix
	bttv  BTTV
	snap  atomic.Pointer[Snapshot]
	now   func() time.Time
	log   *slog.Logger
}

// New returns a cache holding an empty snapshot.
func New(helix Helix, b BTTV) *Cache {
	c := &Cache{
		helix: helix,
		bttv:  b,
		now:   time.Now,
		log:   slog.Default().With(slog.String("component", "metadata")),
	}
	c.snap.Store(&Snapshot{Badges: map[string]map[string]twitchapi.BadgeVersion{}, Emotes: map[string]bttv.Emote{}})
	return c
}

// Snapshot returns the current room metadata. It is never nil.
func (c *Cache) Snapshot() *Snapshot { return c.snap.Load() }

// Refresh reloads every room scoped table concurrently and publishes a new
// snapshot. Any failure leaves the previous snapshot in place. It returns
// the third-party emote codes of the new snapshot.
func (c *Cache) Refresh(ctx context.Context, roomID, channel string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "metadata", "metadata.refresh",
		telemetry.RoomIDAttr(roomID), telemetry.ChannelAttr(channel))
	defer span.End()

	if roomID == "" && channel != "" && c.helix != nil {
		id, err := c.helix.GetUserID(ctx, channel)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("resolve room id: %w", err)
		}
		roomID = id
	}

	var (
		globalBadges, channelBadges []twitchapi.BadgeSet
		cheermotes                  []twitchapi.Cheermote
		globalEmotes                []bttv.Emote
		channelEmotes               *bttv.Channel
	)
	g, gctx := errgroup.WithContext(ctx)
	if c.helix != nil {
		g.Go(func() (err error) {
			globalBadges, err = c.helix.GetGlobalChatBadges(gctx)
			return err
		})
		if roomID != "" {
			g.Go(func() (err error) {
				channelBadges, err = c.helix.GetChannelChatBadges(gctx, roomID)
				return err
			})
		}
		g.Go(func() (err error) {
			cheermotes, err = c.helix.GetCheermotes(gctx, roomID)
			return err
		})
	}
	if c.bttv != nil {
		g.Go(func() (err error) {
			globalEmotes, err = c.bttv.GlobalEmotes(gctx)
			return err
		})
		if roomID != "" {
			g.Go(func() (err error) {
				channelEmotes, err = c.bttv.ChannelEmotes(gctx, roomID)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("refresh metadata: %w", err)
	}

	snap := &Snapshot{
		RoomID:      roomID,
		Channel:     channel,
		Badges:      make(map[string]map[string]twitchapi.BadgeVersion),
		Cheermotes:  cheermotes,
		Emotes:      make(map[string]bttv.Emote),
		RefreshedAt: c.now(),
	}
	// Channel badges override global ones with the same set id.
	for _, sets := range [][]twitchapi.BadgeSet{globalBadges, channelBadges} {
		for _, set := range sets {
			versions := snap.Badges[set.SetID]
			if versions == nil {
				versions = make(map[string]twitchapi.BadgeVersion, len(set.Versions))
				snap.Badges[set.SetID] = versions
			}
			for _, v := range set.Versions {
				versions[v.ID] = v
			}
		}
	}
	for _, e := range globalEmotes {
		snap.Emotes[e.Code] = e
	}
	if channelEmotes != nil {
		for _, e := range channelEmotes.Emotes() {
			snap.Emotes[e.Code] = e
		}
		snap.Bots = channelEmotes.Bots
	}
	c.snap.Store(snap)
	telemetry.SetSpanSuccess(span)
	c.log.Info("metadata refreshed",
		slog.String("room_id", roomID),
		slog.Int("badge_sets", len(snap.Badges)),
		slog.Int("cheermotes", len(snap.Cheermotes)),
		slog.Int("emotes", len(snap.Emotes)))
	return snap.EmoteCodes(), nil
}

// FetchClips resolves clip slugs through Helix. Unknown slugs are absent
// from the result.
func (c *Cache) FetchClips(ctx context.Context, slugs []string) (map[string]chat.Clip, error) {
	if c.helix == nil {
		return nil, errHelixDisabled
	}
	ctx, span := telemetry.StartSpan(ctx, "metadata", "metadata.clips", attribute.Int("slugs", len(slugs)))
	defer span.End()

	clips, err := c.helix.GetClips(ctx, slugs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	out := make(map[string]chat.Clip, len(clips))
	for _, cl := range clips {
		out[cl.ID] = chat.Clip{
			Slug:            cl.ID,
			Title:           cl.Title,
			URL:             cl.URL,
			EmbedURL:        cl.EmbedURL,
			BroadcasterName: cl.BroadcasterName,
			CreatorName:     cl.CreatorName,
			ThumbnailURL:    cl.ThumbnailURL,
			ViewCount:       cl.ViewCount,
			Duration:        cl.Duration,
			CreatedAt:       cl.CreatedAt,
		}
	}
	return out, nil
}

// ResolveEmoteSets returns the sorted, distinct emote codes of the sets.
func (c *Cache) ResolveEmoteSets(ctx context.Context, setIDs []string) ([]string, error) {
	if c.helix == nil {
		return nil, errHelixDisabled
	}
	ctx, span := telemetry.StartSpan(ctx, "metadata", "metadata.emote_sets", attribute.Int("sets", len(setIDs)))
	defer span.End()

	emotes, err := c.helix.GetEmoteSets(ctx, setIDs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	codes := make([]string, 0, len(emotes))
	for _, e := range emotes {
		codes = append(codes, e.Name)
	}
	slices.Sort(codes)
	return slices.Compact(codes), nil
}
