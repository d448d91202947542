package chat

import "context"

// Sink receives the results of the pipeline. Implementations must be safe for
// concurrent use: asynchronous fetch results are delivered from other
// goroutines than the dispatch loop.
type Sink interface {
	AppendEntry(e Entry)
	PatchEntry(id string, p EntryPatch)
	RemoveEntries(ids []string)
	SetRoomConfiguration(cfg RoomConfiguration)
	SetConnectionStatus(s ConnectionStatus)
	SetModeratorStatus(mod bool)
	RecordChatterActivity(c Chatter, entryID string)
	// SetEmoteSets replaces the emote codes available from provider.
	SetEmoteSets(provider string, codes []string)
	// Reset clears everything the sink holds.
	Reset()
}

// Emote set providers passed to Sink.SetEmoteSets.
const (
	ProviderTwitch = "twitch"
	ProviderBTTV   = "bttv"
)

// ClipFetcher resolves clip slugs to clip metadata.
type ClipFetcher interface {
	FetchClips(ctx context.Context, slugs []string) (map[string]Clip, error)
}

// EmoteSetResolver resolves emote set ids to emote codes.
type EmoteSetResolver interface {
	ResolveEmoteSets(ctx context.Context, setIDs []string) ([]string, error)
}

// MetadataRefresher reloads room scoped metadata (badges, cheermotes,
// third-party emotes). It returns the third-party emote codes now available.
type MetadataRefresher interface {
	Refresh(ctx context.Context, roomID, channel string) ([]string, error)
}

// Fetchers groups the optional supplementary fetchers. Nil members disable
// the matching enrichment.
type Fetchers struct {
	Clips     ClipFetcher
	EmoteSets EmoteSetResolver
	Metadata  MetadataRefresher
}
