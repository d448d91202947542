// Package chat contains the live chat ingestion pipeline.
//
// A Session owns the transport connection for a single room. Every upstream
// occurrence arrives as an Event on one channel and is handled, one at a time,
// by a single dispatch goroutine:
//   - lifecycle events (Connecting, Connected, Authenticated, Reconnecting,
//     Disconnected) update the ConnectionStatus;
//   - everything else goes through the Classifier, which turns the event into
//     at most one Entry (a chat message, a Notice or a Notification) and any
//     derived state changes (RoomConfiguration, moderator status, purges).
//
// The Roster (chatters and their message history), the RoomTracker and the
// pending whisper recipient are owned by the Session and only written from the
// dispatch goroutine. Results are pushed to a Sink, which is the boundary to
// whatever renders the log.
//
// Supplementary metadata (clips, emote sets, badges, cheermotes, third-party
// emotes) is fetched asynchronously. Fetch failures are swallowed; results that
// arrive after Stop are discarded through a session generation counter.
package chat
