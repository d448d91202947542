package chat

import "sync"

// WhisperSlot holds the recipient of the last whisper sent by the local user
// until its echo is seen.
type WhisperSlot struct {
	mu        sync.Mutex
	recipient string
	pending   bool
}

// Set records recipient as the target of an outgoing whisper.
func (w *WhisperSlot) Set(recipient string) {
	w.mu.Lock()
	w.recipient, w.pending = recipient, true
	w.mu.Unlock()
}

// Take returns and clears the pending recipient.
func (w *WhisperSlot) Take() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.recipient, w.pending
	w.recipient, w.pending = "", false
	return r, ok
}
