package chat

import (
	"errors"
	"fmt"
)

// FailureClass groups session failures by how the caller should react to them.
type FailureClass int

const (
	// ClassConfiguration covers missing credentials or room. Fatal.
	ClassConfiguration FailureClass = iota
	// ClassConnection covers connect or join failures. Fatal.
	ClassConnection
	// ClassTransientFetch covers clip, emote set and metadata fetches. Swallowed.
	ClassTransientFetch
	// ClassTeardown covers errors while disconnecting. Swallowed.
	ClassTeardown
)

// String returns a human-readable name for the failure class.
func (c FailureClass) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassConnection:
		return "connection"
	case ClassTransientFetch:
		return "transient_fetch"
	case ClassTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Fatal reports whether a failure of this class ends the session.
func (c FailureClass) Fatal() bool {
	return c == ClassConfiguration || c == ClassConnection
}

var (
	// ErrMissingCredentials is returned when the session has no login details.
	ErrMissingCredentials = errors.New("chat: missing login credentials")
	// ErrMissingRoom is returned when Start is called without a channel name.
	ErrMissingRoom = errors.New("chat: missing room")
	// ErrNotStarted is returned by send operations before Start succeeded.
	ErrNotStarted = errors.New("chat: session not started")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("chat: session already started")
	// ErrStopped is returned by operations on a stopped session.
	ErrStopped = errors.New("chat: session stopped")
	// ErrSessionFailed wraps operations attempted after a fatal failure.
	ErrSessionFailed = errors.New("chat: session failed")
)

// Failure is an error raised by a session operation.
type Failure struct {
	Class FailureClass
	Op    string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("chat %s (%s): %v", f.Op, f.Class, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// IsFatal reports whether err carries a Failure that ends the session.
func IsFatal(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Class.Fatal()
	}
	return false
}

// ClassOf returns the failure class of err. The second return value is false
// when err does not carry a Failure.
func ClassOf(err error) (FailureClass, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Class, true
	}
	return 0, false
}
