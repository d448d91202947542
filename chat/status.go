package chat

import "fmt"

// ConnectionStatus is the state of the transport connection as seen by the session.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusLogon
	StatusReconnecting
)

// String returns the lowercase name used in logs, metrics and JSON.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusLogon:
		return "logon"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConnectionStatus) UnmarshalText(b []byte) error {
	for _, st := range AllStatuses {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("chat: unknown connection status %q", b)
}

// Online reports whether the connection is usable for sending.
func (s ConnectionStatus) Online() bool {
	return s == StatusConnected || s == StatusLogon
}

// AllStatuses lists every status, in state machine order.
var AllStatuses = []ConnectionStatus{StatusDisconnected, StatusConnecting, StatusConnected, StatusLogon, StatusReconnecting}
