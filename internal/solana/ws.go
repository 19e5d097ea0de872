package solana

import "sync/atomic"

// ConnState is the streaming client's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateAuthFailed is terminal: a rejected credential is never retried.
	StateAuthFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Program identifies one tracked on-chain program.
type Program struct {
	ID    string
	Label string
}

// SubscriptionHandle tracks one log subscription. SubscriptionID is zero
// until the server acknowledges the subscribe request.
type SubscriptionHandle struct {
	Program        Program
	SubscriptionID atomic.Int64
}

// LogNotification is one logsNotification payload.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
