package entities

import "time"

// Phase is the named state of a streaming socket
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseHandshaking  Phase = "handshaking"
	PhaseReady        Phase = "ready"
	PhaseClosing      Phase = "closing"
	PhaseReconnecting Phase = "reconnecting"
)

// ConnectionState is the externally visible snapshot of a socket.
// IsConnected and IsConnecting are never both true.
type ConnectionState struct {
	IsConnected        bool       `json:"is_connected"`
	IsConnecting       bool       `json:"is_connecting"`
	LastConnected      *time.Time `json:"last_connected,omitempty"`
	ConnectionAttempts int        `json:"connection_attempts"`
	Phase              Phase      `json:"phase"`
	LastError          string     `json:"last_error,omitempty"`
}

// NewConnectionState derives the boolean flags from phase.
func NewConnectionState(phase Phase, attempts int, lastConnected *time.Time, lastErr string) ConnectionState {
	state := ConnectionState{
		Phase:              phase,
		ConnectionAttempts: attempts,
		LastError:          lastErr,
	}
	if lastConnected != nil {
		t := *lastConnected
		state.LastConnected = &t
	}

	switch phase {
	case PhaseReady:
		state.IsConnected = true
	case PhaseConnecting, PhaseHandshaking, PhaseReconnecting:
		state.IsConnecting = true
	}
	return state
}
