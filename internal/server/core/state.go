// FILE: shogi/internal/server/core/state.go
package core

// ProcessState is the lifecycle of one engine subprocess
type ProcessState int32

const (
	StateNotStarted ProcessState = iota
	StateStarting                // Spawned, handshake in progress
	StateReady                   // Idle, accepts a search
	StateBusy                    // A go command is outstanding
	StateStopped
	StateCrashed
)

func (s ProcessState) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its name in JSON payloads
func (s ProcessState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
