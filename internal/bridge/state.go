package bridge

import (
	"fmt"
	"strconv"
)

// ConnectionState is the value published on <root>/connected.
type ConnectionState int

// Connection states. StateDisconnected is also the retained last will.
const (
	StateDisconnected ConnectionState = 0
	StateConnecting   ConnectionState = 1
	StateReady        ConnectionState = 2
)

// Validate returns ErrConnectionStateOutOfBounds for values other than 0, 1 and 2.
func (s ConnectionState) Validate() error {
	if s < StateDisconnected || s > StateReady {
		return fmt.Errorf("%w: %d", ErrConnectionStateOutOfBounds, int(s))
	}
	return nil
}

// Payload returns the wire form of the state.
func (s ConnectionState) Payload() []byte {
	return []byte(strconv.Itoa(int(s)))
}

// Phase is the controller's position in the session lifecycle.
//
//	Disconnected -> Connecting -> Syncing -> Ready
//	any          -> Disconnected (transport lost)
type Phase int

// Session phases.
const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseSyncing
	PhaseReady
)

// String returns a lower-case phase name for logs and the health endpoint.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseSyncing:
		return "syncing"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}
