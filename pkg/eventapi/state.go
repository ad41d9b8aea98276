package eventapi

import (
	"fmt"

	"github.com/chatpaint/paints/pkg/constants"
)

type State int

const (
	// StatePending is the state of a Client that has never connected.
	StatePending State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TransitionTo validates a state change. Disconnecting only leads to
// Disconnected, so a client being closed can never reconnect.
func (s State) TransitionTo(newState State) (State, error) {
	switch s {
	case StatePending:
		if newState == StateConnecting {
			return newState, nil
		}
	case StateConnecting:
		switch newState {
		case StateConnected, StateDisconnecting, StateDisconnected:
			return newState, nil
		}
	case StateConnected:
		switch newState {
		case StateDisconnecting, StateDisconnected:
			return newState, nil
		}
	case StateDisconnecting:
		if newState == StateDisconnected {
			return newState, nil
		}
	case StateDisconnected:
		switch newState {
		case StateConnecting, StateDisconnecting:
			return newState, nil
		}
	}

	return s, fmt.Errorf("%w: from %v to %v", constants.ErrInvalidStateChange, s, newState)
}
