package wsresource

import "sync/atomic"

// Lifecycle phase of a websocket resource.
//
// Closed is terminal and is used both when the connection could not be established and when
// an established connection has been closed. Use the error callback to tell them apart.
type ReadyState int32

const (
	// Initial state. A connection has not been established yet.
	Connecting ReadyState = iota
	// The connection is established and messages can be exchanged.
	Open
	// Close has been accepted and the connection is being closed.
	Closing
	// The connection is closed or could not be established.
	Closed
)

// Return the state name.
func (state ReadyState) String() string {
	switch state {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Allowed transitions. Any other transition, including every transition out of Closed, is
// refused.
var allowedTransitions = map[ReadyState][]ReadyState{
	Connecting: {Open, Closing, Closed},
	Open:       {Closing, Closed},
	Closing:    {Closed},
}

// Ready state holder. Reads never block; writes are compare-and-swap so a transition only
// happens from the state the writing driver expects.
type readyStateMachine struct {
	state atomic.Int32
}

// Return the current state.
func (machine *readyStateMachine) Load() ReadyState {
	return ReadyState(machine.state.Load())
}

// Move from one state to another. Return false if the current state is not from or if the
// transition is not allowed.
func (machine *readyStateMachine) Transition(from ReadyState, to ReadyState) bool {
	if !isAllowedTransition(from, to) {
		return false
	}
	return machine.state.CompareAndSwap(int32(from), int32(to))
}

// Move to the provided state from any of the provided origins. Return the origin the
// transition was performed from and true, or the current state and false.
func (machine *readyStateMachine) TransitionFromAny(to ReadyState, from ...ReadyState) (ReadyState, bool) {
	for {
		current := machine.Load()
		accepted := false
		for _, origin := range from {
			if origin == current {
				accepted = true
				break
			}
		}
		if !accepted || !isAllowedTransition(current, to) {
			return current, false
		}
		if machine.state.CompareAndSwap(int32(current), int32(to)) {
			return current, true
		}
	}
}

func isAllowedTransition(from ReadyState, to ReadyState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
