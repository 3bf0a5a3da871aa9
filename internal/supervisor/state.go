// Package supervisor manages the lifecycle of individual chain processes.
package supervisor

// State represents the current state of a supervised chain.
type State int

const (
	// StatePending is the initial state before the chain has started.
	StatePending State = iota

	// StateStarting indicates the chain process is being spawned.
	StateStarting

	// StateRunning indicates the chain process is actively running.
	StateRunning

	// StateSucceeded indicates the chain exited with code 0.
	StateSucceeded

	// StateFailed indicates the chain exited non-zero or was killed.
	StateFailed

	// StateCancelled indicates the chain was terminated on request
	// before completing. Distinct from StateFailed: cancelled output
	// is never parsed.
	StateCancelled
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the chain has reached a final state.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// IsActive returns true if the chain is starting or running.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning
}
