package worker

// State is the lifecycle state of the Worker.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateTerminating
	StateStopped
	// StateFailed is reached from Starting or Running on a spawn error or an
	// exit which was not requested by Terminate or Kill.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive returns true if a child process may exist, so a new Start must be refused.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateTerminating
}

// StateFunc observes state transitions. It is called with the Worker lock
// held, so it must not call back into the Worker.
type StateFunc func(from, to State)
