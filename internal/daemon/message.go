package daemon

// Message is a control request consumed by the controller loop.
type Message int

const (
	// Shutdown cancels and joins every worker, then exits.
	Shutdown Message = iota + 1
	// Reload cancels and joins every worker, rereads the events file and
	// respawns.
	Reload
	// Reap joins workers that finished on their own.
	Reap
)

func (m Message) String() string {
	switch m {
	case Shutdown:
		return "shutdown"
	case Reload:
		return "reload"
	case Reap:
		return "reap"
	default:
		return "unknown"
	}
}

// State is the controller's position in its loop.
type State int

const (
	StateRebuild State = iota
	StateRunning
	StateExit
)

func (s State) String() string {
	switch s {
	case StateRebuild:
		return "rebuild"
	case StateRunning:
		return "running"
	case StateExit:
		return "exit"
	default:
		return "unknown"
	}
}
