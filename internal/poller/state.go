package poller

// State is the lifecycle state of a [Controller].
type State int

const (
	// StateIdle means the controller has never been started.
	StateIdle State = iota

	// StateWaiting means polling is active and the next cycle is armed.
	StateWaiting

	// StateFetching means polling is active and a scheduled fetch is in flight.
	StateFetching

	// StateStopped means polling was stopped. The controller can be restarted.
	StateStopped
)

// Active reports whether the state belongs to a running polling session.
func (s State) Active() bool {
	return s == StateWaiting || s == StateFetching
}

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateFetching:
		return "fetching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
