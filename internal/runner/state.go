package runner

// State is a runner lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateWarmingUp
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarmingUp:
		return "warming-up"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of the runner's counters.
type Stats struct {
	State     State
	Admitted  int64
	InFlight  int64
	Completed int64
	Failed    int64
}
