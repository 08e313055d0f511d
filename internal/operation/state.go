package operation

// State is the lifecycle position of an Operation.
type State int32

const (
	// StatePending indicates the operation was created or submitted and waits
	// for its dependencies.
	StatePending State = iota
	// StateEvaluating indicates the executor is evaluating conditions.
	StateEvaluating
	// StateReady indicates every condition is satisfied.
	StateReady
	// StateExecuting indicates the body is running.
	StateExecuting
	// StateFinishing indicates OnFinish is being delivered to observers.
	StateFinishing
	// StateFinished indicates the operation ran and finished.
	StateFinished
	// StateCancelled indicates the operation ended without finishing normally:
	// cancelled before executing, a failed condition, or a cancel while running.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEvaluating:
		return "evaluating"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateFinishing:
		return "finishing"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if this state is final.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateCancelled
}

// transitions lists the legal forward moves. Terminal states have none.
var transitions = map[State][]State{
	StatePending:    {StateEvaluating, StateFinishing},
	StateEvaluating: {StateReady, StateFinishing},
	StateReady:      {StateExecuting, StateFinishing},
	StateExecuting:  {StateFinishing},
	StateFinishing:  {StateFinished, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
