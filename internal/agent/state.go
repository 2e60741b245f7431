package agent

// State is the orchestrator's position in the reasoning loop.
type State int

const (
	// StateThink asks the model for either an answer or tool calls.
	StateThink State = iota
	// StateAct executes the tool calls requested by the last model message.
	StateAct
	// StateDone is terminal; the last textual message is the answer.
	StateDone
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateThink:
		return "THINK"
	case StateAct:
		return "ACT"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Transition returns the successor state. It is a pure function: THINK moves
// to ACT when the model requested tool calls and to DONE otherwise, ACT
// always returns to THINK, and DONE is absorbing.
func Transition(s State, hasToolCalls bool) State {
	switch s {
	case StateThink:
		if hasToolCalls {
			return StateAct
		}
		return StateDone
	case StateAct:
		return StateThink
	default:
		return StateDone
	}
}
