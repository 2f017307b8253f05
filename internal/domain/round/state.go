package round

// State is the controller's position in the round loop.
type State int32

// Controller states.
const (
	StateAwaitingTask State = iota
	StateRunningRound
	StateEvaluating
	StateDecidingContinuation
	StateFinalizing
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateAwaitingTask:         "awaiting_task",
	StateRunningRound:         "running_round",
	StateEvaluating:           "evaluating",
	StateDecidingContinuation: "deciding_continuation",
	StateFinalizing:           "finalizing",
	StateDone:                 "done",
	StateFailed:               "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
