package round

import (
	"errors"
	"fmt"
)

// Error kinds. A *RoundError matches its kind and its cause with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTeamExecution = errors.New("team execution error")
	ErrEvaluation    = errors.New("evaluation error")
	ErrPersistence   = errors.New("persistence error")
	ErrJudgment      = errors.New("judgment service error")
	ErrCancelled     = errors.New("round loop cancelled")

	// ErrAlreadyStarted is returned when Start is called twice on one controller.
	ErrAlreadyStarted = errors.New("controller already started")
)

// RoundError describes a failure of one round of one team.
type RoundError struct {
	Kind   error
	TeamID string
	Round  int
	Err    error
}

func (e *RoundError) Error() string {
	if e.Round > 0 {
		return fmt.Sprintf("team %s round %d: %v: %v", e.TeamID, e.Round, e.Kind, e.Err)
	}
	return fmt.Sprintf("team %s: %v: %v", e.TeamID, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *RoundError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newRoundError(kind error, teamID string, round int, err error) *RoundError {
	return &RoundError{Kind: kind, TeamID: teamID, Round: round, Err: err}
}

// KindLabel returns a short metric/log label for err's kind. Cancellation
// wins over everything it caused; persistence wins when a failed round could
// not be recorded either.
func KindLabel(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrTeamExecution):
		return "team_execution"
	case errors.Is(err, ErrEvaluation):
		return "evaluation"
	case errors.Is(err, ErrJudgment):
		return "judgment"
	default:
		return "unknown"
	}
}
