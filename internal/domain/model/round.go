// Package model contains domain models passed between layers.
package model

import "time"

// DefaultSubmissionFormat is used when a runtime leaves Format empty.
const DefaultSubmissionFormat = "md"

// ExitReason explains why a team's round loop stopped.
type ExitReason string

// Exit reasons recorded on a team's terminal leaderboard row.
const (
	ExitMaxRounds     ExitReason = "max rounds reached"
	ExitNoImprovement ExitReason = "no improvement expected"
	ExitRoundFailure  ExitReason = "round failure"
)

// RoundStatus is the lifecycle state of a round_status row.
type RoundStatus string

// Round status values.
const (
	RoundRunning   RoundStatus = "running"
	RoundCompleted RoundStatus = "completed"
	RoundFailed    RoundStatus = "failed"
)

// RoundTask is the orchestrator's input to a round controller.
type RoundTask struct {
	ExecutionID string
	TeamID      string
	TeamName    string
	UserQuery   string
	Metadata    map[string]string
}

// Message is one intra-team exchange captured by the runtime.
type Message struct {
	Role    string    `json:"role"`
	Agent   string    `json:"agent,omitempty"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Submission is a team's output for one round.
type Submission struct {
	Content  string
	Format   string
	Messages []Message
}

// EvaluationResult is the evaluator's verdict on a submission.
// Score is on the evaluator's fixed 0-100 scale.
type EvaluationResult struct {
	Score   float64
	Details map[string]any
}

// RoundStatusRecord is one row of round_status.
type RoundStatusRecord struct {
	ID             int64       `json:"id"`
	ExecutionID    string      `json:"execution_id"`
	TeamID         string      `json:"team_id"`
	TeamName       string      `json:"team_name"`
	RoundNumber    int         `json:"round_number"`
	Status         RoundStatus `json:"status"`
	MessageHistory []Message   `json:"message_history"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// LeaderBoardEntry is one row of leader_board.
type LeaderBoardEntry struct {
	ID                int64          `json:"id"`
	ExecutionID       string         `json:"execution_id"`
	TeamID            string         `json:"team_id"`
	TeamName          string         `json:"team_name"`
	RoundNumber       int            `json:"round_number"`
	SubmissionContent string         `json:"submission_content"`
	SubmissionFormat  string         `json:"submission_format"`
	Score             float64        `json:"score"`
	ScoreDetails      map[string]any `json:"score_details"`
	FinalSubmission   bool           `json:"final_submission"`
	ExitReason        *ExitReason    `json:"exit_reason"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// SelectBest returns the index of the highest scoring entry, breaking ties by
// the earliest round. It returns -1 for an empty slice.
func SelectBest(entries []LeaderBoardEntry) int {
	best := -1
	for i := range entries {
		if best < 0 {
			best = i
			continue
		}
		e, b := entries[i], entries[best]
		if e.Score > b.Score || (e.Score == b.Score && e.RoundNumber < b.RoundNumber) {
			best = i
		}
	}
	return best
}

// Scores extracts the score trajectory in slice order.
func Scores(entries []LeaderBoardEntry) []float64 {
	out := make([]float64, len(entries))
	for i := range entries {
		out[i] = entries[i].Score
	}
	return out
}

// TeamJob is one unit of work on the team queue: run a controller for Task.
type TeamJob struct {
	Task       RoundTask
	EnqueuedAt time.Time
}
