// Package repository persists round_status and leader_board rows.
package repository

import (
	"context"

	"github.com/okian/mixseek/internal/domain/model"
)

// Store provides read/write access to the round controller tables. All
// writes are scoped to one (execution, team) partition; no operation spans
// teams except the read-only TopFinal.
type Store interface {
	// CreateRoundStatus inserts a round_status row and sets rec.ID.
	// Returns ErrDuplicateRound if the round already exists.
	CreateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) error
	// UpdateRoundStatus rewrites status, message history and error of an
	// existing row and touches updated_at.
	UpdateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) error
	// RoundStatuses returns a team's status rows ordered by round.
	RoundStatuses(ctx context.Context, executionID, teamID string) ([]model.RoundStatusRecord, error)

	// InsertLeaderBoardEntry appends a leader_board row and sets e.ID.
	InsertLeaderBoardEntry(ctx context.Context, e *model.LeaderBoardEntry) error
	// History returns a team's leader_board rows ordered by round.
	History(ctx context.Context, executionID, teamID string) ([]model.LeaderBoardEntry, error)

	// Finalize back-fills final_submission on bestRound and exit_reason on
	// terminalRound atomically. Returns ErrAlreadyFinalized on a second call.
	Finalize(ctx context.Context, executionID, teamID string, bestRound, terminalRound int, reason model.ExitReason) error
	// Best returns the row marked final_submission for a team.
	// Returns ErrNotFound if the team has not been finalized.
	Best(ctx context.Context, executionID, teamID string) (model.LeaderBoardEntry, error)
	// TopFinal ranks the final submissions of an execution by score desc.
	TopFinal(ctx context.Context, executionID string, n int) ([]model.LeaderBoardEntry, error)

	Close() error
}
