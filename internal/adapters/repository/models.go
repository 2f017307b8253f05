package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/mixseek/internal/domain/model"
	"github.com/uptrace/bun"
)

// roundStatusRow maps round_status. JSON columns are kept as text so the
// schema stays readable from any sqlite client.
type roundStatusRow struct {
	bun.BaseModel `bun:"table:round_status,alias:rs"`

	ID             int64     `bun:"id,pk,autoincrement"`
	ExecutionID    string    `bun:"execution_id,notnull"`
	TeamID         string    `bun:"team_id,notnull"`
	TeamName       string    `bun:"team_name,notnull"`
	RoundNumber    int       `bun:"round_number,notnull"`
	Status         string    `bun:"status,notnull"`
	MessageHistory string    `bun:"message_history,notnull"`
	Error          string    `bun:"error,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

// leaderBoardRow maps leader_board.
type leaderBoardRow struct {
	bun.BaseModel `bun:"table:leader_board,alias:lb"`

	ID                int64     `bun:"id,pk,autoincrement"`
	ExecutionID       string    `bun:"execution_id,notnull"`
	TeamID            string    `bun:"team_id,notnull"`
	TeamName          string    `bun:"team_name,notnull"`
	RoundNumber       int       `bun:"round_number,notnull"`
	SubmissionContent string    `bun:"submission_content,notnull"`
	SubmissionFormat  string    `bun:"submission_format,notnull"`
	Score             float64   `bun:"score,notnull"`
	ScoreDetails      string    `bun:"score_details,notnull"`
	FinalSubmission   bool      `bun:"final_submission,notnull"`
	ExitReason        *string   `bun:"exit_reason"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
	UpdatedAt         time.Time `bun:"updated_at,notnull"`
}

func newRoundStatusRow(rec *model.RoundStatusRecord) (*roundStatusRow, error) {
	history := rec.MessageHistory
	if history == nil {
		history = []model.Message{}
	}
	blob, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode message_history: %w", err)
	}
	return &roundStatusRow{
		ID:             rec.ID,
		ExecutionID:    rec.ExecutionID,
		TeamID:         rec.TeamID,
		TeamName:       rec.TeamName,
		RoundNumber:    rec.RoundNumber,
		Status:         string(rec.Status),
		MessageHistory: string(blob),
		Error:          rec.Error,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

func (r *roundStatusRow) toModel() (model.RoundStatusRecord, error) {
	var history []model.Message
	if err := json.Unmarshal([]byte(r.MessageHistory), &history); err != nil {
		return model.RoundStatusRecord{}, fmt.Errorf("decode message_history of round %d: %w", r.RoundNumber, err)
	}
	return model.RoundStatusRecord{
		ID:             r.ID,
		ExecutionID:    r.ExecutionID,
		TeamID:         r.TeamID,
		TeamName:       r.TeamName,
		RoundNumber:    r.RoundNumber,
		Status:         model.RoundStatus(r.Status),
		MessageHistory: history,
		Error:          r.Error,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func newLeaderBoardRow(e *model.LeaderBoardEntry) (*leaderBoardRow, error) {
	details := e.ScoreDetails
	if details == nil {
		details = map[string]any{}
	}
	blob, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode score_details: %w", err)
	}
	format := e.SubmissionFormat
	if format == "" {
		format = model.DefaultSubmissionFormat
	}
	return &leaderBoardRow{
		ID:                e.ID,
		ExecutionID:       e.ExecutionID,
		TeamID:            e.TeamID,
		TeamName:          e.TeamName,
		RoundNumber:       e.RoundNumber,
		SubmissionContent: e.SubmissionContent,
		SubmissionFormat:  format,
		Score:             e.Score,
		ScoreDetails:      string(blob),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}, nil
}

func (r *leaderBoardRow) toModel() (model.LeaderBoardEntry, error) {
	var details map[string]any
	if err := json.Unmarshal([]byte(r.ScoreDetails), &details); err != nil {
		return model.LeaderBoardEntry{}, fmt.Errorf("decode score_details of round %d: %w", r.RoundNumber, err)
	}
	e := model.LeaderBoardEntry{
		ID:                r.ID,
		ExecutionID:       r.ExecutionID,
		TeamID:            r.TeamID,
		TeamName:          r.TeamName,
		RoundNumber:       r.RoundNumber,
		SubmissionContent: r.SubmissionContent,
		SubmissionFormat:  r.SubmissionFormat,
		Score:             r.Score,
		ScoreDetails:      details,
		FinalSubmission:   r.FinalSubmission,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ExitReason != nil {
		reason := model.ExitReason(*r.ExitReason)
		e.ExitReason = &reason
	}
	return e, nil
}
