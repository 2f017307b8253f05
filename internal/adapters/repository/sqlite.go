package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/okian/mixseek/internal/domain/model"
	"github.com/okian/mixseek/pkg/metrics"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	// registers the pure-Go "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryDSN = ":memory:"

// SQLStore implements Store on an embedded sqlite database through bun.
type SQLStore struct {
	db  *bun.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the sqlite database at dsn and
// applies pending migrations.
func OpenSQLite(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	o := newOptions(opts)

	sqldb, err := sql.Open("sqlite", sqliteDSN(dsn, o.busyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if dsn == memoryDSN {
		// every pooled connection would otherwise see its own empty database
		sqldb.SetMaxOpenConns(1)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", dsn, err)
	}
	if err := migrateUp(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	return &SQLStore{
		db:  bun.NewDB(sqldb, sqlitedialect.New()),
		now: o.now,
	}, nil
}

func sqliteDSN(dsn string, busyTimeoutMS int) string {
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMS),
		"_txlock=immediate",
	}
	if dsn != memoryDSN {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	// m.Close would close db as well; only the source is released here.
	defer func() { _ = src.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// observe records latency and failure metrics for one store operation.
func observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(op)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateRoundStatus implements Store.
func (s *SQLStore) CreateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) (err error) {
	defer func(start time.Time) { observe("create_round_status", start, err) }(time.Now())

	now := s.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	row, err := newRoundStatusRow(rec)
	if err != nil {
		return err
	}
	if _, err = s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: team %s round %d", ErrDuplicateRound, rec.TeamID, rec.RoundNumber)
		}
		return fmt.Errorf("insert round_status: %w", err)
	}
	rec.ID = row.ID
	return nil
}

// UpdateRoundStatus implements Store.
func (s *SQLStore) UpdateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) (err error) {
	defer func(start time.Time) { observe("update_round_status", start, err) }(time.Now())

	row, err := newRoundStatusRow(rec)
	if err != nil {
		return err
	}
	now := s.now()
	res, err := s.db.NewUpdate().
		Model((*roundStatusRow)(nil)).
		Set("status = ?", row.Status).
		Set("message_history = ?", row.MessageHistory).
		Set("error = ?", row.Error).
		Set("updated_at = ?", now).
		Where("execution_id = ?", rec.ExecutionID).
		Where("team_id = ?", rec.TeamID).
		Where("round_number = ?", rec.RoundNumber).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update round_status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: round_status team %s round %d", ErrNotFound, rec.TeamID, rec.RoundNumber)
	}
	rec.UpdatedAt = now
	return nil
}

// RoundStatuses implements Store.
func (s *SQLStore) RoundStatuses(ctx context.Context, executionID, teamID string) (_ []model.RoundStatusRecord, err error) {
	defer func(start time.Time) { observe("round_statuses", start, err) }(time.Now())

	var rows []roundStatusRow
	err = s.db.NewSelect().
		Model(&rows).
		Where("execution_id = ?", executionID).
		Where("team_id = ?", teamID).
		Order("round_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select round_status: %w", err)
	}
	out := make([]model.RoundStatusRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// InsertLeaderBoardEntry implements Store.
func (s *SQLStore) InsertLeaderBoardEntry(ctx context.Context, e *model.LeaderBoardEntry) (err error) {
	defer func(start time.Time) { observe("insert_leader_board", start, err) }(time.Now())

	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	e.FinalSubmission, e.ExitReason = false, nil
	row, err := newLeaderBoardRow(e)
	if err != nil {
		return err
	}
	if _, err = s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: team %s round %d", ErrDuplicateRound, e.TeamID, e.RoundNumber)
		}
		return fmt.Errorf("insert leader_board: %w", err)
	}
	e.ID = row.ID
	e.SubmissionFormat = row.SubmissionFormat
	return nil
}

func (s *SQLStore) selectEntries(ctx context.Context, q *bun.SelectQuery) ([]model.LeaderBoardEntry, error) {
	var rows []leaderBoardRow
	if err := q.Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select leader_board: %w", err)
	}
	out := make([]model.LeaderBoardEntry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// History implements Store.
func (s *SQLStore) History(ctx context.Context, executionID, teamID string) (_ []model.LeaderBoardEntry, err error) {
	defer func(start time.Time) { observe("history", start, err) }(time.Now())

	return s.selectEntries(ctx, s.db.NewSelect().
		Where("execution_id = ?", executionID).
		Where("team_id = ?", teamID).
		Order("round_number ASC"))
}

// Finalize implements Store.
func (s *SQLStore) Finalize(ctx context.Context, executionID, teamID string, bestRound, terminalRound int, reason model.ExitReason) (err error) {
	defer func(start time.Time) { observe("finalize", start, err) }(time.Now())

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		done, err := tx.NewSelect().
			Model((*leaderBoardRow)(nil)).
			Where("execution_id = ?", executionID).
			Where("team_id = ?", teamID).
			Where("(final_submission = ? OR exit_reason IS NOT NULL)", true).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check finalized: %w", err)
		}
		if done {
			return fmt.Errorf("%w: team %s", ErrAlreadyFinalized, teamID)
		}

		now := s.now()
		mark := func(round int, column string, value any) error {
			res, err := tx.NewUpdate().
				Model((*leaderBoardRow)(nil)).
				Set(column+" = ?", value).
				Set("updated_at = ?", now).
				Where("execution_id = ?", executionID).
				Where("team_id = ?", teamID).
				Where("round_number = ?", round).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("set %s: %w", column, err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("%w: team %s round %d", ErrNotFound, teamID, round)
			}
			return nil
		}
		if err := mark(bestRound, "final_submission", true); err != nil {
			return err
		}
		return mark(terminalRound, "exit_reason", string(reason))
	})
}

// Best implements Store.
func (s *SQLStore) Best(ctx context.Context, executionID, teamID string) (_ model.LeaderBoardEntry, err error) {
	defer func(start time.Time) { observe("best", start, err) }(time.Now())

	entries, err := s.selectEntries(ctx, s.db.NewSelect().
		Where("execution_id = ?", executionID).
		Where("team_id = ?", teamID).
		Where("final_submission = ?", true).
		Limit(1))
	if err != nil {
		return model.LeaderBoardEntry{}, err
	}
	if len(entries) == 0 {
		return model.LeaderBoardEntry{}, fmt.Errorf("%w: final submission for team %s", ErrNotFound, teamID)
	}
	return entries[0], nil
}

// TopFinal implements Store.
func (s *SQLStore) TopFinal(ctx context.Context, executionID string, n int) (_ []model.LeaderBoardEntry, err error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	defer func(start time.Time) { observe("top_final", start, err) }(time.Now())

	return s.selectEntries(ctx, s.db.NewSelect().
		Where("execution_id = ?", executionID).
		Where("final_submission = ?", true).
		OrderExpr("score DESC, round_number ASC, team_id ASC").
		Limit(n))
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
