package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/mixseek/internal/domain/model"
)

// partition holds one team's rows within one execution.
type partition struct {
	mu       sync.Mutex
	statuses []model.RoundStatusRecord
	entries  []model.LeaderBoardEntry
}

// MemoryStore is an in-process Store. Each (execution, team) partition has
// its own lock so concurrent teams never contend on writes.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	nextID     atomic.Int64
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	return &MemoryStore{
		partitions: make(map[string]*partition),
		now:        o.now,
	}
}

func partitionKey(executionID, teamID string) string {
	return executionID + "\x00" + teamID
}

func (s *MemoryStore) partition(executionID, teamID string, create bool) *partition {
	key := partitionKey(executionID, teamID)
	s.mu.RLock()
	p, ok := s.partitions[key]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.partitions[key]; !ok {
		p = &partition{}
		s.partitions[key] = p
	}
	return p
}

// CreateRoundStatus implements Store.
func (s *MemoryStore) CreateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.partition(rec.ExecutionID, rec.TeamID, true)
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.statuses {
		if p.statuses[i].RoundNumber == rec.RoundNumber {
			return fmt.Errorf("%w: team %s round %d", ErrDuplicateRound, rec.TeamID, rec.RoundNumber)
		}
	}
	now := s.now()
	rec.ID = s.nextID.Add(1)
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	cp.MessageHistory = append([]model.Message(nil), rec.MessageHistory...)
	p.statuses = append(p.statuses, cp)
	return nil
}

// UpdateRoundStatus implements Store.
func (s *MemoryStore) UpdateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.partition(rec.ExecutionID, rec.TeamID, false)
	if p == nil {
		return fmt.Errorf("%w: round_status team %s round %d", ErrNotFound, rec.TeamID, rec.RoundNumber)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.statuses {
		row := &p.statuses[i]
		if row.RoundNumber != rec.RoundNumber {
			continue
		}
		row.Status = rec.Status
		row.MessageHistory = append([]model.Message(nil), rec.MessageHistory...)
		row.Error = rec.Error
		row.UpdatedAt = s.now()
		rec.ID, rec.CreatedAt, rec.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
		return nil
	}
	return fmt.Errorf("%w: round_status team %s round %d", ErrNotFound, rec.TeamID, rec.RoundNumber)
}

// RoundStatuses implements Store.
func (s *MemoryStore) RoundStatuses(ctx context.Context, executionID, teamID string) ([]model.RoundStatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.partition(executionID, teamID, false)
	if p == nil {
		return []model.RoundStatusRecord{}, nil
	}
	p.mu.Lock()
	out := append([]model.RoundStatusRecord(nil), p.statuses...)
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

// InsertLeaderBoardEntry implements Store.
func (s *MemoryStore) InsertLeaderBoardEntry(ctx context.Context, e *model.LeaderBoardEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.partition(e.ExecutionID, e.TeamID, true)
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		if p.entries[i].RoundNumber == e.RoundNumber {
			return fmt.Errorf("%w: team %s round %d", ErrDuplicateRound, e.TeamID, e.RoundNumber)
		}
	}
	now := s.now()
	e.ID = s.nextID.Add(1)
	e.CreatedAt, e.UpdatedAt = now, now
	e.FinalSubmission = false
	e.ExitReason = nil
	p.entries = append(p.entries, *e)
	return nil
}

// History implements Store.
func (s *MemoryStore) History(ctx context.Context, executionID, teamID string) ([]model.LeaderBoardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.partition(executionID, teamID, false)
	if p == nil {
		return []model.LeaderBoardEntry{}, nil
	}
	p.mu.Lock()
	out := append([]model.LeaderBoardEntry(nil), p.entries...)
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

// Finalize implements Store.
func (s *MemoryStore) Finalize(ctx context.Context, executionID, teamID string, bestRound, terminalRound int, reason model.ExitReason) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.partition(executionID, teamID, false)
	if p == nil {
		return fmt.Errorf("%w: team %s has no leaderboard rows", ErrNotFound, teamID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	best, terminal := -1, -1
	for i := range p.entries {
		if p.entries[i].FinalSubmission || p.entries[i].ExitReason != nil {
			return fmt.Errorf("%w: team %s", ErrAlreadyFinalized, teamID)
		}
		if p.entries[i].RoundNumber == bestRound {
			best = i
		}
		if p.entries[i].RoundNumber == terminalRound {
			terminal = i
		}
	}
	if best < 0 || terminal < 0 {
		return fmt.Errorf("%w: team %s rounds %d/%d", ErrNotFound, teamID, bestRound, terminalRound)
	}

	now := s.now()
	r := reason
	p.entries[best].FinalSubmission = true
	p.entries[best].UpdatedAt = now
	p.entries[terminal].ExitReason = &r
	p.entries[terminal].UpdatedAt = now
	return nil
}

// Best implements Store.
func (s *MemoryStore) Best(ctx context.Context, executionID, teamID string) (model.LeaderBoardEntry, error) {
	entries, err := s.History(ctx, executionID, teamID)
	if err != nil {
		return model.LeaderBoardEntry{}, err
	}
	for _, e := range entries {
		if e.FinalSubmission {
			return e, nil
		}
	}
	return model.LeaderBoardEntry{}, fmt.Errorf("%w: final submission for team %s", ErrNotFound, teamID)
}

// TopFinal implements Store.
func (s *MemoryStore) TopFinal(ctx context.Context, executionID string, n int) ([]model.LeaderBoardEntry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	parts := make([]*partition, 0, len(s.partitions))
	prefix := executionID + "\x00"
	for key, p := range s.partitions {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			parts = append(parts, p)
		}
	}
	s.mu.RUnlock()

	var out []model.LeaderBoardEntry
	for _, p := range parts {
		p.mu.Lock()
		for _, e := range p.entries {
			if e.FinalSubmission {
				out = append(out, e)
			}
		}
		p.mu.Unlock()
	}
	sortFinal(out)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// sortFinal orders by score desc, then round asc, then team id for a stable ranking.
func sortFinal(entries []model.LeaderBoardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RoundNumber != b.RoundNumber {
			return a.RoundNumber < b.RoundNumber
		}
		return a.TeamID < b.TeamID
	})
}
