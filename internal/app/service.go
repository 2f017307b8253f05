// Package service orchestrates executions: it fans a user query out to one
// round controller per team and collects each team's final submission.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/okian/mixseek/internal/adapters/mq/queue"
	"github.com/okian/mixseek/internal/adapters/mq/worker"
	"github.com/okian/mixseek/internal/adapters/repository"
	"github.com/okian/mixseek/internal/config"
	"github.com/okian/mixseek/internal/domain/dedupe"
	"github.com/okian/mixseek/internal/domain/model"
	"github.com/okian/mixseek/internal/domain/round"
	"github.com/okian/mixseek/pkg/logger"
	"github.com/okian/mixseek/pkg/metrics"
)

// Team outcome states.
const (
	TeamQueued    = "queued"
	TeamRunning   = "running"
	TeamFinalized = "finalized"
	TeamFailed    = "failed"
)

// Collaborators are the external services every controller talks to.
type Collaborators struct {
	Runtime   round.TeamRuntime
	Evaluator round.Evaluator
	Judge     round.Judge
	Prompts   round.PromptBuilder
}

// TeamSpec names one team of a submission.
type TeamSpec struct {
	ID   string `json:"team_id"`
	Name string `json:"team_name"`
}

// SubmitRequest starts an execution.
type SubmitRequest struct {
	// RequestID makes Submit idempotent: resubmitting the same id returns
	// the execution it first created.
	RequestID string            `json:"request_id,omitempty"`
	UserQuery string            `json:"user_query"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Teams     []TeamSpec        `json:"teams"`
}

// TeamOutcome is the orchestrator's view of one team.
type TeamOutcome struct {
	TeamID   string                  `json:"team_id"`
	TeamName string                  `json:"team_name"`
	Status   string                  `json:"status"`
	Best     *model.LeaderBoardEntry `json:"best,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Kind     string                  `json:"error_kind,omitempty"`

	err error
}

// Execution is a snapshot of one submission and its teams.
type Execution struct {
	ID        string        `json:"execution_id"`
	UserQuery string        `json:"user_query"`
	CreatedAt time.Time     `json:"created_at"`
	Done      bool          `json:"done"`
	Teams     []TeamOutcome `json:"teams"`
}

type execution struct {
	id        string
	requestID string
	query     string
	createdAt time.Time

	mu      sync.Mutex
	order   []string
	teams   map[string]*TeamOutcome
	pending int
	done    chan struct{}
}

func (e *execution) snapshot() Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := Execution{ID: e.id, UserQuery: e.query, CreatedAt: e.createdAt, Done: e.pending == 0}
	for _, id := range e.order {
		out.Teams = append(out.Teams, *e.teams[id])
	}
	return out
}

// settle records a terminal outcome. It is a no-op for an already terminal team.
func (e *execution) settle(teamID string, best *model.LeaderBoardEntry, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o := e.teams[teamID]
	if o == nil || o.Status == TeamFinalized || o.Status == TeamFailed {
		return
	}
	if err != nil {
		o.Status, o.Error, o.Kind, o.err = TeamFailed, err.Error(), round.KindLabel(err), err
	} else {
		o.Status, o.Best = TeamFinalized, best
	}
	e.pending--
	if e.pending == 0 {
		close(e.done)
	}
}

func (e *execution) finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending == 0
}

func (e *execution) setStatus(teamID, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o := e.teams[teamID]; o != nil && o.Status == TeamQueued {
		o.Status = status
	}
}

// Service implements the API dependencies of the round controller system.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	store   repository.Store
	collab  Collaborators
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool

	execMu     sync.RWMutex
	executions map[string]*execution
	execOrder  []string

	newID   func() string
	now     func() time.Time
	started bool
	logger  logger.Logger
}

// New constructs a Service. cfg must already be validated.
func New(cfg *config.Config, store repository.Store, collab Collaborators, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		store:      store,
		collab:     collab,
		executions: make(map[string]*execution),
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the queue and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.collab.Runtime == nil || s.collab.Evaluator == nil || s.collab.Judge == nil || s.collab.Prompts == nil {
		return fmt.Errorf("%w: all collaborators are required", round.ErrConfiguration)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.pool = worker.NewPool(s.cfg.MaxConcurrentTeams, s.queue, worker.HandlerFunc(s.handleTeam),
		worker.WithLogger(s.logger))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "round controller service started",
		logger.Int("workers", s.cfg.MaxConcurrentTeams),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("maxRounds", s.cfg.MaxRounds),
	)
	return nil
}

// Stop stops accepting executions and waits for queued teams to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping round controller service...")
	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "round controller service stopped")
	return err
}

func (s *Service) validate(req SubmitRequest) error {
	if strings.TrimSpace(req.UserQuery) == "" {
		return fmt.Errorf("%w: user_query is required", ErrInvalidRequest)
	}
	if len(req.Teams) == 0 {
		return fmt.Errorf("%w: at least one team is required", ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(req.Teams))
	for _, t := range req.Teams {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: team_id is required", ErrInvalidRequest)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTeam, t.ID)
		}
		seen[t.ID] = struct{}{}
		if _, err := s.cfg.Resolve(t.ID); err != nil {
			return fmt.Errorf("%w: %w", round.ErrConfiguration, err)
		}
	}
	return nil
}

// Submit registers an execution and queues one job per team. It returns the
// execution id without waiting for any team.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", ErrNotStarted
	}
	if err := s.validate(req); err != nil {
		return "", err
	}

	exec := &execution{
		id:        s.newID(),
		requestID: req.RequestID,
		query:     req.UserQuery,
		createdAt: s.now(),
		teams:     make(map[string]*TeamOutcome, len(req.Teams)),
		pending:   len(req.Teams),
		done:      make(chan struct{}),
	}
	if exec.requestID != "" {
		owner, ok := s.deduper.Claim(ctx, exec.requestID, exec.id)
		if !ok {
			if _, err := s.lookup(owner); err != nil {
				return "", fmt.Errorf("%w: %s", ErrRequestInFlight, exec.requestID)
			}
			s.logger.Info(ctx, "execution replayed",
				logger.String("execution_id", owner),
				logger.String("request_id", exec.requestID))
			return owner, nil
		}
	}

	jobs := make([]queue.Job, 0, len(req.Teams))
	for _, t := range req.Teams {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		exec.order = append(exec.order, t.ID)
		exec.teams[t.ID] = &TeamOutcome{TeamID: t.ID, TeamName: name, Status: TeamQueued}
		jobs = append(jobs, queue.Job{
			Task: model.RoundTask{
				ExecutionID: exec.id,
				TeamID:      t.ID,
				TeamName:    name,
				UserQuery:   req.UserQuery,
				Metadata:    req.Metadata,
			},
			EnqueuedAt: exec.createdAt,
		})
	}

	s.registerExecution(ctx, exec)
	accepted, err := s.queue.EnqueueAll(ctx, jobs)
	if err != nil {
		for _, j := range jobs[accepted:] {
			exec.settle(j.Task.TeamID, nil, fmt.Errorf("%w: %w", ErrBackpressure, err))
		}
		if accepted == 0 {
			if exec.requestID != "" {
				s.deduper.Release(ctx, exec.requestID)
			}
			s.dropExecution(exec.id)
			return "", fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		s.logger.Warn(ctx, "execution partially queued",
			logger.String("execution_id", exec.id),
			logger.Int("accepted", accepted),
			logger.Int("teams", len(jobs)))
	}

	s.logger.Info(ctx, "execution submitted",
		logger.String("execution_id", exec.id),
		logger.Int("teams", len(jobs)))
	return exec.id, nil
}

// Run submits req and blocks until every team has finished. It returns each
// finalized team's best entry; team failures are combined into one error.
func (s *Service) Run(ctx context.Context, req SubmitRequest) (map[string]model.LeaderBoardEntry, error) {
	id, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Wait(ctx, id)
}

// Wait blocks until execution id completes or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (map[string]model.LeaderBoardEntry, error) {
	exec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-exec.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	best := make(map[string]model.LeaderBoardEntry, len(exec.teams))
	var errs error
	for _, teamID := range exec.order {
		o := exec.teams[teamID]
		if o.err != nil {
			errs = multierr.Append(errs, o.err)
			continue
		}
		best[teamID] = *o.Best
	}
	return best, errs
}

// handleTeam runs one controller. It is the worker pool's handler.
func (s *Service) handleTeam(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	exec, err := s.lookup(job.Task.ExecutionID)
	if err != nil {
		return err
	}
	exec.setStatus(job.Task.TeamID, TeamRunning)
	metrics.AddActiveTeams(1)
	defer metrics.AddActiveTeams(-1)

	best, err := s.runController(ctx, job.Task)
	if err != nil {
		exec.settle(job.Task.TeamID, nil, err)
		return err
	}
	exec.settle(job.Task.TeamID, &best, nil)
	return nil
}

func (s *Service) runController(ctx context.Context, task model.RoundTask) (model.LeaderBoardEntry, error) {
	ts, err := s.cfg.Resolve(task.TeamID)
	if err != nil {
		return model.LeaderBoardEntry{}, fmt.Errorf("%w: %w", round.ErrConfiguration, err)
	}
	c, err := round.NewController(round.Dependencies{
		Runtime:   s.collab.Runtime,
		Evaluator: s.collab.Evaluator,
		Judge:     s.collab.Judge,
		Prompts:   s.collab.Prompts,
		Store:     s.store,
	}, round.Settings{
		MaxRounds:         ts.MaxRounds,
		TimeoutPerTeam:    ts.TimeoutPerTeam,
		EvaluationTimeout: ts.EvaluationTimeout,
		JudgmentTimeout:   ts.JudgmentTimeout,
	}, round.WithLogger(s.logger.Named("round")))
	if err != nil {
		return model.LeaderBoardEntry{}, err
	}
	return c.Start(ctx, task)
}

func (s *Service) registerExecution(ctx context.Context, e *execution) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.executions[e.id] = e
	s.execOrder = append(s.execOrder, e.id)
	s.evictLocked(ctx)
}

// evictLocked forgets the oldest finished executions beyond the retention
// cap. Executions with running teams are never evicted; their rows stay in
// the store.
func (s *Service) evictLocked(ctx context.Context) {
	excess := len(s.execOrder) - s.cfg.RetainedExecutions
	if excess <= 0 {
		return
	}
	kept := s.execOrder[:0]
	for _, id := range s.execOrder {
		e := s.executions[id]
		if excess > 0 && e.finished() {
			delete(s.executions, id)
			if e.requestID != "" {
				s.deduper.Release(ctx, e.requestID)
			}
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.execOrder = kept
}

func (s *Service) dropExecution(id string) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	delete(s.executions, id)
	for i, v := range s.execOrder {
		if v == id {
			s.execOrder = append(s.execOrder[:i], s.execOrder[i+1:]...)
			break
		}
	}
}

func (s *Service) lookup(id string) (*execution, error) {
	s.execMu.RLock()
	defer s.execMu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	return e, nil
}

// Execution returns a snapshot of one execution.
func (s *Service) Execution(_ context.Context, id string) (Execution, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Execution{}, err
	}
	return e.snapshot(), nil
}

// Executions lists known executions, newest first.
func (s *Service) Executions(_ context.Context) []Execution {
	s.execMu.RLock()
	list := make([]*execution, 0, len(s.executions))
	for _, e := range s.executions {
		list = append(list, e)
	}
	s.execMu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].createdAt.After(list[j].createdAt) })
	out := make([]Execution, len(list))
	for i, e := range list {
		out[i] = e.snapshot()
	}
	return out
}

// Leaderboard ranks the final submissions of an execution.
func (s *Service) Leaderboard(ctx context.Context, id string, limit int) ([]model.LeaderBoardEntry, error) {
	if limit < 1 || limit > s.cfg.MaxLeaderboardLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidLimit, s.cfg.MaxLeaderboardLimit)
	}
	if _, err := s.lookup(id); err != nil {
		// evicted executions are still served from the store
		entries, serr := s.store.TopFinal(ctx, id, limit)
		if serr != nil || len(entries) == 0 {
			return nil, err
		}
		return entries, nil
	}
	return s.store.TopFinal(ctx, id, limit)
}

// Best returns a team's final submission; repeated calls return the same row.
func (s *Service) Best(ctx context.Context, id, teamID string) (model.LeaderBoardEntry, error) {
	return s.store.Best(ctx, id, teamID)
}

// TeamRounds is the full per-round record of one team.
type TeamRounds struct {
	Statuses []model.RoundStatusRecord `json:"statuses"`
	Entries  []model.LeaderBoardEntry  `json:"entries"`
}

// Rounds returns a team's status rows and leaderboard rows.
func (s *Service) Rounds(ctx context.Context, id, teamID string) (TeamRounds, error) {
	statuses, err := s.store.RoundStatuses(ctx, id, teamID)
	if err != nil {
		return TeamRounds{}, err
	}
	entries, err := s.store.History(ctx, id, teamID)
	if err != nil {
		return TeamRounds{}, err
	}
	if len(statuses) == 0 {
		return TeamRounds{}, fmt.Errorf("%w: team %s in execution %s", repository.ErrNotFound, teamID, id)
	}
	return TeamRounds{Statuses: statuses, Entries: entries}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":            s.started,
		"maxConcurrentTeams": s.cfg.MaxConcurrentTeams,
		"queueSize":          s.cfg.QueueSize,
	}
	s.execMu.RLock()
	stats["executions"] = len(s.executions)
	s.execMu.RUnlock()
	if s.queue != nil {
		stats["queueLength"] = s.queue.Len(context.Background())
	}
	if s.pool != nil {
		stats["workers"] = s.pool.Stats()
	}
	if s.deduper != nil {
		stats["requestIds"] = s.deduper.Size()
	}
	return stats
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrDuplicateTeam) ||
		errors.Is(err, ErrInvalidLimit) || errors.Is(err, round.ErrConfiguration)
}
