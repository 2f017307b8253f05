// Package round drives one team through repeated
// prompt → submission → evaluation cycles until the round budget is spent,
// the judgment service predicts no further improvement, or a round fails.
package round

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/okian/mixseek/internal/domain/model"
	"github.com/okian/mixseek/pkg/logger"
	"github.com/okian/mixseek/pkg/metrics"
)

const (
	minScore = 0
	maxScore = 100
)

// TeamRuntime executes a team of agents for one prompt.
type TeamRuntime interface {
	Run(ctx context.Context, prompt string, metadata map[string]string) (model.Submission, error)
}

// Evaluator scores a submission on the fixed 0-100 scale.
type Evaluator interface {
	Evaluate(ctx context.Context, task model.RoundTask, sub model.Submission) (model.EvaluationResult, error)
}

// Judge predicts whether another round is likely to improve the score.
// scores holds every recorded score of the team in round order.
type Judge interface {
	PredictContinuation(ctx context.Context, scores []float64, remaining int) (bool, error)
}

// PromptBuilder renders the prompt of the next round from the team's own
// history.
type PromptBuilder interface {
	Build(query string, metadata map[string]string, history []model.LeaderBoardEntry) (string, error)
}

// Store is the slice of the persistence layer a controller writes to.
type Store interface {
	CreateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) error
	UpdateRoundStatus(ctx context.Context, rec *model.RoundStatusRecord) error
	InsertLeaderBoardEntry(ctx context.Context, e *model.LeaderBoardEntry) error
	History(ctx context.Context, executionID, teamID string) ([]model.LeaderBoardEntry, error)
	Finalize(ctx context.Context, executionID, teamID string, bestRound, terminalRound int, reason model.ExitReason) error
	Best(ctx context.Context, executionID, teamID string) (model.LeaderBoardEntry, error)
}

// Dependencies groups the collaborators of a Controller.
type Dependencies struct {
	Runtime   TeamRuntime
	Evaluator Evaluator
	Judge     Judge
	Prompts   PromptBuilder
	Store     Store
}

// Settings are the resolved per-team limits.
type Settings struct {
	MaxRounds         int
	TimeoutPerTeam    time.Duration
	EvaluationTimeout time.Duration
	JudgmentTimeout   time.Duration
}

// Controller runs the round loop of a single team. A Controller is single-use:
// create one per team per execution.
type Controller struct {
	deps     Dependencies
	settings Settings
	log      logger.Logger
	observe  func(State)
	state    atomic.Int32
}

// NewController validates deps and settings and returns a controller in
// StateAwaitingTask.
func NewController(deps Dependencies, settings Settings, opts ...Option) (*Controller, error) {
	switch {
	case deps.Runtime == nil, deps.Evaluator == nil, deps.Judge == nil, deps.Prompts == nil, deps.Store == nil:
		return nil, fmt.Errorf("%w: all collaborators are required", ErrConfiguration)
	case settings.MaxRounds < 1:
		return nil, fmt.Errorf("%w: max_rounds must be positive, got %d", ErrConfiguration, settings.MaxRounds)
	case settings.TimeoutPerTeam <= 0, settings.EvaluationTimeout <= 0, settings.JudgmentTimeout <= 0:
		return nil, fmt.Errorf("%w: timeouts must be positive", ErrConfiguration)
	}

	c := &Controller{
		deps:     deps,
		settings: settings,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	if c.observe != nil {
		c.observe(s)
	}
}

// Start runs the loop to completion and returns the team's final
// submission. On a first-round failure or any persistence failure it returns
// a *RoundError and leaves no final submission behind.
func (c *Controller) Start(ctx context.Context, task model.RoundTask) (model.LeaderBoardEntry, error) {
	if !c.state.CompareAndSwap(int32(StateAwaitingTask), int32(StateRunningRound)) {
		return model.LeaderBoardEntry{}, ErrAlreadyStarted
	}
	if task.ExecutionID == "" || task.TeamID == "" {
		c.setState(StateFailed)
		return model.LeaderBoardEntry{}, newRoundError(ErrConfiguration, task.TeamID, 0, errors.New("task needs execution and team ids"))
	}

	log := c.log.With(logger.String("execution_id", task.ExecutionID), logger.String("team_id", task.TeamID))
	log.Info(ctx, "round loop started", logger.Int("max_rounds", c.settings.MaxRounds))

	var (
		scores   []float64
		terminal int
		reason   model.ExitReason
	)
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, log, newRoundError(ErrCancelled, task.TeamID, round, err))
		}
		c.setState(StateRunningRound)
		entry, err := c.runRound(ctx, log, task, round)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
				err = newRoundError(ErrCancelled, task.TeamID, round, err)
			}
			metrics.RecordRoundFailure(KindLabel(err))
			if terminal == 0 || errors.Is(err, ErrPersistence) || errors.Is(err, ErrCancelled) {
				return c.fail(ctx, log, err)
			}
			log.Warn(ctx, "round failed, finalizing on prior rounds", logger.Int("round", round), logger.Error(err))
			reason = model.ExitRoundFailure
			break
		}
		terminal = round
		scores = append(scores, entry.Score)

		c.setState(StateDecidingContinuation)
		stop, why := c.decide(ctx, log, round, scores)
		if stop {
			reason = why
			break
		}
	}

	best, err := c.finalize(ctx, task, terminal, reason)
	if err != nil {
		if ctx.Err() != nil {
			err = newRoundError(ErrCancelled, task.TeamID, terminal, err)
		}
		return c.fail(ctx, log, err)
	}
	c.setState(StateDone)
	metrics.RecordExitReason(string(reason))
	metrics.RecordTeamFinalized()
	log.Info(ctx, "round loop finished",
		logger.Int("rounds", terminal),
		logger.Int("best_round", best.RoundNumber),
		logger.Float64("best_score", best.Score),
		logger.String("exit_reason", string(reason)))
	return best, nil
}

func (c *Controller) fail(ctx context.Context, log logger.Logger, err error) (model.LeaderBoardEntry, error) {
	c.setState(StateFailed)
	metrics.RecordTeamFailed()
	log.Error(ctx, "round loop failed", logger.String("kind", KindLabel(err)), logger.Error(err))
	return model.LeaderBoardEntry{}, err
}

// runRound executes one full round and returns the recorded leaderboard row.
func (c *Controller) runRound(ctx context.Context, log logger.Logger, task model.RoundTask, round int) (model.LeaderBoardEntry, error) {
	metrics.RecordRoundStarted()
	persistErr := func(err error) error { return newRoundError(ErrPersistence, task.TeamID, round, err) }

	status := &model.RoundStatusRecord{
		ExecutionID: task.ExecutionID,
		TeamID:      task.TeamID,
		TeamName:    task.TeamName,
		RoundNumber: round,
		Status:      model.RoundRunning,
	}
	if err := c.deps.Store.CreateRoundStatus(ctx, status); err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}

	history, err := c.deps.Store.History(ctx, task.ExecutionID, task.TeamID)
	if err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}
	prompt, err := c.deps.Prompts.Build(task.UserQuery, task.Metadata, history)
	if err != nil {
		return model.LeaderBoardEntry{}, c.failRound(ctx, status, newRoundError(ErrTeamExecution, task.TeamID, round, fmt.Errorf("build prompt: %w", err)))
	}

	start := time.Now()
	sub, err := callWithDeadline(ctx, c.settings.TimeoutPerTeam, func(ctx context.Context) (model.Submission, error) {
		return c.deps.Runtime.Run(ctx, prompt, task.Metadata)
	})
	metrics.RecordRuntimeLatency(elapsedMS(start))
	if err != nil {
		return model.LeaderBoardEntry{}, c.failRound(ctx, status, newRoundError(ErrTeamExecution, task.TeamID, round, err))
	}
	if sub.Format == "" {
		sub.Format = model.DefaultSubmissionFormat
	}

	status.MessageHistory = sub.Messages
	if err := c.deps.Store.UpdateRoundStatus(ctx, status); err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}

	c.setState(StateEvaluating)
	start = time.Now()
	result, err := callWithDeadline(ctx, c.settings.EvaluationTimeout, func(ctx context.Context) (model.EvaluationResult, error) {
		return c.deps.Evaluator.Evaluate(ctx, task, sub)
	})
	metrics.RecordEvaluationLatency(elapsedMS(start))
	if err == nil {
		err = validScore(result.Score)
	}
	if err != nil {
		return model.LeaderBoardEntry{}, c.failRound(ctx, status, newRoundError(ErrEvaluation, task.TeamID, round, err))
	}

	entry := &model.LeaderBoardEntry{
		ExecutionID:       task.ExecutionID,
		TeamID:            task.TeamID,
		TeamName:          task.TeamName,
		RoundNumber:       round,
		SubmissionContent: sub.Content,
		SubmissionFormat:  sub.Format,
		Score:             result.Score,
		ScoreDetails:      result.Details,
	}
	if err := c.deps.Store.InsertLeaderBoardEntry(ctx, entry); err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}
	status.Status = model.RoundCompleted
	if err := c.deps.Store.UpdateRoundStatus(ctx, status); err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}

	metrics.RecordRoundCompleted(result.Score)
	log.Info(ctx, "round completed", logger.Int("round", round), logger.Float64("score", result.Score))
	return *entry, nil
}

// failRound marks the status row failed and returns roundErr, unless that
// write itself fails.
func (c *Controller) failRound(ctx context.Context, status *model.RoundStatusRecord, roundErr *RoundError) error {
	status.Status = model.RoundFailed
	status.Error = roundErr.Err.Error()
	// a cancelled parent must not prevent the failure from being recorded
	if err := c.deps.Store.UpdateRoundStatus(context.WithoutCancel(ctx), status); err != nil {
		return newRoundError(ErrPersistence, roundErr.TeamID, roundErr.Round, errors.Join(err, roundErr))
	}
	return roundErr
}

// decide reports whether the loop stops after round and why.
func (c *Controller) decide(ctx context.Context, log logger.Logger, round int, scores []float64) (bool, model.ExitReason) {
	remaining := c.settings.MaxRounds - round
	if remaining <= 0 {
		return true, model.ExitMaxRounds
	}

	start := time.Now()
	cont, err := callWithDeadline(ctx, c.settings.JudgmentTimeout, func(ctx context.Context) (bool, error) {
		return c.deps.Judge.PredictContinuation(ctx, append([]float64(nil), scores...), remaining)
	})
	metrics.RecordJudgmentLatency(elapsedMS(start))
	if err != nil {
		metrics.RecordJudgmentFallback()
		log.Warn(ctx, "judgment unavailable, stopping",
			logger.Int("round", round),
			logger.Error(fmt.Errorf("%w: %w", ErrJudgment, err)))
		return true, model.ExitNoImprovement
	}
	if !cont {
		return true, model.ExitNoImprovement
	}
	return false, ""
}

// finalize marks the best round final and the terminal round with reason,
// then re-reads the final entry.
func (c *Controller) finalize(ctx context.Context, task model.RoundTask, terminal int, reason model.ExitReason) (model.LeaderBoardEntry, error) {
	c.setState(StateFinalizing)
	persistErr := func(err error) error { return newRoundError(ErrPersistence, task.TeamID, terminal, err) }

	history, err := c.deps.Store.History(ctx, task.ExecutionID, task.TeamID)
	if err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}
	idx := model.SelectBest(history)
	if idx < 0 {
		return model.LeaderBoardEntry{}, persistErr(errors.New("no leaderboard rows to finalize"))
	}
	if err := c.deps.Store.Finalize(ctx, task.ExecutionID, task.TeamID, history[idx].RoundNumber, terminal, reason); err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}
	best, err := c.deps.Store.Best(ctx, task.ExecutionID, task.TeamID)
	if err != nil {
		return model.LeaderBoardEntry{}, persistErr(err)
	}
	return best, nil
}

// callWithDeadline runs fn under a timeout and returns as soon as the
// deadline passes, even if fn ignores its context.
func callWithDeadline[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("deadline of %s exceeded: %w", d, ctx.Err())
	}
}

func validScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) || score < minScore || score > maxScore {
		return fmt.Errorf("score %v outside [%d, %d]", score, minScore, maxScore)
	}
	return nil
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
