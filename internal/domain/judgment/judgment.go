// Package judgment decides whether another round is worth running.
package judgment

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Default judgment configuration constants.
const (
	defaultMinImprovement = 1.0
	defaultWindow         = 2
	perfectScore          = 100
)

// ErrInvalidScores is returned for a trajectory that contains NaN values.
var ErrInvalidScores = errors.New("invalid score trajectory")

// Option applies a configuration option to the PlateauJudge.
type Option func(*PlateauJudge)

// WithMinImprovement sets the gain below which the team is considered stuck.
func WithMinImprovement(points float64) Option {
	return func(j *PlateauJudge) {
		if points >= 0 {
			j.minImprovement = points
		}
	}
}

// WithWindow sets how many recent rounds are compared against the earlier best.
func WithWindow(rounds int) Option {
	return func(j *PlateauJudge) {
		if rounds > 0 {
			j.window = rounds
		}
	}
}

// PlateauJudge predicts continuation from the score trajectory alone: keep
// going while the best of the last window rounds beats the earlier best by
// at least minImprovement points.
type PlateauJudge struct {
	minImprovement float64
	window         int
}

// NewPlateauJudge creates a judge with configuration options.
func NewPlateauJudge(opts ...Option) *PlateauJudge {
	j := &PlateauJudge{
		minImprovement: defaultMinImprovement,
		window:         defaultWindow,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// PredictContinuation implements the continuation judgment.
func (j *PlateauJudge) PredictContinuation(ctx context.Context, scores []float64, remaining int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context cancelled: %w", err)
	}
	for i, s := range scores {
		if math.IsNaN(s) {
			return false, fmt.Errorf("%w: NaN at round %d", ErrInvalidScores, i+1)
		}
	}
	if remaining <= 0 {
		return false, nil
	}
	if len(scores) <= 1 {
		return true, nil
	}
	if maxOf(scores) >= perfectScore {
		return false, nil
	}

	w := min(j.window, len(scores)-1)
	split := len(scores) - w
	gain := maxOf(scores[split:]) - maxOf(scores[:split])
	return gain >= j.minImprovement, nil
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}
