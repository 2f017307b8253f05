// Package evaluation scores team submissions on a fixed 0-100 scale.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/okian/mixseek/internal/domain/model"
)

// Metric names reported in EvaluationResult.Details.
const (
	MetricRelevance = "relevance"
	MetricCoverage  = "coverage"
	MetricStructure = "structure"
)

// Default evaluation configuration constants.
const (
	defaultMinLatency  = 20 * time.Millisecond
	defaultMaxLatency  = 60 * time.Millisecond
	defaultRandomSeed  = 42
	targetWordCount    = 150
	minQueryTermLength = 3
	maxScoreValue      = 100
)

// ErrEmptySubmission is returned for a submission with no content.
var ErrEmptySubmission = errors.New("empty submission")

// DefaultWeights are used when no metric weights are configured.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		MetricRelevance: 0.5,
		MetricCoverage:  0.3,
		MetricStructure: 0.2,
	}
}

// Option applies a configuration option to the InMemoryEvaluator.
type Option func(*InMemoryEvaluator)

// WithLatencyRange sets the simulated latency range. A zero range disables it.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(e *InMemoryEvaluator) {
		if minLatency >= 0 && maxLatency >= minLatency {
			e.minLatency = minLatency
			e.maxLatency = maxLatency
		}
	}
}

// WithMetricWeights sets metric weights from configuration. Unknown metrics
// and non-positive weights are ignored.
func WithMetricWeights(weights map[string]float64) Option {
	return func(e *InMemoryEvaluator) {
		w := make(map[string]float64)
		for metric, weight := range weights {
			if _, known := DefaultWeights()[metric]; known && weight > 0 {
				w[metric] = weight
			}
		}
		if len(w) > 0 {
			e.weights = w
		}
	}
}

// InMemoryEvaluator implements a deterministic heuristic evaluator with
// simulated latency, standing in for an LLM-as-judge service.
type InMemoryEvaluator struct {
	weights map[string]float64
	// Simulated latency range
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewInMemoryEvaluator creates an evaluator with configuration options.
func NewInMemoryEvaluator(opts ...Option) *InMemoryEvaluator {
	e := &InMemoryEvaluator{
		weights:    DefaultWeights(),
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible latency
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores sub against the task's user query.
func (e *InMemoryEvaluator) Evaluate(ctx context.Context, task model.RoundTask, sub model.Submission) (model.EvaluationResult, error) {
	select {
	case <-ctx.Done():
		return model.EvaluationResult{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(e.latency()):
	}

	content := strings.TrimSpace(sub.Content)
	if content == "" {
		return model.EvaluationResult{}, ErrEmptySubmission
	}

	metrics := map[string]float64{
		MetricRelevance: relevance(task.UserQuery, content),
		MetricCoverage:  coverage(content),
		MetricStructure: structure(content),
	}

	var total, weightSum float64
	for metric, weight := range e.weights {
		total += metrics[metric] * weight
		weightSum += weight
	}
	score := math.Max(0, math.Min(maxScoreValue, total/weightSum))
	score = math.Round(score*100) / 100

	details := make(map[string]any, len(metrics)+2)
	for metric, v := range metrics {
		details[metric] = math.Round(v*100) / 100
	}
	details["weights"] = copyWeights(e.weights)
	details["comment"] = comment(metrics)

	return model.EvaluationResult{Score: score, Details: details}, nil
}

func (e *InMemoryEvaluator) latency() time.Duration {
	if e.maxLatency <= e.minLatency {
		return e.minLatency
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.minLatency + time.Duration(e.rng.Int63n(int64(e.maxLatency-e.minLatency)))
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// relevance is the share of distinct query terms found in the content.
func relevance(query, content string) float64 {
	terms := map[string]struct{}{}
	for _, w := range words(query) {
		if len(w) >= minQueryTermLength {
			terms[w] = struct{}{}
		}
	}
	if len(terms) == 0 {
		return maxScoreValue
	}
	present := map[string]struct{}{}
	for _, w := range words(content) {
		present[w] = struct{}{}
	}
	hit := 0
	for t := range terms {
		if _, ok := present[t]; ok {
			hit++
		}
	}
	return maxScoreValue * float64(hit) / float64(len(terms))
}

// coverage grows with length up to targetWordCount words.
func coverage(content string) float64 {
	n := len(words(content))
	return math.Min(maxScoreValue, maxScoreValue*float64(n)/targetWordCount)
}

// structure rewards markdown headings, lists and paragraphing.
func structure(content string) float64 {
	var headings, items, paragraphs int
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) != "" {
			paragraphs++
		}
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#"):
			headings++
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			items++
		}
	}
	score := 40*math.Min(1, float64(headings)/2) +
		30*math.Min(1, float64(items)/3) +
		30*math.Min(1, float64(paragraphs)/3)
	return score
}

func comment(metrics map[string]float64) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if metrics[names[i]] != metrics[names[j]] {
			return metrics[names[i]] < metrics[names[j]]
		}
		return names[i] < names[j]
	})
	weakest := names[0]
	if metrics[weakest] >= maxScoreValue {
		return "all metrics at maximum"
	}
	return fmt.Sprintf("weakest metric is %s (%.0f/100)", weakest, metrics[weakest])
}

func copyWeights(w map[string]float64) map[string]any {
	out := make(map[string]any, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
