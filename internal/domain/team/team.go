// Package team provides a local stand-in for an agent team runtime.
package team

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/mixseek/internal/domain/model"
)

// Default runtime configuration constants.
const (
	defaultMinLatency = 50 * time.Millisecond
	defaultMaxLatency = 150 * time.Millisecond
	defaultRandomSeed = 7
	roundMarker       = "### Round "
)

// ErrNoAgents is returned when the runtime has no agents to run.
var ErrNoAgents = errors.New("team has no agents")

// DefaultAgents is the roster used when none is configured.
func DefaultAgents() []string {
	return []string{"leader", "researcher", "writer"}
}

// Option applies a configuration option to the SimulatedRuntime.
type Option func(*SimulatedRuntime)

// WithAgents sets the agent roster. The first agent leads.
func WithAgents(agents ...string) Option {
	return func(r *SimulatedRuntime) {
		if len(agents) > 0 {
			r.agents = append([]string(nil), agents...)
		}
	}
}

// WithLatencyRange sets the simulated latency range. A zero range disables it.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(r *SimulatedRuntime) {
		if minLatency >= 0 && maxLatency >= minLatency {
			r.minLatency = minLatency
			r.maxLatency = maxLatency
		}
	}
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *SimulatedRuntime) {
		if now != nil {
			r.now = now
		}
	}
}

// SimulatedRuntime fakes a team of agents. Each agent adds one message and
// one section; later rounds (more history in the prompt) produce longer
// drafts so scores trend upward.
type SimulatedRuntime struct {
	agents     []string
	minLatency time.Duration
	maxLatency time.Duration
	now        func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedRuntime creates a runtime with configuration options.
func NewSimulatedRuntime(opts ...Option) *SimulatedRuntime {
	r := &SimulatedRuntime{
		agents:     DefaultAgents(),
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		now:        func() time.Time { return time.Now().UTC() },
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible latency
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements the team runtime.
func (r *SimulatedRuntime) Run(ctx context.Context, prompt string, metadata map[string]string) (model.Submission, error) {
	if len(r.agents) == 0 {
		return model.Submission{}, ErrNoAgents
	}
	select {
	case <-ctx.Done():
		return model.Submission{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(r.latency()):
	}

	query := queryOf(prompt)
	prior := strings.Count(prompt, roundMarker)
	depth := prior + 1

	var (
		b        strings.Builder
		messages = make([]model.Message, 0, len(r.agents)+1)
	)
	fmt.Fprintf(&b, "# %s\n\n", query)
	messages = append(messages, model.Message{Role: "user", Content: prompt, At: r.now()})

	for i, agent := range r.agents {
		section := draftSection(agent, query, depth, metadata)
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title(agent), section)
		role := "assistant"
		if i == 0 {
			role = "leader"
		}
		messages = append(messages, model.Message{
			Role:    role,
			Agent:   agent,
			Content: fmt.Sprintf("%s drafted %d points for round %d", agent, depth, depth),
			At:      r.now(),
		})
	}

	return model.Submission{
		Content:  strings.TrimSpace(b.String()),
		Format:   model.DefaultSubmissionFormat,
		Messages: messages,
	}, nil
}

func (r *SimulatedRuntime) latency() time.Duration {
	if r.maxLatency <= r.minLatency {
		return r.minLatency
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minLatency + time.Duration(r.rng.Int63n(int64(r.maxLatency-r.minLatency)))
}

// queryOf extracts the user query from a rendered prompt; the first
// non-heading line is taken as the query.
func queryOf(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return "Untitled task"
}

func draftSection(agent, query string, depth int, metadata map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s's take on %s.", title(agent), query)
	for i := 1; i <= depth; i++ {
		fmt.Fprintf(&b, "\n- point %d about %s", i, query)
	}
	if depth > 1 {
		keys := make([]string, 0, len(metadata))
		for k := range metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n\nConsidering %s %s for this audience.", k, metadata[k])
		}
	}
	return b.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
