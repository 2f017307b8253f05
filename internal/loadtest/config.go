// Package loadtest drives a running round controller service over HTTP:
// it submits executions concurrently, waits for them to finish and verifies
// the persisted rounds of every team.
package loadtest

import "time"

// Config holds the load test settings.
type Config struct {
	BaseURL           string        // service base URL
	Executions        int           // executions to submit
	TeamsPerExecution int           // teams in each execution
	Workers           int           // concurrent submitters and verifiers
	Timeout           time.Duration // per-request timeout
	PollInterval      time.Duration // execution status poll interval
	TopN              int           // leaderboard limit
	OutputFile        string        // JSON report path; empty disables the report
	Verbose           bool
}

// Default settings.
const (
	DefaultExecutions        = 20
	DefaultTeamsPerExecution = 3
	DefaultTimeout           = 30 * time.Second
	DefaultPollInterval      = 250 * time.Millisecond
	DefaultTopN              = 10
)

// Stats holds run statistics.
type Stats struct {
	Submitted     int           `json:"submitted"`
	Accepted      int           `json:"accepted"`
	Rejected      int           `json:"rejected"`
	Completed     int           `json:"completed"`
	TeamsVerified int           `json:"teams_verified"`
	TeamsFailed   int           `json:"teams_failed"`
	Violations    []string      `json:"violations,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"duration"`
}

type teamSpec struct {
	ID   string `json:"team_id"`
	Name string `json:"team_name"`
}

type submission struct {
	UserQuery string            `json:"user_query"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Teams     []teamSpec        `json:"teams"`
}

// round is one leaderboard row as served by the API.
type round struct {
	Round      int
	Score      float64
	Final      bool
	ExitReason string
}
