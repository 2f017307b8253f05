// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config filled with defaults.
// - Load layers defaults, an optional YAML file and MIXSEEK_ env vars.
// - Validate runs once at startup; Resolve never fails for a validated Config.
package config

import (
	"runtime"
	"time"
)

// Framework-wide defaults for the round loop.
const (
	DefaultMaxRounds             = 5
	DefaultTimeoutPerTeamSeconds = 300
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the number of team jobs waiting for a worker.
	QueueSize int `koanf:"queue_size"`
	// MaxConcurrentTeams sets the number of controller workers.
	MaxConcurrentTeams int `koanf:"max_concurrent_teams"`
	// DedupeSize bounds how many submission request ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`
	// RetainedExecutions caps the finished executions kept in memory.
	RetainedExecutions int `koanf:"retained_executions"`
	// MaxLeaderboardLimit caps GET .../leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// MaxRounds and TimeoutPerTeamSeconds are the global tier of the
	// two-tier (team > global) resolution.
	MaxRounds             int `koanf:"max_rounds"`
	TimeoutPerTeamSeconds int `koanf:"timeout_per_team_seconds"`

	// EvaluationTimeoutSeconds bounds each evaluator call.
	EvaluationTimeoutSeconds int `koanf:"evaluation_timeout_seconds"`
	// JudgmentTimeoutSeconds bounds each judgment call.
	JudgmentTimeoutSeconds int `koanf:"judgment_timeout_seconds"`

	// Teams holds per-team overrides keyed by team id.
	Teams map[string]TeamOverride `koanf:"teams"`

	Storage   StorageConfig   `koanf:"storage"`
	Evaluator EvaluatorConfig `koanf:"evaluator"`
	Judgment  JudgmentConfig  `koanf:"judgment"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
}

// TeamOverride is the team-specific tier. Nil fields fall back to the global value.
type TeamOverride struct {
	MaxRounds             *int `koanf:"max_rounds"`
	TimeoutPerTeamSeconds *int `koanf:"timeout_per_team_seconds"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `koanf:"driver"`
	// DSN is the sqlite database path.
	DSN string `koanf:"dsn"`
}

// EvaluatorConfig configures the evaluator collaborator.
type EvaluatorConfig struct {
	// URL switches to the remote evaluator when set.
	URL           string             `koanf:"url"`
	MetricWeights map[string]float64 `koanf:"metric_weights"`
	LatencyMinMS  int                `koanf:"latency_min_ms"`
	LatencyMaxMS  int                `koanf:"latency_max_ms"`
}

// JudgmentConfig configures the continuation judgment collaborator.
type JudgmentConfig struct {
	// URL switches to the remote judgment service when set.
	URL string `koanf:"url"`
	// MinImprovement is the score gain the local judge expects per round.
	MinImprovement float64 `koanf:"min_improvement"`
	// Window is how many recent rounds the local judge compares.
	Window int `koanf:"window"`
	// RetryMax applies to the remote judge only.
	RetryMax int `koanf:"retry_max"`
}

// RuntimeConfig configures the team runtime collaborator.
type RuntimeConfig struct {
	// URL switches to the remote team runtime when set.
	URL          string   `koanf:"url"`
	Agents       []string `koanf:"agents"`
	LatencyMinMS int      `koanf:"latency_min_ms"`
	LatencyMaxMS int      `koanf:"latency_max_ms"`
}

// TeamSettings are the resolved per-team round loop settings.
type TeamSettings struct {
	MaxRounds         int
	TimeoutPerTeam    time.Duration
	EvaluationTimeout time.Duration
	JudgmentTimeout   time.Duration
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		QueueSize:                1_000,
		MaxConcurrentTeams:       runtime.NumCPU() * 2,
		DedupeSize:               10_000,
		RetainedExecutions:       1_000,
		MaxLeaderboardLimit:      100,
		MaxRounds:                DefaultMaxRounds,
		TimeoutPerTeamSeconds:    DefaultTimeoutPerTeamSeconds,
		EvaluationTimeoutSeconds: 120,
		JudgmentTimeoutSeconds:   60,
		Teams:                    map[string]TeamOverride{},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "mixseek.db",
		},
		Evaluator: EvaluatorConfig{
			MetricWeights: map[string]float64{
				"relevance": 0.5,
				"coverage":  0.3,
				"structure": 0.2,
			},
			LatencyMinMS: 20,
			LatencyMaxMS: 60,
		},
		Judgment: JudgmentConfig{
			MinImprovement: 1.0,
			Window:         2,
			RetryMax:       2,
		},
		Runtime: RuntimeConfig{
			Agents:       []string{"leader", "researcher", "writer"},
			LatencyMinMS: 50,
			LatencyMaxMS: 150,
		},
	}
}
