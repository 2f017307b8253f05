package config

import (
	"fmt"
	"time"
)

// Validate checks the settings the service cannot start without. Every
// failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("%w: max_rounds must be set to a positive default", ErrInvalidConfig)
	}
	if c.TimeoutPerTeamSeconds < 1 {
		return fmt.Errorf("%w: timeout_per_team_seconds must be set to a positive default", ErrInvalidConfig)
	}
	if c.EvaluationTimeoutSeconds < 1 || c.JudgmentTimeoutSeconds < 1 {
		return fmt.Errorf("%w: evaluation and judgment timeouts must be positive", ErrInvalidConfig)
	}
	if c.RetainedExecutions < 1 {
		return fmt.Errorf("%w: retained_executions must be positive", ErrInvalidConfig)
	}
	for id, o := range c.Teams {
		if o.MaxRounds != nil && *o.MaxRounds < 1 {
			return fmt.Errorf("%w: teams.%s.max_rounds must be positive", ErrInvalidConfig, id)
		}
		if o.TimeoutPerTeamSeconds != nil && *o.TimeoutPerTeamSeconds < 1 {
			return fmt.Errorf("%w: teams.%s.timeout_per_team_seconds must be positive", ErrInvalidConfig, id)
		}
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn must not be empty for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	return nil
}

// Resolve returns the settings for teamID: the team-specific value when
// present, otherwise the global default. There is no third tier.
func (c *Config) Resolve(teamID string) (TeamSettings, error) {
	maxRounds := c.MaxRounds
	timeout := c.TimeoutPerTeamSeconds
	if o, ok := c.Teams[teamID]; ok {
		if o.MaxRounds != nil {
			maxRounds = *o.MaxRounds
		}
		if o.TimeoutPerTeamSeconds != nil {
			timeout = *o.TimeoutPerTeamSeconds
		}
	}
	s := TeamSettings{
		MaxRounds:         maxRounds,
		TimeoutPerTeam:    time.Duration(timeout) * time.Second,
		EvaluationTimeout: time.Duration(c.EvaluationTimeoutSeconds) * time.Second,
		JudgmentTimeout:   time.Duration(c.JudgmentTimeoutSeconds) * time.Second,
	}
	if err := s.Validate(); err != nil {
		return TeamSettings{}, fmt.Errorf("team %s: %w", teamID, err)
	}
	return s, nil
}

// Validate rejects settings a round loop cannot run with.
func (s TeamSettings) Validate() error {
	switch {
	case s.MaxRounds < 1:
		return fmt.Errorf("%w: max_rounds must be positive", ErrInvalidConfig)
	case s.TimeoutPerTeam <= 0:
		return fmt.Errorf("%w: timeout_per_team must be positive", ErrInvalidConfig)
	case s.EvaluationTimeout <= 0:
		return fmt.Errorf("%w: evaluation timeout must be positive", ErrInvalidConfig)
	case s.JudgmentTimeout <= 0:
		return fmt.Errorf("%w: judgment timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
