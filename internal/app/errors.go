package service

import "errors"

// Sentinel kinds for orchestrator errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrDuplicateTeam    = errors.New("duplicate team in execution")
	ErrRequestInFlight  = errors.New("request id is still being submitted")
	ErrBackpressure     = errors.New("team queue is full")
	ErrUnknownExecution = errors.New("unknown execution")
	ErrInvalidLimit     = errors.New("invalid leaderboard limit")
)
