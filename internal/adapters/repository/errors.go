package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateRound   = errors.New("round already recorded")
	ErrAlreadyFinalized = errors.New("team already finalized")
	ErrInvalidLimit     = errors.New("invalid leaderboard limit")
)
