package config

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
// ErrInvalidConfig is the ConfigurationError of the round controller taxonomy.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
