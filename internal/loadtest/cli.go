package loadtest

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/mixseek/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initializes the global logger to write to stdout and, when
// logFile is set, to that file as well.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w, closer = io.MultiWriter(os.Stdout, f), f
	}
	if err := logger.Init(logger.WithWriter(w)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closer, nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`MixSeek Round Controller Load Test
==================================

Submits executions concurrently, waits for every team to finish and checks
the persisted rounds: gap-free round numbers, exactly one final submission
carrying the best score, and one exit reason on the last round.

Usage:
  mixseek-load [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -executions int      Executions to submit (default 20)
  -teams int           Teams per execution (default 3)
  -workers int         Concurrent workers (default CPU cores * 2)
  -top int             Leaderboard limit to fetch (default 10)
  -timeout duration    HTTP request timeout (default 30s)
  -poll duration       Execution poll interval (default 250ms)
  -output string       Write a JSON report to this file
  -log string          Also write logs to this file
  -verbose             Enable verbose logging
  -help                Show this help message
`)
}
