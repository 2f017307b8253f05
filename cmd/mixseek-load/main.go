package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/mixseek/internal/loadtest"
)

const (
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		executions = flag.Int("executions", loadtest.DefaultExecutions, "Executions to submit")
		teams      = flag.Int("teams", loadtest.DefaultTeamsPerExecution, "Teams per execution")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent workers")
		topN       = flag.Int("top", loadtest.DefaultTopN, "Leaderboard limit to fetch")
		timeout    = flag.Duration("timeout", loadtest.DefaultTimeout, "HTTP request timeout")
		poll       = flag.Duration("poll", loadtest.DefaultPollInterval, "Execution poll interval")
		output     = flag.String("output", "", "JSON report file")
		logFile    = flag.String("log", "", "Log file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	closer, err := loadtest.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	_, err = loadtest.Run(ctx, &loadtest.Config{
		BaseURL:           *baseURL,
		Executions:        *executions,
		TeamsPerExecution: *teams,
		Workers:           *workers,
		Timeout:           *timeout,
		PollInterval:      *poll,
		TopN:              *topN,
		OutputFile:        *output,
		Verbose:           *verbose,
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		cancel()
		stop()
		_ = closer.Close()
		os.Exit(1) //nolint:gocritic // deferred calls were run explicitly above
	}
}
