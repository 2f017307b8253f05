package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/okian/mixseek/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Sentinel errors.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrVerification = errors.New("verification failed")
)

// Run executes the complete load test and returns its statistics. It fails
// with ErrVerification when any persisted round breaks an invariant.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("loadtest")
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting round controller load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("executions", cfg.Executions),
		logger.Int("teams", cfg.TeamsPerExecution),
		logger.Int("workers", cfg.Workers))

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, err
	}

	ids := submitExecutions(ctx, log, cfg, client, generateSubmissions(cfg.Executions, cfg.TeamsPerExecution), stats)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, max(cfg.Workers, 1))
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := verifyExecution(ctx, cfg, client, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Violations = append(stats.Violations, fmt.Sprintf("%s: %v", id, err))
				return
			}
			stats.Completed++
			stats.TeamsVerified += res.verified
			stats.TeamsFailed += res.failed
			stats.Violations = append(stats.Violations, res.violations...)
		}(id)
	}
	wg.Wait()

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, stats); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	displayFinalStats(ctx, log, stats)

	if len(stats.Violations) > 0 {
		for _, v := range stats.Violations {
			log.Error(ctx, "invariant violated", logger.String("detail", v))
		}
		return stats, fmt.Errorf("%w: %d violations", ErrVerification, len(stats.Violations))
	}
	log.Info(ctx, "test completed successfully")
	return stats, nil
}

func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	code, _, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, code)
	}
	return nil
}

// submitExecutions posts every submission through a worker pool and returns
// the accepted execution ids.
func submitExecutions(ctx context.Context, log logger.Logger, cfg *Config, client *HTTPClient, subs []submission, stats *Stats) []string {
	var (
		submitted, accepted, rejected int64
		mu                            sync.Mutex
		ids                           []string
		wg                            sync.WaitGroup
	)
	ch := make(chan submission, max(cfg.Workers, 1)*2)
	for i := 0; i < max(cfg.Workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range ch {
				atomic.AddInt64(&submitted, 1)
				code, body, err := client.Post(ctx, "/executions", s)
				if err != nil || code != http.StatusAccepted {
					atomic.AddInt64(&rejected, 1)
					if cfg.Verbose {
						log.Warn(ctx, "submission rejected", logger.Int("status", code),
							logger.String("body", string(body)), logger.Any("error", err))
					}
					continue
				}
				atomic.AddInt64(&accepted, 1)
				mu.Lock()
				ids = append(ids, gjson.GetBytes(body, "execution_id").String())
				mu.Unlock()
			}
		}()
	}
feed:
	for _, s := range subs {
		select {
		case <-ctx.Done():
			break feed
		case ch <- s:
		}
	}
	close(ch)
	wg.Wait()

	stats.Submitted = int(submitted)
	stats.Accepted = int(accepted)
	stats.Rejected = int(rejected)
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected))
	return ids
}

type executionResult struct {
	verified   int
	failed     int
	violations []string
}

// verifyExecution waits for id to finish, then checks every finalized
// team's rounds and the execution leaderboard.
func verifyExecution(ctx context.Context, cfg *Config, client *HTTPClient, id string) (executionResult, error) {
	var res executionResult
	body, err := awaitExecution(ctx, cfg, client, id)
	if err != nil {
		return res, err
	}

	finalized := 0
	for _, t := range gjson.GetBytes(body, "teams").Array() {
		teamID := t.Get("team_id").String()
		if t.Get("status").String() != "finalized" {
			res.failed++
			continue
		}
		finalized++
		code, rounds, err := client.Get(ctx, "/executions/"+id+"/teams/"+teamID+"/rounds")
		if err != nil || code != http.StatusOK {
			res.violations = append(res.violations, fmt.Sprintf("%s/%s: rounds unavailable (status %d)", id, teamID, code))
			continue
		}
		res.violations = append(res.violations, verifyTeamRounds(id+"/"+teamID, parseEntries(gjson.GetBytes(rounds, "entries")))...)
		res.verified++
	}

	code, board, err := client.Get(ctx, fmt.Sprintf("/executions/%s/leaderboard?limit=%d", id, max(cfg.TopN, 1)))
	if err != nil || code != http.StatusOK {
		return res, fmt.Errorf("leaderboard unavailable (status %d): %v", code, err)
	}
	entries := parseEntries(gjson.ParseBytes(board))
	res.violations = append(res.violations, verifyLeaderboard(id, entries)...)
	if want := min(finalized, max(cfg.TopN, 1)); len(entries) != want {
		res.violations = append(res.violations, fmt.Sprintf("%s: leaderboard has %d entries, want %d", id, len(entries), want))
	}
	return res, nil
}

func awaitExecution(ctx context.Context, cfg *Config, client *HTTPClient, id string) ([]byte, error) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		code, body, err := client.Get(ctx, "/executions/"+id)
		if err != nil {
			return nil, err
		}
		if code != http.StatusOK {
			return nil, fmt.Errorf("execution lookup returned %d", code)
		}
		if gjson.GetBytes(body, "done").Bool() {
			return body, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func saveReport(filename string, stats *Stats) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Completed) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("completed", stats.Completed),
		logger.Int("teamsVerified", stats.TeamsVerified),
		logger.Int("teamsFailed", stats.TeamsFailed),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("executionsPerSecond", perSecond))
}
