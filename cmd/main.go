package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/mixseek/internal/adapters/http/api"
	"github.com/okian/mixseek/internal/adapters/http/swagger"
	"github.com/okian/mixseek/internal/adapters/remote"
	"github.com/okian/mixseek/internal/adapters/repository"
	service "github.com/okian/mixseek/internal/app"
	"github.com/okian/mixseek/internal/config"
	"github.com/okian/mixseek/internal/domain/evaluation"
	"github.com/okian/mixseek/internal/domain/judgment"
	"github.com/okian/mixseek/internal/domain/prompt"
	"github.com/okian/mixseek/internal/domain/team"
	"github.com/okian/mixseek/pkg/logger"
	"github.com/okian/mixseek/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// We export our own system gauges on a custom registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "mixseek: "+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.WithJSON(cfg.LogFormat == "json")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	svc := service.New(cfg, store, buildCollaborators(cfg, log), service.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service stop failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore returns the configured persistence layer.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return repository.NewMemoryStore(), nil
	default:
		s, err := repository.OpenSQLite(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil
	}
}

// buildCollaborators picks a remote client for each collaborator with a
// configured URL and the local implementation otherwise.
func buildCollaborators(cfg *config.Config, log logger.Logger) service.Collaborators {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	collab := service.Collaborators{Prompts: prompt.NewTemplateBuilder()}

	if cfg.Runtime.URL != "" {
		collab.Runtime = remote.NewRuntimeClient(cfg.Runtime.URL, remote.WithLogger(log.Named("runtime")))
	} else {
		collab.Runtime = team.NewSimulatedRuntime(
			team.WithAgents(cfg.Runtime.Agents...),
			team.WithLatencyRange(ms(cfg.Runtime.LatencyMinMS), ms(cfg.Runtime.LatencyMaxMS)),
		)
	}

	if cfg.Evaluator.URL != "" {
		collab.Evaluator = remote.NewEvaluatorClient(cfg.Evaluator.URL, remote.WithLogger(log.Named("evaluator")))
	} else {
		collab.Evaluator = evaluation.NewInMemoryEvaluator(
			evaluation.WithMetricWeights(cfg.Evaluator.MetricWeights),
			evaluation.WithLatencyRange(ms(cfg.Evaluator.LatencyMinMS), ms(cfg.Evaluator.LatencyMaxMS)),
		)
	}

	if cfg.Judgment.URL != "" {
		collab.Judge = remote.NewJudgeClient(cfg.Judgment.URL,
			remote.WithRetryMax(cfg.Judgment.RetryMax),
			remote.WithLogger(log.Named("judgment")))
	} else {
		collab.Judge = judgment.NewPlateauJudge(
			judgment.WithMinImprovement(cfg.Judgment.MinImprovement),
			judgment.WithWindow(cfg.Judgment.Window),
		)
	}
	return collab
}

// newRouter mounts the business API and the documentation routes.
func newRouter(ctx context.Context, svc *service.Service, log logger.Logger) http.Handler {
	r := chi.NewRouter()
	api.NewServer(svc, svc, log.Named("api")).Register(ctx, r)
	swagger.Register(ctx, r)
	return r
}

// startSystemMetricsUpdater refreshes process gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes queue gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workers, ok := stats["maxConcurrentTeams"].(int); ok {
		metrics.UpdateWorkerCount(workers)
	}
}
