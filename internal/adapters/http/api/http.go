// Package api exposes the round controller service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/mixseek/internal/adapters/repository"
	service "github.com/okian/mixseek/internal/app"
	"github.com/okian/mixseek/internal/domain/model"
	"github.com/okian/mixseek/pkg/logger"
)

// Dependencies are the service operations the handlers call.
type Dependencies interface {
	Submit(ctx context.Context, req service.SubmitRequest) (string, error)
	Execution(ctx context.Context, id string) (service.Execution, error)
	Executions(ctx context.Context) []service.Execution
	Leaderboard(ctx context.Context, id string, limit int) ([]model.LeaderBoardEntry, error)
	Best(ctx context.Context, id, teamID string) (model.LeaderBoardEntry, error)
	Rounds(ctx context.Context, id, teamID string) (service.TeamRounds, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	executionsHandler  *ExecutionsHandler
	leaderboardHandler *LeaderboardHandler
	teamsHandler       *TeamsHandler
	log                logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		executionsHandler:  NewExecutionsHandler(deps, log),
		leaderboardHandler: NewLeaderboardHandler(deps),
		teamsHandler:       NewTeamsHandler(deps),
		log:                log,
	}
}

// Register attaches all API routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Use(chimiddleware.RequestID, chimiddleware.Recoverer, MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Route("/executions", func(r chi.Router) {
		r.Post("/", s.executionsHandler.HandleSubmit)
		r.Get("/", s.executionsHandler.HandleList)
		r.Route("/{executionID}", func(r chi.Router) {
			r.Get("/", s.executionsHandler.HandleGet)
			r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
			r.Get("/teams/{teamID}/best", s.teamsHandler.HandleGetBest)
			r.Get("/teams/{teamID}/rounds", s.teamsHandler.HandleGetRounds)
		})
	})
}

// Router returns a chi router with every API route registered.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps a service error onto an API kind.
func classify(err error) error {
	switch {
	case errors.Is(err, service.ErrBackpressure):
		return ErrBackpressure
	case errors.Is(err, service.ErrDuplicateTeam), errors.Is(err, service.ErrRequestInFlight):
		return ErrConflict
	case errors.Is(err, service.ErrUnknownExecution), errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, service.ErrNotStarted):
		return ErrUnavailable
	case errors.Is(err, ErrBadRequest), service.IsClientError(err):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}

// writeServiceError answers with the status matching err's kind.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	kind := classify(err)
	apiErr := WrapKind(op, kind, err)
	switch kind {
	case ErrBackpressure:
		writeError(w, http.StatusTooManyRequests, "backpressure", apiErr)
	case ErrConflict:
		writeError(w, http.StatusConflict, "conflict", apiErr)
	case ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", apiErr)
	case ErrUnavailable:
		writeError(w, http.StatusServiceUnavailable, "unavailable", apiErr)
	case ErrBadRequest:
		writeError(w, http.StatusBadRequest, "bad_request", apiErr)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", apiErr)
	}
}
