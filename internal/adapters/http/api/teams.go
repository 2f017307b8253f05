package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/mixseek/internal/app"
	"github.com/okian/mixseek/internal/domain/model"
)

// TeamDependencies defines the per-team read operations.
type TeamDependencies interface {
	Best(ctx context.Context, id, teamID string) (model.LeaderBoardEntry, error)
	Rounds(ctx context.Context, id, teamID string) (service.TeamRounds, error)
}

// TeamsHandler handles per-team requests.
type TeamsHandler struct {
	deps TeamDependencies
}

// NewTeamsHandler creates a new teams handler.
func NewTeamsHandler(deps TeamDependencies) *TeamsHandler {
	return &TeamsHandler{deps: deps}
}

// HandleGetBest handles GET /executions/{executionID}/teams/{teamID}/best.
func (h *TeamsHandler) HandleGetBest(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_best"
	entry, err := h.deps.Best(r.Context(), chi.URLParam(r, "executionID"), chi.URLParam(r, "teamID"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleGetRounds handles GET /executions/{executionID}/teams/{teamID}/rounds.
func (h *TeamsHandler) HandleGetRounds(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rounds"
	rounds, err := h.deps.Rounds(r.Context(), chi.URLParam(r, "executionID"), chi.URLParam(r, "teamID"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}
