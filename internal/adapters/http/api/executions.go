package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/mixseek/internal/app"
	"github.com/okian/mixseek/pkg/logger"
)

const maxRequestBytes = 1 << 20

// ExecutionDependencies defines the operations behind /executions.
type ExecutionDependencies interface {
	Submit(ctx context.Context, req service.SubmitRequest) (string, error)
	Execution(ctx context.Context, id string) (service.Execution, error)
	Executions(ctx context.Context) []service.Execution
}

// ExecutionsHandler handles execution requests.
type ExecutionsHandler struct {
	deps ExecutionDependencies
	log  logger.Logger
}

// NewExecutionsHandler creates a new executions handler.
func NewExecutionsHandler(deps ExecutionDependencies, log logger.Logger) *ExecutionsHandler {
	return &ExecutionsHandler{deps: deps, log: log}
}

type submitResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// HandleSubmit handles POST /executions.
func (h *ExecutionsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_execution"
	var req service.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		if classify(err) == ErrInternal {
			h.log.Error(r.Context(), "submit failed", logger.Error(err))
		}
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{ExecutionID: id, Status: "accepted"})
}

// HandleList handles GET /executions.
func (h *ExecutionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Executions(r.Context()))
}

// HandleGet handles GET /executions/{executionID}.
func (h *ExecutionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_execution"
	exec, err := h.deps.Execution(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
