package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/platefeed/recsys/internal/api/response"
	"github.com/platefeed/recsys/internal/recerrors"
	"github.com/platefeed/recsys/internal/scenario"
)

// ScenarioRunner runs a named evaluation scenario against the live snapshot.
type ScenarioRunner interface {
	Run(ctx context.Context, name string) (*scenario.Report, error)
	Names() []string
}

// ScenarioHandler handles POST /v1/scenarios/{name}
type ScenarioHandler struct {
	evaluator ScenarioRunner
}

// NewScenarioHandler creates a new scenario handler
func NewScenarioHandler(evaluator ScenarioRunner) *ScenarioHandler {
	return &ScenarioHandler{evaluator: evaluator}
}

// Run handles POST /v1/scenarios/{name}
func (h *ScenarioHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		response.RespondBadRequest(w, "Scenario name is required")
		return
	}

	report, err := h.evaluator.Run(r.Context(), name)
	if err != nil {
		if errors.Is(err, recerrors.ErrNotFound) {
			response.RespondNotFound(w, "Unknown scenario: "+name)
			return
		}
		response.RespondInternalServerError(w, "Scenario run failed")
		return
	}

	response.RespondJSON(w, http.StatusOK, report)
}
