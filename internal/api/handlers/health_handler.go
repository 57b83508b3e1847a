package handlers

import (
	"net/http"

	"github.com/platefeed/recsys/internal/api/response"
)

// ReadinessReporter reports whether an embedding snapshot is being served.
type ReadinessReporter interface {
	Ready() bool
	ModelVersion() string
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	readiness ReadinessReporter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(readiness ReadinessReporter) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status       string `json:"status"`
	Ready        bool   `json:"ready"`
	ModelVersion string `json:"model_version,omitempty"`
}

// Check handles GET /healthz. The process is alive as soon as it serves;
// ready flips once the first snapshot is built.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	body := HealthResponse{Status: "ok", Ready: h.readiness.Ready()}
	if body.Ready {
		body.ModelVersion = h.readiness.ModelVersion()
	}
	response.RespondJSON(w, http.StatusOK, body)
}
