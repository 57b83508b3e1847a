package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/platefeed/recsys/internal/api/response"
	"github.com/platefeed/recsys/internal/jobs"
	"github.com/platefeed/recsys/internal/recerrors"
)

// Job kinds accepted by the admin endpoints.
const (
	JobKindReload = "reload"
	JobKindExport = "export"
	JobKindTrain  = "train"
)

// JobRunner starts heavy background jobs and reports their status.
type JobRunner interface {
	Start(kind string, fn func(ctx context.Context) error) (jobs.Job, error)
	Status(id string) (jobs.Job, error)
}

// AdminHandler exposes the heavy operational jobs: snapshot reload, data
// export and model training. At most one job runs at a time.
type AdminHandler struct {
	jobs   JobRunner
	reload func(ctx context.Context) error
	export func(ctx context.Context) error
	train  func(ctx context.Context) error
}

// NewAdminHandler creates an admin handler. export and train may be nil when
// the export pipeline is not configured.
func NewAdminHandler(runner JobRunner, reload, export, train func(ctx context.Context) error) *AdminHandler {
	return &AdminHandler{jobs: runner, reload: reload, export: export, train: train}
}

// JobAcceptedResponse is returned when a job is started
type JobAcceptedResponse struct {
	JobID string `json:"job_id"`
}

// Reload handles POST /v1/admin/reload
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, JobKindReload, h.reload)
}

// Export handles POST /v1/admin/export
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, JobKindExport, h.export)
}

// Train handles POST /v1/admin/train
func (h *AdminHandler) Train(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, JobKindTrain, h.train)
}

// JobStatus handles GET /v1/admin/jobs/{id}
func (h *AdminHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.RespondBadRequest(w, "Job ID is required")
		return
	}

	job, err := h.jobs.Status(id)
	if err != nil {
		if errors.Is(err, recerrors.ErrNotFound) {
			response.RespondNotFound(w, "Job not found")
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, job)
}

func (h *AdminHandler) startJob(w http.ResponseWriter, kind string, fn func(ctx context.Context) error) {
	if fn == nil {
		response.RespondServiceUnavailable(w, "The "+kind+" job is not configured")
		return
	}

	job, err := h.jobs.Start(kind, fn)
	if err != nil {
		if errors.Is(err, recerrors.ErrConflict) {
			response.RespondConflict(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondAccepted(w, JobAcceptedResponse{JobID: job.ID})
}
