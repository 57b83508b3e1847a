// Package jobs serializes the heavy maintenance operations (reload,
// export, train) behind a single in-flight slot. A second trigger while
// one runs is rejected immediately rather than queued.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/platefeed/recsys/internal/recerrors"
)

// Status of a job over its lifetime. Jobs are not cancellable; a failure
// or panic surfaces as StatusFailed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one heavy operation's record. Copies are handed out; the manager
// owns the canonical one.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Metrics records job outcomes. A nil Metrics disables recording.
type Metrics interface {
	RecordJob(ctx context.Context, kind, outcome string)
}

// Manager owns the single job slot and the run history.
type Manager struct {
	logger  *slog.Logger
	metrics Metrics

	active atomic.Pointer[Job]

	mu      sync.RWMutex
	history map[string]*Job
}

func NewManager(logger *slog.Logger, metrics Metrics) *Manager {
	return &Manager{logger: logger, metrics: metrics, history: make(map[string]*Job)}
}

// Start claims the slot and runs fn in the background. If another job
// holds the slot, Start fails fast with a conflict naming the running
// job's kind; nothing is queued.
func (m *Manager) Start(kind string, fn func(ctx context.Context) error) (Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	if !m.active.CompareAndSwap(nil, job) {
		running := m.active.Load()
		if running == nil {
			// slot freed between the swap and the load; report plainly
			return Job{}, recerrors.NewConflictError("another job just finished, retry")
		}

		return Job{}, recerrors.NewConflictError(
			fmt.Sprintf("%s job %s is already running", running.Kind, running.ID))
	}

	m.mu.Lock()
	m.history[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("job started", "job_id", job.ID, "kind", kind)

	// copy before the goroutine can touch the record
	accepted := *job

	go m.run(job, fn)

	return accepted, nil
}

func (m *Manager) run(job *Job, fn func(ctx context.Context) error) {
	// invoke absorbs panics, so the slot always frees; freeing before the
	// terminal status lands means a poller that sees the job finish can
	// start the next one without racing the release
	err := m.invoke(fn)
	m.active.CompareAndSwap(job, nil)

	m.mu.Lock()
	defer m.mu.Unlock()

	job.FinishedAt = time.Now().UTC()

	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		m.logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		m.recordOutcome(job.Kind, "failed")

		return
	}

	job.Status = StatusSucceeded
	m.logger.Info("job finished", "job_id", job.ID, "kind", job.Kind,
		"duration", job.FinishedAt.Sub(job.StartedAt))
	m.recordOutcome(job.Kind, "succeeded")
}

func (m *Manager) recordOutcome(kind, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordJob(context.Background(), kind, outcome)
	}
}

// invoke runs fn, converting a panic into an error so the slot still
// frees and the job records a terminal status.
func (m *Manager) invoke(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return fn(context.Background())
}

// Status returns a copy of a job's record by id.
func (m *Manager) Status(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.history[id]
	if !ok {
		return Job{}, recerrors.NewNotFoundError("job", "job "+id+" not found")
	}

	return *job, nil
}

// Running returns the currently running job, if any.
func (m *Manager) Running() (Job, bool) {
	if job := m.active.Load(); job != nil {
		m.mu.RLock()
		defer m.mu.RUnlock()

		return *job, true
	}

	return Job{}, false
}
