// Package jobs tracks long-running directory service operations.
//
// Join and leave can take minutes. The API dispatches them as jobs and
// returns a job ID immediately; clients poll the job endpoint for
// progress and the terminal result.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/runtime"
)

// State is the lifecycle state of a job.
type State string

const (
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateFailed  State = "FAILED"
)

// Job is a snapshot of a tracked operation. Progress fields update
// while the job runs; Result and Error are set once it terminates.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Description string     `json:"description"`
	State       State      `json:"state"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Fn is the body of a job. It receives a progress reporter and returns
// the job result.
type Fn func(ctx context.Context, progress runtime.Reporter) (any, error)

// Manager launches and tracks jobs. Completed jobs are retained for
// polling; Prune discards those older than the retention window.
type Manager struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

// NewManager creates an empty job manager.
func NewManager() *Manager {
	return &Manager{jobs: make(map[uuid.UUID]*Job)}
}

// Launch starts fn in a new goroutine and returns the tracking snapshot
// immediately. The context passed to fn is detached from the HTTP
// request that dispatched it; the job outlives the request.
func (m *Manager) Launch(description string, fn Fn) *Job {
	job := &Job{
		ID:          uuid.New(),
		Description: description,
		State:       StateRunning,
		StartedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	progress := runtime.ReporterFunc(func(percent int, message string) {
		m.mu.Lock()
		job.Progress = percent
		job.Message = message
		m.mu.Unlock()
	})

	go func() {
		result, err := fn(context.Background(), progress)

		m.mu.Lock()
		defer m.mu.Unlock()
		now := time.Now().UTC()
		job.FinishedAt = &now
		if err != nil {
			job.State = StateFailed
			job.Error = err.Error()
			logger.Warn("Job failed", "job_id", job.ID, "description", description, "error", err)
			return
		}
		job.State = StateSuccess
		job.Progress = 100
		job.Result = result
	}()

	return m.snapshot(job)
}

// Get returns a snapshot of the job, or nil if unknown.
func (m *Manager) Get(id uuid.UUID) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	return m.snapshotLocked(job)
}

// List returns snapshots of all tracked jobs.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, m.snapshotLocked(job))
	}
	return out
}

// Prune discards terminated jobs older than the retention window.
func (m *Manager) Prune(retention time.Duration) {
	cutoff := time.Now().UTC().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

// PruneLoop runs Prune on the given interval until ctx is cancelled.
// Long-running daemons use it to keep the job map bounded.
func (m *Manager) PruneLoop(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Prune(retention)
		}
	}
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(job)
}

func (m *Manager) snapshotLocked(job *Job) *Job {
	cp := *job
	return &cp
}
