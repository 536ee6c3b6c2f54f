package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/api/jobs"
)

// JobHandler serves job status lookups.
type JobHandler struct {
	jobs *jobs.Manager
}

// NewJobHandler creates the handler.
func NewJobHandler(jm *jobs.Manager) *JobHandler {
	return &JobHandler{jobs: jm}
}

// List returns all tracked jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.jobs.List())
}

// Get returns a single job by ID.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}
	job := h.jobs.Get(id)
	if job == nil {
		NotFound(w, "no such job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
