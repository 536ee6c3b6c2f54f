package handlers

import (
	"context"
	"net/http"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

// StateProber reads the persisted lifecycle state. The health handler
// uses it as its readiness signal: if the database answers, the
// controller can serve requests.
type StateProber interface {
	State(ctx context.Context) (models.LifecycleState, error)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	prober StateProber
}

// NewHealthHandler creates a health handler backed by the given prober.
func NewHealthHandler(prober StateProber) *HealthHandler {
	return &HealthHandler{prober: prober}
}

// probeReply is the payload of both health endpoints.
type probeReply struct {
	Status string            `json:"status"`
	Detail map[string]string `json:"detail,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Liveness reports that the process is running. It never touches
// storage so it cannot fail on a degraded database.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, probeReply{
		Status: "healthy",
		Detail: map[string]string{"service": "dscontrollerd"},
	})
}

// Readiness reports whether the controller can serve configuration
// requests, which requires a reachable state store.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	state, err := h.prober.State(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, probeReply{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, probeReply{
		Status: "healthy",
		Detail: map[string]string{"state": string(state)},
	})
}
