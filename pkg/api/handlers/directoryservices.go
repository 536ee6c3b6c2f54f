package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/api/jobs"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/runtime"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/validate"
)

// DirectoryService is the runtime surface the HTTP handlers drive.
type DirectoryService interface {
	State(ctx context.Context) (models.LifecycleState, error)
	Config(ctx context.Context) (*models.MembershipConfig, error)
	DomainInfo(ctx context.Context, domain string) (*realm.DomainInfo, error)
	Update(ctx context.Context, req *models.MembershipConfig, progress runtime.Reporter) (*runtime.UpdateResult, error)
	Leave(ctx context.Context, creds runtime.LeaveCredentials, progress runtime.Reporter) error
}

// DirectoryServiceHandler serves the Active Directory configuration
// surface. Mutating operations run as jobs because a join or leave can
// take minutes.
type DirectoryServiceHandler struct {
	svc  DirectoryService
	jobs *jobs.Manager
}

// NewDirectoryServiceHandler creates the handler.
func NewDirectoryServiceHandler(svc DirectoryService, jm *jobs.Manager) *DirectoryServiceHandler {
	return &DirectoryServiceHandler{svc: svc, jobs: jm}
}

// GetConfig returns the current membership configuration. The bind
// password is write-only and never appears in responses.
func (h *DirectoryServiceHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	cfg.BindPW = ""
	writeJSON(w, http.StatusOK, cfg)
}

// GetState returns the persisted lifecycle state.
func (h *DirectoryServiceHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.State(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

// GetDomainInfo queries the joined domain, or the domain passed in the
// "domain" query parameter.
func (h *DirectoryServiceHandler) GetDomainInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.DomainInfo(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// UpdateConfig validates the submitted configuration and dispatches
// the resulting lifecycle transition as a job. The response is 202
// with the job snapshot; clients poll /api/v1/jobs/{id}.
//
// The body is a partial update: fields absent from the request keep
// their current values. Decoding over the stored configuration gives
// exactly that overlay.
func (h *DirectoryServiceHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	current, err := h.svc.Config(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	var req models.MembershipConfig
	if current != nil {
		req = *current
		req.BindPW = ""
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	job := h.jobs.Launch("directoryservices.update", func(ctx context.Context, progress runtime.Reporter) (any, error) {
		res, err := h.svc.Update(ctx, &req, progress)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	writeJSON(w, http.StatusAccepted, job)
}

// LeaveRequest carries the privileged credentials for a domain leave.
type LeaveRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Leave dispatches a domain leave as a job.
func (h *DirectoryServiceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		BadRequest(w, "username and password are required")
		return
	}

	job := h.jobs.Launch("directoryservices.leave", func(ctx context.Context, progress runtime.Reporter) (any, error) {
		creds := runtime.LeaveCredentials{Username: req.Username, Password: req.Password}
		if err := h.svc.Leave(ctx, creds, progress); err != nil {
			return nil, err
		}
		return map[string]bool{"left": true}, nil
	})
	writeJSON(w, http.StatusAccepted, job)
}

// NSSInfoChoices returns the supported NSS info source identifiers.
func (h *DirectoryServiceHandler) NSSInfoChoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NSSInfoChoices())
}

// WriteServiceError maps service-layer errors to problem responses.
// Validation failures become 422 with field details, an in-flight
// operation becomes 409, everything else a 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	var verrors *validate.Errors
	if errors.As(err, &verrors) {
		fields := make([]FieldProblem, 0, len(verrors.All()))
		for _, fe := range verrors.All() {
			fields = append(fields, FieldProblem{Field: fe.Field, Message: fe.Message, Warning: fe.Warning})
		}
		WriteValidationProblem(w, fields)
		return
	}
	if errors.Is(err, models.ErrOperationInFlight) {
		Conflict(w, err.Error())
		return
	}
	InternalError(w, err.Error())
}
