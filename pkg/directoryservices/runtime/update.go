package runtime

import (
	"context"
	"fmt"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/validate"
)

// UpdateResult reports what an Update call did beyond persisting the
// configuration.
type UpdateResult struct {
	Config *models.MembershipConfig

	// JoinPerformed is set when the update enabled the service and the
	// join pipeline ran.
	JoinPerformed bool

	// JoinStatus is the terminal probe status of the join pipeline,
	// empty when no join ran.
	JoinStatus string
}

// Update validates and persists a membership configuration change and
// drives the resulting lifecycle transition: enabling a disabled
// service starts the join pipeline, disabling an enabled one tears the
// service down without leaving the domain.
//
// Only one lifecycle operation may run at a time; a concurrent Update
// or Leave fails fast with ErrOperationInFlight instead of queueing.
func (r *Runtime) Update(ctx context.Context, req *models.MembershipConfig, progress Reporter) (*UpdateResult, error) {
	release, ok := r.locks.TryAcquire(startStopLock)
	if !ok {
		return nil, models.ErrOperationInFlight
	}
	defer release()

	if err := r.guardInFlight(ctx); err != nil {
		return nil, err
	}

	old, err := r.deps.Store.Membership(ctx)
	if err != nil {
		return nil, err
	}
	smb, err := r.deps.SMB.Config(ctx)
	if err != nil {
		return nil, err
	}
	old.NetbiosName = smb.NetbiosName
	if req.NetbiosName == "" {
		req.NetbiosName = smb.NetbiosName
	}

	// The flat name lives in the SMB configuration, not here. While
	// the machine account exists it must not drift, because the
	// account name is derived from it.
	netbiosChanged := req.NetbiosName != smb.NetbiosName
	if netbiosChanged && old.Enabled {
		verrors := &validate.Errors{}
		verrors.Add("netbiosname",
			"NetBIOS name may not be changed while the Active Directory service is enabled.")
		return nil, verrors
	}

	cfg, err := r.deps.Gate.Validate(ctx, req, old)
	if err != nil {
		return nil, err
	}

	if netbiosChanged {
		if err := r.deps.SMB.SetNetbiosName(ctx, cfg.NetbiosName); err != nil {
			return nil, fmt.Errorf("failed to update SMB netbios name: %w", err)
		}
	}

	if err := r.deps.Store.UpdateMembership(ctx, cfg); err != nil {
		return nil, err
	}
	r.regenerate(ctx, "smb")

	res := &UpdateResult{Config: cfg}
	switch {
	case cfg.Enabled && !old.Enabled:
		r.updateNetworkDomain(ctx, cfg.DomainName)
		status, err := r.startJoin(ctx, progress)
		if err != nil {
			return nil, err
		}
		res.JoinPerformed = true
		res.JoinStatus = status.String()
		if status != realm.Joined {
			logger.Warn("Active Directory service started in a degraded state",
				"status", status.String())
		}

	case !cfg.Enabled && old.Enabled:
		if err := r.stop(ctx, cfg, progress); err != nil {
			return nil, err
		}

	case cfg.Enabled && old.Enabled:
		// Configuration changed underneath a running service; the
		// identity-mapping daemon re-reads it on restart.
		r.restartService(ctx, "idmap")
	}

	res.Config.BindPW = ""
	return res, nil
}

// updateNetworkDomain aligns the global network configuration with the
// directory domain on first enable. Failure here does not block the
// join; DNS updates simply use the old domain until corrected.
func (r *Runtime) updateNetworkDomain(ctx context.Context, domain string) {
	current, err := r.deps.Network.Domain(ctx)
	if err != nil {
		logger.Warn("Failed to read network domain configuration", "error", err)
		return
	}
	if current == domain {
		return
	}
	if err := r.deps.Network.SetDomain(ctx, domain); err != nil {
		logger.Warn("Failed to update network domain configuration",
			"domain", domain, "error", err)
	}
}
