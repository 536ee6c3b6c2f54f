package runtime

import (
	"context"
	"errors"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/krb5"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/metrics/prometheus"
)

// LeaveCredentials is the privileged identity supplied for a leave
// operation. Like the bind password, it is never persisted.
type LeaveCredentials struct {
	Username string
	Password string
}

// Leave removes the appliance from the domain: the computer account is
// deleted and all realm-identifying local configuration is cleared.
//
// Leave has no compensating action. It is maximally tolerant of
// partial failure because leaving must never be blocked by a
// half-broken domain relationship: a failed leave call is recorded and
// the local teardown proceeds to DISABLED regardless.
func (r *Runtime) Leave(ctx context.Context, creds LeaveCredentials, progress Reporter) error {
	release, ok := r.locks.TryAcquire(startStopLock)
	if !ok {
		return models.ErrOperationInFlight
	}
	defer release()

	if err := r.guardInFlight(ctx); err != nil {
		return err
	}

	progress = newMonotonicReporter(progress)
	timer := prometheus.NewOperationTimer("leave")

	cfg, err := r.deps.Store.Membership(ctx)
	if err != nil {
		return err
	}
	if cfg.DomainName == "" {
		return models.ErrNoDomain
	}

	cfg.BindName = creds.Username
	cfg.BindPW = creds.Password
	cfg.KerberosPrincipal = ""

	r.setState(ctx, models.StateLeaving)

	if err := r.removePrivileges(ctx, cfg.DomainName); err != nil {
		logger.Warn("Failed to remove Domain Admins privileges", "error", err)
	}

	progress.Report(5, "Obtaining kerberos ticket for privileged user.")
	if err := r.deps.Broker.Cache().Acquire(ctx, krb5.CredentialFor(cfg), ""); err != nil {
		timer.Observe("error")
		return err
	}

	progress.Report(10, "Leaving Active Directory domain.")
	leftCleanly := true
	if err := r.deps.Authority.Leave(ctx, creds.Username); err != nil {
		leftCleanly = false
		logger.Warn("Failed to leave domain", "error", err)
	}

	progress.Report(15, "Removing DNS entries")
	if err := r.deps.DNS.Unregister(ctx, cfg); err != nil {
		logger.Warn("Failed to remove DNS entries", "error", err)
	}

	progress.Report(20, "Removing kerberos keytab and realm.")
	if err := r.deps.Store.DeleteKeytab(ctx, models.MachineAccountKeytabName); err != nil &&
		!errors.Is(err, models.ErrKeytabNotFound) {
		logger.Warn("Failed to delete machine account keytab record", "error", err)
	}
	if cfg.KerberosRealmID != nil {
		if err := r.deps.Store.DeleteRealm(ctx, *cfg.KerberosRealmID); err != nil &&
			!errors.Is(err, models.ErrRealmNotFound) {
			logger.Warn("Failed to delete kerberos realm record", "error", err)
		}
	}

	// The secrets backup only makes sense when the domain actually
	// released the account; after a failed leave the stored secrets
	// are still the live ones.
	if leftCleanly {
		if err := r.deps.Secrets.Backup(ctx); err != nil {
			logger.Debug("Failed to remove stale secrets entries.", "error", err)
		}
	}

	progress.Report(30, "Clearing local Active Directory settings.")
	cfg.Enabled = false
	cfg.Site = ""
	cfg.BindName = ""
	cfg.BindPW = ""
	cfg.KerberosRealmID = nil
	cfg.KerberosPrincipal = ""
	cfg.DomainName = ""
	if err := r.deps.Store.UpdateMembership(ctx, cfg); err != nil {
		timer.Observe("error")
		return err
	}
	r.setState(ctx, models.StateDisabled)

	progress.Report(40, "Flushing caches.")
	if err := r.deps.Authority.FlushCache(ctx); err != nil {
		logger.Warn("Failed to flush cache after leaving Active Directory.", "error", err)
	}
	if err := r.deps.Keytabs.RemoveSystemKeytab(ctx); err != nil {
		logger.Warn("Failed to remove system keytab file", "error", err)
	}

	progress.Report(50, "Clearing kerberos configuration and ticket.")
	if err := r.deps.Broker.Cache().Destroy(ctx); err != nil {
		logger.Warn("Failed to destroy kerberos ticket", "error", err)
	}

	progress.Report(60, "Regenerating configuration.")
	r.regenerate(ctx, "pam", "nss", "smb")

	progress.Report(60, "Restarting services.")
	r.restartService(ctx, "cifs")
	r.restartService(ctx, "idmap")

	progress.Report(100, "Successfully left activedirectory domain.")
	timer.Observe("ok")
	return nil
}

// stop disables the directory service without leaving the domain. The
// membership and machine account remain intact so the service can be
// re-enabled later.
func (r *Runtime) stop(ctx context.Context, cfg *models.MembershipConfig, progress Reporter) error {
	progress = newMonotonicReporter(progress)

	progress.Report(0, "Preparing to stop Active Directory service")
	cfg.Enabled = false
	if err := r.deps.Store.UpdateMembership(ctx, cfg); err != nil {
		return err
	}
	r.setState(ctx, models.StateLeaving)

	progress.Report(5, "Stopping Active Directory monitor")
	r.regenerate(ctx, "hostname")

	progress.Report(10, "Stopping kerberos service")
	if err := r.deps.Broker.Cache().Destroy(ctx); err != nil {
		logger.Warn("Failed to destroy kerberos ticket", "error", err)
	}

	progress.Report(20, "Reconfiguring SMB.")
	if err := r.deps.Services.Stop(ctx, "cifs"); err != nil {
		logger.Warn("Failed to stop SMB service", "error", err)
	}
	r.restartService(ctx, "idmap")

	progress.Report(40, "Reconfiguring pam and nss.")
	r.regenerate(ctx, "pam", "nss")
	r.setState(ctx, models.StateDisabled)

	progress.Report(60, "clearing caches.")
	if err := r.deps.Cache.AbortRefresh(ctx); err != nil {
		logger.Warn("Failed to abort cache refresh", "error", err)
	}
	if err := r.deps.Services.Start(ctx, "cifs"); err != nil {
		logger.Warn("Failed to start SMB service", "error", err)
	}

	progress.Report(100, "Active Directory stop completed.")
	return nil
}
