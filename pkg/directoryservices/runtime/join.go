package runtime

import (
	"context"
	"fmt"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/krb5"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/metrics/prometheus"
)

// setupResult makes the compensation step of a failed post-join setup
// a visible, testable branch instead of an implicit catch block.
type setupResult struct {
	// compensated is true when a best-effort leave was attempted after
	// a setup failure.
	compensated bool

	// err is the original setup failure. Compensation errors are never
	// stored here; the original cause always wins.
	err error
}

// startJoin runs the join pipeline to completion or failure. The
// caller must hold the start-stop lock.
//
// A join that completes the protocol-level join but fails the final
// membership re-probe lands in FAULTED with a nil error: callers
// observe a named terminal status, not a raised failure.
func (r *Runtime) startJoin(ctx context.Context, progress Reporter) (result realm.Result, err error) {
	progress = newMonotonicReporter(progress)
	timer := prometheus.NewOperationTimer("join")
	defer func() { timer.Observe(result.String()) }()

	cfg, err := r.deps.Store.Membership(ctx)
	if err != nil {
		return realm.Fault, err
	}
	smb, err := r.deps.SMB.Config(ctx)
	if err != nil {
		return realm.Fault, err
	}
	cfg.NetbiosName = smb.NetbiosName
	workgroup := smb.Workgroup

	dc, err := r.deps.Authority.LookupDC(ctx, cfg.DomainName)
	if err != nil {
		return realm.Fault, err
	}

	r.setState(ctx, models.StateJoining)
	progress.Report(0, "Preparing to join Active Directory")
	if cfg.VerboseLogging {
		logger.Debug("Starting Active Directory service", "domain", cfg.DomainName)
	}

	// Persist the enabled flag before doing expensive work so a crash
	// mid-join is recoverable and observable.
	cfg.Enabled = true
	if err := r.deps.Store.UpdateMembership(ctx, cfg); err != nil {
		return r.abortJoin(ctx, err)
	}
	r.regenerate(ctx, "smb", "hostname")

	progress.Report(5, "Configuring Kerberos Settings.")
	if err := r.ensureRealmRecord(ctx, cfg); err != nil {
		return r.abortJoin(ctx, err)
	}

	if !r.deps.Broker.Cache().HasValid(ctx) {
		if err := r.deps.Broker.ValidateCredentials(ctx, cfg, ""); err != nil {
			return r.abortJoin(ctx, err)
		}
	}

	// The domain info is captured now, before the join, because the
	// same KDC must be used for the machine-account kinit later:
	// sysvol replication lag means only the originally contacted
	// server is guaranteed to know about a brand-new account.
	info, err := r.deps.Authority.DomainInfo(ctx, cfg.DomainName)
	if err != nil {
		return r.abortJoin(ctx, err)
	}

	progress.Report(20, "Detecting Active Directory Site.")
	if cfg.Site == "" {
		cfg.Site = dc.ClientSiteName
		if dc.ClientSiteName != defaultSiteName {
			if err := r.setKerberosServers(ctx, cfg, dc); err != nil {
				return r.abortJoin(ctx, err)
			}
		}
		if err := r.deps.Store.UpdateMembership(ctx, cfg); err != nil {
			return r.abortJoin(ctx, err)
		}
	}

	progress.Report(30, "Detecting Active Directory NetBIOS Domain Name.")
	if workgroup != dc.PreWin2kDomain {
		logger.Debug("Updating SMB workgroup", "workgroup", dc.PreWin2kDomain)
		if err := r.deps.SMB.SetWorkgroup(ctx, dc.PreWin2kDomain); err != nil {
			return r.abortJoin(ctx, err)
		}
		workgroup = dc.PreWin2kDomain
		r.regenerate(ctx, "smb")
	}

	progress.Report(40, "Performing testjoin to Active Directory Domain")
	machineAcct := cfg.MachinePrincipal()
	probeResult, probeErr := realm.ProbeMembership(ctx, r.deps.Authority, workgroup)

	switch probeResult {
	case realm.NotJoined:
		progress.Report(50, "Joining Active Directory Domain")
		logger.Debug("Test join failed. Performing domain join.", "domain", cfg.DomainName)
		if err := r.deps.Authority.Join(ctx, workgroup, realm.JoinRequest{
			Domain:         cfg.DomainName,
			BindName:       cfg.BindName,
			CreateComputer: cfg.CreateComputer,
		}); err != nil {
			return r.abortJoin(ctx, err)
		}

		if res := r.postJoinSetup(ctx, progress, cfg, smb); res.err != nil {
			r.setState(ctx, models.StateFaulted)
			return realm.Fault, res.err
		}

		cfg.KerberosPrincipal = machineAcct
		if err := r.deps.Store.UpdateMembership(ctx, cfg); err != nil {
			return r.abortJoin(ctx, err)
		}

		progress.Report(75, "Performing kinit using new computer account.")
		if err := r.machineAccountKinit(ctx, cfg, info.KDCServer); err != nil {
			return r.abortJoin(ctx, err)
		}

		progress.Report(80, "Configuring idmap backend and NTP servers.")
		r.configureDependentSubsystems(ctx, cfg)
		probeResult = realm.Joined

	case realm.Joined:
		// Already a member; the service may have been disabled and
		// re-enabled. Re-validate the stored principal.
		if cfg.KerberosPrincipal == "" {
			if _, err := r.deps.Store.KeytabByName(ctx, models.MachineAccountKeytabName); err != nil {
				// Rebuild the keytab from persisted secrets before
				// giving up on the stored machine identity.
				if rerr := r.deps.Keytabs.RecoverMachineKeytab(ctx, cfg.DomainName); rerr != nil {
					return r.abortJoin(ctx, rerr)
				}
			}
			cfg.KerberosPrincipal = machineAcct
			if err := r.deps.Store.UpdateMembership(ctx, cfg); err != nil {
				return r.abortJoin(ctx, err)
			}
		}

	default:
		// An unrecognized testjoin failure is not grounds for an
		// automatic rejoin; the appliance comes up FAULTED and the
		// diagnostic surfaces to the operator.
		logger.Warn("Membership probe failed with unrecognized diagnostic", "error", probeErr)
	}

	r.regenerate(ctx, "smb")
	r.restartService(ctx, "idmap")
	r.regenerate(ctx, "pam", "nss")

	if probeResult == realm.Joined {
		r.setState(ctx, models.StateHealthy)
		progress.Report(90, "Restarting dependent services.")
		if err := r.deps.Cache.Refresh(ctx); err != nil {
			logger.Warn("Failed to refresh directory service cache", "error", err)
		}
		if err := r.deps.Services.RestartDependents(ctx); err != nil {
			logger.Warn("Failed to restart dependent services", "error", err)
		}
		if cfg.VerboseLogging {
			logger.Debug("Successfully started AD service", "domain", cfg.DomainName)
		}
	} else {
		r.setState(ctx, models.StateFaulted)
		logger.Warn("Server is joined to domain, but is in a faulted state.", "domain", cfg.DomainName)
	}

	progress.Report(100, fmt.Sprintf("Active Directory start completed with status [%s]", probeResult))
	if err := r.deps.Services.Reload(ctx, "idmap"); err != nil {
		logger.Warn("Failed to reload idmap service", "error", err)
	}

	if probeResult == realm.Joined {
		progress.Report(100, "Granting privileges to domain admins.")
		if err := r.addPrivileges(ctx, cfg.DomainName, dc.PreWin2kDomain); err != nil {
			logger.Warn("Failed to grant Domain Admins privileges", "error", err)
		}
	}

	return probeResult, nil
}

// abortJoin records a failed join: the enabled flag stays set for
// operator visibility and the state lands in FAULTED.
func (r *Runtime) abortJoin(ctx context.Context, err error) (realm.Result, error) {
	r.setState(ctx, models.StateFaulted)
	return realm.Fault, err
}

// postJoinSetup runs the ordered setup sequence after a successful
// join call: DNS registration, service-principal provisioning, keytab
// persistence.
//
// On ANY failure a compensating leave is attempted with the original
// bind identity before the original error is returned. A join that
// fails partway must not leave the domain controller holding a
// computer account with no usable local configuration. The
// compensation's own failure is logged, never returned.
func (r *Runtime) postJoinSetup(ctx context.Context, progress Reporter, cfg *models.MembershipConfig, smb *SMBInfo) setupResult {
	err := r.runPostJoinSteps(ctx, progress, cfg, smb)
	if err == nil {
		return setupResult{}
	}

	logger.Error("Tasks subsequent to Active Directory join failed. "+
		"Attempting to roll-back join attempt.", "error", err)
	if lerr := r.deps.Authority.Leave(ctx, cfg.BindName); lerr != nil {
		logger.Warn("Compensating leave failed", "error", lerr)
	}
	return setupResult{compensated: true, err: err}
}

func (r *Runtime) runPostJoinSteps(ctx context.Context, progress Reporter, cfg *models.MembershipConfig, smb *SMBInfo) error {
	if err := r.deps.DNS.Register(ctx, cfg, smb); err != nil {
		return fmt.Errorf("failed to register DNS entries: %w", err)
	}

	// Service principals must be manipulated while the elevated
	// credentials are on hand, and provisioning may take over a
	// minute, so it runs as an awaited sub-task.
	progress.Report(60, "Adding NFS Principal entries.")
	waiter, err := r.deps.SPN.AddServicePrincipals(ctx, smb.NetbiosName, cfg.DomainName)
	if err != nil {
		return fmt.Errorf("failed to dispatch service principal provisioning: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.deps.SPNTimeout)
	defer cancel()
	if err := waiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("service principal provisioning failed: %w", err)
	}

	progress.Report(70, "Storing computer account keytab.")
	if err := r.deps.Keytabs.StoreMachineKeytab(ctx); err != nil {
		return fmt.Errorf("failed to store computer account keytab: %w", err)
	}
	return nil
}

// machineAccountKinit swaps the temporary administrative ticket for
// one backed by the new machine account, pinned to the KDC that
// performed the join.
func (r *Runtime) machineAccountKinit(ctx context.Context, cfg *models.MembershipConfig, kdc string) error {
	cache := r.deps.Broker.Cache()
	if err := cache.Destroy(ctx); err != nil {
		return err
	}
	if err := cache.Acquire(ctx, krb5.CredentialFor(cfg), kdc); err != nil {
		return err
	}
	if err := cache.WaitForRenewal(ctx); err != nil {
		return err
	}
	r.regenerate(ctx, "kerberos")
	return nil
}

// configureDependentSubsystems wires the ID-mapping ranges, time
// sources, and secrets backup after a performed join. Failures here
// are logged, never fatal.
func (r *Runtime) configureDependentSubsystems(ctx context.Context, cfg *models.MembershipConfig) {
	if err := r.deps.Services.Enable(ctx, "cifs"); err != nil {
		logger.Warn("Failed to enable SMB service", "error", err)
	}
	if err := r.deps.Idmap.ConfigureRanges(ctx, cfg.DomainName, cfg.AllowTrustedDoms); err != nil {
		logger.Warn("Failed to configure idmap ranges", "error", err)
	}
	if err := r.setNTPServers(ctx); err != nil {
		logger.Warn("Failed to configure NTP for the Active Directory domain. Additional "+
			"manual configuration may be required to ensure consistent time offset, "+
			"which is required for a stable domain join.", "error", err)
	}
	if err := r.deps.Secrets.Backup(ctx); err != nil {
		logger.Warn("Failed to back up directory service secrets", "error", err)
	}
}

// regenerate renders configuration for the named components, logging
// failures.
func (r *Runtime) regenerate(ctx context.Context, components ...string) {
	for _, c := range components {
		if err := r.deps.Etc.Regenerate(ctx, c); err != nil {
			logger.Warn("Failed to regenerate configuration", "component", c, "error", err)
		}
	}
}

func (r *Runtime) restartService(ctx context.Context, name string) {
	if err := r.deps.Services.Restart(ctx, name); err != nil {
		logger.Warn("Failed to restart service", "service", name, "error", err)
	}
}
