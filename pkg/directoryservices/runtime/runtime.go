package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/krb5"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/store"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/validate"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/metrics/prometheus"
)

// DefaultSPNTimeout bounds the service-principal provisioning sub-task.
const DefaultSPNTimeout = 300 * time.Second

// defaultSiteName is the directory site reported when sites and
// subnets are unconfigured.
const defaultSiteName = "Default-First-Site-Name"

// defaultNTPPool identifies the factory-default time sources. The NTP
// auto-configuration only runs when the user has not customized them.
const defaultNTPPool = "debian.pool.ntp.org"

// Deps carries the collaborators the runtime coordinates.
type Deps struct {
	Store     store.Store
	Gate      *validate.Gate
	Broker    *krb5.Broker
	Authority realm.Authority

	SMB      SMBConfigurator
	Etc      EtcGenerator
	Services ServiceController
	DNS      DNSRegistrar
	SPN      SPNProvisioner
	Keytabs  KeytabManager
	Idmap    IdmapManager
	NTP      NTPManager
	Secrets  SecretsBackup
	Cache    CacheRefresher
	Network  NetworkConfigurator

	// SPNTimeout overrides DefaultSPNTimeout when non-zero.
	SPNTimeout time.Duration
}

// Runtime is the membership lifecycle controller.
type Runtime struct {
	deps  Deps
	locks *LockRegistry
}

// New creates a Runtime from its collaborators.
func New(deps Deps) *Runtime {
	if deps.SPNTimeout == 0 {
		deps.SPNTimeout = DefaultSPNTimeout
	}
	return &Runtime{
		deps:  deps,
		locks: NewLockRegistry(),
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State(ctx context.Context) (models.LifecycleState, error) {
	return r.deps.Store.State(ctx)
}

// Config returns a copy of the current membership configuration with
// the SMB identity attached.
func (r *Runtime) Config(ctx context.Context) (*models.MembershipConfig, error) {
	cfg, err := r.deps.Store.Membership(ctx)
	if err != nil {
		return nil, err
	}
	if smb, err := r.deps.SMB.Config(ctx); err == nil {
		cfg.NetbiosName = smb.NetbiosName
	}
	return cfg, nil
}

// DomainInfo queries information about the named domain, or the
// currently joined one when domain is empty.
func (r *Runtime) DomainInfo(ctx context.Context, domain string) (*realm.DomainInfo, error) {
	return r.deps.Authority.DomainInfo(ctx, domain)
}

// guardInFlight rejects a new lifecycle operation while the persisted
// state says one is already running. Unlike the lock registry, the
// persisted state survives process restarts: a JOINING or LEAVING left
// behind by an interrupted operation keeps blocking until an operator
// resolves it instead of being silently run over.
func (r *Runtime) guardInFlight(ctx context.Context) error {
	state, err := r.deps.Store.State(ctx)
	if err != nil {
		return err
	}
	if state.InFlight() {
		return fmt.Errorf("%w: lifecycle state is %s", models.ErrOperationInFlight, state)
	}
	return nil
}

// setState persists the lifecycle state, logging persistence failures.
func (r *Runtime) setState(ctx context.Context, state models.LifecycleState) {
	if err := r.deps.Store.SetState(ctx, state); err != nil {
		logger.Error("Failed to persist lifecycle state", "state", state, "error", err)
	}
	prometheus.SetLifecycleState(string(state), allStateNames())
}

func allStateNames() []string {
	states := []models.LifecycleState{
		models.StateDisabled,
		models.StateJoining,
		models.StateHealthy,
		models.StateFaulted,
		models.StateLeaving,
	}
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}

// ensureRealmRecord guarantees a kerberos realm record exists for the
// domain and that the membership config references it. The realm field
// must be populated before ticket-based realm commands can run.
func (r *Runtime) ensureRealmRecord(ctx context.Context, cfg *models.MembershipConfig) error {
	if cfg.KerberosRealmID != nil {
		return nil
	}

	rec, err := r.deps.Store.RealmByName(ctx, strings.ToUpper(cfg.DomainName))
	if errors.Is(err, models.ErrRealmNotFound) {
		rec = &models.KerberosRealm{Realm: strings.ToUpper(cfg.DomainName)}
		if _, err := r.deps.Store.CreateRealm(ctx, rec); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	cfg.KerberosRealmID = &rec.ID
	return r.deps.Store.UpdateMembership(ctx, cfg)
}

// setKerberosServers pins the realm record to the site-specific
// kerberos servers advertised by the domain controller.
func (r *Runtime) setKerberosServers(ctx context.Context, cfg *models.MembershipConfig, dc *realm.DCInfo) error {
	if cfg.KerberosRealmID == nil || len(dc.KDCServers) == 0 {
		return nil
	}
	rec, err := r.deps.Store.RealmByID(ctx, *cfg.KerberosRealmID)
	if err != nil {
		return err
	}
	rec.KDCs = strings.Join(dc.KDCServers, " ")
	return r.deps.Store.UpdateRealm(ctx, rec)
}

// setNTPServers configures the domain controller as a preferred time
// source. The rule is deliberately conservative: it only applies when
// the three factory-default pool servers are untouched and the DC
// advertises time services.
func (r *Runtime) setNTPServers(ctx context.Context) error {
	servers, err := r.deps.NTP.Servers(ctx)
	if err != nil {
		return err
	}

	defaults := 0
	for _, s := range servers {
		if strings.Contains(s.Address, defaultNTPPool) {
			defaults++
		}
	}
	if len(servers) != 3 || defaults != 3 {
		return nil
	}

	dc, err := r.deps.Authority.LookupDC(ctx, "")
	if err != nil {
		logger.Warn("Failed to automatically set time source.", "error", err)
		return nil
	}
	if !dc.Flags.RunningTimeServices {
		return nil
	}

	return r.deps.NTP.Create(ctx, NTPServer{Address: dc.DCName, Prefer: true})
}

// addPrivileges grants the realm's administrative group full control
// of the appliance. Idempotent: an existing grant is kept as is.
func (r *Runtime) addPrivileges(ctx context.Context, domain, workgroup string) error {
	if _, err := r.deps.Store.PrivilegeByName(ctx, domain); err == nil {
		return nil
	} else if !errors.Is(err, models.ErrPrivilegeNotFound) {
		return err
	}

	sid, err := r.deps.Idmap.DomainSID(ctx, workgroup)
	if err != nil {
		return err
	}

	// RID 512 is the domain's administrative group.
	return r.deps.Store.CreatePrivilege(ctx, &models.Privilege{
		Name:      domain,
		GroupSID:  sid + "-512",
		Allowlist: `[{"method": "*", "resource": "*"}]`,
		WebShell:  true,
	})
}

// removePrivileges deletes any auto-granted privilege for the domain.
func (r *Runtime) removePrivileges(ctx context.Context, domain string) error {
	err := r.deps.Store.DeletePrivilege(ctx, domain)
	if errors.Is(err, models.ErrPrivilegeNotFound) {
		return nil
	}
	return err
}
