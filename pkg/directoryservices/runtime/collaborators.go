package runtime

import (
	"context"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

// SMBInfo is the file-sharing service identity the join depends on.
type SMBInfo struct {
	NetbiosName string
	Aliases     []string

	// Workgroup is the locally configured short domain name. It must
	// match the authoritative value from the directory for the
	// appliance to operate as a member server.
	Workgroup string
}

// SMBConfigurator exposes the file-sharing service configuration.
type SMBConfigurator interface {
	Config(ctx context.Context) (*SMBInfo, error)
	SetWorkgroup(ctx context.Context, workgroup string) error
	SetNetbiosName(ctx context.Context, name string) error
}

// EtcGenerator triggers external configuration rendering for a named
// dependent component (smb, hostname, kerberos, pam, nss).
type EtcGenerator interface {
	Regenerate(ctx context.Context, component string) error
}

// ServiceController starts, stops, and restarts dependent services.
type ServiceController interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Reload(ctx context.Context, name string) error
	Enable(ctx context.Context, name string) error

	// RestartDependents restarts every service that consumes
	// directory-service identity information.
	RestartDependents(ctx context.Context) error
}

// DNSRegistrar manages the appliance's DNS records in the domain.
type DNSRegistrar interface {
	Register(ctx context.Context, cfg *models.MembershipConfig, smb *SMBInfo) error
	Unregister(ctx context.Context, cfg *models.MembershipConfig) error
}

// SPNWaiter is an in-flight service-principal provisioning sub-task.
type SPNWaiter interface {
	// Wait blocks until the sub-task completes or ctx expires.
	Wait(ctx context.Context) error
}

// SPNProvisioner registers service principals for the computer
// account. Provisioning may take over a minute, so it is dispatched as
// an independently progress-reporting sub-task and awaited.
type SPNProvisioner interface {
	AddServicePrincipals(ctx context.Context, netbiosName, domain string) (SPNWaiter, error)
}

// KeytabManager handles the machine-account keytab material.
type KeytabManager interface {
	// StoreMachineKeytab persists the keys generated during the join.
	StoreMachineKeytab(ctx context.Context) error

	// RecoverMachineKeytab rebuilds the keytab record from persisted
	// secrets when the principal is configured but the record is gone.
	RecoverMachineKeytab(ctx context.Context, domain string) error

	// RemoveSystemKeytab deletes the local keytab file. Absence is not
	// an error.
	RemoveSystemKeytab(ctx context.Context) error
}

// IdmapManager configures the ID-mapping subsystem.
type IdmapManager interface {
	// ConfigureRanges assigns ID-mapping ranges for the joined domain.
	ConfigureRanges(ctx context.Context, domain string, allowTrustedDoms bool) error

	// DomainSID returns the SID of the named short domain.
	DomainSID(ctx context.Context, workgroup string) (string, error)
}

// NTPServer is a configured time source.
type NTPServer struct {
	Address string
	Prefer  bool
}

// NTPManager manages the appliance's time sources.
type NTPManager interface {
	Servers(ctx context.Context) ([]NTPServer, error)
	Create(ctx context.Context, server NTPServer) error
}

// SecretsBackup persists the directory-service secrets database.
type SecretsBackup interface {
	Backup(ctx context.Context) error
}

// CacheRefresher manages the directory user/group cache.
type CacheRefresher interface {
	Refresh(ctx context.Context) error
	AbortRefresh(ctx context.Context) error
}

// NetworkConfigurator exposes the global network configuration.
type NetworkConfigurator interface {
	Domain(ctx context.Context) (string, error)
	SetDomain(ctx context.Context, domain string) error
}
