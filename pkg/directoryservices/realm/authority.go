package realm

import (
	"context"
	"fmt"
)

// DCFlags carries capability flags advertised by a domain controller.
type DCFlags struct {
	RunningTimeServices bool `json:"Is running time services"`
}

// DCInfo is the result of a domain-controller lookup.
type DCInfo struct {
	// ClientSiteName is the directory site the appliance's subnet maps
	// to, "Default-First-Site-Name" when sites are unconfigured.
	ClientSiteName string `json:"Client Site Name"`

	// PreWin2kDomain is the authoritative short (flat) domain name.
	PreWin2kDomain string `json:"Pre-Win2k Domain"`

	// DCName is the responding domain controller.
	DCName string `json:"Information for Domain Controller"`

	// KDCServers are site-specific kerberos servers, when advertised.
	KDCServers []string `json:"KDC servers,omitempty"`

	Flags DCFlags `json:"Flags"`
}

// DomainInfo is the result of a domain information query.
type DomainInfo struct {
	LDAPServer     string `json:"LDAP server"`
	LDAPServerName string `json:"LDAP server name"`
	Realm          string `json:"Realm"`
	LDAPPort       int    `json:"LDAP port"`
	ServerTime     int64  `json:"Server time"`
	KDCServer      string `json:"KDC server"`

	// ServerTimeOffset is the measured clock offset from the domain
	// controller, in seconds.
	ServerTimeOffset int `json:"Server time offset"`

	LastMachinePasswordChange int64 `json:"Last machine account password change"`
}

// JoinRequest carries the parameters of a join call.
type JoinRequest struct {
	Domain   string
	BindName string

	// CreateComputer is the organizational unit for the new computer
	// account; empty means the domain default OU.
	CreateComputer string
}

// CommandError is an external command failure with its diagnostic
// output preserved for classification.
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed (exit %d)", e.Command, e.ExitCode)
}

// Authority is the realm operations contract consumed by the
// membership lifecycle executors.
//
// All calls block and are bounded by the context deadline supplied by
// the caller.
type Authority interface {
	// LookupDC queries domain-controller information for the domain.
	LookupDC(ctx context.Context, domain string) (*DCInfo, error)

	// DomainInfo queries information about the domain, including the
	// measured server time offset. An empty domain queries the
	// currently joined domain.
	DomainInfo(ctx context.Context, domain string) (*DomainInfo, error)

	// TestJoin performs the non-mutating membership check. A nil error
	// means the computer account is valid. Failures are returned as
	// *CommandError with diagnostic text.
	TestJoin(ctx context.Context, workgroup string) error

	// Join joins the appliance to the domain using the kerberos ticket
	// in the system cache.
	Join(ctx context.Context, workgroup string, req JoinRequest) error

	// Leave removes the appliance's computer account from the domain.
	Leave(ctx context.Context, username string) error

	// FlushCache invalidates the local name/ID-mapping cache.
	FlushCache(ctx context.Context) error
}
