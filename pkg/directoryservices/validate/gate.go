// Package validate implements the validation gate for membership
// configuration changes.
//
// The gate is side-effect free with respect to persisted state: it
// only gathers facts from its collaborators and either returns the
// normalized configuration or a batch of field-scoped errors.
package validate

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/krb5"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
)

// MaxClockSkew is the largest tolerated clock offset from the domain
// controller. The system kerberos libraries may not report a larger
// offset as an error during ticket acquisition, but it will prevent
// the ticket from being used for the join.
const MaxClockSkew = 180 * time.Second

// PoolChecker reports whether a storage pool exists.
type PoolChecker interface {
	HasPool(ctx context.Context) (bool, error)
}

// CompetingServiceChecker reports whether a competing directory-service
// mode is enabled.
type CompetingServiceChecker interface {
	LDAPEnabled(ctx context.Context) (bool, error)
}

// IdmapChecker reports ID-mapping backend capabilities.
type IdmapChecker interface {
	MayEnableTrustedDomains(ctx context.Context) (bool, error)
}

// DNSChecker gathers DNS-derived environment facts.
type DNSChecker interface {
	// NetbiosNameInUse reports whether the name resolves to a DNS
	// record owned by another computer in the domain.
	NetbiosNameInUse(ctx context.Context, netbiosName, domain string, timeout time.Duration) (bool, error)

	// CheckNameservers verifies the configured nameservers can resolve
	// the domain's service records.
	CheckNameservers(ctx context.Context, domain, site string, timeout time.Duration) error

	// CandidateAddresses resolves the appliance addresses that an
	// automatic DNS update would register.
	CandidateAddresses(ctx context.Context) ([]net.IP, error)
}

// RealmStore resolves kerberos realm references.
type RealmStore interface {
	RealmByID(ctx context.Context, id uint) (*models.KerberosRealm, error)
}

// CredentialValidator performs the pre-flight ticket acquisition.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context, cfg *models.MembershipConfig, kdcHint string) error
}

// Gate validates a proposed membership configuration change against
// the current configuration and environment-derived facts.
type Gate struct {
	Pools     PoolChecker
	LDAP      CompetingServiceChecker
	Idmap     IdmapChecker
	DNS       DNSChecker
	Realms    RealmStore
	Authority realm.Authority
	Broker    CredentialValidator
}

// mutableWhileEnabled lists the fields that may change while the
// service stays enabled. Everything else is frozen to avoid
// introducing configuration errors that could cause an outage.
var mutableWhileEnabled = map[string]bool{
	"verbose_logging":    true,
	"use_default_domain": true,
	"allow_trusted_doms": true,
	"disable_cache":      true,
	"restrict_pam":       true,
	"timeout":            true,
	"dns_timeout":        true,
}

// Validate checks the proposed configuration. It returns the
// normalized config on success, or an *Errors batch carrying every
// independent field problem found in this pass. No persisted state is
// mutated here.
func (g *Gate) Validate(ctx context.Context, new, old *models.MembershipConfig) (*models.MembershipConfig, error) {
	verrors := &Errors{}
	new.Normalize()

	g.checkNetbiosCollision(ctx, new, verrors)

	if new.KerberosRealmID != nil && !sameRealmRef(new.KerberosRealmID, old.KerberosRealmID) {
		if _, err := g.Realms.RealmByID(ctx, *new.KerberosRealmID); err != nil {
			verrors.Add("kerberos_realm", "Invalid Kerberos realm id. Realm does not exist.")
		}
	}

	if !new.Enabled {
		// The bind password is only meaningful when enabling the
		// service; it is never stored, so a disable request carrying
		// one is a caller mistake.
		if new.BindPW != "" && new.KerberosRealmID == nil {
			verrors.Add("bindpw",
				"The Active Directory bind password is only used when enabling the active "+
					"directory service for the first time and is not stored persistently. Therefore it "+
					"is only valid when enabling the service.")
		}
		if err := verrors.Check(); err != nil {
			return nil, err
		}
		return new, nil
	}

	g.checkEnableRequirements(ctx, new, old, verrors)

	if new.AllowTrustedDoms {
		ok, err := g.Idmap.MayEnableTrustedDomains(ctx)
		if err != nil || !ok {
			verrors.Add("allow_trusted_doms",
				"Configuration for trusted domains requires that the idmap backend "+
					"be configured to handle these domains. Configure the AUTORID backend for the "+
					"joined domain, or separate idmap ranges for every trusted domain with accounts "+
					"that will be used on this server.")
		}
	}

	if new.AllowDNSUpdates {
		g.checkCandidateAddresses(ctx, verrors)
	}

	// Live health checks run on first-time enables only; a re-enable
	// reuses the already established machine credentials.
	if new.Enabled && !old.Enabled {
		g.checkDomainHealth(ctx, new, verrors)
	}

	if err := verrors.Check(); err != nil {
		return nil, err
	}
	return new, nil
}

// checkNetbiosCollision warns when the appliance's flat name appears
// to be registered to another computer in domain DNS. Inability to
// perform the check is not a finding.
func (g *Gate) checkNetbiosCollision(ctx context.Context, new *models.MembershipConfig, verrors *Errors) {
	if new.NetbiosName == "" || new.DomainName == "" {
		return
	}
	inUse, err := g.DNS.NetbiosNameInUse(ctx, new.NetbiosName, new.DomainName, new.DNSTimeout())
	if err != nil {
		logger.Debug("NetBIOS name collision check failed", "error", err)
		return
	}
	if inUse {
		verrors.AddWarning("netbiosname",
			fmt.Sprintf("NetBIOS name [%s] appears to be in use by another computer in Active Directory DNS. "+
				"Further investigation and DNS corrections will be required prior to using the aforementioned name to "+
				"join Active Directory.", new.NetbiosName))
	}
}

// checkEnableRequirements covers the structural rules for an enable
// request: storage pool present, no competing directory service, realm
// frozen while active, exactly one credential mode, and the immutable
// field set when the service stays enabled.
func (g *Gate) checkEnableRequirements(ctx context.Context, new, old *models.MembershipConfig, verrors *Errors) {
	hasPool, err := g.Pools.HasPool(ctx)
	if err == nil && !hasPool {
		verrors.Add("enable",
			"Active Directory service may not be enabled before data pool is created.")
	}

	ldapEnabled, err := g.LDAP.LDAPEnabled(ctx)
	if err == nil && ldapEnabled {
		verrors.Add("enable",
			"Active Directory service may not be enabled while LDAP service is enabled.")
	}

	if new.Enabled && old.Enabled && !sameRealmRef(new.KerberosRealmID, old.KerberosRealmID) {
		verrors.Add("kerberos_realm",
			"Kerberos realm may not be altered while the AD service is enabled. "+
				"This is to avoid introducing possible configuration errors that may result "+
				"in a production outage.")
	}

	if new.BindPW == "" && new.KerberosPrincipal == "" {
		verrors.Add("bindname",
			"Bind credentials or kerberos keytab are required to join an AD domain.")
	}
	if new.BindPW != "" && new.KerberosPrincipal != "" {
		verrors.Add("kerberos_principal",
			"Simultaneous keytab and password authentication are not permitted.")
	}
	if new.DomainName == "" {
		verrors.Add("domainname", "AD domain name is required.")
	}

	if new.Enabled && old.Enabled {
		for field, changed := range diffFields(new, old) {
			if changed && !mutableWhileEnabled[field] {
				verrors.Add(field,
					"Parameter may not be changed while the Active Directory service is enabled.")
			}
		}
	}
}

// checkCandidateAddresses rejects every resolved address that an
// automatic DNS update would register but that is not routable from
// domain members.
func (g *Gate) checkCandidateAddresses(ctx context.Context, verrors *Errors) {
	addresses, err := g.DNS.CandidateAddresses(ctx)
	if err != nil || len(addresses) == 0 {
		verrors.Add("allow_dns_updates",
			"No server IP addresses passed DNS validation. "+
				"This may indicate an improperly configured reverse zone.")
		return
	}

	for _, addr := range addresses {
		if isReserved(addr) {
			verrors.Add("allow_dns_updates", addrRejection(addr, "a reserved"))
		}
		if addr.IsLoopback() {
			verrors.Add("allow_dns_updates", addrRejection(addr, "a loopback"))
		}
		if addr.IsLinkLocalUnicast() {
			verrors.Add("allow_dns_updates", addrRejection(addr, "a link-local"))
		}
		if addr.IsMulticast() {
			verrors.Add("allow_dns_updates", addrRejection(addr, "a multicast"))
		}
	}
}

// checkDomainHealth performs the live first-enable checks: domain
// discovery, clock offset, nameserver reachability, and a credential
// validation whose failures are translated into field errors through
// the classification table.
func (g *Gate) checkDomainHealth(ctx context.Context, new *models.MembershipConfig, verrors *Errors) {
	info, err := g.Authority.DomainInfo(ctx, new.DomainName)
	if err != nil {
		verrors.Add("domainname", err.Error())
		return
	}

	offset := time.Duration(abs(info.ServerTimeOffset)) * time.Second
	if offset > MaxClockSkew {
		verrors.Add("domainname",
			"Time offset from Active Directory domain exceeds maximum "+
				"permitted value. This may indicate an NTP misconfiguration.")
		return
	}

	if err := g.DNS.CheckNameservers(ctx, new.DomainName, new.Site, new.DNSTimeout()); err != nil {
		verrors.Add("domainname", err.Error())
		return
	}

	if err := g.Broker.ValidateCredentials(ctx, new, info.KDCServer); err != nil {
		if kerr, ok := krb5.AsError(err); ok {
			c := krb5.Classify(kerr, new.KerberosPrincipal != "", new.BindName)
			verrors.Add(c.Field, c.Message)
			return
		}
		verrors.Add("bindname", err.Error())
	}
}

// diffFields reports which update-relevant fields differ between the
// proposed and current configuration, keyed by field name.
func diffFields(new, old *models.MembershipConfig) map[string]bool {
	return map[string]bool{
		"domainname":         new.DomainName != old.DomainName,
		"bindname":           new.BindName != old.BindName,
		"verbose_logging":    new.VerboseLogging != old.VerboseLogging,
		"use_default_domain": new.UseDefaultDomain != old.UseDefaultDomain,
		"allow_trusted_doms": new.AllowTrustedDoms != old.AllowTrustedDoms,
		"allow_dns_updates":  new.AllowDNSUpdates != old.AllowDNSUpdates,
		"disable_cache":      new.DisableCache != old.DisableCache,
		"restrict_pam":       new.RestrictPAM != old.RestrictPAM,
		"site":               new.Site != old.Site,
		"timeout":            new.TimeoutSeconds != old.TimeoutSeconds,
		"dns_timeout":        new.DNSTimeoutSeconds != old.DNSTimeoutSeconds,
		"nss_info":           new.NSSInfo != old.NSSInfo,
		"kerberos_realm":     !sameRealmRef(new.KerberosRealmID, old.KerberosRealmID),
		"kerberos_principal": new.KerberosPrincipal != old.KerberosPrincipal,
		"createcomputer":     new.CreateComputer != old.CreateComputer,
	}
}

func sameRealmRef(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// isReserved reports whether the IPv4 address is in 240.0.0.0/4.
func isReserved(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4[0] >= 240
}

func addrRejection(addr net.IP, kind string) string {
	return fmt.Sprintf("%s: automatic DNS update would result in registering %s "+
		"address. Users may disable automatic DNS updates and manually "+
		"configure DNS A and AAAA records as needed for their domain.", addr, kind)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
