package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Pools reports storage pool availability through the middleware.
type Pools struct {
	runner *Runner
}

// NewPools creates the checker.
func NewPools(runner *Runner) *Pools {
	return &Pools{runner: runner}
}

func (p *Pools) HasPool(ctx context.Context) (bool, error) {
	var reply []struct {
		Name string `json:"name"`
	}
	if err := p.runner.callJSON(ctx, &reply, "pool.query"); err != nil {
		return false, err
	}
	return len(reply) > 0, nil
}

// LDAP reports whether the competing LDAP directory service mode is
// enabled.
type LDAP struct {
	runner *Runner
}

// NewLDAP creates the checker.
func NewLDAP(runner *Runner) *LDAP {
	return &LDAP{runner: runner}
}

func (l *LDAP) LDAPEnabled(ctx context.Context) (bool, error) {
	var reply struct {
		Enable bool `json:"enable"`
	}
	if err := l.runner.callJSON(ctx, &reply, "ldap.config"); err != nil {
		return false, err
	}
	return reply.Enable, nil
}

// IdmapCapabilities reports ID-mapping backend capabilities.
type IdmapCapabilities struct {
	runner *Runner
}

// NewIdmapCapabilities creates the checker.
func NewIdmapCapabilities(runner *Runner) *IdmapCapabilities {
	return &IdmapCapabilities{runner: runner}
}

func (i *IdmapCapabilities) MayEnableTrustedDomains(ctx context.Context) (bool, error) {
	var reply struct {
		Backend string `json:"idmap_backend"`
	}
	if err := i.runner.callJSON(ctx, &reply, "idmap.query_active_backend"); err != nil {
		return false, err
	}
	// Only the autorid and ad backends can map users from trusted
	// domains without per-domain range configuration.
	switch strings.ToUpper(reply.Backend) {
	case "AUTORID", "AD":
		return true, nil
	default:
		return false, nil
	}
}

// Resolver gathers DNS-derived environment facts with the system
// resolver.
type Resolver struct {
	resolver *net.Resolver
}

// NewResolver creates the checker using the default system resolver.
func NewResolver() *Resolver {
	return &Resolver{resolver: net.DefaultResolver}
}

// NetbiosNameInUse reports whether the name already resolves to an
// address in the domain that is not one of ours.
func (r *Resolver) NetbiosNameInUse(ctx context.Context, netbiosName, domain string, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fqdn := fmt.Sprintf("%s.%s", strings.ToLower(netbiosName), strings.ToLower(domain))
	addrs, err := r.resolver.LookupHost(ctx, fqdn)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return false, nil
		}
		return false, err
	}
	if len(addrs) == 0 {
		return false, nil
	}

	ours, err := r.CandidateAddresses(ctx)
	if err != nil {
		return false, err
	}
	mine := make(map[string]bool, len(ours))
	for _, ip := range ours {
		mine[ip.String()] = true
	}
	for _, addr := range addrs {
		if !mine[addr] {
			return true, nil
		}
	}
	return false, nil
}

// CheckNameservers verifies the configured nameservers can resolve the
// domain's directory service records. When a site is known, the
// site-scoped records are preferred and their absence falls back to
// the domain-wide ones.
func (r *Resolver) CheckNameservers(ctx context.Context, domain, site string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	names := []string{fmt.Sprintf("_ldap._tcp.%s", strings.ToLower(domain))}
	if site != "" {
		names = []string{
			fmt.Sprintf("_ldap._tcp.%s._sites.%s", site, strings.ToLower(domain)),
			names[0],
		}
	}

	var lastErr error
	for _, name := range names {
		_, srvs, err := r.resolver.LookupSRV(ctx, "", "", name)
		if err == nil && len(srvs) > 0 {
			return nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("unable to resolve SRV records for domain [%s]: %w", domain, lastErr)
	}
	return fmt.Errorf("no SRV records for domain [%s]", domain)
}

// CandidateAddresses resolves the appliance addresses that an
// automatic DNS update would register.
func (r *Resolver) CandidateAddresses(ctx context.Context) ([]net.IP, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	addrs, err := r.resolver.LookupHost(ctx, hostname)
	if err != nil {
		// Fall back to interface addresses when the hostname does not
		// resolve yet.
		return interfaceAddresses()
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips, nil
}

func interfaceAddresses() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips, nil
}
