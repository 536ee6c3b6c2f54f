package host

import (
	"context"
	"strings"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/runtime"
)

// Idmap configures the ID-mapping subsystem through the middleware.
type Idmap struct {
	runner *Runner
}

// NewIdmap creates the manager.
func NewIdmap(runner *Runner) *Idmap {
	return &Idmap{runner: runner}
}

func (i *Idmap) ConfigureRanges(ctx context.Context, domain string, allowTrustedDoms bool) error {
	_, err := i.runner.call(ctx, "idmap.autodiscover_trusted_domains", map[string]any{
		"domain":             domain,
		"allow_trusted_doms": allowTrustedDoms,
	})
	return err
}

// DomainSID resolves the short domain's SID via the samba net utility.
func (i *Idmap) DomainSID(ctx context.Context, workgroup string) (string, error) {
	out, err := i.runner.net(ctx, "getdomainsid")
	if err != nil {
		return "", err
	}
	// Output: "SID for domain WORKGROUP is: S-1-5-21-..."
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, workgroup) {
			if idx := strings.LastIndex(line, ": "); idx >= 0 {
				return strings.TrimSpace(line[idx+2:]), nil
			}
		}
	}
	return "", &notFoundError{what: "domain SID", name: workgroup}
}

type notFoundError struct {
	what string
	name string
}

func (e *notFoundError) Error() string {
	return e.what + " not found for " + e.name
}

// NTP manages the appliance time sources through the middleware.
type NTP struct {
	runner *Runner
}

// NewNTP creates the manager.
func NewNTP(runner *Runner) *NTP {
	return &NTP{runner: runner}
}

type ntpServerReply struct {
	Address string `json:"address"`
	Prefer  bool   `json:"prefer"`
}

func (n *NTP) Servers(ctx context.Context) ([]runtime.NTPServer, error) {
	var reply []ntpServerReply
	if err := n.runner.callJSON(ctx, &reply, "system.ntpserver.query"); err != nil {
		return nil, err
	}
	servers := make([]runtime.NTPServer, len(reply))
	for i, s := range reply {
		servers[i] = runtime.NTPServer{Address: s.Address, Prefer: s.Prefer}
	}
	return servers, nil
}

func (n *NTP) Create(ctx context.Context, server runtime.NTPServer) error {
	_, err := n.runner.call(ctx, "system.ntpserver.create", map[string]any{
		"address": server.Address,
		"prefer":  server.Prefer,
		"force":   true,
	})
	return err
}

// Secrets backs up the samba secrets database through the middleware.
type Secrets struct {
	runner *Runner
}

// NewSecrets creates the backup trigger.
func NewSecrets(runner *Runner) *Secrets {
	return &Secrets{runner: runner}
}

func (s *Secrets) Backup(ctx context.Context) error {
	_, err := s.runner.call(ctx, "directoryservices.secrets.backup")
	return err
}

// Cache drives the directory user/group cache refresh job.
type Cache struct {
	runner *Runner
}

// NewCache creates the refresher.
func NewCache(runner *Runner) *Cache {
	return &Cache{runner: runner}
}

func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.runner.call(ctx, "directoryservices.cache_refresh")
	return err
}

func (c *Cache) AbortRefresh(ctx context.Context) error {
	_, err := c.runner.call(ctx, "directoryservices.cache_abort_refresh")
	return err
}

// Network exposes the global network configuration.
type Network struct {
	runner *Runner
}

// NewNetwork creates the configurator.
func NewNetwork(runner *Runner) *Network {
	return &Network{runner: runner}
}

type networkConfigReply struct {
	Domain string `json:"domain"`
}

func (n *Network) Domain(ctx context.Context) (string, error) {
	var reply networkConfigReply
	if err := n.runner.callJSON(ctx, &reply, "network.configuration.config"); err != nil {
		return "", err
	}
	return reply.Domain, nil
}

func (n *Network) SetDomain(ctx context.Context, domain string) error {
	_, err := n.runner.call(ctx, "network.configuration.update", map[string]string{
		"domain": strings.ToLower(domain),
	})
	return err
}
