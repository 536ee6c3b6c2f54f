package krb5

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
)

// DefaultTicketLifetime is the assumed lifetime of an acquired ticket
// when the KDC does not advertise one.
const DefaultTicketLifetime = 10 * time.Hour

// renewalPollInterval is how often WaitForRenewal re-checks the cache.
const renewalPollInterval = 2 * time.Second

// Client is the gokrb5-backed TicketCache implementation.
//
// It owns the process-wide ticket session. Mutating methods are
// serialized by the outer join/leave mutex; the internal lock only
// protects against concurrent readers of HasValid.
type Client struct {
	// KeytabPath is the system keytab used for principal-based
	// acquisition. Default /etc/krb5.keytab.
	KeytabPath string

	mu         sync.Mutex
	cl         *client.Client
	validUntil time.Time
}

// NewClient creates a ticket cache backed by the system keytab path.
func NewClient(keytabPath string) *Client {
	if keytabPath == "" {
		keytabPath = "/etc/krb5.keytab"
	}
	return &Client{KeytabPath: keytabPath}
}

// HasValid reports whether a still-valid ticket session exists.
func (c *Client) HasValid(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cl != nil && time.Now().Before(c.validUntil)
}

// Acquire obtains a ticket-granting ticket for the credential,
// replacing any existing session. When kdcHint is set the realm
// configuration pins the exchange to that KDC.
func (c *Client) Acquire(ctx context.Context, cred Credential, kdcHint string) error {
	cfg, err := buildConfig(cred.Realm, kdcHint)
	if err != nil {
		return fmt.Errorf("failed to build kerberos configuration: %w", err)
	}

	var cl *client.Client
	if cred.Keytab() {
		user, realm := splitPrincipal(cred.Principal)
		if realm == "" {
			realm = cred.Realm
		}
		kt, err := keytab.Load(c.KeytabPath)
		if err != nil {
			return NewError(CodeCacheNotFound, "failed to load system keytab %s: %v", c.KeytabPath, err)
		}
		cl = client.NewWithKeytab(user, realm, kt, cfg, client.DisablePAFXFAST(true))
	} else {
		cl = client.NewWithPassword(cred.Username, cred.Realm, cred.Password, cfg, client.DisablePAFXFAST(true))
	}

	if err := cl.Login(); err != nil {
		return wrapKRBError(err)
	}

	c.mu.Lock()
	if c.cl != nil {
		c.cl.Destroy()
	}
	c.cl = cl
	c.validUntil = time.Now().Add(DefaultTicketLifetime)
	c.mu.Unlock()

	logger.Debug("Kerberos ticket acquired", "realm", cred.Realm, "keytab", cred.Keytab())
	return nil
}

// Destroy discards the cached ticket session.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cl != nil {
		c.cl.Destroy()
		c.cl = nil
	}
	c.validUntil = time.Time{}
	return nil
}

// WaitForRenewal blocks until the session has a valid ticket or the
// context expires. The gokrb5 client renews sessions in the
// background; this only observes the outcome.
func (c *Client) WaitForRenewal(ctx context.Context) error {
	ticker := time.NewTicker(renewalPollInterval)
	defer ticker.Stop()

	for {
		if c.HasValid(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for ticket renewal: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// buildConfig assembles a minimal krb5 configuration for the realm.
// With no kdcHint, KDC discovery goes through DNS.
func buildConfig(realm, kdcHint string) (*krb5config.Config, error) {
	var sb strings.Builder
	sb.WriteString("[libdefaults]\n")
	sb.WriteString("  default_realm = " + realm + "\n")
	sb.WriteString("  dns_lookup_realm = false\n")
	if kdcHint == "" {
		sb.WriteString("  dns_lookup_kdc = true\n")
	} else {
		sb.WriteString("  dns_lookup_kdc = false\n")
		sb.WriteString("[realms]\n")
		sb.WriteString("  " + realm + " = {\n")
		sb.WriteString("    kdc = " + kdcHint + "\n")
		sb.WriteString("  }\n")
	}
	return krb5config.NewFromString(sb.String())
}

// splitPrincipal separates "user@REALM" into its components.
func splitPrincipal(principal string) (user, realm string) {
	if i := strings.LastIndex(principal, "@"); i >= 0 {
		return principal[:i], principal[i+1:]
	}
	return principal, ""
}
