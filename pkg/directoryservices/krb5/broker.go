package krb5

import (
	"context"
	"fmt"
	"strings"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

// Credential describes how to obtain a ticket: either a bind
// username/password pair or a stored kerberos principal backed by the
// system keytab. Exactly one mode is populated.
type Credential struct {
	// Username and Password for password-based acquisition.
	Username string
	Password string

	// Principal for keytab-based acquisition, e.g. "NAS$@EXAMPLE.COM".
	Principal string

	// Realm the ticket is requested from.
	Realm string
}

// Keytab reports whether the credential uses the stored keytab.
func (c Credential) Keytab() bool {
	return c.Principal != ""
}

// TicketCache is the process-wide kerberos ticket cache contract.
//
// Acquire failures carry a structured *Error so callers can classify
// them. All methods are serialized externally by the join/leave mutex;
// implementations need no additional locking for membership operations.
type TicketCache interface {
	// HasValid reports whether a still-valid ticket exists.
	HasValid(ctx context.Context) bool

	// Acquire obtains a ticket for the credential. When kdcHint is
	// non-empty the exchange is pinned to that KDC address instead of
	// relying on DNS discovery.
	Acquire(ctx context.Context, cred Credential, kdcHint string) error

	// Destroy discards the cached ticket.
	Destroy(ctx context.Context) error

	// WaitForRenewal blocks until the cached ticket has been renewed
	// or the context expires.
	WaitForRenewal(ctx context.Context) error
}

// Broker coordinates credential acquisition for membership operations.
type Broker struct {
	cache TicketCache
}

// NewBroker creates a credential broker over the given ticket cache.
func NewBroker(cache TicketCache) *Broker {
	return &Broker{cache: cache}
}

// Cache returns the underlying ticket cache.
func (b *Broker) Cache() TicketCache {
	return b.cache
}

// CredentialFor builds the credential descriptor for a membership
// config: the stored machine principal when present, otherwise the
// transient bind identity.
func CredentialFor(cfg *models.MembershipConfig) Credential {
	if cfg.KerberosPrincipal != "" {
		return Credential{
			Principal: cfg.KerberosPrincipal,
			Realm:     strings.ToUpper(cfg.DomainName),
		}
	}
	return Credential{
		Username: cfg.BindName,
		Password: cfg.BindPW,
		Realm:    strings.ToUpper(cfg.DomainName),
	}
}

// ValidateCredentials verifies that the configured credentials can
// obtain a ticket. A still-valid cached ticket short-circuits the
// check. New joins pass the KDC address discovered during the domain
// health check as kdcHint so the exchange does not depend on topology
// propagation that may lag.
//
// Failures are returned as a structured *Error.
func (b *Broker) ValidateCredentials(ctx context.Context, cfg *models.MembershipConfig, kdcHint string) error {
	if b.cache.HasValid(ctx) {
		return nil
	}

	cred := CredentialFor(cfg)
	if cred.Realm == "" {
		return fmt.Errorf("cannot validate credentials: %w", models.ErrNoDomain)
	}

	logger.Debug("Acquiring kerberos ticket",
		"realm", cred.Realm,
		"keytab", cred.Keytab(),
		"kdc_hint", kdcHint)

	return b.cache.Acquire(ctx, cred, kdcHint)
}
