package validate

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/krb5"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
)

type fakePools struct{ hasPool bool }

func (f *fakePools) HasPool(ctx context.Context) (bool, error) { return f.hasPool, nil }

type fakeLDAP struct{ enabled bool }

func (f *fakeLDAP) LDAPEnabled(ctx context.Context) (bool, error) { return f.enabled, nil }

type fakeIdmap struct{ trusted bool }

func (f *fakeIdmap) MayEnableTrustedDomains(ctx context.Context) (bool, error) {
	return f.trusted, nil
}

type fakeDNS struct {
	netbiosInUse   bool
	nameserversErr error
	addresses      []net.IP
	addressesErr   error
}

func (f *fakeDNS) NetbiosNameInUse(ctx context.Context, netbiosName, domain string, timeout time.Duration) (bool, error) {
	return f.netbiosInUse, nil
}

func (f *fakeDNS) CheckNameservers(ctx context.Context, domain, site string, timeout time.Duration) error {
	return f.nameserversErr
}

func (f *fakeDNS) CandidateAddresses(ctx context.Context) ([]net.IP, error) {
	return f.addresses, f.addressesErr
}

type fakeRealms struct{ missing bool }

func (f *fakeRealms) RealmByID(ctx context.Context, id uint) (*models.KerberosRealm, error) {
	if f.missing {
		return nil, errors.New("realm not found")
	}
	return &models.KerberosRealm{ID: id, Realm: "AD.EXAMPLE.COM"}, nil
}

type fakeGateAuthority struct {
	realm.Authority
	info    *realm.DomainInfo
	infoErr error
}

func (f *fakeGateAuthority) DomainInfo(ctx context.Context, domain string) (*realm.DomainInfo, error) {
	return f.info, f.infoErr
}

type fakeBroker struct{ err error }

func (f *fakeBroker) ValidateCredentials(ctx context.Context, cfg *models.MembershipConfig, kdcHint string) error {
	return f.err
}

func healthyGate() *Gate {
	return &Gate{
		Pools:     &fakePools{hasPool: true},
		LDAP:      &fakeLDAP{},
		Idmap:     &fakeIdmap{trusted: true},
		DNS:       &fakeDNS{addresses: []net.IP{net.ParseIP("203.0.113.5")}},
		Realms:    &fakeRealms{},
		Authority: &fakeGateAuthority{info: &realm.DomainInfo{KDCServer: "dc1.ad.example.com"}},
		Broker:    &fakeBroker{},
	}
}

func enableRequest() *models.MembershipConfig {
	return &models.MembershipConfig{
		DomainName:        "AD.EXAMPLE.COM",
		NetbiosName:       "truenas",
		BindName:          "joiner",
		BindPW:            "Canary",
		TimeoutSeconds:    60,
		DNSTimeoutSeconds: 10,
		Enabled:           true,
	}
}

func fieldErrors(t *testing.T, err error) map[string][]FieldError {
	t.Helper()
	var verrs *Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("error %v is not *Errors", err)
	}
	byField := make(map[string][]FieldError)
	for _, fe := range verrs.All() {
		byField[fe.Field] = append(byField[fe.Field], fe)
	}
	return byField
}

func TestValidate_HealthyEnablePasses(t *testing.T) {
	g := healthyGate()

	got, err := g.Validate(context.Background(), enableRequest(), &models.MembershipConfig{})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !got.Enabled {
		t.Error("normalized config lost the enable flag")
	}
}

func TestValidate_BatchesIndependentErrors(t *testing.T) {
	g := healthyGate()
	g.Pools = &fakePools{hasPool: false}

	req := enableRequest()
	req.BindPW = ""
	req.BindName = ""

	_, err := g.Validate(context.Background(), req, &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["enable"]) == 0 {
		t.Error("missing pool finding was not reported")
	}
	if len(byField["bindname"]) == 0 {
		t.Error("missing credential finding was not reported")
	}
}

func TestValidate_LDAPConflict(t *testing.T) {
	g := healthyGate()
	g.LDAP = &fakeLDAP{enabled: true}

	_, err := g.Validate(context.Background(), enableRequest(), &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["enable"]) != 1 {
		t.Errorf("enable findings = %d, want 1", len(byField["enable"]))
	}
}

func TestValidate_BothCredentialModesRejected(t *testing.T) {
	g := healthyGate()
	req := enableRequest()
	req.KerberosPrincipal = "TRUENAS$@AD.EXAMPLE.COM"

	_, err := g.Validate(context.Background(), req, &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["kerberos_principal"]) == 0 {
		t.Error("simultaneous keytab and password modes were not rejected")
	}
}

func TestValidate_DisableWithBindPWRejected(t *testing.T) {
	g := healthyGate()
	req := &models.MembershipConfig{
		DomainName:        "AD.EXAMPLE.COM",
		BindPW:            "Canary",
		TimeoutSeconds:    60,
		DNSTimeoutSeconds: 10,
	}

	_, err := g.Validate(context.Background(), req, &models.MembershipConfig{Enabled: true})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["bindpw"]) == 0 {
		t.Error("bind password on a disable request was not rejected")
	}
}

func TestValidate_RealmFrozenWhileEnabled(t *testing.T) {
	g := healthyGate()
	oldRealm, newRealm := uint(1), uint(2)

	old := enableRequest()
	old.KerberosRealmID = &oldRealm
	old.KerberosPrincipal = "TRUENAS$@AD.EXAMPLE.COM"
	old.BindPW = ""

	req := enableRequest()
	req.KerberosRealmID = &newRealm
	req.KerberosPrincipal = old.KerberosPrincipal
	req.BindPW = ""

	_, err := g.Validate(context.Background(), req, old)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["kerberos_realm"]) == 0 {
		t.Error("realm change while enabled was not rejected")
	}
}

func TestValidate_ImmutableFieldsWhileEnabled(t *testing.T) {
	g := healthyGate()

	old := enableRequest()
	old.BindPW = ""
	old.KerberosPrincipal = "TRUENAS$@AD.EXAMPLE.COM"

	req := enableRequest()
	req.BindPW = ""
	req.KerberosPrincipal = old.KerberosPrincipal
	req.Site = "Chicago"

	_, err := g.Validate(context.Background(), req, old)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["site"]) == 0 {
		t.Error("site change while enabled was not rejected")
	}

	// Operational knobs stay mutable.
	req2 := enableRequest()
	req2.BindPW = ""
	req2.KerberosPrincipal = old.KerberosPrincipal
	req2.TimeoutSeconds = 120
	req2.DisableCache = true

	if _, err := g.Validate(context.Background(), req2, old); err != nil {
		t.Errorf("mutable field change rejected: %v", err)
	}
}

func TestValidate_ReservedAndLoopbackAddressesRejected(t *testing.T) {
	g := healthyGate()
	g.DNS = &fakeDNS{addresses: []net.IP{
		net.ParseIP("127.0.0.1"),
		net.ParseIP("224.0.0.1"),
		net.ParseIP("203.0.113.5"),
	}}

	req := enableRequest()
	req.AllowDNSUpdates = true

	_, err := g.Validate(context.Background(), req, &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if got := len(byField["allow_dns_updates"]); got != 2 {
		t.Errorf("allow_dns_updates findings = %d, want 2 (loopback and multicast)", got)
	}
}

func TestValidate_NoCandidateAddresses(t *testing.T) {
	g := healthyGate()
	g.DNS = &fakeDNS{addresses: nil}

	req := enableRequest()
	req.AllowDNSUpdates = true

	_, err := g.Validate(context.Background(), req, &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["allow_dns_updates"]) != 1 {
		t.Errorf("allow_dns_updates findings = %d, want 1", len(byField["allow_dns_updates"]))
	}
}

func TestValidate_NetbiosCollisionIsAdvisory(t *testing.T) {
	g := healthyGate()
	g.DNS = &fakeDNS{
		netbiosInUse: true,
		addresses:    []net.IP{net.ParseIP("203.0.113.5")},
	}

	if _, err := g.Validate(context.Background(), enableRequest(), &models.MembershipConfig{}); err != nil {
		t.Errorf("advisory collision blocked the update: %v", err)
	}
}

func TestValidate_TrustedDomainsRequireCapableBackend(t *testing.T) {
	g := healthyGate()
	g.Idmap = &fakeIdmap{trusted: false}

	req := enableRequest()
	req.AllowTrustedDoms = true

	_, err := g.Validate(context.Background(), req, &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["allow_trusted_doms"]) == 0 {
		t.Error("trusted-domain request against incapable backend was not rejected")
	}
}

func TestValidate_ClockSkewBlocksFirstEnable(t *testing.T) {
	g := healthyGate()
	g.Authority = &fakeGateAuthority{info: &realm.DomainInfo{ServerTimeOffset: 400}}

	_, err := g.Validate(context.Background(), enableRequest(), &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["domainname"]) == 0 {
		t.Error("excessive clock offset was not rejected")
	}
}

func TestValidate_ReenableSkipsLiveChecks(t *testing.T) {
	g := healthyGate()
	g.Authority = &fakeGateAuthority{infoErr: errors.New("domain unreachable")}

	old := enableRequest()
	old.BindPW = ""
	old.KerberosPrincipal = "TRUENAS$@AD.EXAMPLE.COM"

	req := enableRequest()
	req.BindPW = ""
	req.KerberosPrincipal = old.KerberosPrincipal

	if _, err := g.Validate(context.Background(), req, old); err != nil {
		t.Errorf("re-enable ran live health checks: %v", err)
	}
}

func TestValidate_CredentialFailureClassified(t *testing.T) {
	g := healthyGate()
	g.Broker = &fakeBroker{err: krb5.NewError(krb5.CodeClockSkew, "kinit failed")}

	_, err := g.Validate(context.Background(), enableRequest(), &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["domainname"]) == 0 {
		t.Error("clock-skew credential failure was not attributed to domainname")
	}
}

func TestValidate_UnknownRealmReference(t *testing.T) {
	g := healthyGate()
	g.Realms = &fakeRealms{missing: true}

	id := uint(7)
	req := enableRequest()
	req.KerberosRealmID = &id

	_, err := g.Validate(context.Background(), req, &models.MembershipConfig{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	byField := fieldErrors(t, err)
	if len(byField["kerberos_realm"]) == 0 {
		t.Error("dangling realm reference was not rejected")
	}
}
