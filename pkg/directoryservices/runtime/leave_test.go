package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

func joinedMembership() models.MembershipConfig {
	realmID := uint(1)
	return models.MembershipConfig{
		DomainName:        "AD.EXAMPLE.COM",
		Site:              "Chicago",
		KerberosRealmID:   &realmID,
		KerberosPrincipal: "TRUENAS$@AD.EXAMPLE.COM",
		Enabled:           true,
	}
}

func seedJoined(f *fixture) {
	f.seedMembership(joinedMembership())
	f.store.CreateRealm(context.Background(), &models.KerberosRealm{Realm: "AD.EXAMPLE.COM"})
	f.store.SaveKeytab(context.Background(), &models.KerberosKeytab{
		Name: models.MachineAccountKeytabName,
		File: "a2V5dGFi",
	})
	f.store.CreatePrivilege(context.Background(), &models.Privilege{
		Name:     "AD.EXAMPLE.COM",
		GroupSID: "S-1-5-21-1-2-3-512",
	})
	f.store.SetState(context.Background(), models.StateHealthy)
}

func TestLeave_CleanLeave(t *testing.T) {
	f := newFixture()
	seedJoined(f)

	creds := LeaveCredentials{Username: "admin", Password: "Canary"}
	if err := f.rt.Leave(context.Background(), creds, NopReporter); err != nil {
		t.Fatalf("Leave returned error: %v", err)
	}

	if len(f.authority.leaves) != 1 || f.authority.leaves[0] != "admin" {
		t.Errorf("leave calls = %v, want one with the privileged user", f.authority.leaves)
	}

	// The ticket must come from the supplied credentials, not the
	// machine account being removed.
	if len(f.cache.acquires) != 1 {
		t.Fatalf("ticket acquisitions = %d, want 1", len(f.cache.acquires))
	}
	if f.cache.acquires[0].Username != "admin" || f.cache.acquires[0].Principal != "" {
		t.Errorf("acquired credential = %+v, want the privileged user", f.cache.acquires[0])
	}

	state, _ := f.store.State(context.Background())
	if state != models.StateDisabled {
		t.Errorf("state = %s, want DISABLED", state)
	}
	if !f.store.sawState(models.StateLeaving) {
		t.Error("LEAVING state was never persisted")
	}

	cfg, _ := f.store.Membership(context.Background())
	if cfg.Enabled || cfg.DomainName != "" || cfg.Site != "" ||
		cfg.KerberosPrincipal != "" || cfg.KerberosRealmID != nil ||
		cfg.BindName != "" {
		t.Errorf("realm-identifying fields were not cleared: %+v", cfg)
	}

	if _, err := f.store.KeytabByName(context.Background(), models.MachineAccountKeytabName); !errors.Is(err, models.ErrKeytabNotFound) {
		t.Error("machine account keytab record was not deleted")
	}
	if _, err := f.store.RealmByID(context.Background(), 1); !errors.Is(err, models.ErrRealmNotFound) {
		t.Error("kerberos realm record was not deleted")
	}
	if _, err := f.store.PrivilegeByName(context.Background(), "AD.EXAMPLE.COM"); !errors.Is(err, models.ErrPrivilegeNotFound) {
		t.Error("auto-granted privilege was not removed")
	}

	if f.dns.unregisters != 1 {
		t.Errorf("DNS unregistrations = %d, want 1", f.dns.unregisters)
	}
	if f.keytabs.removals != 1 {
		t.Errorf("system keytab removals = %d, want 1", f.keytabs.removals)
	}
	if f.cache.destroys != 1 {
		t.Errorf("ticket destroys = %d, want 1", f.cache.destroys)
	}
	if f.secrets.backups != 1 {
		t.Errorf("secrets backups = %d, want 1 after a clean leave", f.secrets.backups)
	}
	if f.authority.flushes != 1 {
		t.Errorf("cache flushes = %d, want 1", f.authority.flushes)
	}
}

func TestLeave_ToleratesFailedDomainLeave(t *testing.T) {
	f := newFixture()
	seedJoined(f)
	f.authority.leaveErr = errors.New("RPC server unavailable")
	f.dns.unregisterErr = errors.New("no records")

	creds := LeaveCredentials{Username: "admin", Password: "Canary"}
	if err := f.rt.Leave(context.Background(), creds, NopReporter); err != nil {
		t.Fatalf("a failed domain leave must not block local teardown: %v", err)
	}

	state, _ := f.store.State(context.Background())
	if state != models.StateDisabled {
		t.Errorf("state = %s, want DISABLED", state)
	}

	// The stored secrets are still live when the domain kept the
	// account, so no backup runs.
	if f.secrets.backups != 0 {
		t.Errorf("secrets backups = %d, want 0 after a failed leave", f.secrets.backups)
	}
}

func TestLeave_RejectsInterruptedOperation(t *testing.T) {
	f := newFixture()
	seedJoined(f)
	f.store.SetState(context.Background(), models.StateJoining)

	err := f.rt.Leave(context.Background(), LeaveCredentials{Username: "admin", Password: "Canary"}, NopReporter)
	if !errors.Is(err, models.ErrOperationInFlight) {
		t.Fatalf("Leave error = %v, want ErrOperationInFlight", err)
	}
	if len(f.authority.leaves) != 0 {
		t.Error("leave ran over an interrupted operation")
	}
}

func TestLeave_NoDomainConfigured(t *testing.T) {
	f := newFixture()

	err := f.rt.Leave(context.Background(), LeaveCredentials{Username: "admin"}, NopReporter)
	if !errors.Is(err, models.ErrNoDomain) {
		t.Errorf("error = %v, want ErrNoDomain", err)
	}
}

func TestLeave_TicketFailureIsFatal(t *testing.T) {
	f := newFixture()
	seedJoined(f)
	f.cache.acquireErr = errors.New("preauthentication failed")

	err := f.rt.Leave(context.Background(), LeaveCredentials{Username: "admin", Password: "nope"}, NopReporter)
	if err == nil {
		t.Fatal("expected the acquisition failure to surface")
	}
	if len(f.authority.leaves) != 0 {
		t.Error("leave must not be attempted without a ticket")
	}

	cfg, _ := f.store.Membership(context.Background())
	if cfg.DomainName == "" {
		t.Error("configuration must not be cleared when no leave ran")
	}
}
