package runtime

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/krb5"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/validate"
)

// memStore is an in-memory Store for executor tests.
type memStore struct {
	mu         sync.Mutex
	membership models.MembershipConfig
	state      models.LifecycleState
	states     []models.LifecycleState
	realms     map[uint]*models.KerberosRealm
	keytabs    map[string]*models.KerberosKeytab
	privileges map[string]*models.Privilege
	nextRealm  uint

	updateErr error
}

func newMemStore() *memStore {
	return &memStore{
		state:      models.StateDisabled,
		realms:     make(map[uint]*models.KerberosRealm),
		keytabs:    make(map[string]*models.KerberosKeytab),
		privileges: make(map[string]*models.Privilege),
		nextRealm:  1,
	}
}

func (s *memStore) Membership(ctx context.Context) (*models.MembershipConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.membership
	return &cfg, nil
}

func (s *memStore) UpdateMembership(ctx context.Context, cfg *models.MembershipConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	stored := *cfg
	stored.BindPW = ""
	stored.NetbiosName = ""
	s.membership = stored
	return nil
}

func (s *memStore) State(ctx context.Context) (models.LifecycleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *memStore) SetState(ctx context.Context, state models.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.states = append(s.states, state)
	return nil
}

func (s *memStore) RealmByName(ctx context.Context, name string) (*models.KerberosRealm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.realms {
		if r.Realm == name {
			rec := *r
			return &rec, nil
		}
	}
	return nil, models.ErrRealmNotFound
}

func (s *memStore) RealmByID(ctx context.Context, id uint) (*models.KerberosRealm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.realms[id]
	if !ok {
		return nil, models.ErrRealmNotFound
	}
	rec := *r
	return &rec, nil
}

func (s *memStore) CreateRealm(ctx context.Context, r *models.KerberosRealm) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextRealm
	s.nextRealm++
	rec := *r
	s.realms[r.ID] = &rec
	return r.ID, nil
}

func (s *memStore) UpdateRealm(ctx context.Context, r *models.KerberosRealm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.realms[r.ID]; !ok {
		return models.ErrRealmNotFound
	}
	rec := *r
	s.realms[r.ID] = &rec
	return nil
}

func (s *memStore) DeleteRealm(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.realms[id]; !ok {
		return models.ErrRealmNotFound
	}
	delete(s.realms, id)
	return nil
}

func (s *memStore) KeytabByName(ctx context.Context, name string) (*models.KerberosKeytab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kt, ok := s.keytabs[name]
	if !ok {
		return nil, models.ErrKeytabNotFound
	}
	rec := *kt
	return &rec, nil
}

func (s *memStore) SaveKeytab(ctx context.Context, kt *models.KerberosKeytab) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *kt
	s.keytabs[kt.Name] = &rec
	return nil
}

func (s *memStore) DeleteKeytab(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keytabs[name]; !ok {
		return models.ErrKeytabNotFound
	}
	delete(s.keytabs, name)
	return nil
}

func (s *memStore) PrivilegeByName(ctx context.Context, name string) (*models.Privilege, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.privileges[name]
	if !ok {
		return nil, models.ErrPrivilegeNotFound
	}
	rec := *p
	return &rec, nil
}

func (s *memStore) CreatePrivilege(ctx context.Context, p *models.Privilege) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *p
	s.privileges[p.Name] = &rec
	return nil
}

func (s *memStore) DeletePrivilege(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.privileges[name]; !ok {
		return models.ErrPrivilegeNotFound
	}
	delete(s.privileges, name)
	return nil
}

// sawState reports whether the state was persisted at any point.
func (s *memStore) sawState(state models.LifecycleState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st == state {
			return true
		}
	}
	return false
}

type stubAuthority struct {
	mu sync.Mutex

	dc        *realm.DCInfo
	dcErr     error
	info      *realm.DomainInfo
	infoErr   error
	testErr   error
	joinErr   error
	leaveErr  error
	flushErr  error
	joins     int
	leaves    []string
	flushes   int
	testCalls int
}

func (a *stubAuthority) LookupDC(ctx context.Context, domain string) (*realm.DCInfo, error) {
	return a.dc, a.dcErr
}

func (a *stubAuthority) DomainInfo(ctx context.Context, domain string) (*realm.DomainInfo, error) {
	return a.info, a.infoErr
}

func (a *stubAuthority) TestJoin(ctx context.Context, workgroup string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.testCalls++
	return a.testErr
}

func (a *stubAuthority) Join(ctx context.Context, workgroup string, req realm.JoinRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.joins++
	return a.joinErr
}

func (a *stubAuthority) Leave(ctx context.Context, username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaves = append(a.leaves, username)
	return a.leaveErr
}

func (a *stubAuthority) FlushCache(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushes++
	return a.flushErr
}

type stubTicketCache struct {
	hasValid   bool
	acquireErr error
	acquires   []krb5.Credential
	destroys   int
}

func (c *stubTicketCache) HasValid(ctx context.Context) bool { return c.hasValid }

func (c *stubTicketCache) Acquire(ctx context.Context, cred krb5.Credential, kdcHint string) error {
	c.acquires = append(c.acquires, cred)
	return c.acquireErr
}

func (c *stubTicketCache) Destroy(ctx context.Context) error {
	c.destroys++
	return nil
}

func (c *stubTicketCache) WaitForRenewal(ctx context.Context) error { return nil }

type stubSMB struct {
	info       SMBInfo
	workgroups []string
	netbios    []string
}

func (s *stubSMB) Config(ctx context.Context) (*SMBInfo, error) {
	info := s.info
	return &info, nil
}

func (s *stubSMB) SetWorkgroup(ctx context.Context, workgroup string) error {
	s.workgroups = append(s.workgroups, workgroup)
	return nil
}

func (s *stubSMB) SetNetbiosName(ctx context.Context, name string) error {
	s.netbios = append(s.netbios, name)
	return nil
}

type stubEtc struct{ components []string }

func (e *stubEtc) Regenerate(ctx context.Context, component string) error {
	e.components = append(e.components, component)
	return nil
}

type stubServices struct {
	started, stopped, restarted, reloaded, enabled []string

	dependentRestarts int
}

func (s *stubServices) Start(ctx context.Context, name string) error {
	s.started = append(s.started, name)
	return nil
}

func (s *stubServices) Stop(ctx context.Context, name string) error {
	s.stopped = append(s.stopped, name)
	return nil
}

func (s *stubServices) Restart(ctx context.Context, name string) error {
	s.restarted = append(s.restarted, name)
	return nil
}

func (s *stubServices) Reload(ctx context.Context, name string) error {
	s.reloaded = append(s.reloaded, name)
	return nil
}

func (s *stubServices) Enable(ctx context.Context, name string) error {
	s.enabled = append(s.enabled, name)
	return nil
}

func (s *stubServices) RestartDependents(ctx context.Context) error {
	s.dependentRestarts++
	return nil
}

type stubDNS struct {
	registerErr   error
	registers     int
	unregisters   int
	unregisterErr error
}

func (d *stubDNS) Register(ctx context.Context, cfg *models.MembershipConfig, smb *SMBInfo) error {
	d.registers++
	return d.registerErr
}

func (d *stubDNS) Unregister(ctx context.Context, cfg *models.MembershipConfig) error {
	d.unregisters++
	return d.unregisterErr
}

type stubSPNWaiter struct{ err error }

func (w *stubSPNWaiter) Wait(ctx context.Context) error { return w.err }

type stubSPN struct {
	waitErr     error
	dispatchErr error
	dispatches  int
}

func (s *stubSPN) AddServicePrincipals(ctx context.Context, netbiosName, domain string) (SPNWaiter, error) {
	s.dispatches++
	if s.dispatchErr != nil {
		return nil, s.dispatchErr
	}
	return &stubSPNWaiter{err: s.waitErr}, nil
}

type stubKeytabs struct {
	storeErr   error
	stores     int
	recovers   int
	recoverErr error
	removals   int
}

func (k *stubKeytabs) StoreMachineKeytab(ctx context.Context) error {
	k.stores++
	return k.storeErr
}

func (k *stubKeytabs) RecoverMachineKeytab(ctx context.Context, domain string) error {
	k.recovers++
	return k.recoverErr
}

func (k *stubKeytabs) RemoveSystemKeytab(ctx context.Context) error {
	k.removals++
	return nil
}

type stubIdmap struct {
	sid        string
	configured int
}

func (i *stubIdmap) ConfigureRanges(ctx context.Context, domain string, allowTrustedDoms bool) error {
	i.configured++
	return nil
}

func (i *stubIdmap) DomainSID(ctx context.Context, workgroup string) (string, error) {
	if i.sid == "" {
		return "", errors.New("no sid")
	}
	return i.sid, nil
}

type stubNTP struct {
	servers []NTPServer
	created []NTPServer
}

func (n *stubNTP) Servers(ctx context.Context) ([]NTPServer, error) { return n.servers, nil }

func (n *stubNTP) Create(ctx context.Context, server NTPServer) error {
	n.created = append(n.created, server)
	return nil
}

type stubSecrets struct{ backups int }

func (s *stubSecrets) Backup(ctx context.Context) error {
	s.backups++
	return nil
}

type stubCache struct {
	refreshes int
	aborts    int
}

func (c *stubCache) Refresh(ctx context.Context) error {
	c.refreshes++
	return nil
}

func (c *stubCache) AbortRefresh(ctx context.Context) error {
	c.aborts++
	return nil
}

type stubNetwork struct {
	domain  string
	set     []string
	readErr error
}

func (n *stubNetwork) Domain(ctx context.Context) (string, error) { return n.domain, n.readErr }

func (n *stubNetwork) SetDomain(ctx context.Context, domain string) error {
	n.set = append(n.set, domain)
	return nil
}

// fixture bundles the runtime under test with every injected stub.
type fixture struct {
	rt *Runtime

	store     *memStore
	authority *stubAuthority
	cache     *stubTicketCache
	smb       *stubSMB
	etc       *stubEtc
	services  *stubServices
	dns       *stubDNS
	spn       *stubSPN
	keytabs   *stubKeytabs
	idmap     *stubIdmap
	ntp       *stubNTP
	secrets   *stubSecrets
	refresher *stubCache
	network   *stubNetwork
}

// newFixture builds a runtime wired to stubs representing a reachable,
// healthy domain the appliance has not yet joined.
func newFixture() *fixture {
	f := &fixture{
		store: newMemStore(),
		authority: &stubAuthority{
			dc: &realm.DCInfo{
				ClientSiteName: defaultSiteName,
				PreWin2kDomain: "EXAMPLE",
				DCName:         "dc1.ad.example.com",
			},
			info: &realm.DomainInfo{KDCServer: "dc1.ad.example.com"},
			testErr: &realm.CommandError{
				Command:  "net ads testjoin",
				ExitCode: 255,
				Stderr:   "LDAP_INVALID_CREDENTIALS",
			},
		},
		cache:     &stubTicketCache{},
		smb:       &stubSMB{info: SMBInfo{NetbiosName: "truenas", Workgroup: "EXAMPLE"}},
		etc:       &stubEtc{},
		services:  &stubServices{},
		dns:       &stubDNS{},
		spn:       &stubSPN{},
		keytabs:   &stubKeytabs{},
		idmap:     &stubIdmap{sid: "S-1-5-21-1-2-3"},
		ntp:       &stubNTP{},
		secrets:   &stubSecrets{},
		refresher: &stubCache{},
		network:   &stubNetwork{domain: "ad.example.com"},
	}

	gate := &validate.Gate{
		Pools:     &stubPools{},
		LDAP:      &stubLDAP{},
		Idmap:     &stubIdmapChecker{},
		DNS:       &stubDNSChecker{},
		Realms:    f.store,
		Authority: f.authority,
		Broker:    krb5.NewBroker(f.cache),
	}

	f.rt = New(Deps{
		Store:     f.store,
		Gate:      gate,
		Broker:    krb5.NewBroker(f.cache),
		Authority: f.authority,
		SMB:       f.smb,
		Etc:       f.etc,
		Services:  f.services,
		DNS:       f.dns,
		SPN:       f.spn,
		Keytabs:   f.keytabs,
		Idmap:     f.idmap,
		NTP:       f.ntp,
		Secrets:   f.secrets,
		Cache:     f.refresher,
		Network:   f.network,
	})
	return f
}

// seedMembership installs a membership record directly in the store.
func (f *fixture) seedMembership(cfg models.MembershipConfig) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.membership = cfg
}

// Gate collaborator stubs representing a healthy environment.

type stubPools struct{}

func (stubPools) HasPool(ctx context.Context) (bool, error) { return true, nil }

type stubLDAP struct{}

func (stubLDAP) LDAPEnabled(ctx context.Context) (bool, error) { return false, nil }

type stubIdmapChecker struct{}

func (stubIdmapChecker) MayEnableTrustedDomains(ctx context.Context) (bool, error) {
	return true, nil
}

type stubDNSChecker struct{}

func (stubDNSChecker) NetbiosNameInUse(ctx context.Context, netbiosName, domain string, timeout time.Duration) (bool, error) {
	return false, nil
}

func (stubDNSChecker) CheckNameservers(ctx context.Context, domain, site string, timeout time.Duration) error {
	return nil
}

func (stubDNSChecker) CandidateAddresses(ctx context.Context) ([]net.IP, error) {
	return []net.IP{net.ParseIP("203.0.113.5")}, nil
}
