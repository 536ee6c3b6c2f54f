package models

import (
	"strings"
	"time"
)

// NSS info schema choices supported by the domain controller's
// Services-for-Unix LDAP schema.
const (
	NSSInfoTemplate = "TEMPLATE"
	NSSInfoSFU      = "SFU"
	NSSInfoSFU20    = "SFU20"
	NSSInfoRFC2307  = "RFC2307"
)

// NSSInfoChoices returns the available NSS schema choices.
func NSSInfoChoices() []string {
	return []string{NSSInfoTemplate, NSSInfoSFU, NSSInfoSFU20, NSSInfoRFC2307}
}

// MembershipConfig is the persisted directory-service membership record.
//
// There is exactly one row: the appliance participates in at most one
// realm at a time. The record is exclusively owned by the store; the
// join and leave executors receive a copy, mutate it locally, and
// submit the result back through Store.UpdateMembership.
//
// BindPW is transient. It exists only for the duration of a single
// join or leave call and is never written to durable storage.
type MembershipConfig struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// DomainName is the full DNS domain name of the realm, stored
	// upper-cased. Ticket acquisition fails against a lower-case realm.
	DomainName string `gorm:"size:120" json:"domainname"`

	// BindName is the username used for the initial domain join.
	BindName string `gorm:"size:120" json:"bindname"`

	// BindPW is never persisted.
	BindPW string `gorm:"-" json:"bindpw,omitempty"`

	VerboseLogging   bool `json:"verbose_logging"`
	UseDefaultDomain bool `json:"use_default_domain"`
	AllowTrustedDoms bool `json:"allow_trusted_doms"`
	AllowDNSUpdates  bool `json:"allow_dns_updates"`
	DisableCache     bool `json:"disable_cache"`
	RestrictPAM      bool `json:"restrict_pam"`

	// Site is the directory site of which the appliance is a member.
	// Auto-detected during the initial join only; a manually configured
	// value is never replaced.
	Site string `gorm:"size:120" json:"site"`

	// TimeoutSeconds bounds general realm operations.
	TimeoutSeconds int `gorm:"default:60" json:"timeout" validate:"gt=0"`

	// DNSTimeoutSeconds bounds DNS-class operations.
	DNSTimeoutSeconds int `gorm:"default:10" json:"dns_timeout" validate:"min=5,max=40"`

	// NSSInfo selects the LDAP schema used for home directory and
	// shell lookups. Normalized to upper case.
	NSSInfo string `gorm:"size:120" json:"nss_info"`

	// KerberosRealmID references the kerberos realm record created
	// during the join.
	KerberosRealmID *uint `gorm:"index" json:"kerberos_realm"`

	// KerberosPrincipal is the machine-account principal committed
	// after a successful join. Non-empty iff the appliance has
	// completed at least one successful join.
	KerberosPrincipal string `gorm:"size:255" json:"kerberos_principal"`

	// CreateComputer is the organizational unit in which the computer
	// account is created, read top-down with "/" delimiters.
	CreateComputer string `gorm:"size:255" json:"createcomputer"`

	// NetbiosName is the appliance's flat name, sourced from the SMB
	// configuration and never persisted here.
	NetbiosName string `gorm:"-" json:"netbiosname,omitempty"`

	Enabled bool `json:"enable"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the table name for MembershipConfig.
func (MembershipConfig) TableName() string {
	return "directoryservice_membership"
}

// Normalize canonicalizes fields that have a required storage form.
func (c *MembershipConfig) Normalize() {
	c.DomainName = strings.ToUpper(c.DomainName)
	if c.NSSInfo == "" {
		c.NSSInfo = NSSInfoTemplate
	} else {
		c.NSSInfo = strings.ToUpper(c.NSSInfo)
	}
}

// MachinePrincipal returns the kerberos principal for the appliance's
// computer account in the configured domain.
func (c *MembershipConfig) MachinePrincipal() string {
	return strings.ToUpper(c.NetbiosName) + "$@" + strings.ToUpper(c.DomainName)
}

// Timeout returns the general operation timeout as a duration.
func (c *MembershipConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DNSTimeout returns the DNS operation timeout as a duration.
func (c *MembershipConfig) DNSTimeout() time.Duration {
	if c.DNSTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DNSTimeoutSeconds) * time.Second
}

// KerberosRealm is a realm record created during the domain join.
type KerberosRealm struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Realm string `gorm:"uniqueIndex;size:120" json:"realm"`

	// KDCs holds site-specific kerberos servers, space separated.
	// Empty means DNS discovery.
	KDCs string `gorm:"size:255" json:"kdc"`

	AdminServers   string `gorm:"size:255" json:"admin_server"`
	KPasswdServers string `gorm:"size:255" json:"kpasswd_server"`
}

// TableName returns the table name for KerberosRealm.
func (KerberosRealm) TableName() string {
	return "directoryservice_kerberosrealm"
}

// MachineAccountKeytabName names the keytab record holding the
// machine-account keys generated during the join.
const MachineAccountKeytabName = "MACHINE_ACCOUNT"

// KerberosKeytab is a stored keytab record.
type KerberosKeytab struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:120" json:"name"`

	// File is the base64-encoded keytab content.
	File string `gorm:"type:text" json:"file"`
}

// TableName returns the table name for KerberosKeytab.
func (KerberosKeytab) TableName() string {
	return "directoryservice_kerberoskeytab"
}

// Privilege is an access grant for a directory group, auto-created for
// the realm's administrative group after a successful join.
type Privilege struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"uniqueIndex;size:120" json:"name"`
	GroupSID string `gorm:"size:255" json:"group_sid"`

	// Allowlist is a JSON blob of permitted methods and resources.
	Allowlist string `gorm:"type:text" json:"allowlist"`
	WebShell  bool   `json:"web_shell"`
}

// TableName returns the table name for Privilege.
func (Privilege) TableName() string {
	return "directoryservice_privilege"
}

// LifecycleRecord persists the current membership lifecycle state so an
// interrupted join or leave remains observable across restarts.
type LifecycleRecord struct {
	ID    uint           `gorm:"primaryKey" json:"-"`
	State LifecycleState `gorm:"size:20;default:DISABLED" json:"state"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for LifecycleRecord.
func (LifecycleRecord) TableName() string {
	return "directoryservice_state"
}
