// Package store provides the directory-service persistence layer.
//
// It is the single source of truth for the membership configuration and
// lifecycle state. Only the join and leave executors mutate the record,
// and they do so exclusively through UpdateMembership and SetState.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

// Store is the directory-service persistence interface.
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	// Membership returns a copy of the persisted membership record.
	// A default record is created on first access.
	Membership(ctx context.Context) (*models.MembershipConfig, error)

	// UpdateMembership is the single entry point for persisting a
	// membership record. The transient BindPW field is never stored.
	UpdateMembership(ctx context.Context, cfg *models.MembershipConfig) error

	// State returns the current lifecycle state.
	State(ctx context.Context) (models.LifecycleState, error)

	// SetState persists the lifecycle state.
	SetState(ctx context.Context, state models.LifecycleState) error

	// Kerberos realm records.
	RealmByName(ctx context.Context, realm string) (*models.KerberosRealm, error)
	RealmByID(ctx context.Context, id uint) (*models.KerberosRealm, error)
	CreateRealm(ctx context.Context, realm *models.KerberosRealm) (uint, error)
	UpdateRealm(ctx context.Context, realm *models.KerberosRealm) error
	DeleteRealm(ctx context.Context, id uint) error

	// Stored keytab records.
	KeytabByName(ctx context.Context, name string) (*models.KerberosKeytab, error)
	SaveKeytab(ctx context.Context, kt *models.KerberosKeytab) error
	DeleteKeytab(ctx context.Context, name string) error

	// Privilege grants.
	PrivilegeByName(ctx context.Context, name string) (*models.Privilege, error)
	CreatePrivilege(ctx context.Context, p *models.Privilege) error
	DeletePrivilege(ctx context.Context, name string) error
}

// Config contains database configuration.
type Config struct {
	// Path is the path to the SQLite database file.
	// Default: /var/lib/truenas-middleware/directoryservices.db
	Path string `mapstructure:"path" yaml:"path"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "/var/lib/truenas-middleware/directoryservices.db"
	}
}

// GORMStore implements the Store interface using GORM over SQLite.
type GORMStore struct {
	db *gorm.DB
}

// New creates a directory-service store from configuration.
// The schema is created via GORM AutoMigrate.
func New(config *Config) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	if config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL for concurrent readers, busy_timeout to ride out short locks.
	dsn := config.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &GORMStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
