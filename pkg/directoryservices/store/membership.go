package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

// Membership returns a copy of the singleton membership record,
// creating a default one on first access.
func (s *GORMStore) Membership(ctx context.Context) (*models.MembershipConfig, error) {
	var cfg models.MembershipConfig
	err := s.db.WithContext(ctx).Order("id").First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.MembershipConfig{
			TimeoutSeconds:    60,
			DNSTimeoutSeconds: 10,
			NSSInfo:           models.NSSInfoTemplate,
		}
		if err := s.db.WithContext(ctx).Create(&cfg).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateMembership persists the membership record. BindPW and
// NetbiosName carry gorm:"-" tags and are never written.
func (s *GORMStore) UpdateMembership(ctx context.Context, cfg *models.MembershipConfig) error {
	cfg.Normalize()
	return s.db.WithContext(ctx).Save(cfg).Error
}

// State returns the current lifecycle state, defaulting to DISABLED.
func (s *GORMStore) State(ctx context.Context) (models.LifecycleState, error) {
	var rec models.LifecycleRecord
	err := s.db.WithContext(ctx).Order("id").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StateDisabled, nil
	}
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

// SetState persists the lifecycle state.
func (s *GORMStore) SetState(ctx context.Context, state models.LifecycleState) error {
	var rec models.LifecycleRecord
	err := s.db.WithContext(ctx).Order("id").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = models.LifecycleRecord{State: state}
		return s.db.WithContext(ctx).Create(&rec).Error
	}
	if err != nil {
		return err
	}
	rec.State = state
	return s.db.WithContext(ctx).Save(&rec).Error
}
