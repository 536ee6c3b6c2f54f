package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

func (s *GORMStore) RealmByName(ctx context.Context, realm string) (*models.KerberosRealm, error) {
	var rec models.KerberosRealm
	if err := s.db.WithContext(ctx).Where("realm = ?", realm).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrRealmNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GORMStore) RealmByID(ctx context.Context, id uint) (*models.KerberosRealm, error) {
	var rec models.KerberosRealm
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrRealmNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GORMStore) CreateRealm(ctx context.Context, realm *models.KerberosRealm) (uint, error) {
	if err := s.db.WithContext(ctx).Create(realm).Error; err != nil {
		return 0, err
	}
	return realm.ID, nil
}

func (s *GORMStore) UpdateRealm(ctx context.Context, realm *models.KerberosRealm) error {
	return s.db.WithContext(ctx).Save(realm).Error
}

// DeleteRealm removes a realm record. Deleting an absent realm returns
// models.ErrRealmNotFound so leave can tolerate it explicitly.
func (s *GORMStore) DeleteRealm(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.KerberosRealm{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrRealmNotFound
	}
	return nil
}
