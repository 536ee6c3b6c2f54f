package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

func (s *GORMStore) KeytabByName(ctx context.Context, name string) (*models.KerberosKeytab, error) {
	var rec models.KerberosKeytab
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrKeytabNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// SaveKeytab inserts or replaces the keytab record with the same name.
func (s *GORMStore) SaveKeytab(ctx context.Context, kt *models.KerberosKeytab) error {
	var existing models.KerberosKeytab
	err := s.db.WithContext(ctx).Where("name = ?", kt.Name).First(&existing).Error
	if err == nil {
		kt.ID = existing.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Save(kt).Error
}

func (s *GORMStore) DeleteKeytab(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&models.KerberosKeytab{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrKeytabNotFound
	}
	return nil
}
