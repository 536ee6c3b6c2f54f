package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
)

func (s *GORMStore) PrivilegeByName(ctx context.Context, name string) (*models.Privilege, error) {
	var rec models.Privilege
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPrivilegeNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GORMStore) CreatePrivilege(ctx context.Context, p *models.Privilege) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *GORMStore) DeletePrivilege(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&models.Privilege{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrPrivilegeNotFound
	}
	return nil
}
