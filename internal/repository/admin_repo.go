package repository

import (
	"Horizon/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type AdminRepo interface {
	GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error)
	CreateAdmin(ctx context.Context, admin *model.Admin) error
	UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error
	AutoMigrate() error
}

type AdminRepoImpl struct {
	db *gorm.DB
}

func NewAdminRepo(db *gorm.DB) AdminRepo {
	return &AdminRepoImpl{db: db}
}

// GetAdminByUsername 不存在时返回 (nil, nil)
func (s *AdminRepoImpl) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	admin := &model.Admin{}
	result := s.db.WithContext(ctx).Where("username = ?", username).First(admin)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return admin, nil
}

func (s *AdminRepoImpl) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	return s.db.WithContext(ctx).Create(admin).Error
}

func (s *AdminRepoImpl) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&model.Admin{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}

func (s *AdminRepoImpl) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Admin{})
}
