package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type UserGormRepository struct {
	db *gorm.DB
}

// DI
func NewUserGormRepository(db *gorm.DB) *UserGormRepository {
	return &UserGormRepository{db: db}
}

func (r *UserGormRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserGormRepository) FindByID(ctx context.Context, userID int64) (model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, repo.ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (r *UserGormRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, repo.ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}
