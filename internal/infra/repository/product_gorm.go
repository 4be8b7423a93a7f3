package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 新しい順に全件返す
func (r *ProductGormRepository) List(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}

	err := r.db.WithContext(ctx).
		Order("created_at desc").Order("id desc").
		Find(&products).Error

	if err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product

	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// excludeIDを除いてランダムにlimit件
func (r *ProductGormRepository) ListRelated(ctx context.Context, excludeID int64, limit int) ([]model.Product, error) {
	products := []model.Product{}

	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Order("random()").
		Limit(limit).
		Find(&products).Error

	if err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, err
	}
	return p, nil
}
