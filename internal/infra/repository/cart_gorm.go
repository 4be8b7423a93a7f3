package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// ユーザーのカートを取得し、無ければ作成。
// insert-or-ignoreしてから読み直すので、同時に呼ばれてもカートは1つのまま。
func (r *CartGormRepository) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		newCart := model.Cart{
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		// user_idが衝突したら何もしない
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoNothing: true,
			}).
			Create(&newCart).Error; err != nil {
			return err
		}

		// 自分が作った場合も、先を越された場合も、読み直して確定させる
		return tx.Where("user_id = ?", userID).First(&cart).Error
	})

	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// ユーザーのカートを取得
func (r *CartGormRepository) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}
