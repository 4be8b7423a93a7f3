package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context) ([]model.Product, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	// 詳細ページの「関連商品」用。excludeIDを除いてランダムにlimit件返す。
	ListRelated(ctx context.Context, excludeID int64, limit int) ([]model.Product, error)
	Create(ctx context.Context, p model.Product) (model.Product, error)
}
