package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	// 無ければ作る。同一ユーザーの同時呼び出しでもカートは1つのまま。
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
}
