package repository

import (
	"context"

	"storefront/internal/domain/cart"
)

type CartItemRepository interface {
	// 商品テーブルとJOINして表示用の行を返す
	ListDetailed(ctx context.Context, cartID int64) ([]cart.Item, error)
	// 同一商品は数量加算、無ければdeltaで新規作成
	AddQuantity(ctx context.Context, cartID int64, productID int64, delta int64) error
	// 数量をその値に上書き、無ければその値で新規作成
	SetQuantity(ctx context.Context, cartID int64, productID int64, qty int64) error
	// 行が無くてもエラーにしない
	DeleteByProduct(ctx context.Context, cartID int64, productID int64) error
}
