package repository

import (
	"context"

	"storefront/internal/domain/cart"
)

// ゲストカートの保存先。キーは匿名セッショントークン。
type GuestCartRepository interface {
	// キーが無ければ空リスト
	Load(ctx context.Context, token string) ([]cart.Item, error)
	// 空リストの保存はキー削除と同じ扱い
	Save(ctx context.Context, token string, items []cart.Item) error
	Delete(ctx context.Context, token string) error
}
