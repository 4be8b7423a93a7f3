package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	Carts() CartRepository
	CartItems() CartItemRepository
	Products() ProductRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
// fnがエラーを返したら全部ロールバック。部分適用はしない。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
