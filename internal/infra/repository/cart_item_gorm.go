package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/cart"
	"storefront/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartItemGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartItemGormRepository(db *gorm.DB) *CartItemGormRepository {
	return &CartItemGormRepository{db: db}
}

// 商品テーブルとJOINして表示用の行を返す。
// name/price/imageは常に商品の現在値。
func (r *CartItemGormRepository) ListDetailed(ctx context.Context, cartID int64) ([]cart.Item, error) {
	items := []cart.Item{}

	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select("products.id as id, products.name as name, products.price as price, products.image as image, cart_items.quantity as quantity").
		Joins("join products on products.id = cart_items.product_id").
		Where("cart_items.cart_id = ?", cartID).
		Order("cart_items.id asc").
		Scan(&items).Error

	if err != nil {
		return []cart.Item{}, err
	}
	return items, nil
}

// 同一商品は数量加算
func (r *CartItemGormRepository) AddQuantity(ctx context.Context, cartID int64, productID int64, delta int64) error {
	if delta <= 0 {
		return errors.New("invalid quantity")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.CartItem

		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND product_id = ?", cartID, productID).
			First(&item).Error

		if err == nil {
			// 既存ありだったら数量を増やす
			return tx.Model(&model.CartItem{}).
				Where("id = ?", item.ID).
				Update("quantity", item.Quantity+delta).Error
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 無い場合は新規作成
		now := time.Now()
		newItem := model.CartItem{
			CartID:    cartID,
			ProductID: productID,
			Quantity:  delta,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(&newItem).Error
	})
}

// 数量をその値に上書き、無ければその値で新規作成
func (r *CartItemGormRepository) SetQuantity(ctx context.Context, cartID int64, productID int64, qty int64) error {
	if qty <= 0 {
		return errors.New("invalid quantity")
	}

	now := time.Now()
	item := model.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// (cart_id, product_id) が衝突したらquantityだけ上書き
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   qty,
				"updated_at": now,
			}),
		}).
		Create(&item).Error
}

// 行が無くてもエラーにしない
func (r *CartItemGormRepository) DeleteByProduct(ctx context.Context, cartID int64, productID int64) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&model.CartItem{}).Error
}
