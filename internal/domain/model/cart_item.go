package model

import "time"

// カートの明細
// (cart_id, product_id) は一意。quantityは常に1以上。
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID    int64     `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"cart_id"`
	ProductID int64     `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"product_id"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
