package model

import "time"

// 価格は最小通貨単位のint64で持つ
type Product struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Price       int64     `gorm:"not null" json:"price"`
	Image       string    `gorm:"type:varchar(2048);not null" json:"image"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
