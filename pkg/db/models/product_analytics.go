package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductAnalytics aggregates sales per product.
type ProductAnalytics struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex"`
	ShopID     uuid.UUID       `gorm:"column:shop_id;type:uuid;not null;index"`
	UnitsSold  int             `gorm:"column:units_sold;not null;default:0"`
	Revenue    decimal.Decimal `gorm:"column:revenue;type:numeric(14,2);not null;default:0"`
	LastSoldAt *time.Time      `gorm:"column:last_sold_at"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
