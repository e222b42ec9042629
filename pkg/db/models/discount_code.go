package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/pkg/enums"
)

// DiscountCode is a promotion aimed at a single product. ShopID records the
// shop that issued the code; ProductID is the product the discount lands on.
type DiscountCode struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	ShopID      *uuid.UUID          `gorm:"column:shop_id;type:uuid;index"`
	ProductID   uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	Code        string              `gorm:"column:code;not null;uniqueIndex"`
	Type        enums.DiscountType  `gorm:"column:type;type:text;not null"`
	Value       decimal.Decimal     `gorm:"column:value;type:numeric(12,2);not null"`
	MaxDiscount decimal.NullDecimal `gorm:"column:max_discount;type:numeric(12,2)"`
	UsageLimit  *int                `gorm:"column:usage_limit"`
	UsedCount   int                 `gorm:"column:used_count;not null;default:0"`
	IsActive    bool                `gorm:"column:is_active;not null;default:true"`
	ExpiresAt   *time.Time          `gorm:"column:expires_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
