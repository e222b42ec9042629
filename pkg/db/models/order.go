package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/pkg/enums"
)

// Order is a per-shop slice of a settled checkout. One payment produces one
// order per shop represented in the cart; PaymentID carries the Stripe payment
// intent id and the unique index on it is the exactly-once backstop when both
// the webhook and the polling fallback race to materialize.
type Order struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey"`
	PaymentID       string              `gorm:"column:payment_id;not null;uniqueIndex:orders_payment_shop_key,priority:1"`
	ShopID          uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index;uniqueIndex:orders_payment_shop_key,priority:2"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'placed'"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Subtotal        decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount  decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	DiscountCode    *string             `gorm:"column:discount_code"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	ShippingAddress json.RawMessage     `gorm:"column:shipping_address;type:jsonb;not null"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
