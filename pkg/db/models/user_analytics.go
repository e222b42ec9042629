package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/pkg/enums"
)

// UserAnalytics aggregates purchase activity per buyer. On every settled
// payment the counters are bumped once and one UserAction per purchased item
// is appended to Actions, regardless of how many shop orders the payment
// produced.
type UserAnalytics struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	PurchaseCount  int             `gorm:"column:purchase_count;not null;default:0"`
	TotalSpent     decimal.Decimal `gorm:"column:total_spent;type:numeric(14,2);not null;default:0"`
	Actions        json.RawMessage `gorm:"column:actions;type:jsonb;not null;default:'[]'"`
	LastPurchaseAt *time.Time      `gorm:"column:last_purchase_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// UserAction is one append-only entry in a buyer's activity log.
type UserAction struct {
	ProductID uuid.UUID             `json:"product_id"`
	ShopID    uuid.UUID             `json:"shop_id"`
	Action    enums.AnalyticsAction `json:"action"`
	Timestamp time.Time             `json:"timestamp"`
}

// ActionLog decodes the stored Actions payload. An empty column reads as an
// empty log.
func (u *UserAnalytics) ActionLog() ([]UserAction, error) {
	if len(u.Actions) == 0 {
		return nil, nil
	}
	var actions []UserAction
	if err := json.Unmarshal(u.Actions, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}
