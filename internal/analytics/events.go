package analytics

import (
	"encoding/json"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/vendora/order-service/pkg/enums"
)

// Envelope is the canonical purchase-event message exchanged over Pub/Sub.
// The payload carries the event body; the surrounding fields travel as
// message attributes so consumers can route and dedupe without decoding it.
type Envelope struct {
	EventID    string                `json:"event_id"`
	EventType  enums.AnalyticsAction `json:"event_type"`
	PaymentID  string                `json:"payment_id"`
	OccurredAt time.Time             `json:"occurred_at"`
	Payload    json.RawMessage       `json:"payload"`
}

// PurchasePayload is the body of a purchase envelope. Amounts are in the
// smallest currency unit to avoid decimal drift across consumers.
type PurchasePayload struct {
	PaymentID     string         `json:"payment_id"`
	UserID        string         `json:"user_id"`
	Currency      string         `json:"currency"`
	PaymentMethod string         `json:"payment_method"`
	SubtotalCents int64          `json:"subtotal_cents"`
	DiscountCents int64          `json:"discount_cents"`
	TotalCents    int64          `json:"total_cents"`
	Orders        []OrderSummary `json:"orders"`
}

// OrderSummary describes one shop order produced by a settled payment.
type OrderSummary struct {
	OrderID    string `json:"order_id"`
	ShopID     string `json:"shop_id"`
	TotalCents int64  `json:"total_cents"`
	ItemCount  int    `json:"item_count"`
}

// PurchaseRow is the BigQuery fact row, one per shop order.
type PurchaseRow struct {
	EventID       string             `bigquery:"event_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	PaymentID     string             `bigquery:"payment_id"`
	UserID        string             `bigquery:"user_id"`
	OrderID       string             `bigquery:"order_id"`
	ShopID        string             `bigquery:"shop_id"`
	Currency      string             `bigquery:"currency"`
	PaymentMethod string             `bigquery:"payment_method"`
	TotalCents    int64              `bigquery:"total_cents"`
	ItemCount     int64              `bigquery:"item_count"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// Rows expands a purchase payload into BigQuery fact rows.
func (p PurchasePayload) Rows(eventID string, occurredAt time.Time) []PurchaseRow {
	rows := make([]PurchaseRow, 0, len(p.Orders))
	for _, order := range p.Orders {
		rows = append(rows, PurchaseRow{
			EventID:       eventID,
			OccurredAt:    occurredAt.UTC(),
			PaymentID:     p.PaymentID,
			UserID:        p.UserID,
			OrderID:       order.OrderID,
			ShopID:        order.ShopID,
			Currency:      p.Currency,
			PaymentMethod: p.PaymentMethod,
			TotalCents:    order.TotalCents,
			ItemCount:     int64(order.ItemCount),
		})
	}
	return rows
}
