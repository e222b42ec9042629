package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/pkg/enums"
	"github.com/vendora/order-service/pkg/types"
)

// SchemaVersion guards session payloads across deploys. Claimants treat any
// version mismatch as an absent session so a stale payload never
// materializes under new code.
const SchemaVersion = 1

// Session is the Redis-held checkout state between payment intent creation
// and order materialization. Prices and the discount are snapshotted here at
// creation time; materialization reads only this payload.
type Session struct {
	SchemaVersion   int                   `json:"schema_version"`
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"user_id"`
	Fingerprint     string                `json:"fingerprint"`
	PaymentIntentID string                `json:"payment_intent_id"`
	ClientSecret    string                `json:"client_secret"`
	PaymentMethod   enums.PaymentMethod   `json:"payment_method"`
	Currency        string                `json:"currency"`
	Items           []SessionItem         `json:"items"`
	Discount        *DiscountSnapshot     `json:"discount,omitempty"`
	ShippingAddress types.AddressSnapshot `json:"shipping_address"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	DiscountTotal   decimal.Decimal       `json:"discount_total"`
	Total           decimal.Decimal       `json:"total"`
	CreatedAt       time.Time             `json:"created_at"`
}

// SessionItem is one cart line frozen into the session.
type SessionItem struct {
	ProductID       uuid.UUID         `json:"product_id"`
	ShopID          uuid.UUID         `json:"shop_id"`
	Name            string            `json:"name"`
	UnitPrice       decimal.Decimal   `json:"unit_price"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selected_options,omitempty"`
}

// LineTotal returns unit price times quantity for the item.
func (i SessionItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// DiscountSnapshot freezes the discount terms that were valid when the
// session was created. Every code targets a single product; the discount
// lands on whichever shop group carries that product and nowhere else.
type DiscountSnapshot struct {
	Code        string             `json:"code"`
	Type        enums.DiscountType `json:"type"`
	Value       decimal.Decimal    `json:"value"`
	MaxDiscount *decimal.Decimal   `json:"max_discount,omitempty"`
	ProductID   uuid.UUID          `json:"product_id"`
}

// Targets reports whether the snapshot is aimed at the given product.
func (d *DiscountSnapshot) Targets(productID uuid.UUID) bool {
	return d != nil && d.ProductID == productID
}

// Encode serializes the session for storage.
func (s *Session) Encode() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	return string(raw), nil
}

// DecodeSession parses a stored payload. A schema version other than the
// current one returns (nil, nil) so callers treat the session as absent.
func DecodeSession(raw string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if s.SchemaVersion != SchemaVersion {
		return nil, nil
	}
	return &s, nil
}

// CartLine is the inbound cart representation before server-side pricing.
type CartLine struct {
	ProductID       uuid.UUID
	Quantity        int
	SelectedOptions map[string]string
}

// Fingerprint derives a stable digest of the priced cart plus everything
// else that changes what a payment would settle: the discount code, the
// shipping address, and the payment method. Unit prices are part of the
// digest, so a catalog price change breaks reuse of an open session even
// when the cart itself is unchanged.
func Fingerprint(items []SessionItem, discountCode string, addressID uuid.UUID, method enums.PaymentMethod) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s:%d:%s:%s:%s",
			item.ProductID, item.Quantity, item.UnitPrice.String(), item.ShopID, canonicalOptions(item.SelectedOptions)))
	}
	sort.Strings(parts)

	payload := strings.Join(parts, ";") +
		"|" + strings.ToLower(strings.TrimSpace(discountCode)) +
		"|" + addressID.String() +
		"|" + method.String()

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func canonicalOptions(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+options[k])
	}
	return strings.Join(pairs, ",")
}
