package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vendora/order-service/pkg/db/models"
)

// Repository persists aggregated purchase counters and the buyer action log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	IncrementUserPurchase(ctx context.Context, userID uuid.UUID, spent decimal.Decimal, actions []models.UserAction, at time.Time) error
	IncrementProductSales(ctx context.Context, productID, shopID uuid.UUID, units int, revenue decimal.Decimal, at time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an analytics repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// IncrementUserPurchase bumps the buyer's running totals and appends the
// purchase actions to the activity log in a single read-modify-write,
// creating the row on first purchase. Callers run this inside the
// materialization transaction so a concurrent first purchase surfaces as a
// unique violation, not a double row.
func (r *repositoryImpl) IncrementUserPurchase(ctx context.Context, userID uuid.UUID, spent decimal.Decimal, actions []models.UserAction, at time.Time) error {
	at = at.UTC()

	var record models.UserAnalytics
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log, marshalErr := appendActions(nil, actions)
		if marshalErr != nil {
			return marshalErr
		}
		return r.db.WithContext(ctx).Create(&models.UserAnalytics{
			ID:             uuid.New(),
			UserID:         userID,
			PurchaseCount:  1,
			TotalSpent:     spent,
			Actions:        log,
			LastPurchaseAt: &at,
		}).Error
	}
	if err != nil {
		return err
	}

	log, err := appendActions(record.Actions, actions)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.UserAnalytics{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"purchase_count":   gorm.Expr("purchase_count + 1"),
			"total_spent":      gorm.Expr("total_spent + ?", spent),
			"actions":          log,
			"last_purchase_at": at,
		}).Error
}

// appendActions decodes the stored log, appends the new entries, and encodes
// the result. Existing entries are never rewritten.
func appendActions(stored json.RawMessage, actions []models.UserAction) (json.RawMessage, error) {
	log := []models.UserAction{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &log); err != nil {
			return nil, fmt.Errorf("decoding action log: %w", err)
		}
	}
	log = append(log, actions...)
	raw, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("encoding action log: %w", err)
	}
	return raw, nil
}

// IncrementProductSales bumps a product's sold units and revenue.
func (r *repositoryImpl) IncrementProductSales(ctx context.Context, productID, shopID uuid.UUID, units int, revenue decimal.Decimal, at time.Time) error {
	at = at.UTC()
	result := r.db.WithContext(ctx).
		Model(&models.ProductAnalytics{}).
		Where("product_id = ?", productID).
		Updates(map[string]any{
			"units_sold":   gorm.Expr("units_sold + ?", units),
			"revenue":      gorm.Expr("revenue + ?", revenue),
			"last_sold_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&models.ProductAnalytics{
		ID:         uuid.New(),
		ProductID:  productID,
		ShopID:     shopID,
		UnitsSold:  units,
		Revenue:    revenue,
		LastSoldAt: &at,
	}).Error
}
