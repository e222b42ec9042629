package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vendora/order-service/pkg/db/models"
	"github.com/vendora/order-service/pkg/enums"
	"github.com/vendora/order-service/pkg/errors"
)

// Recorder applies the aggregate counters a settled payment implies.
type Recorder interface {
	WithTx(tx *gorm.DB) Recorder
	// RecordShopOrder bumps the product counters for one shop order.
	RecordShopOrder(ctx context.Context, order models.Order, at time.Time) error
	// RecordBuyerPurchase bumps the buyer aggregate and appends one action
	// log entry per purchased item. Callers invoke it once per payment with
	// the full order set, not once per shop order.
	RecordBuyerPurchase(ctx context.Context, userID uuid.UUID, orders []models.Order, at time.Time) error
	// RecordPurchase applies both aggregates for a full order set.
	RecordPurchase(ctx context.Context, orders []models.Order, at time.Time) error
}

type recorderImpl struct {
	repo Repository
}

// NewRecorder builds a Recorder on top of the analytics repository.
func NewRecorder(repo Repository) (Recorder, error) {
	if repo == nil {
		return nil, errors.New(errors.CodeDependency, "analytics repository is required")
	}
	return &recorderImpl{repo: repo}, nil
}

func (r *recorderImpl) WithTx(tx *gorm.DB) Recorder {
	if tx == nil {
		return r
	}
	return &recorderImpl{repo: r.repo.WithTx(tx)}
}

func (r *recorderImpl) RecordShopOrder(ctx context.Context, order models.Order, at time.Time) error {
	for _, item := range order.Items {
		if item.ProductID == nil {
			continue
		}
		if err := r.repo.IncrementProductSales(ctx, *item.ProductID, order.ShopID, item.Quantity, item.LineTotal, at); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "recording product sales")
		}
	}
	return nil
}

func (r *recorderImpl) RecordBuyerPurchase(ctx context.Context, userID uuid.UUID, orders []models.Order, at time.Time) error {
	if len(orders) == 0 {
		return nil
	}

	spent := decimal.Zero
	for _, order := range orders {
		spent = spent.Add(order.Total)
	}
	actions := purchaseActions(orders, at)

	if err := r.repo.IncrementUserPurchase(ctx, userID, spent, actions, at); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "recording buyer purchase")
	}
	return nil
}

func (r *recorderImpl) RecordPurchase(ctx context.Context, orders []models.Order, at time.Time) error {
	if len(orders) == 0 {
		return nil
	}

	if err := r.RecordBuyerPurchase(ctx, orders[0].UserID, orders, at); err != nil {
		return err
	}

	for _, order := range orders {
		if err := r.RecordShopOrder(ctx, order, at); err != nil {
			return err
		}
	}
	return nil
}

// purchaseActions flattens the order set into one log entry per item.
func purchaseActions(orders []models.Order, at time.Time) []models.UserAction {
	var actions []models.UserAction
	for _, order := range orders {
		for _, item := range order.Items {
			if item.ProductID == nil {
				continue
			}
			actions = append(actions, models.UserAction{
				ProductID: *item.ProductID,
				ShopID:    order.ShopID,
				Action:    enums.AnalyticsActionPurchase,
				Timestamp: at.UTC(),
			})
		}
	}
	return actions
}
