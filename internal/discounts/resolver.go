package discounts

import (
	"context"
	"time"

	"github.com/vendora/order-service/internal/checkout"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
)

// Resolver validates a discount code and freezes its terms into a snapshot.
// The snapshot travels inside the checkout session, so the terms that were
// valid at session creation are the ones honored at materialization even if
// the code is edited or disabled in between.
type Resolver struct {
	repo Repository
	now  func() time.Time
}

// NewResolver wires the resolver dependencies.
func NewResolver(repo Repository) (*Resolver, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "discounts repository required")
	}
	return &Resolver{repo: repo, now: time.Now}, nil
}

// Resolve returns the snapshot for a valid code or a validation error.
func (r *Resolver) Resolve(ctx context.Context, code string) (*checkout.DiscountSnapshot, error) {
	discount, err := r.repo.ByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up discount code")
	}
	if discount == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code not found")
	}
	if !discount.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code is inactive")
	}
	if discount.ExpiresAt != nil && discount.ExpiresAt.Before(r.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code has expired")
	}
	if discount.UsageLimit != nil && discount.UsedCount >= *discount.UsageLimit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code usage limit reached")
	}

	snapshot := &checkout.DiscountSnapshot{
		Code:      discount.Code,
		Type:      discount.Type,
		Value:     discount.Value,
		ProductID: discount.ProductID,
	}
	if discount.MaxDiscount.Valid {
		maxDiscount := discount.MaxDiscount.Decimal
		snapshot.MaxDiscount = &maxDiscount
	}
	return snapshot, nil
}
