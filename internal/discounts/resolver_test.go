package discounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vendora/order-service/pkg/db/models"
	"github.com/vendora/order-service/pkg/enums"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
)

type fakeRepo struct {
	discount *models.DiscountCode
	err      error
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) ByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	return f.discount, f.err
}

func (f *fakeRepo) IncrementUsage(ctx context.Context, code string) error { return nil }

func validDiscount() *models.DiscountCode {
	shopID := uuid.New()
	return &models.DiscountCode{
		ID:        uuid.New(),
		ShopID:    &shopID,
		ProductID: uuid.New(),
		Code:      "SAVE10",
		Type:      enums.DiscountTypePercentage,
		Value:     decimal.RequireFromString("10"),
		IsActive:  true,
	}
}

func mustResolver(t *testing.T, repo Repository) *Resolver {
	t.Helper()
	resolver, err := NewResolver(repo)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver
}

func TestResolve_Valid(t *testing.T) {
	discount := validDiscount()
	resolver := mustResolver(t, &fakeRepo{discount: discount})

	snapshot, err := resolver.Resolve(context.Background(), "save10")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if snapshot.Code != "SAVE10" {
		t.Fatalf("unexpected code %q", snapshot.Code)
	}
	if snapshot.ProductID != discount.ProductID {
		t.Fatal("target product not preserved")
	}
	if snapshot.MaxDiscount != nil {
		t.Fatal("expected no cap")
	}
}

func TestResolve_CapCarriedIntoSnapshot(t *testing.T) {
	discount := validDiscount()
	discount.MaxDiscount = decimal.NewNullDecimal(decimal.RequireFromString("5.00"))
	resolver := mustResolver(t, &fakeRepo{discount: discount})

	snapshot, err := resolver.Resolve(context.Background(), "SAVE10")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if snapshot.MaxDiscount == nil || !snapshot.MaxDiscount.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("cap not preserved: %+v", snapshot.MaxDiscount)
	}
}

func TestResolve_Rejections(t *testing.T) {
	expired := validDiscount()
	past := time.Now().Add(-time.Hour)
	expired.ExpiresAt = &past

	inactive := validDiscount()
	inactive.IsActive = false

	exhausted := validDiscount()
	limit := 3
	exhausted.UsageLimit = &limit
	exhausted.UsedCount = 3

	cases := []struct {
		name     string
		discount *models.DiscountCode
	}{
		{"unknown code", nil},
		{"expired", expired},
		{"inactive", inactive},
		{"usage limit reached", exhausted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolver := mustResolver(t, &fakeRepo{discount: tc.discount})
			_, err := resolver.Resolve(context.Background(), "SAVE10")
			if err == nil {
				t.Fatal("expected rejection")
			}
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %v", err)
			}
		})
	}
}
