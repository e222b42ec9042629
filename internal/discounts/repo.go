package discounts

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/vendora/order-service/pkg/db/models"
)

// Repository exposes discount code persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	IncrementUsage(ctx context.Context, code string) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a discounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) ByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var discount models.DiscountCode
	err := r.db.WithContext(ctx).
		First(&discount, "LOWER(code) = ?", strings.ToLower(strings.TrimSpace(code))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

func (r *repositoryImpl) IncrementUsage(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.DiscountCode{}).
		Where("LOWER(code) = ?", strings.ToLower(strings.TrimSpace(code))).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
}
