package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/vendora/order-service/pkg/db/models"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/pagination"
)

// Service defines order read operations for buyers and sellers.
type Service interface {
	ListForShop(ctx context.Context, params ListParams) (*ListResult, error)
	ListForBuyer(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo Repository
}

// ListParams configures pagination for order listings.
type ListParams struct {
	ShopID  uuid.UUID
	BuyerID uuid.UUID
	Limit   int
	Cursor  string
}

// ListResult wraps returned orders and the cursor for the next page.
type ListResult struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}

// NewService wires order dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListForShop(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ShopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}

	query := ListOrdersParams{ShopID: params.ShopID, Limit: params.Limit}
	if err := parseCursorInto(&query, params.Cursor); err != nil {
		return nil, err
	}

	rows, next, err := s.repo.ListByShop(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shop orders")
	}
	return buildListResult(rows, next), nil
}

func (s *service) ListForBuyer(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}

	query := ListOrdersParams{BuyerID: params.BuyerID, Limit: params.Limit}
	if err := parseCursorInto(&query, params.Cursor); err != nil {
		return nil, err
	}

	rows, next, err := s.repo.ListByBuyer(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return buildListResult(rows, next), nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.ByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func parseCursorInto(query *ListOrdersParams, raw string) error {
	if raw == "" {
		return nil
	}
	cursor, err := pagination.ParseCursor(raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor
	return nil
}

func buildListResult(rows []models.Order, next *pagination.Cursor) *ListResult {
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}
}
