package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/api/middleware"
	"github.com/vendora/order-service/api/responses"
	"github.com/vendora/order-service/api/validators"
	"github.com/vendora/order-service/internal/fulfillment"
	"github.com/vendora/order-service/internal/orders"
	"github.com/vendora/order-service/pkg/db/models"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/logger"
)

// VerifyAndProcessPayment is the polling fallback for checkout settlement. It
// checks the gateway's view of the payment and materializes orders when the
// webhook has not done so yet.
func VerifyAndProcessPayment(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		sessionID, err := validators.ParseQueryUUID(r, "sessionId", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentIntentID := strings.TrimSpace(validators.QueryString(r, "payment_intent"))
		if paymentIntentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment_intent is required"))
			return
		}

		result, err := svc.VerifyAndFulfill(r.Context(), userID, sessionID, paymentIntentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newFulfillmentResponse(result))
	}
}

// GetSellerOrders lists orders for the caller's shop, newest first.
func GetSellerOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		shopID := middleware.ShopUUIDFromContext(r.Context())
		if shopID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing"))
			return
		}

		params, err := listParamsFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.ShopID = shopID

		result, err := svc.ListForShop(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(result))
	}
}

// GetMyOrders lists the caller's purchase history, newest first.
func GetMyOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		params, err := listParamsFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.BuyerID = userID

		result, err := svc.ListForBuyer(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(result))
	}
}

func listParamsFromQuery(r *http.Request) (orders.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
	if err != nil {
		return orders.ListParams{}, err
	}
	return orders.ListParams{
		Limit:  limit,
		Cursor: strings.TrimSpace(validators.QueryString(r, "cursor")),
	}, nil
}

type fulfillmentResponse struct {
	AlreadyProcessed bool            `json:"alreadyProcessed"`
	Orders           []orderResponse `json:"orders"`
}

type orderListResponse struct {
	Items  []orderResponse `json:"items"`
	Cursor string          `json:"cursor,omitempty"`
}

type orderResponse struct {
	OrderID        uuid.UUID           `json:"order_id"`
	ShopID         uuid.UUID           `json:"shop_id"`
	UserID         uuid.UUID           `json:"user_id"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"payment_status"`
	PaymentMethod  string              `json:"payment_method"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
	DiscountCode   *string             `json:"discount_code,omitempty"`
	Total          decimal.Decimal     `json:"total"`
	Items          []orderItemResponse `json:"items"`
	CreatedAt      string              `json:"created_at"`
}

type orderItemResponse struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func newFulfillmentResponse(result *fulfillment.Result) fulfillmentResponse {
	if result == nil {
		return fulfillmentResponse{Orders: []orderResponse{}}
	}
	items := make([]orderResponse, 0, len(result.Orders))
	for _, order := range result.Orders {
		items = append(items, newOrderResponse(order))
	}
	return fulfillmentResponse{AlreadyProcessed: result.AlreadyProcessed, Orders: items}
}

func newOrderListResponse(result *orders.ListResult) orderListResponse {
	if result == nil {
		return orderListResponse{Items: []orderResponse{}}
	}
	items := make([]orderResponse, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, newOrderResponse(order))
	}
	return orderListResponse{Items: items, Cursor: result.Cursor}
}

func newOrderResponse(order models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	return orderResponse{
		OrderID:        order.ID,
		ShopID:         order.ShopID,
		UserID:         order.UserID,
		Status:         order.Status.String(),
		PaymentStatus:  order.PaymentStatus.String(),
		PaymentMethod:  order.PaymentMethod.String(),
		Subtotal:       order.Subtotal,
		DiscountAmount: order.DiscountAmount,
		DiscountCode:   order.DiscountCode,
		Total:          order.Total,
		Items:          items,
		CreatedAt:      order.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
