package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/api/middleware"
	"github.com/vendora/order-service/api/responses"
	"github.com/vendora/order-service/api/validators"
	checkoutsvc "github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/pkg/enums"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/logger"
)

// CreatePaymentSession prices the submitted cart server-side and opens a
// checkout session. An identical in-flight cart returns the existing session
// with a 200 instead of opening a second one.
func CreatePaymentSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload createSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]checkoutsvc.CartLine, 0, len(payload.Items))
		for _, item := range payload.Items {
			lines = append(lines, checkoutsvc.CartLine{
				ProductID:       item.ProductID,
				Quantity:        item.Quantity,
				SelectedOptions: item.SelectedOptions,
			})
		}

		result, err := svc.CreateOrReuse(r.Context(), userID, checkoutsvc.CreateParams{
			Lines:         lines,
			DiscountCode:  payload.DiscountCode,
			AddressID:     payload.AddressID,
			PaymentMethod: enums.PaymentMethod(payload.PaymentMethod),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, newSessionResponse(result.Session))
	}
}

// VerifyPaymentSession returns the caller's active session when the supplied
// id still matches it. An expired, consumed, or foreign session reads as 404.
func VerifyPaymentSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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

		session, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if session == nil || session.ID != sessionID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "session not found"))
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// CreatePaymentIntent re-issues the gateway credentials for an open session so
// a client that lost the first response can still confirm the payment.
func CreatePaymentIntent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if session == nil || session.ID != payload.SessionID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "session not found"))
			return
		}
		if session.PaymentMethod != enums.PaymentMethodStripe || session.ClientSecret == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "session has no gateway payment intent"))
			return
		}

		responses.WriteSuccess(w, createIntentResponse{
			PaymentIntentID: session.PaymentIntentID,
			ClientSecret:    session.ClientSecret,
		})
	}
}

type createSessionRequest struct {
	Items         []cartLineRequest `json:"items" validate:"required,min=1,dive"`
	DiscountCode  string            `json:"discount_code,omitempty"`
	AddressID     uuid.UUID         `json:"address_id" validate:"required"`
	PaymentMethod string            `json:"payment_method" validate:"required,oneof=stripe cash_on_delivery"`
}

type cartLineRequest struct {
	ProductID       uuid.UUID         `json:"product_id" validate:"required"`
	Quantity        int               `json:"quantity" validate:"required,gt=0"`
	SelectedOptions map[string]string `json:"selected_options,omitempty"`
}

type createIntentRequest struct {
	SessionID uuid.UUID `json:"sessionId" validate:"required"`
}

type createIntentResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
}

type sessionResponse struct {
	SessionID       uuid.UUID             `json:"sessionId"`
	PaymentIntentID string                `json:"paymentIntentId"`
	ClientSecret    string                `json:"clientSecret,omitempty"`
	PaymentMethod   string                `json:"payment_method"`
	Currency        string                `json:"currency"`
	Items           []sessionItemResponse `json:"items"`
	DiscountCode    string                `json:"discount_code,omitempty"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	DiscountTotal   decimal.Decimal       `json:"discount_total"`
	Total           decimal.Decimal       `json:"total"`
}

type sessionItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	ShopID    uuid.UUID       `json:"shop_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func newSessionResponse(session *checkoutsvc.Session) sessionResponse {
	if session == nil {
		return sessionResponse{}
	}
	items := make([]sessionItemResponse, 0, len(session.Items))
	for _, item := range session.Items {
		items = append(items, sessionItemResponse{
			ProductID: item.ProductID,
			ShopID:    item.ShopID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	resp := sessionResponse{
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntentID,
		ClientSecret:    session.ClientSecret,
		PaymentMethod:   session.PaymentMethod.String(),
		Currency:        session.Currency,
		Items:           items,
		Subtotal:        session.Subtotal,
		DiscountTotal:   session.DiscountTotal,
		Total:           session.Total,
	}
	if session.Discount != nil {
		resp.DiscountCode = session.Discount.Code
	}
	return resp
}
