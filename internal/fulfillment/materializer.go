package fulfillment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/vendora/order-service/internal/analytics"
	"github.com/vendora/order-service/internal/catalog"
	"github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/internal/orders"
	"github.com/vendora/order-service/pkg/config"
	"github.com/vendora/order-service/pkg/db"
	"github.com/vendora/order-service/pkg/db/models"
	"github.com/vendora/order-service/pkg/enums"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/logger"
	"github.com/vendora/order-service/pkg/mailer"
	"github.com/vendora/order-service/pkg/metrics"
	pkgstripe "github.com/vendora/order-service/pkg/stripe"
)

// sessionClaimer is the checkout surface the materializer needs: a peek and
// the single-winner consume.
type sessionClaimer interface {
	Get(ctx context.Context, userID uuid.UUID) (*checkout.Session, error)
	Claim(ctx context.Context, userID uuid.UUID, path string) (*checkout.Session, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type usageIncrementer interface {
	IncrementUsage(ctx context.Context, code string) error
}

type buyerReader interface {
	ByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type notifier interface {
	NotifyOrderPlaced(ctx context.Context, buyerID uuid.UUID, orderCount int) error
	NotifyOrderReceived(ctx context.Context, sellerID uuid.UUID, orderID uuid.UUID) error
}

type purchasePublisher interface {
	PublishPurchase(ctx context.Context, payload analytics.PurchasePayload, occurredAt time.Time) (string, error)
}

// MaterializeParams identify the payment the caller wants settled into orders.
type MaterializeParams struct {
	UserID          uuid.UUID
	SessionID       uuid.UUID
	PaymentIntentID string
	// Path labels the claiming caller for metrics: "webhook" or "fallback".
	Path string
}

// Result reports what materialization produced. AlreadyProcessed means the
// session was consumed earlier and the orders already exist.
type Result struct {
	AlreadyProcessed bool
	Orders           []models.Order
}

// Service turns a claimed checkout session into persisted per-shop orders.
type Service interface {
	Materialize(ctx context.Context, params MaterializeParams) (*Result, error)
	VerifyAndFulfill(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID, paymentIntentID string) (*Result, error)
}

// Params collects the materializer's dependencies.
type Params struct {
	Sessions  sessionClaimer
	Tx        txRunner
	Orders    orders.Repository
	Catalog   catalog.Repository
	Discounts usageIncrementer
	Analytics analytics.Recorder
	Users     buyerReader
	Notifier  notifier
	Mailer    mailer.Sender
	Publisher purchasePublisher
	Intents   pkgstripe.PaymentIntents
	Config    config.CheckoutConfig
	Logger    *logger.Logger
	Metrics   *metrics.CheckoutMetrics
}

type service struct {
	sessions  sessionClaimer
	tx        txRunner
	orders    orders.Repository
	catalog   catalog.Repository
	discounts usageIncrementer
	analytics analytics.Recorder
	users     buyerReader
	notifier  notifier
	mailer    mailer.Sender
	publisher purchasePublisher
	intents   pkgstripe.PaymentIntents
	cfg       config.CheckoutConfig
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
	now       func() time.Time
}

// NewService wires the materializer.
func NewService(params Params) (Service, error) {
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session claimer required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	if params.Discounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "discounts repository required")
	}
	if params.Analytics == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "analytics recorder required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment intents client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.Config.SideEffectTimeout <= 0 {
		params.Config.SideEffectTimeout = 15 * time.Second
	}
	return &service{
		sessions:  params.Sessions,
		tx:        params.Tx,
		orders:    params.Orders,
		catalog:   params.Catalog,
		discounts: params.Discounts,
		analytics: params.Analytics,
		users:     params.Users,
		notifier:  params.Notifier,
		mailer:    params.Mailer,
		publisher: params.Publisher,
		intents:   params.Intents,
		cfg:       params.Config,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

// Materialize claims the user's session and persists one order per shop. The
// claim is single-winner; a consumed or missing session resolves to
// AlreadyProcessed instead of an error so webhook and fallback can race safely.
func (s *service) Materialize(ctx context.Context, params MaterializeParams) (*Result, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":    params.UserID.String(),
		"session_id": params.SessionID.String(),
		"payment_id": params.PaymentIntentID,
		"path":       params.Path,
	})

	peeked, err := s.sessions.Get(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if peeked == nil {
		return s.resolveAlreadyProcessed(logCtx, params.PaymentIntentID)
	}
	if params.SessionID != uuid.Nil && peeked.ID != params.SessionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if params.PaymentIntentID != "" && peeked.PaymentIntentID != params.PaymentIntentID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment does not match the active session")
	}

	session, err := s.sessions.Claim(ctx, params.UserID, params.Path)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return s.resolveAlreadyProcessed(logCtx, params.PaymentIntentID)
	}

	started := s.now()
	created, err := s.persistOrders(logCtx, session)
	if len(created) == 0 && err != nil {
		return nil, err
	}
	if err != nil {
		s.logg.Error(logCtx, "some shop groups failed to materialize", err)
	}
	s.metrics.ObserveMaterialization(params.Path, s.now().Sub(started))

	if session.Discount != nil {
		if err := s.discounts.IncrementUsage(ctx, session.Discount.Code); err != nil {
			s.logg.Error(logCtx, "incrementing discount usage", err)
			s.metrics.IncSideEffectFailure("discount_usage")
		}
	}

	go s.runSideEffects(session, created)

	s.logg.Info(s.logg.WithField(logCtx, "order_count", len(created)), "orders materialized")
	return &Result{Orders: created}, nil
}

// VerifyAndFulfill is the polling fallback for lost webhooks. It confirms the
// payment with the gateway before materializing. Cash-on-delivery sessions
// skip the gateway check entirely.
func (s *service) VerifyAndFulfill(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID, paymentIntentID string) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return s.resolveAlreadyProcessed(ctx, paymentIntentID)
	}

	params := MaterializeParams{
		UserID:          userID,
		SessionID:       sessionID,
		PaymentIntentID: paymentIntentID,
		Path:            "fallback",
	}

	if session.PaymentMethod == enums.PaymentMethodCashOnDelivery {
		params.PaymentIntentID = session.PaymentIntentID
		return s.Materialize(ctx, params)
	}

	if paymentIntentID == "" {
		paymentIntentID = session.PaymentIntentID
		params.PaymentIntentID = paymentIntentID
	}
	intent, err := s.intents.Get(ctx, paymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieving payment intent")
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment has not settled").WithDetails(map[string]any{
			"status": string(intent.Status),
		})
	}
	if metaUser := intent.Metadata["user_id"]; metaUser != "" && metaUser != userID.String() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}

	return s.Materialize(ctx, params)
}

// resolveAlreadyProcessed handles an absent session. Another claimer has
// either already materialized the orders or will never be able to, so the
// caller treats both as settled. The existence check only feeds the log.
func (s *service) resolveAlreadyProcessed(ctx context.Context, paymentIntentID string) (*Result, error) {
	if paymentIntentID != "" {
		logCtx := s.logg.WithField(ctx, "payment_intent_id", paymentIntentID)
		exists, err := s.orders.ExistsByPaymentID(ctx, paymentIntentID)
		switch {
		case err != nil:
			s.logg.Error(logCtx, "could not confirm orders for absent session", err)
		case !exists:
			s.logg.Warn(logCtx, "absent session resolved with no matching orders")
		}
	}
	return &Result{AlreadyProcessed: true}, nil
}

// persistOrders runs one transaction per shop group so a failing group never
// aborts the others. Unique violations on (payment_id, shop_id) mean another
// claimer got there first and are treated as success.
func (s *service) persistOrders(ctx context.Context, session *checkout.Session) ([]models.Order, error) {
	address, err := json.Marshal(session.ShippingAddress)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding shipping address")
	}

	groups := checkout.GroupByShop(session.Items, session.Discount)
	now := s.now().UTC()

	var created []models.Order
	var errs error
	for _, group := range groups {
		order := s.buildOrder(session, group, address)
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.orders.WithTx(tx).CreateAll(ctx, []models.Order{order}); err != nil {
				return err
			}
			catalogTx := s.catalog.WithTx(tx)
			for _, item := range group.Items {
				decremented, err := catalogTx.DecrementStock(ctx, item.ProductID, item.Quantity)
				if err != nil {
					return err
				}
				if !decremented {
					s.logg.Warn(s.logg.WithField(ctx, "product_id", item.ProductID.String()), "stock went negative, decrement skipped")
				}
			}
			return s.analytics.WithTx(tx).RecordShopOrder(ctx, order, now)
		})
		if err != nil {
			if db.IsUniqueViolation(err, "orders_payment_shop_key") {
				s.logg.Warn(s.logg.WithField(ctx, "shop_id", group.ShopID.String()), "shop order already materialized")
				continue
			}
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "materializing shop order"))
			continue
		}
		created = append(created, order)
	}

	if len(created) > 0 {
		if err := s.analytics.RecordBuyerPurchase(ctx, session.UserID, created, now); err != nil {
			s.logg.Error(ctx, "recording buyer analytics", err)
			s.metrics.IncSideEffectFailure("analytics_db")
		}
	}
	return created, errs
}

func (s *service) buildOrder(session *checkout.Session, group checkout.ShopGroup, address json.RawMessage) models.Order {
	order := models.Order{
		ID:              uuid.New(),
		PaymentID:       session.PaymentIntentID,
		ShopID:          group.ShopID,
		UserID:          session.UserID,
		Status:          enums.OrderStatusPlaced,
		PaymentStatus:   enums.PaymentStatusAccepted,
		PaymentMethod:   session.PaymentMethod,
		Subtotal:        group.Subtotal,
		DiscountAmount:  group.Discount,
		Total:           group.Total,
		ShippingAddress: address,
	}
	if session.Discount != nil {
		code := session.Discount.Code
		order.DiscountCode = &code
	}
	for _, item := range group.Items {
		productID := item.ProductID
		var options json.RawMessage
		if len(item.SelectedOptions) > 0 {
			if raw, err := json.Marshal(item.SelectedOptions); err == nil {
				options = raw
			}
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:              uuid.New(),
			OrderID:         order.ID,
			ProductID:       &productID,
			Name:            item.Name,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			LineTotal:       item.LineTotal(),
			SelectedOptions: options,
		})
	}
	return order
}
