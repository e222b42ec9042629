package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	stripe "github.com/stripe/stripe-go/v84"

	"github.com/vendora/order-service/pkg/config"
	"github.com/vendora/order-service/pkg/db/models"
	"github.com/vendora/order-service/pkg/enums"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/logger"
	"github.com/vendora/order-service/pkg/metrics"
	pkgstripe "github.com/vendora/order-service/pkg/stripe"
	"github.com/vendora/order-service/pkg/types"
)

// SessionStore is the Redis surface required by the manager.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	PaymentSessionKey(userID string) string
}

// ProductReader loads catalog rows for server-side pricing.
type ProductReader interface {
	ByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// DiscountResolver turns a code into a frozen discount snapshot.
type DiscountResolver interface {
	Resolve(ctx context.Context, code string) (*DiscountSnapshot, error)
}

// AddressReader produces the shipping snapshot for a user's saved address.
type AddressReader interface {
	Snapshot(ctx context.Context, userID, addressID uuid.UUID) (types.AddressSnapshot, error)
}

// Service manages the checkout session lifecycle.
type Service interface {
	CreateOrReuse(ctx context.Context, userID uuid.UUID, params CreateParams) (*CreateResult, error)
	Get(ctx context.Context, userID uuid.UUID) (*Session, error)
	Claim(ctx context.Context, userID uuid.UUID, path string) (*Session, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// CreateParams carries the inbound cart for session creation.
type CreateParams struct {
	Lines         []CartLine
	DiscountCode  string
	AddressID     uuid.UUID
	PaymentMethod enums.PaymentMethod
}

// CreateResult reports the session plus whether an existing one was reused.
type CreateResult struct {
	Session *Session
	Reused  bool
}

type service struct {
	store     SessionStore
	intents   pkgstripe.PaymentIntents
	products  ProductReader
	discounts DiscountResolver
	addresses AddressReader
	cfg       config.CheckoutConfig
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
}

// NewService wires checkout dependencies.
func NewService(
	store SessionStore,
	intents pkgstripe.PaymentIntents,
	products ProductReader,
	discounts DiscountResolver,
	addresses AddressReader,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
	m *metrics.CheckoutMetrics,
) (Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session store required")
	}
	if intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment intents client required")
	}
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product reader required")
	}
	if discounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "discount resolver required")
	}
	if addresses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "address reader required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	return &service{
		store:     store,
		intents:   intents,
		products:  products,
		discounts: discounts,
		addresses: addresses,
		cfg:       cfg,
		logg:      logg,
		metrics:   m,
	}, nil
}

func (s *service) CreateOrReuse(ctx context.Context, userID uuid.UUID, params CreateParams) (*CreateResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(params.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if !params.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	for _, line := range params.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
	}

	// Pricing happens before the fingerprint so current catalog prices and
	// shop assignments are part of the digest. A price change between two
	// otherwise identical requests produces a fresh session.
	items, err := s.priceItems(ctx, params.Lines)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(items, params.DiscountCode, params.AddressID, params.PaymentMethod)
	key := s.store.PaymentSessionKey(userID.String())

	existing, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Fingerprint == fingerprint {
		s.metrics.IncSession("reused")
		return &CreateResult{Session: existing, Reused: true}, nil
	}

	session, err := s.buildSession(ctx, userID, fingerprint, items, params)
	if err != nil {
		return nil, err
	}

	payload, err := session.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session")
	}
	if err := s.store.Set(ctx, key, payload, s.cfg.SessionTTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session")
	}

	s.metrics.IncSession("created")
	ctx = s.logg.WithSessionID(ctx, session.ID.String())
	s.logg.Info(ctx, "checkout session created")
	return &CreateResult{Session: session, Reused: false}, nil
}

func (s *service) buildSession(ctx context.Context, userID uuid.UUID, fingerprint string, items []SessionItem, params CreateParams) (*Session, error) {
	address, err := s.addresses.Snapshot(ctx, userID, params.AddressID)
	if err != nil {
		return nil, err
	}

	var discount *DiscountSnapshot
	if params.DiscountCode != "" {
		discount, err = s.discounts.Resolve(ctx, params.DiscountCode)
		if err != nil {
			return nil, err
		}
	}

	groups := GroupByShop(items, discount)
	totals := ComputeTotals(groups)

	session := &Session{
		SchemaVersion:   SchemaVersion,
		ID:              uuid.New(),
		UserID:          userID,
		Fingerprint:     fingerprint,
		PaymentMethod:   params.PaymentMethod,
		Currency:        "usd",
		Items:           items,
		Discount:        discount,
		ShippingAddress: address,
		Subtotal:        totals.Subtotal,
		DiscountTotal:   totals.DiscountTotal,
		Total:           totals.Total,
		CreatedAt:       time.Now().UTC(),
	}

	if params.PaymentMethod == enums.PaymentMethodStripe {
		intent, err := s.createIntent(ctx, session)
		if err != nil {
			return nil, err
		}
		session.PaymentIntentID = intent.ID
		session.ClientSecret = intent.ClientSecret
	} else {
		// Cash on delivery settles offline; the session id doubles as the
		// payment reference so materialization stays unique.
		session.PaymentIntentID = "cod_" + session.ID.String()
	}

	return session, nil
}

func (s *service) priceItems(ctx context.Context, lines []CartLine) ([]SessionItem, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := s.products.ByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]SessionItem, 0, len(lines))
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(line.ProductID)
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer available").WithDetails(line.ProductID)
		}
		if product.Stock < line.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(line.ProductID)
		}
		items = append(items, SessionItem{
			ProductID:       product.ID,
			ShopID:          product.ShopID,
			Name:            product.Name,
			UnitPrice:       product.Price,
			Quantity:        line.Quantity,
			SelectedOptions: line.SelectedOptions,
		})
	}
	return items, nil
}

func (s *service) createIntent(ctx context.Context, session *Session) (*stripe.PaymentIntent, error) {
	amount := session.Total.Mul(hundred).IntPart()
	intentParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(session.Currency),
		Metadata: map[string]string{
			"user_id":     session.UserID.String(),
			"session_id":  session.ID.String(),
			"fingerprint": session.Fingerprint,
		},
	}
	intent, err := s.intents.Create(ctx, intentParams)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	return intent, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*Session, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.lookup(ctx, s.store.PaymentSessionKey(userID.String()))
}

func (s *service) lookup(ctx context.Context, key string) (*Session, error) {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read session")
	}
	session, err := DecodeSession(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode session")
	}
	return session, nil
}

// Claim atomically takes ownership of the user's session. Exactly one of the
// racing claimants (webhook or polling fallback) observes the payload; the
// rest see nil. A stale schema version also reads as nil.
func (s *service) Claim(ctx context.Context, userID uuid.UUID, path string) (*Session, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	raw, err := s.store.GetDel(ctx, s.store.PaymentSessionKey(userID.String()))
	if errors.Is(err, goredis.Nil) {
		s.metrics.IncClaim(path, "lost")
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim session")
	}

	session, err := DecodeSession(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode claimed session")
	}
	if session == nil {
		s.logg.Warn(ctx, "claimed session had stale schema version, discarding")
		s.metrics.IncClaim(path, "stale")
		return nil, nil
	}

	s.metrics.IncClaim(path, "won")
	return session, nil
}

func (s *service) Delete(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := s.store.Del(ctx, s.store.PaymentSessionKey(userID.String())); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete session")
	}
	return nil
}
