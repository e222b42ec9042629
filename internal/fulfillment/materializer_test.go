package fulfillment

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/vendora/order-service/internal/analytics"
	"github.com/vendora/order-service/internal/catalog"
	"github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/internal/orders"
	"github.com/vendora/order-service/pkg/config"
	"github.com/vendora/order-service/pkg/db/models"
	"github.com/vendora/order-service/pkg/enums"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/logger"
	"github.com/vendora/order-service/pkg/mailer"
	"github.com/vendora/order-service/pkg/pagination"
	"github.com/vendora/order-service/pkg/types"
)

type fakeSessions struct {
	session *checkout.Session
}

func (f *fakeSessions) Get(context.Context, uuid.UUID) (*checkout.Session, error) {
	return f.session, nil
}

func (f *fakeSessions) Claim(context.Context, uuid.UUID, string) (*checkout.Session, error) {
	s := f.session
	f.session = nil
	return s, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type ordersRepoFake struct {
	created   [][]models.Order
	createErr map[uuid.UUID]error
	exists    bool
}

func (f *ordersRepoFake) WithTx(*gorm.DB) orders.Repository { return f }

func (f *ordersRepoFake) CreateAll(_ context.Context, batch []models.Order) error {
	if len(batch) > 0 {
		if err, ok := f.createErr[batch[0].ShopID]; ok {
			return err
		}
	}
	f.created = append(f.created, batch)
	return nil
}

func (f *ordersRepoFake) ExistsByPaymentID(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *ordersRepoFake) ByID(context.Context, uuid.UUID) (*models.Order, error) {
	return nil, nil
}

func (f *ordersRepoFake) ListByShop(context.Context, orders.ListOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *ordersRepoFake) ListByBuyer(context.Context, orders.ListOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

type catalogFake struct {
	decrements map[uuid.UUID]int
	shops      map[uuid.UUID]*models.Shop
}

func (f *catalogFake) WithTx(*gorm.DB) catalog.Repository { return f }

func (f *catalogFake) ByIDs(context.Context, []uuid.UUID) ([]models.Product, error) {
	return nil, nil
}

func (f *catalogFake) DecrementStock(_ context.Context, productID uuid.UUID, qty int) (bool, error) {
	if f.decrements == nil {
		f.decrements = map[uuid.UUID]int{}
	}
	f.decrements[productID] += qty
	return true, nil
}

func (f *catalogFake) ShopByID(_ context.Context, shopID uuid.UUID) (*models.Shop, error) {
	return f.shops[shopID], nil
}

type discountsFake struct {
	incremented []string
}

func (f *discountsFake) IncrementUsage(_ context.Context, code string) error {
	f.incremented = append(f.incremented, code)
	return nil
}

type recorderFake struct {
	shopOrders  []models.Order
	buyers      []uuid.UUID
	buyerOrders []models.Order
}

func (f *recorderFake) WithTx(*gorm.DB) analytics.Recorder { return f }

func (f *recorderFake) RecordShopOrder(_ context.Context, order models.Order, _ time.Time) error {
	f.shopOrders = append(f.shopOrders, order)
	return nil
}

func (f *recorderFake) RecordBuyerPurchase(_ context.Context, userID uuid.UUID, orders []models.Order, _ time.Time) error {
	f.buyers = append(f.buyers, userID)
	f.buyerOrders = append(f.buyerOrders, orders...)
	return nil
}

func (f *recorderFake) RecordPurchase(ctx context.Context, orders []models.Order, at time.Time) error {
	return nil
}

type usersFake struct {
	user *models.User
}

func (f *usersFake) ByID(context.Context, uuid.UUID) (*models.User, error) {
	return f.user, nil
}

type notifierFake struct {
	placed   int
	received []uuid.UUID
}

func (f *notifierFake) NotifyOrderPlaced(context.Context, uuid.UUID, int) error {
	f.placed++
	return nil
}

func (f *notifierFake) NotifyOrderReceived(_ context.Context, sellerID uuid.UUID, _ uuid.UUID) error {
	f.received = append(f.received, sellerID)
	return nil
}

type mailerFake struct {
	sent []mailer.Message
	err  error
}

func (f *mailerFake) Send(_ context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type publisherFake struct {
	payloads []analytics.PurchasePayload
}

func (f *publisherFake) PublishPurchase(_ context.Context, payload analytics.PurchasePayload, _ time.Time) (string, error) {
	f.payloads = append(f.payloads, payload)
	return uuid.NewString(), nil
}

type intentsFake struct {
	intent *stripe.PaymentIntent
	getErr error
}

func (f *intentsFake) Create(context.Context, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return nil, errors.New("not implemented")
}

func (f *intentsFake) Get(context.Context, string) (*stripe.PaymentIntent, error) {
	return f.intent, f.getErr
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "fulfillment-test", Output: io.Discard})
}

func testSession(userID uuid.UUID, shops ...uuid.UUID) *checkout.Session {
	items := make([]checkout.SessionItem, 0, len(shops))
	subtotal := decimal.Zero
	for i, shopID := range shops {
		price := decimal.RequireFromString("10.00").Add(decimal.NewFromInt(int64(i * 5)))
		items = append(items, checkout.SessionItem{
			ProductID: uuid.New(),
			ShopID:    shopID,
			Name:      "Widget",
			UnitPrice: price,
			Quantity:  2,
		})
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(2)))
	}
	return &checkout.Session{
		SchemaVersion:   checkout.SchemaVersion,
		ID:              uuid.New(),
		UserID:          userID,
		PaymentIntentID: "pi_test_123",
		PaymentMethod:   enums.PaymentMethodStripe,
		Currency:        "usd",
		Items:           items,
		ShippingAddress: types.AddressSnapshot{Street: "1 Main St", City: "Springfield", Zip: "12345", Country: "US"},
		Subtotal:        subtotal,
		DiscountTotal:   decimal.Zero,
		Total:           subtotal,
		CreatedAt:       time.Now().UTC(),
	}
}

type testDeps struct {
	sessions  *fakeSessions
	orders    *ordersRepoFake
	catalog   *catalogFake
	discounts *discountsFake
	recorder  *recorderFake
	users     *usersFake
	notifier  *notifierFake
	mailer    *mailerFake
	publisher *publisherFake
	intents   *intentsFake
}

func newTestService(t *testing.T, session *checkout.Session) (*service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		sessions:  &fakeSessions{session: session},
		orders:    &ordersRepoFake{},
		catalog:   &catalogFake{shops: map[uuid.UUID]*models.Shop{}},
		discounts: &discountsFake{},
		recorder:  &recorderFake{},
		users:     &usersFake{user: &models.User{ID: uuid.New(), Email: "buyer@example.com", FirstName: "Ada"}},
		notifier:  &notifierFake{},
		mailer:    &mailerFake{},
		publisher: &publisherFake{},
		intents:   &intentsFake{},
	}
	svc := &service{
		sessions:  deps.sessions,
		tx:        fakeTx{},
		orders:    deps.orders,
		catalog:   deps.catalog,
		discounts: deps.discounts,
		analytics: deps.recorder,
		users:     deps.users,
		notifier:  deps.notifier,
		mailer:    deps.mailer,
		publisher: deps.publisher,
		intents:   deps.intents,
		cfg:       config.CheckoutConfig{SessionTTL: 10 * time.Minute, SideEffectTimeout: time.Second},
		logg:      testLogger(),
		now:       time.Now,
	}
	return svc, deps
}

func TestMaterialize_SplitsOrdersPerShop(t *testing.T) {
	userID := uuid.New()
	firstShop := uuid.New()
	secondShop := uuid.New()
	session := testSession(userID, firstShop, secondShop)
	svc, deps := newTestService(t, session)

	result, err := svc.Materialize(context.Background(), MaterializeParams{
		UserID:          userID,
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntentID,
		Path:            "webhook",
	})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if result.AlreadyProcessed {
		t.Fatal("fresh session should not report already processed")
	}
	if len(result.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(result.Orders))
	}
	for _, order := range result.Orders {
		if order.PaymentID != session.PaymentIntentID {
			t.Fatalf("order should carry the payment id, got %s", order.PaymentID)
		}
		if order.PaymentStatus != enums.PaymentStatusAccepted {
			t.Fatalf("unexpected payment status %s", order.PaymentStatus)
		}
	}
	if len(deps.orders.created) != 2 {
		t.Fatalf("expected one insert per shop group, got %d", len(deps.orders.created))
	}
	if len(deps.catalog.decrements) != 2 {
		t.Fatalf("expected stock decrement per product, got %d", len(deps.catalog.decrements))
	}
	if len(deps.recorder.buyers) != 1 {
		t.Fatalf("buyer analytics should be appended once, got %d", len(deps.recorder.buyers))
	}
	if len(deps.recorder.buyerOrders) != 2 {
		t.Fatalf("buyer purchase should carry every order, got %d", len(deps.recorder.buyerOrders))
	}
	if len(deps.recorder.shopOrders) != 2 {
		t.Fatalf("product analytics should run per shop order, got %d", len(deps.recorder.shopOrders))
	}
}

func TestMaterialize_ConsumedSessionResolvesToAlreadyProcessed(t *testing.T) {
	userID := uuid.New()
	svc, deps := newTestService(t, nil)
	deps.orders.exists = true

	result, err := svc.Materialize(context.Background(), MaterializeParams{
		UserID:          userID,
		PaymentIntentID: "pi_test_123",
		Path:            "fallback",
	})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("expected already processed result")
	}
}

func TestMaterialize_MissingSessionWithoutOrdersStillSettles(t *testing.T) {
	svc, deps := newTestService(t, nil)
	deps.orders.exists = false

	result, err := svc.Materialize(context.Background(), MaterializeParams{
		UserID:          uuid.New(),
		PaymentIntentID: "pi_unknown",
		Path:            "fallback",
	})
	if err != nil {
		t.Fatalf("absent session must resolve as settled: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("expected already processed result")
	}
	if len(result.Orders) != 0 {
		t.Fatalf("no orders should be produced, got %d", len(result.Orders))
	}
}

func TestMaterialize_PaymentMismatchIsConflict(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, uuid.New())
	svc, _ := newTestService(t, session)

	_, err := svc.Materialize(context.Background(), MaterializeParams{
		UserID:          userID,
		SessionID:       session.ID,
		PaymentIntentID: "pi_other",
		Path:            "webhook",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMaterialize_FailingGroupDoesNotAbortOthers(t *testing.T) {
	userID := uuid.New()
	badShop := uuid.New()
	goodShop := uuid.New()
	session := testSession(userID, badShop, goodShop)
	svc, deps := newTestService(t, session)
	deps.orders.createErr = map[uuid.UUID]error{badShop: errors.New("insert failed")}

	result, err := svc.Materialize(context.Background(), MaterializeParams{
		UserID:          userID,
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntentID,
		Path:            "webhook",
	})
	if err != nil {
		t.Fatalf("partial failure should not surface when orders were created: %v", err)
	}
	if len(result.Orders) != 1 {
		t.Fatalf("expected the healthy group to materialize, got %d orders", len(result.Orders))
	}
	if result.Orders[0].ShopID != goodShop {
		t.Fatal("surviving order should belong to the healthy shop")
	}
}

func TestMaterialize_IncrementsDiscountUsage(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, uuid.New())
	session.Discount = &checkout.DiscountSnapshot{
		Code:      "save10",
		Type:      enums.DiscountTypePercentage,
		Value:     decimal.RequireFromString("10"),
		ProductID: session.Items[0].ProductID,
	}
	svc, deps := newTestService(t, session)

	if _, err := svc.Materialize(context.Background(), MaterializeParams{
		UserID:          userID,
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntentID,
		Path:            "webhook",
	}); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(deps.discounts.incremented) != 1 || deps.discounts.incremented[0] != "save10" {
		t.Fatalf("discount usage should be incremented once, got %v", deps.discounts.incremented)
	}
}

func TestVerifyAndFulfill_RequiresSettledPayment(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, uuid.New())
	svc, deps := newTestService(t, session)
	deps.intents.intent = &stripe.PaymentIntent{
		ID:     session.PaymentIntentID,
		Status: stripe.PaymentIntentStatusRequiresPaymentMethod,
	}

	_, err := svc.VerifyAndFulfill(context.Background(), userID, session.ID, session.PaymentIntentID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for unsettled payment, got %v", err)
	}
}

func TestVerifyAndFulfill_RejectsForeignPayment(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, uuid.New())
	svc, deps := newTestService(t, session)
	deps.intents.intent = &stripe.PaymentIntent{
		ID:       session.PaymentIntentID,
		Status:   stripe.PaymentIntentStatusSucceeded,
		Metadata: map[string]string{"user_id": uuid.NewString()},
	}

	_, err := svc.VerifyAndFulfill(context.Background(), userID, session.ID, session.PaymentIntentID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestVerifyAndFulfill_SettledPaymentMaterializes(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, uuid.New())
	svc, deps := newTestService(t, session)
	deps.intents.intent = &stripe.PaymentIntent{
		ID:       session.PaymentIntentID,
		Status:   stripe.PaymentIntentStatusSucceeded,
		Metadata: map[string]string{"user_id": userID.String()},
	}

	result, err := svc.VerifyAndFulfill(context.Background(), userID, session.ID, session.PaymentIntentID)
	if err != nil {
		t.Fatalf("verify and fulfill: %v", err)
	}
	if len(result.Orders) != 1 {
		t.Fatalf("expected one order, got %d", len(result.Orders))
	}
}

func TestVerifyAndFulfill_CashOnDeliverySkipsGateway(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, uuid.New())
	session.PaymentMethod = enums.PaymentMethodCashOnDelivery
	session.PaymentIntentID = "cod_" + session.ID.String()
	svc, deps := newTestService(t, session)
	deps.intents.getErr = errors.New("gateway should not be called")

	result, err := svc.VerifyAndFulfill(context.Background(), userID, session.ID, "")
	if err != nil {
		t.Fatalf("verify and fulfill: %v", err)
	}
	if len(result.Orders) != 1 {
		t.Fatalf("expected one order, got %d", len(result.Orders))
	}
}

func TestRunSideEffects_NotifiesAndPublishes(t *testing.T) {
	userID := uuid.New()
	shopID := uuid.New()
	ownerID := uuid.New()
	session := testSession(userID, shopID)
	svc, deps := newTestService(t, session)
	deps.catalog.shops[shopID] = &models.Shop{ID: shopID, OwnerID: ownerID, Name: "Widget Co"}

	order := svc.buildOrder(session, checkout.GroupByShop(session.Items, nil)[0], []byte(`{}`))
	svc.runSideEffects(session, []models.Order{order})

	if deps.notifier.placed != 1 {
		t.Fatalf("buyer should be notified once, got %d", deps.notifier.placed)
	}
	if len(deps.notifier.received) != 1 || deps.notifier.received[0] != ownerID {
		t.Fatalf("shop owner should be notified, got %v", deps.notifier.received)
	}
	if len(deps.mailer.sent) != 1 {
		t.Fatalf("confirmation email should be sent, got %d", len(deps.mailer.sent))
	}
	if len(deps.publisher.payloads) != 1 {
		t.Fatalf("purchase event should be published, got %d", len(deps.publisher.payloads))
	}
	payload := deps.publisher.payloads[0]
	if payload.PaymentID != session.PaymentIntentID || len(payload.Orders) != 1 {
		t.Fatalf("unexpected purchase payload %+v", payload)
	}
}

func TestRunSideEffects_MissingShopSkipsSellerNotification(t *testing.T) {
	userID := uuid.New()
	shopID := uuid.New()
	session := testSession(userID, shopID)
	svc, deps := newTestService(t, session)

	order := svc.buildOrder(session, checkout.GroupByShop(session.Items, nil)[0], []byte(`{}`))
	svc.runSideEffects(session, []models.Order{order})

	if len(deps.notifier.received) != 0 {
		t.Fatalf("no seller notification should go out for a missing shop, got %v", deps.notifier.received)
	}
	if deps.notifier.placed != 1 {
		t.Fatal("buyer notification should still run")
	}
}

func TestRunSideEffects_MailFailureDoesNotPanic(t *testing.T) {
	userID := uuid.New()
	shopID := uuid.New()
	session := testSession(userID, shopID)
	svc, deps := newTestService(t, session)
	deps.mailer.err = errors.New("smtp down")

	order := svc.buildOrder(session, checkout.GroupByShop(session.Items, nil)[0], []byte(`{}`))
	svc.runSideEffects(session, []models.Order{order})

	if deps.notifier.placed != 1 {
		t.Fatal("other side effects should still run")
	}
}
