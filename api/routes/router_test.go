package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	checkoutsvc "github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/internal/fulfillment"
	"github.com/vendora/order-service/internal/notifications"
	"github.com/vendora/order-service/internal/orders"
	pkgAuth "github.com/vendora/order-service/pkg/auth"
	"github.com/vendora/order-service/pkg/config"
	"github.com/vendora/order-service/pkg/db/models"
	"github.com/vendora/order-service/pkg/enums"
	"github.com/vendora/order-service/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCheckoutService struct{}

func (stubCheckoutService) CreateOrReuse(ctx context.Context, userID uuid.UUID, params checkoutsvc.CreateParams) (*checkoutsvc.CreateResult, error) {
	return &checkoutsvc.CreateResult{Session: &checkoutsvc.Session{ID: uuid.New()}}, nil
}

func (stubCheckoutService) Get(ctx context.Context, userID uuid.UUID) (*checkoutsvc.Session, error) {
	return nil, nil
}

func (stubCheckoutService) Claim(ctx context.Context, userID uuid.UUID, path string) (*checkoutsvc.Session, error) {
	return nil, nil
}

func (stubCheckoutService) Delete(ctx context.Context, userID uuid.UUID) error {
	return nil
}

type stubFulfillmentService struct{}

func (stubFulfillmentService) Materialize(ctx context.Context, params fulfillment.MaterializeParams) (*fulfillment.Result, error) {
	return &fulfillment.Result{}, nil
}

func (stubFulfillmentService) VerifyAndFulfill(ctx context.Context, userID, sessionID uuid.UUID, paymentIntentID string) (*fulfillment.Result, error) {
	return &fulfillment.Result{}, nil
}

type stubOrdersService struct{}

func (stubOrdersService) ListForShop(ctx context.Context, params orders.ListParams) (*orders.ListResult, error) {
	return &orders.ListResult{}, nil
}

func (stubOrdersService) ListForBuyer(ctx context.Context, params orders.ListParams) (*orders.ListResult, error) {
	return &orders.ListResult{}, nil
}

func (stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return nil, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) NotifyOrderPlaced(ctx context.Context, buyerID uuid.UUID, orderCount int) error {
	return nil
}

func (stubNotificationsService) NotifyOrderReceived(ctx context.Context, sellerID uuid.UUID, orderID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60},
	}
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Config:        testConfig(),
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            stubPinger{},
		Checkout:      stubCheckoutService{},
		Fulfillment:   stubFulfillmentService{},
		Orders:        stubOrdersService{},
		Notifications: stubNotificationsService{},
	})
}

func mintToken(t *testing.T, role enums.UserRole, shopID *uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		ShopID: shopID,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestHealthReadyChecksStores(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestProtectedRoutesRejectMissingJWT(t *testing.T) {
	router := testRouter(t)
	for _, target := range []string{
		"/api/v1/checkout/verify-payment-session?sessionId=" + uuid.NewString(),
		"/api/v1/orders/get-my-orders",
		"/api/v1/notifications",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", target, rec.Code)
		}
	}
}

func TestSellerOrdersRequireSellerRole(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/get-seller-orders", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.UserRoleBuyer, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestSellerOrdersAllowSellers(t *testing.T) {
	router := testRouter(t)
	shopID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/get-seller-orders", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.UserRoleSeller, &shopID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestBuyerOrdersAllowAnyAuthenticatedUser(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/get-my-orders", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.UserRoleBuyer, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
