package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/api/middleware"
	checkoutsvc "github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/pkg/enums"
	"github.com/vendora/order-service/pkg/logger"
)

type testCheckoutService struct {
	createFn func(ctx context.Context, userID uuid.UUID, params checkoutsvc.CreateParams) (*checkoutsvc.CreateResult, error)
	getFn    func(ctx context.Context, userID uuid.UUID) (*checkoutsvc.Session, error)
}

func (s *testCheckoutService) CreateOrReuse(ctx context.Context, userID uuid.UUID, params checkoutsvc.CreateParams) (*checkoutsvc.CreateResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, userID, params)
	}
	return nil, nil
}

func (s *testCheckoutService) Get(ctx context.Context, userID uuid.UUID) (*checkoutsvc.Session, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return nil, nil
}

func (s *testCheckoutService) Claim(ctx context.Context, userID uuid.UUID, path string) (*checkoutsvc.Session, error) {
	return nil, nil
}

func (s *testCheckoutService) Delete(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
}

func testStripeSession(userID uuid.UUID) *checkoutsvc.Session {
	return &checkoutsvc.Session{
		SchemaVersion:   checkoutsvc.SchemaVersion,
		ID:              uuid.New(),
		UserID:          userID,
		PaymentIntentID: "pi_123",
		ClientSecret:    "secret_123",
		PaymentMethod:   enums.PaymentMethodStripe,
		Currency:        "usd",
		Total:           decimal.NewFromInt(40),
	}
}

func TestCreatePaymentSessionNewSession(t *testing.T) {
	svc := &testCheckoutService{
		createFn: func(ctx context.Context, userID uuid.UUID, params checkoutsvc.CreateParams) (*checkoutsvc.CreateResult, error) {
			if len(params.Lines) != 1 {
				t.Fatalf("expected 1 line got %d", len(params.Lines))
			}
			if params.PaymentMethod != enums.PaymentMethodStripe {
				t.Fatalf("unexpected payment method %s", params.PaymentMethod)
			}
			return &checkoutsvc.CreateResult{Session: testStripeSession(userID)}, nil
		},
	}

	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":2}],"address_id":"` + uuid.NewString() + `","payment_method":"stripe"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout/create-payment-session", body)
	resp := httptest.NewRecorder()
	CreatePaymentSession(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data sessionResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.SessionID == uuid.Nil {
		t.Fatal("expected session id in response")
	}
	if envelope.Data.ClientSecret != "secret_123" {
		t.Fatalf("expected client secret got %q", envelope.Data.ClientSecret)
	}
}

func TestCreatePaymentSessionReusedReturns200(t *testing.T) {
	svc := &testCheckoutService{
		createFn: func(ctx context.Context, userID uuid.UUID, params checkoutsvc.CreateParams) (*checkoutsvc.CreateResult, error) {
			return &checkoutsvc.CreateResult{Session: testStripeSession(userID), Reused: true}, nil
		},
	}

	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"address_id":"` + uuid.NewString() + `","payment_method":"stripe"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout/create-payment-session", body)
	resp := httptest.NewRecorder()
	CreatePaymentSession(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for reuse got %d", resp.Code)
	}
}

func TestCreatePaymentSessionRequiresAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/create-payment-session", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	CreatePaymentSession(&testCheckoutService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCreatePaymentSessionRejectsEmptyCart(t *testing.T) {
	body := `{"items":[],"address_id":"` + uuid.NewString() + `","payment_method":"stripe"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout/create-payment-session", body)
	resp := httptest.NewRecorder()
	CreatePaymentSession(&testCheckoutService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestVerifyPaymentSessionFound(t *testing.T) {
	userID := uuid.New()
	session := testStripeSession(userID)
	svc := &testCheckoutService{
		getFn: func(ctx context.Context, uid uuid.UUID) (*checkoutsvc.Session, error) {
			return session, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/checkout/verify-payment-session?sessionId="+session.ID.String(), "")
	resp := httptest.NewRecorder()
	VerifyPaymentSession(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestVerifyPaymentSessionAbsentIs404(t *testing.T) {
	svc := &testCheckoutService{
		getFn: func(ctx context.Context, uid uuid.UUID) (*checkoutsvc.Session, error) {
			return nil, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/checkout/verify-payment-session?sessionId="+uuid.NewString(), "")
	resp := httptest.NewRecorder()
	VerifyPaymentSession(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestVerifyPaymentSessionMismatchIs404(t *testing.T) {
	svc := &testCheckoutService{
		getFn: func(ctx context.Context, uid uuid.UUID) (*checkoutsvc.Session, error) {
			return testStripeSession(uid), nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/checkout/verify-payment-session?sessionId="+uuid.NewString(), "")
	resp := httptest.NewRecorder()
	VerifyPaymentSession(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCreatePaymentIntentReturnsCredentials(t *testing.T) {
	userID := uuid.New()
	session := testStripeSession(userID)
	svc := &testCheckoutService{
		getFn: func(ctx context.Context, uid uuid.UUID) (*checkoutsvc.Session, error) {
			return session, nil
		},
	}

	body := `{"sessionId":"` + session.ID.String() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout/create-payment-intent", body)
	resp := httptest.NewRecorder()
	CreatePaymentIntent(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data createIntentResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.PaymentIntentID != "pi_123" || envelope.Data.ClientSecret != "secret_123" {
		t.Fatalf("unexpected credentials %+v", envelope.Data)
	}
}

func TestCreatePaymentIntentRejectsCashOnDelivery(t *testing.T) {
	userID := uuid.New()
	session := testStripeSession(userID)
	session.PaymentMethod = enums.PaymentMethodCashOnDelivery
	session.ClientSecret = ""
	svc := &testCheckoutService{
		getFn: func(ctx context.Context, uid uuid.UUID) (*checkoutsvc.Session, error) {
			return session, nil
		},
	}

	body := `{"sessionId":"` + session.ID.String() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout/create-payment-intent", body)
	resp := httptest.NewRecorder()
	CreatePaymentIntent(svc, testLogger())(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}
