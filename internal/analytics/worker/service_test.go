package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/vendora/order-service/internal/analytics"
	"github.com/vendora/order-service/pkg/enums"
	"github.com/vendora/order-service/pkg/logger"
)

func TestBuildEnvelope(t *testing.T) {
	svc := newTestService(t)
	occurredAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	msg := buildMessage(t, analytics.PurchasePayload{PaymentID: "pi_123"}, map[string]string{
		"event_id":    "evt-1",
		"event_type":  "purchase",
		"payment_id":  "pi_123",
		"occurred_at": occurredAt.Format(time.RFC3339Nano),
	})

	env, err := svc.buildEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != enums.AnalyticsActionPurchase {
		t.Fatalf("unexpected event type %v", env.EventType)
	}
	if env.PaymentID != "pi_123" {
		t.Fatalf("unexpected payment id %s", env.PaymentID)
	}
	if env.EventID != "evt-1" {
		t.Fatalf("unexpected event id %s", env.EventID)
	}
	if !env.OccurredAt.Equal(occurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
}

func TestBuildEnvelopeRejectsUnknownEventType(t *testing.T) {
	svc := newTestService(t)
	msg := buildMessage(t, analytics.PurchasePayload{PaymentID: "pi_123"}, map[string]string{
		"event_id":   "evt-1",
		"event_type": "refund",
		"payment_id": "pi_123",
	})
	if _, err := svc.buildEnvelope(msg); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	manager := &stubManager{checkResult: true}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := buildPurchaseMessage(t)
	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked when already processed")
	}
	if len(manager.checked) != 1 {
		t.Fatalf("expected check once, got %d", len(manager.checked))
	}
}

func TestProcessHandlerErrorRetries(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := buildPurchaseMessage(t)
	res := svc.process(context.Background(), msg)
	if !res.nack {
		t.Fatalf("expected nack on handler error")
	}
	if !handler.called {
		t.Fatal("handler should be invoked")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("expected idempotency delete on failure")
	}
}

func TestProcessInvalidEnvelope(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := &gcppubsub.Message{ID: "msg-1", Data: []byte(`{}`)}
	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("invalid envelope should ack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
	if len(manager.checked) != 0 {
		t.Fatalf("idempotency manager should not be touched")
	}
}

func buildPurchaseMessage(t *testing.T) *gcppubsub.Message {
	t.Helper()
	return buildMessage(t, analytics.PurchasePayload{
		PaymentID: "pi_123",
		UserID:    uuid.NewString(),
	}, map[string]string{
		"event_id":    uuid.NewString(),
		"event_type":  "purchase",
		"payment_id":  "pi_123",
		"occurred_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func buildMessage(t *testing.T, payload analytics.PurchasePayload, attrs map[string]string) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &gcppubsub.Message{
		ID:         "msg-1",
		Data:       data,
		Attributes: attrs,
	}
}

func newTestService(t *testing.T) *Service {
	return newTestServiceWithDeps(t, &stubHandler{}, &stubManager{})
}

func newTestServiceWithDeps(t *testing.T, handler Handler, manager *stubManager) *Service {
	t.Helper()
	return &Service{
		handler: handler,
		manager: manager,
		logg:    logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
	}
}

type stubHandler struct {
	called   bool
	envelope analytics.Envelope
	err      error
}

func (h *stubHandler) Handle(_ context.Context, envelope analytics.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubManager struct {
	checkResult bool
	checkErr    error
	checked     []uuid.UUID
	deleted     []uuid.UUID
}

func (m *stubManager) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	m.checked = append(m.checked, eventID)
	return m.checkResult, m.checkErr
}

func (m *stubManager) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	m.deleted = append(m.deleted, eventID)
	return nil
}
