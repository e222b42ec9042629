package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/vendora/order-service/internal/fulfillment"
	pkgerrors "github.com/vendora/order-service/pkg/errors"
	"github.com/vendora/order-service/pkg/logger"
)

type materializer interface {
	Materialize(ctx context.Context, params fulfillment.MaterializeParams) (*fulfillment.Result, error)
}

// ServiceParams collect the webhook service dependencies.
type ServiceParams struct {
	Fulfillment materializer
	Logger      *logger.Logger
	// HandlerTimeout bounds processing of a single event. Zero disables it.
	HandlerTimeout time.Duration
}

// Service routes verified Stripe events into order materialization.
type Service struct {
	fulfillment materializer
	logg        *logger.Logger
	timeout     time.Duration
}

// NewService builds the Stripe webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Fulfillment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fulfillment service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		fulfillment: params.Fulfillment,
		logg:        params.Logger,
		timeout:     params.HandlerTimeout,
	}, nil
}

// HandleEvent processes payment_intent.succeeded events. Every other event
// type is acknowledged and skipped, as are intents without the checkout
// metadata: failing those would only make Stripe retry something this service
// can never act on.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"payment_id": intent.ID,
	})

	userID, sessionID, ok := checkoutMetadata(intent.Metadata)
	if !ok {
		s.logg.Warn(logCtx, "payment intent missing checkout metadata, skipping")
		return nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.fulfillment.Materialize(ctx, fulfillment.MaterializeParams{
		UserID:          userID,
		SessionID:       sessionID,
		PaymentIntentID: intent.ID,
		Path:            "webhook",
	})
	if err != nil {
		return err
	}
	if result.AlreadyProcessed {
		s.logg.Info(logCtx, "payment already materialized")
	}
	return nil
}

func checkoutMetadata(metadata map[string]string) (userID, sessionID uuid.UUID, ok bool) {
	userID, err := uuid.Parse(metadata["user_id"])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err = uuid.Parse(metadata["session_id"])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}
