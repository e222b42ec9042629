package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// PaymentIntents exposes the subset of Stripe payment intent operations used
// by checkout and the verification fallback.
type PaymentIntents interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type paymentIntentClient struct{}

// NewPaymentIntents wraps the initialized Stripe client so callers can be
// tested against the interface.
func NewPaymentIntents(api *Client) PaymentIntents {
	if api == nil {
		return nil
	}
	return &paymentIntentClient{}
}

func (p *paymentIntentClient) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (p *paymentIntentClient) Get(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return paymentintent.Get(id, params)
}
