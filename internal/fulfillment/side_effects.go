package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vendora/order-service/internal/analytics"
	"github.com/vendora/order-service/internal/checkout"
	"github.com/vendora/order-service/pkg/db/models"
	"github.com/vendora/order-service/pkg/mailer"
)

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// runSideEffects delivers the post-order notifications. Each effect gets its
// own deadline and failures only log and count; the orders are already
// committed and must not be rolled back by a flaky mailer or broker.
func (s *service) runSideEffects(session *checkout.Session, created []models.Order) {
	if len(created) == 0 {
		return
	}
	base := s.logg.WithFields(context.Background(), map[string]any{
		"user_id":    session.UserID.String(),
		"payment_id": session.PaymentIntentID,
	})

	s.withEffectTimeout(base, "buyer_notification", func(ctx context.Context) error {
		return s.notifier.NotifyOrderPlaced(ctx, session.UserID, len(created))
	})

	for _, order := range created {
		order := order
		s.withEffectTimeout(base, "seller_notification", func(ctx context.Context) error {
			shop, err := s.catalog.ShopByID(ctx, order.ShopID)
			if err != nil {
				return err
			}
			if shop == nil {
				return nil
			}
			return s.notifier.NotifyOrderReceived(ctx, shop.OwnerID, order.ID)
		})
	}

	if s.mailer != nil {
		s.withEffectTimeout(base, "buyer_email", func(ctx context.Context) error {
			return s.sendConfirmationEmail(ctx, session, created)
		})
	}

	if s.publisher != nil {
		s.withEffectTimeout(base, "purchase_event", func(ctx context.Context) error {
			_, err := s.publisher.PublishPurchase(ctx, buildPurchasePayload(session, created), s.now())
			return err
		})
	}
}

func (s *service) withEffectTimeout(logCtx context.Context, effect string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SideEffectTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "effect", effect), "order side effect failed", err)
		s.metrics.IncSideEffectFailure(effect)
	}
}

func (s *service) sendConfirmationEmail(ctx context.Context, session *checkout.Session, created []models.Order) error {
	buyer, err := s.users.ByID(ctx, session.UserID)
	if err != nil {
		return err
	}
	if buyer == nil || buyer.Email == "" {
		return nil
	}

	var lines []string
	for _, order := range created {
		for _, item := range order.Items {
			lines = append(lines, fmt.Sprintf("%dx %s (%s %s)", item.Quantity, item.Name, item.LineTotal.StringFixed(2), session.Currency))
		}
	}
	body := fmt.Sprintf(
		"Thanks for your order!\n\n%s\n\nTotal: %s %s\n",
		strings.Join(lines, "\n"),
		session.Total.StringFixed(2),
		strings.ToUpper(session.Currency),
	)

	return s.mailer.Send(ctx, mailer.Message{
		ToName:    strings.TrimSpace(buyer.FirstName + " " + buyer.LastName),
		ToEmail:   buyer.Email,
		Subject:   "Your order is confirmed",
		PlainBody: body,
	})
}

func buildPurchasePayload(session *checkout.Session, created []models.Order) analytics.PurchasePayload {
	payload := analytics.PurchasePayload{
		PaymentID:     session.PaymentIntentID,
		UserID:        session.UserID.String(),
		Currency:      session.Currency,
		PaymentMethod: session.PaymentMethod.String(),
		SubtotalCents: toCents(session.Subtotal),
		DiscountCents: toCents(session.DiscountTotal),
		TotalCents:    toCents(session.Total),
	}
	for _, order := range created {
		payload.Orders = append(payload.Orders, analytics.OrderSummary{
			OrderID:    order.ID.String(),
			ShopID:     order.ShopID.String(),
			TotalCents: toCents(order.Total),
			ItemCount:  len(order.Items),
		})
	}
	return payload
}
