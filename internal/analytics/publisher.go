package analytics

import (
	"context"
	"encoding/json"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/vendora/order-service/pkg/enums"
	"github.com/vendora/order-service/pkg/errors"
)

const defaultPublishTimeout = 10 * time.Second

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

// Publisher emits purchase envelopes to the analytics topic.
type Publisher struct {
	topic   topicPublisher
	timeout time.Duration
}

// NewPublisher wraps a Pub/Sub publisher for purchase events.
func NewPublisher(topic *gcppubsub.Publisher) (*Publisher, error) {
	if topic == nil {
		return nil, errors.New(errors.CodeDependency, "analytics topic is required")
	}
	return &Publisher{topic: &gcpTopic{Publisher: topic}, timeout: defaultPublishTimeout}, nil
}

// PublishPurchase sends one purchase event and waits for the server ack.
func (p *Publisher) PublishPurchase(ctx context.Context, payload PurchasePayload, occurredAt time.Time) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "encoding purchase payload")
	}

	eventID := uuid.NewString()
	msg := &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_id":    eventID,
			"event_type":  enums.AnalyticsActionPurchase.String(),
			"payment_id":  payload.PaymentID,
			"occurred_at": occurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := p.topic.Publish(publishCtx, msg)
	if result == nil {
		return "", errors.New(errors.CodeDependency, "analytics publisher returned no result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return "", errors.Wrap(errors.CodeDependency, err, "publishing purchase event")
	}
	return eventID, nil
}

type gcpTopic struct {
	*gcppubsub.Publisher
}

func (t *gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if t == nil || t.Publisher == nil {
		return nil
	}
	return t.Publisher.Publish(ctx, msg)
}
