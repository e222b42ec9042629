package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/vendora/order-service/internal/analytics"
)

type purchaseInserter interface {
	InsertPurchases(ctx context.Context, rows []analytics.PurchaseRow) error
	Flush(ctx context.Context) error
}

// PurchaseHandler turns purchase envelopes into BigQuery fact rows.
type PurchaseHandler struct {
	writer purchaseInserter
}

// NewPurchaseHandler builds the BigQuery-backed purchase handler.
func NewPurchaseHandler(writer purchaseInserter) (*PurchaseHandler, error) {
	if writer == nil {
		return nil, errors.New("purchase writer is required")
	}
	return &PurchaseHandler{writer: writer}, nil
}

// Handle decodes the payload and writes one fact row per shop order.
func (h *PurchaseHandler) Handle(ctx context.Context, envelope analytics.Envelope) error {
	var payload analytics.PurchasePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("decode purchase payload: %w", err)
	}
	if payload.PaymentID == "" {
		payload.PaymentID = envelope.PaymentID
	}

	rows := payload.Rows(envelope.EventID, envelope.OccurredAt)
	for i := range rows {
		raw, err := json.Marshal(payload)
		if err == nil {
			rows[i].Payload = cbigquery.NullJSON{JSONVal: string(raw), Valid: true}
		}
	}
	if len(rows) == 0 {
		return nil
	}

	if err := h.writer.InsertPurchases(ctx, rows); err != nil {
		return err
	}
	return h.writer.Flush(ctx)
}
