package writer

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/vendora/order-service/internal/analytics"
	pkgbigquery "github.com/vendora/order-service/pkg/bigquery"
)

func TestNewWriterValidation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&pkgbigquery.Client{}, Config{PurchaseTable: " "}); err == nil {
		t.Fatal("expected error when purchase table missing")
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	rows := []analytics.PurchaseRow{{EventID: "1"}}
	if err := writer.InsertPurchases(context.Background(), rows); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
	if fake.calls[1].table != writer.purchaseTable {
		t.Fatalf("expected purchase table on retry, got %s", fake.calls[1].table)
	}
	if len(writer.buffer) != 0 {
		t.Fatal("expected buffer to be empty after success")
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusBadRequest},
	}

	rows := []analytics.PurchaseRow{{EventID: "1"}}
	if err := writer.InsertPurchases(context.Background(), rows); err == nil {
		t.Fatal("expected error for permanent failure")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected single insert attempt, got %d", len(fake.calls))
	}
}

func TestWriterBatching(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	if err := writer.InsertPurchases(context.Background(), []analytics.PurchaseRow{{EventID: "1"}}); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no flush before batch fills, got %d calls", len(fake.calls))
	}

	if err := writer.InsertPurchases(context.Background(), []analytics.PurchaseRow{{EventID: "2"}}); err != nil {
		t.Fatalf("unexpected error on second insert: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one flush after batch fills, got %d calls", len(fake.calls))
	}
	if len(fake.calls[0].rows) != 2 {
		t.Fatalf("expected both rows flushed, got %d", len(fake.calls[0].rows))
	}
}

func TestWriterFlushEmptyBuffer(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error flushing empty buffer: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatal("expected no insert for empty buffer")
	}
}

func TestIsRetryableBigQueryError(t *testing.T) {
	if isRetryableBigQueryError(nil) {
		t.Fatal("nil should not be retryable")
	}
	if !isRetryableBigQueryError(&googleapi.Error{Code: http.StatusTooManyRequests}) {
		t.Fatal("429 should be retryable")
	}
	if isRetryableBigQueryError(errors.New("boom")) {
		t.Fatal("unclassified errors should not be retryable")
	}
}

type insertCall struct {
	table string
	rows  []any
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls = append(f.calls, insertCall{table: table, rows: rows})
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*PurchaseWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	return &PurchaseWriter{
		client:        fake,
		purchaseTable: "purchase_events",
		batchSize:     1,
		retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaximumBackoff: 2 * time.Millisecond,
		},
	}, fake
}
