package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wastefee-cloud/internal/eventing"
	walletapp "wastefee-cloud/internal/wallet/application"
)

func TestEventHandlerRecordsLedgerEvents(t *testing.T) {
	log := NewMemoryLog()
	handler, err := EventHandler(log)
	if err != nil {
		t.Fatalf("event handler: %v", err)
	}
	bus := eventing.NewInMemoryBus()
	publisher, err := eventing.NewPublisher(bus)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	publisher.Subscribe(eventing.EventTypeOf[walletapp.PaymentSettled](), handler)

	at := time.Date(2026, time.April, 1, 2, 0, 0, 0, time.UTC)
	ctx := eventing.WithCorrelationID(context.Background(), "req-7")
	err = publisher.Publish(ctx, walletapp.PaymentSettled{
		WalletID:      "w-1",
		PaymentID:     "p-1",
		ReceiptNumber: "PS-202604-ABCDEF12",
		Amount:        decimal.RequireFromString("46.25"),
		OccurredAt:    at,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	entries := log.List("w-1")
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Action != "payment_settled" || entry.ResourceType != ResourceWallet || entry.CorrelationID != "req-7" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !entry.CreatedAt.Equal(at) || entry.EventID == "" || entry.PayloadDigest != DigestJSON(entry.Metadata) {
		t.Fatalf("unexpected metadata: %+v", entry)
	}
	var payload map[string]any
	if err := json.Unmarshal(entry.Metadata, &payload); err != nil || payload["receipt_number"] != "PS-202604-ABCDEF12" {
		t.Fatalf("unexpected payload: %v %v", err, payload)
	}
}

func TestEventHandlerWithoutEnvelope(t *testing.T) {
	log := NewMemoryLog()
	handler, _ := EventHandler(log)
	if err := handler(context.Background(), walletapp.WalletCredited{WalletID: "w-2"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if entries := log.List("w-2"); len(entries) != 1 || entries[0].Action != "wallet_credited" || entries[0].ID == "" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if _, err := EventHandler(nil); err == nil {
		t.Fatalf("expected error for nil logger")
	}
}

func TestDigestJSON(t *testing.T) {
	if DigestJSON(nil) != "" {
		t.Fatalf("expected empty digest for empty payload")
	}
	if DigestJSON([]byte(`{"a":1}`)) == DigestJSON([]byte(`{"a":2}`)) {
		t.Fatalf("digest must differ for different payloads")
	}
}
