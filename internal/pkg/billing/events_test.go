package billing

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeEvent_PaymentCaptured(t *testing.T) {
	raw := []byte(`{
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {
					"id": "pay_1",
					"status": "captured",
					"amount": 99900,
					"currency": "INR",
					"method": "card",
					"order_id": "order_1",
					"notes": { "internal_user_id": "u1" }
				}
			}
		}
	}`)

	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if ev.Name != EventPaymentCaptured {
		t.Fatalf("unexpected event name %q", ev.Name)
	}
	if ev.Payment == nil {
		t.Fatalf("expected payment entity")
	}
	if ev.Payment.ID != "pay_1" || ev.Payment.Amount != 99900 || ev.Payment.Method != "card" {
		t.Fatalf("unexpected payment entity: %+v", ev.Payment)
	}
	if ev.Payment.Notes["internal_user_id"] != "u1" {
		t.Fatalf("expected internal_user_id note, got %v", ev.Payment.Notes)
	}
	if ev.Subscription != nil {
		t.Fatalf("did not expect subscription entity")
	}
}

func TestDecodeEvent_SubscriptionCharged(t *testing.T) {
	raw := []byte(`{
		"event": "subscription.charged",
		"payload": {
			"subscription": {
				"entity": { "id": "sub_1", "customer_id": "cust_1", "plan_id": "plan_x", "status": "active", "current_end": 1700000000 }
			},
			"payment": {
				"entity": { "id": "pay_2", "status": "captured", "amount": 49900, "currency": "INR", "method": "card" }
			}
		}
	}`)

	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if ev.Subscription == nil || ev.Payment == nil {
		t.Fatalf("expected both entities, got %+v", ev)
	}
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if got := ev.Subscription.PeriodEnd(); got == nil || !got.Equal(want) {
		t.Fatalf("PeriodEnd() = %v, want %v", got, want)
	}
	// Recurring charges legitimately have no order id.
	if ev.Payment.OrderID != "" {
		t.Fatalf("expected empty order id, got %q", ev.Payment.OrderID)
	}
}

func TestDecodeEvent_MalformedJSON(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"event": "payment.captured",`))
	if err == nil {
		t.Fatalf("expected decode error for malformed JSON")
	}
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodeEvent_EmptyNotesArray(t *testing.T) {
	// Razorpay sends notes as [] when no notes are set.
	raw := []byte(`{
		"event": "payment.captured",
		"payload": { "payment": { "entity": { "id": "pay_3", "amount": 100, "notes": [] } } }
	}`)

	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(ev.Payment.Notes) != 0 {
		t.Fatalf("expected empty notes, got %v", ev.Payment.Notes)
	}
}

func TestDecodeEvent_NumericNoteValues(t *testing.T) {
	raw := []byte(`{
		"event": "payment.captured",
		"payload": { "payment": { "entity": { "id": "pay_4", "notes": { "attempt": 3, "flagged": true } } } }
	}`)

	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if ev.Payment.Notes["attempt"] != "3" || ev.Payment.Notes["flagged"] != "true" {
		t.Fatalf("unexpected notes: %v", ev.Payment.Notes)
	}
}

func TestPeriodEnd_Missing(t *testing.T) {
	e := &SubscriptionEntity{ID: "sub_1"}
	if e.PeriodEnd() != nil {
		t.Fatalf("expected nil period end when current_end is absent")
	}
}
