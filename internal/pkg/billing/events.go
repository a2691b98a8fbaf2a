package billing

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Webhook event names handled by the reconciliation engine. Anything else is
// acknowledged as a no-op so the gateway does not retry valid-but-unhandled
// events.
const (
	EventPaymentCaptured       = "payment.captured"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionCompleted = "subscription.completed"
)

// ErrInvalidPayload marks webhook bodies that are not well-formed JSON.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// PaymentEntity is the gateway's canonical payment representation. Amount is
// in minor currency units (paise). Fields may be absent for unexpected
// vendor payloads; consumers must treat zero values as missing.
type PaymentEntity struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Method         string    `json:"method"`
	OrderID        string    `json:"order_id"`
	SubscriptionID string    `json:"subscription_id"`
	Notes          NotesData `json:"notes"`
}

// SubscriptionEntity is the gateway's canonical subscription representation.
// CurrentEnd is a unix timestamp in seconds.
type SubscriptionEntity struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	PlanID     string `json:"plan_id"`
	Status     string `json:"status"`
	CurrentEnd int64  `json:"current_end"`
}

// NotesData tolerates Razorpay's loosely typed notes field, which arrives as
// an object of strings-or-numbers, or as an empty array when no notes are set.
type NotesData map[string]string

func (n *NotesData) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || strings.HasPrefix(trimmed, "[") {
		*n = nil
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(NotesData, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			if val {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		}
	}
	*n = out
	return nil
}

// Event is the decoded webhook envelope: the event name plus whichever
// entities the payload carried. The name is the variant tag; ProcessEvent
// matches on it exhaustively.
type Event struct {
	Name         string
	Payment      *PaymentEntity
	Subscription *SubscriptionEntity
}

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity *PaymentEntity `json:"entity"`
		} `json:"payment"`
		Subscription struct {
			Entity *SubscriptionEntity `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// DecodeEvent parses a raw webhook body into an Event. Only JSON
// well-formedness is checked here; transitions do their own defensive field
// access because the gateway's payload shapes drift.
func DecodeEvent(raw []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	return &Event{
		Name:         strings.TrimSpace(env.Event),
		Payment:      env.Payload.Payment.Entity,
		Subscription: env.Payload.Subscription.Entity,
	}, nil
}

// PeriodEnd converts the entity's unix second timestamp into a UTC time,
// or nil when the gateway omitted it.
func (e *SubscriptionEntity) PeriodEnd() *time.Time {
	if e == nil || e.CurrentEnd <= 0 {
		return nil
	}
	t := time.Unix(e.CurrentEnd, 0).UTC()
	return &t
}
