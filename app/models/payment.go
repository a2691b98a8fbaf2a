package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Razorpay payment statuses.
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusFailed     = "failed"
)

// UnknownUserID is stored when a captured payment carries no
// notes.internal_user_id. Such rows are kept for manual backfill instead of
// being rejected; the full notes payload stays attached for that purpose.
const UnknownUserID = "UNKNOWN_USER"

// JSONMap stores an opaque key-value mapping (Razorpay "notes") as a JSON
// column. Values arrive from the gateway untyped, so everything is kept as
// raw strings.
type JSONMap map[string]string

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported notes column type %T", value)
	}
}

// Payment records a captured gateway payment, both one-time order payments
// and recurring subscription charges. Amount is stored in major currency
// units after conversion from the gateway's minor units.
type Payment struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	UserID                 string    `gorm:"type:varchar(191);not null;index" json:"user_id"`
	RazorpayPaymentID      string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_rzp_payment_id" json:"razorpay_payment_id"`
	Status                 string    `gorm:"type:varchar(32);not null;default:'created';index" json:"status"`
	Amount                 float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency               string    `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	Method                 string    `gorm:"type:varchar(32)" json:"method"`
	RazorpayOrderID        string    `gorm:"type:varchar(191);default:null;index" json:"razorpay_order_id,omitempty"`
	IsSubscriptionPayment  bool      `gorm:"default:false" json:"is_subscription_payment"`
	RazorpaySubscriptionID string    `gorm:"type:varchar(191);default:null;index" json:"razorpay_subscription_id,omitempty"`
	Notes                  JSONMap   `gorm:"type:json" json:"notes,omitempty"`
	RazorpaySignature      string    `gorm:"type:varchar(255)" json:"-"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
