package models

import "time"

// Razorpay subscription lifecycle statuses as delivered by webhook events.
const (
	SubscriptionStatusCreated   = "created"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusHalted    = "halted"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusCompleted = "completed"
)

// Subscription mirrors a Razorpay subscription. The webhook pipeline is the
// only writer; action endpoints never create rows directly so that the
// asynchronous gateway confirmation stays authoritative.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	RazorpaySubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_rzp_sub_id" json:"razorpay_subscription_id"`
	RazorpayPlanID         string     `gorm:"type:varchar(191);not null;index" json:"razorpay_plan_id"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'created';index" json:"status"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminalSubscriptionStatus reports whether a status admits no further
// activation. Rows in a terminal status are retained for audit, never deleted.
func IsTerminalSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusCancelled, SubscriptionStatusCompleted:
		return true
	default:
		return false
	}
}
