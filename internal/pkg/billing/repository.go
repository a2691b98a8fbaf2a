package billing

import (
	"time"

	"github.com/billflowhq/billflow/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the keyed record-store operations used by the
// reconciliation engine. Every write is keyed on a gateway-assigned external
// identifier so retries and out-of-order redelivery converge on the same row.
type Repository interface {
	UpsertPayment(p *models.Payment) error
	EnsurePaymentCaptured(p *models.Payment) error
	GetPaymentByExternalID(razorpayPaymentID string) (*models.Payment, error)

	UpsertSubscription(sub *models.Subscription) error
	UpdateSubscriptionByExternalID(razorpaySubscriptionID string, updates map[string]interface{}) error
	GetSubscriptionByExternalID(razorpaySubscriptionID string) (*models.Subscription, error)
	LatestSubscriptionByUser(userID uint) (*models.Subscription, error)
	SubscriptionOwnedByUser(razorpaySubscriptionID string, userID uint) (*models.Subscription, error)

	GetUserByID(id uint) (*models.User, error)
	GetUserByCustomerID(razorpayCustomerID string) (*models.User, error)
	SetUserCustomerID(userID uint, razorpayCustomerID string) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// UpsertPayment overwrites the mutable payment fields on conflict. Ownership
// columns (user_id, is_subscription_payment, razorpay_subscription_id) are
// set on create only; redeliveries must not clobber them with defaults.
func (r *gormRepository) UpsertPayment(p *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "razorpay_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"amount",
			"currency",
			"method",
			"razorpay_order_id",
			"notes",
			"razorpay_signature",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("razorpay_payment_id = ?", p.RazorpayPaymentID).First(p).Error
}

// EnsurePaymentCaptured guarantees a captured payment row exists for a
// subscription charge. If the payment.captured webhook already created the
// row, only the status is forced to captured.
func (r *gormRepository) EnsurePaymentCaptured(p *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "razorpay_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	return r.db.Where("razorpay_payment_id = ?", p.RazorpayPaymentID).First(p).Error
}

func (r *gormRepository) GetPaymentByExternalID(razorpayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("razorpay_payment_id = ?", razorpayPaymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "razorpay_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"razorpay_plan_id",
			"status",
			"current_period_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	return r.db.Where("razorpay_subscription_id = ?", sub.RazorpaySubscriptionID).First(sub).Error
}

// UpdateSubscriptionByExternalID applies a partial update and reports
// gorm.ErrRecordNotFound when no row carries the external id, so callers can
// map it to a distinct not-found response instead of a generic failure.
func (r *gormRepository) UpdateSubscriptionByExternalID(razorpaySubscriptionID string, updates map[string]interface{}) error {
	tx := r.db.Model(&models.Subscription{}).
		Where("razorpay_subscription_id = ?", razorpaySubscriptionID).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) GetSubscriptionByExternalID(razorpaySubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("razorpay_subscription_id = ?", razorpaySubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) LatestSubscriptionByUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SubscriptionOwnedByUser(razorpaySubscriptionID string, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("razorpay_subscription_id = ? AND user_id = ?", razorpaySubscriptionID, userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByCustomerID(razorpayCustomerID string) (*models.User, error) {
	var user models.User
	err := r.db.Where("razorpay_customer_id = ?", razorpayCustomerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) SetUserCustomerID(userID uint, razorpayCustomerID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("razorpay_customer_id", razorpayCustomerID).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
