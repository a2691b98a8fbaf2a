package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/billflowhq/billflow/app/models"
	"github.com/billflowhq/billflow/internal/pkg/apperr"
	"github.com/billflowhq/billflow/internal/pkg/mail"
	"gorm.io/gorm"
)

// Service is the reconciliation engine: it turns decoded webhook events into
// idempotent upserts against the record store. Each transition is a
// full-field overwrite keyed on a gateway external id, so applying an event
// twice or out of order converges on the same row.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ProcessEvent applies one webhook event to the record store. Unrecognized
// events are acknowledged as no-ops; the gateway must not be made to retry
// them. The raw signature is stored on payment rows for audit.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event, signature string) error {
	_ = ctx
	switch ev.Name {
	case EventPaymentCaptured:
		return s.applyPaymentCaptured(ev, signature)
	case EventSubscriptionActivated:
		return s.applySubscriptionActivated(ev)
	case EventSubscriptionCharged:
		return s.applySubscriptionCharged(ev)
	case EventSubscriptionHalted:
		return s.applyStatusOnly(ev, models.SubscriptionStatusHalted)
	case EventSubscriptionCancelled:
		return s.applyStatusOnly(ev, models.SubscriptionStatusCancelled)
	case EventSubscriptionCompleted:
		return s.applyStatusOnly(ev, models.SubscriptionStatusCompleted)
	default:
		log.Printf("webhook: unhandled event %q ignored", ev.Name)
		return nil
	}
}

func (s *Service) applyPaymentCaptured(ev *Event, signature string) error {
	e := ev.Payment
	if e == nil || strings.TrimSpace(e.ID) == "" {
		return apperr.InvalidErr("payment entity missing in payload")
	}

	status := e.Status
	if status == "" {
		status = models.PaymentStatusCaptured
	}

	userID := strings.TrimSpace(e.Notes["internal_user_id"])
	if userID == "" {
		// Kept under a sentinel for manual backfill; the notes payload is
		// retained on the row for exactly that purpose.
		log.Printf("webhook alert: payment %s captured without internal_user_id note, storing as %s", e.ID, models.UnknownUserID)
		mail.SendBillingAlert(
			"Payment captured without user mapping",
			fmt.Sprintf("Payment %s (%s %.2f) arrived without an internal_user_id note and was stored under %s. The notes payload is on the payment row.",
				e.ID, e.Currency, float64(e.Amount)/100, models.UnknownUserID),
		)
		userID = models.UnknownUserID
	}

	p := &models.Payment{
		UserID:                 userID,
		RazorpayPaymentID:      e.ID,
		Status:                 status,
		Amount:                 float64(e.Amount) / 100,
		Currency:               e.Currency,
		Method:                 e.Method,
		RazorpayOrderID:        e.OrderID,
		IsSubscriptionPayment:  e.SubscriptionID != "",
		RazorpaySubscriptionID: e.SubscriptionID,
		Notes:                  models.JSONMap(e.Notes),
		RazorpaySignature:      signature,
	}
	if err := s.repo.UpsertPayment(p); err != nil {
		return apperr.Wrap(err)
	}

	log.Printf("webhook: payment record %d updated/created for %s", p.ID, p.RazorpayPaymentID)
	return nil
}

func (s *Service) applySubscriptionActivated(ev *Event) error {
	e := ev.Subscription
	if e == nil || strings.TrimSpace(e.ID) == "" {
		return apperr.InvalidErr("subscription entity missing in payload")
	}

	user, err := s.repo.GetUserByCustomerID(e.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No orphan subscription rows: acknowledge and flag for manual
			// intervention instead of inventing an owner.
			log.Printf("webhook alert: no user for razorpay customer %q on %s, event skipped", e.CustomerID, ev.Name)
			mail.SendBillingAlert(
				"Subscription event without user mapping",
				fmt.Sprintf("Event %s for subscription %s references razorpay customer %q, which maps to no local user. The event was acknowledged without writing a subscription row.",
					ev.Name, e.ID, e.CustomerID),
			)
			return nil
		}
		return apperr.Wrap(err)
	}

	status := e.Status
	if status == "" {
		status = models.SubscriptionStatusActive
	}
	if skipped, err := s.terminalGuard(e.ID, status); err != nil || skipped {
		return err
	}

	sub := &models.Subscription{
		UserID:                 user.ID,
		RazorpaySubscriptionID: e.ID,
		RazorpayPlanID:         e.PlanID,
		Status:                 status,
		CurrentPeriodEnd:       e.PeriodEnd(),
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return apperr.Wrap(err)
	}

	log.Printf("webhook: subscription %d for user %d activated/updated", sub.ID, user.ID)
	return nil
}

func (s *Service) applySubscriptionCharged(ev *Event) error {
	e := ev.Subscription
	if e == nil || strings.TrimSpace(e.ID) == "" {
		return apperr.InvalidErr("subscription entity missing in payload")
	}

	sub, err := s.repo.GetSubscriptionByExternalID(e.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Charged arrived before activated; the gateway redelivers after
			// a non-success response, by which time the row should exist.
			return apperr.NotFoundErr("Related record not found for processing webhook.")
		}
		return apperr.Wrap(err)
	}

	status := e.Status
	if status == "" {
		status = models.SubscriptionStatusActive
	}
	if models.IsTerminalSubscriptionStatus(sub.Status) && !models.IsTerminalSubscriptionStatus(status) {
		log.Printf("webhook: subscription %s is %s, charge does not reopen it", e.ID, sub.Status)
	} else {
		updates := map[string]interface{}{
			"status":             status,
			"current_period_end": e.PeriodEnd(),
		}
		if err := s.repo.UpdateSubscriptionByExternalID(e.ID, updates); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundErr("Related record not found for processing webhook.")
			}
			return apperr.Wrap(err)
		}
	}

	p := ev.Payment
	if p == nil || strings.TrimSpace(p.ID) == "" {
		log.Printf("webhook: subscription.charged for %s carried no payment entity", e.ID)
		return nil
	}

	// Order id is legitimately absent for recurring charges.
	pay := &models.Payment{
		UserID:                 strconv.FormatUint(uint64(sub.UserID), 10),
		RazorpayPaymentID:      p.ID,
		Status:                 models.PaymentStatusCaptured,
		Amount:                 float64(p.Amount) / 100,
		Currency:               p.Currency,
		Method:                 p.Method,
		RazorpayOrderID:        p.OrderID,
		IsSubscriptionPayment:  true,
		RazorpaySubscriptionID: e.ID,
		Notes:                  models.JSONMap(p.Notes),
	}
	if err := s.repo.EnsurePaymentCaptured(pay); err != nil {
		return apperr.Wrap(err)
	}

	log.Printf("webhook: payment record for subscription charge %s ensured", p.ID)
	return nil
}

func (s *Service) applyStatusOnly(ev *Event, fallbackStatus string) error {
	e := ev.Subscription
	if e == nil || strings.TrimSpace(e.ID) == "" {
		return apperr.InvalidErr("subscription entity missing in payload")
	}

	status := e.Status
	if status == "" {
		status = fallbackStatus
	}

	sub, err := s.repo.GetSubscriptionByExternalID(e.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundErr("Related record not found for processing webhook.")
		}
		return apperr.Wrap(err)
	}
	if models.IsTerminalSubscriptionStatus(sub.Status) && !models.IsTerminalSubscriptionStatus(status) {
		log.Printf("webhook: subscription %s already %s, %s ignored", e.ID, sub.Status, ev.Name)
		return nil
	}

	// Period end is left untouched: for cancellations it marks the remaining
	// access window.
	if err := s.repo.UpdateSubscriptionByExternalID(e.ID, map[string]interface{}{"status": status}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundErr("Related record not found for processing webhook.")
		}
		return apperr.Wrap(err)
	}

	log.Printf("webhook: subscription %s marked %s", e.ID, status)
	return nil
}

// terminalGuard skips transitions that would revert a terminal subscription
// to a non-terminal status.
func (s *Service) terminalGuard(externalID, incomingStatus string) (bool, error) {
	existing, err := s.repo.GetSubscriptionByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, apperr.Wrap(err)
	}
	if models.IsTerminalSubscriptionStatus(existing.Status) && !models.IsTerminalSubscriptionStatus(incomingStatus) {
		log.Printf("webhook: subscription %s already %s, not reverting to %s", externalID, existing.Status, incomingStatus)
		return true, nil
	}
	return false, nil
}

// RecordWebhookEvent persists webhook payloads idempotently. Deliveries
// without an event id header are keyed on a payload hash.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		EventID:        eventID,
		EventType:      strings.TrimSpace(in.EventType),
		PayloadJSON:    in.PayloadJSON,
		SignatureValid: in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// GetUser loads a local user for the action endpoints.
func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	_ = ctx
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundErr("User not found in database.")
		}
		return nil, apperr.Wrap(err)
	}
	return user, nil
}

// AttachCustomerID persists a freshly assigned gateway customer id on the user.
func (s *Service) AttachCustomerID(ctx context.Context, userID uint, razorpayCustomerID string) error {
	_ = ctx
	if userID == 0 || strings.TrimSpace(razorpayCustomerID) == "" {
		return apperr.InvalidErr("user id and customer id are required")
	}
	if err := s.repo.SetUserCustomerID(userID, strings.TrimSpace(razorpayCustomerID)); err != nil {
		return apperr.Wrap(err)
	}
	return nil
}

// OwnedSubscription authorizes that an external subscription id belongs to
// the caller. Absence and foreign ownership are indistinguishable to the
// client on purpose.
func (s *Service) OwnedSubscription(ctx context.Context, userID uint, razorpaySubscriptionID string) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.SubscriptionOwnedByUser(strings.TrimSpace(razorpaySubscriptionID), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundErr("Subscription not found or does not belong to the user.")
		}
		return nil, apperr.Wrap(err)
	}
	return sub, nil
}

// LatestSubscriptionForUser returns the most recently created subscription
// row for a user, or nil when none exists.
func (s *Service) LatestSubscriptionForUser(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.LatestSubscriptionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(err)
	}
	return sub, nil
}
