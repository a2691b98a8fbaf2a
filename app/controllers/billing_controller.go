package controllers

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/billflowhq/billflow/app/models"
	"github.com/billflowhq/billflow/internal/pkg/apperr"
	"github.com/billflowhq/billflow/internal/pkg/billing"
	"github.com/billflowhq/billflow/internal/pkg/env"
	"github.com/billflowhq/billflow/internal/pkg/usercontext"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// BillingController hosts the thin action endpoints around the gateway's
// remote API and the record store. Local subscription state is never written
// here; the webhook path owns it to avoid races between the synchronous
// response and the asynchronous confirmation.
type BillingController struct {
	svc      *billing.Service
	gateway  billing.Gateway
	validate *validator.Validate
}

func NewBillingController(svc *billing.Service, gateway billing.Gateway) *BillingController {
	return &BillingController{
		svc:      svc,
		gateway:  gateway,
		validate: validator.New(),
	}
}

type createOrderRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency"`
	Receipt  string  `json:"receipt"`
}

func (bc *BillingController) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid amount provided. Amount must be a positive number.",
		})
	}
	if err := bc.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid amount provided. Amount must be a positive number.",
		})
	}

	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = "receipt_order_" + uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	order, err := bc.gateway.CreateOrder(ctx, billing.OrderRequest{
		Amount:   int64(math.Round(req.Amount * 100)), // smallest currency unit (paise for INR)
		Currency: currency,
		Receipt:  receipt,
		Notes:    map[string]string{"type": "one-time_payment"},
	})
	if err != nil {
		return remoteFail(c, "Error creating Razorpay order", err)
	}

	log.Printf("razorpay order created: %s", order.ID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orderId":  order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
		"keyId":    env.GetEnv("RAZORPAY_KEY_ID", ""),
	})
}

type createSubscriptionRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	TotalCount int    `json:"total_count"`
}

func (bc *BillingController) HandleCreateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized. User session not found.",
		})
	}

	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PlanID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "`plan_id` is required.",
		})
	}
	if req.TotalCount <= 0 {
		req.TotalCount = 12 // one year of monthly billing cycles
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	user, err := bc.svc.GetUser(ctx, userCtx.UserID)
	if err != nil {
		return appFail(c, err)
	}

	internalUserID := strconv.FormatUint(uint64(user.ID), 10)

	// Create-if-absent for the remote customer, persisting the mapping before
	// the subscription call so webhook lookups can resolve it.
	customerID := user.RazorpayCustomerID
	if customerID == "" {
		customer, err := bc.gateway.CreateCustomer(ctx, billing.CustomerRequest{
			Name:         user.Name,
			Email:        user.Email,
			FailExisting: "0",
			Notes:        map[string]string{"internal_user_id": internalUserID},
		})
		if err != nil {
			return remoteFail(c, "Error creating Razorpay customer", err)
		}
		customerID = customer.ID
		if err := bc.svc.AttachCustomerID(ctx, user.ID, customerID); err != nil {
			return appFail(c, err)
		}
	}

	sub, err := bc.gateway.CreateSubscription(ctx, billing.SubscriptionRequest{
		PlanID:         req.PlanID,
		CustomerID:     customerID,
		TotalCount:     req.TotalCount,
		Quantity:       1,
		CustomerNotify: 1,
		Notes: map[string]string{
			"internal_user_id": internalUserID,
			"plan_selected":    req.PlanID,
		},
	})
	if err != nil {
		return remoteFail(c, "Error creating Razorpay subscription", err)
	}

	log.Printf("razorpay subscription created: %s for user %d", sub.ID, user.ID)

	// No local Subscription row yet: the subscription.activated webhook is
	// the authoritative creation path.
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"subscriptionId":     sub.ID,
		"razorpayCustomerId": customerID,
		"keyId":              env.GetEnv("RAZORPAY_KEY_ID", ""),
		"planId":             req.PlanID,
		"status":             sub.Status,
	})
}

type cancelSubscriptionRequest struct {
	RazorpaySubscriptionID string `json:"razorpay_subscription_id"`
}

func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized. User session not found.",
		})
	}

	var req cancelSubscriptionRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.RazorpaySubscriptionID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "`razorpay_subscription_id` is required.",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sub, err := bc.svc.OwnedSubscription(ctx, userCtx.UserID, req.RazorpaySubscriptionID)
	if err != nil {
		return appFail(c, err)
	}

	if models.IsTerminalSubscriptionStatus(sub.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Subscription is already %s.", sub.Status),
		})
	}

	// Graceful cancellation at the end of the current billing cycle; the
	// subscription.cancelled webhook performs the definitive local update.
	cancelled, err := bc.gateway.CancelSubscription(ctx, req.RazorpaySubscriptionID, true)
	if err != nil {
		return remoteFail(c, "Error cancelling Razorpay subscription", err)
	}

	log.Printf("razorpay subscription %s cancellation initiated", req.RazorpaySubscriptionID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":            "Subscription cancellation initiated successfully. The subscription will be cancelled at the end of the current billing cycle.",
		"status":             cancelled.Status,
		"schedule_change_at": cancelled.ScheduleChangeAt,
	})
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (bc *BillingController) HandleVerifyPayment(c *fiber.Ctx) error {
	keySecret := env.GetEnv("RAZORPAY_KEY_SECRET", "")
	if keySecret == "" {
		log.Print("payment verification failed: razorpay key secret is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"verified": false,
			"error":    "Server configuration error for payment verification.",
		})
	}

	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"verified": false,
			"error":    "Missing payment verification details.",
		})
	}
	if req.RazorpayOrderID == "" || req.RazorpayPaymentID == "" || req.RazorpaySignature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"verified": false,
			"error":    "Missing payment verification details.",
		})
	}

	if !billing.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, keySecret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"verified": false,
			"error":    "Invalid payment signature.",
		})
	}

	// Fast client feedback only. The payment.captured webhook is what sets
	// persistent payment status; absence of a row here is expected.
	log.Printf("payment %s client-side verification successful", req.RazorpayPaymentID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"verified": true,
		"message":  "Payment signature verified successfully.",
	})
}

func (bc *BillingController) HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized. User session not found.",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := bc.svc.LatestSubscriptionForUser(ctx, userCtx.UserID)
	if err != nil {
		return appFail(c, err)
	}
	if sub == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"subscription": nil,
			"message":      "No subscription found for this user.",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscription": sub})
}

// appFail maps service errors to their HTTP status with a client-safe message.
func appFail(c *fiber.Ctx, err error) error {
	log.Printf("billing request failed: %v", err)
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"error": apperr.PublicMessage(err),
	})
}

// remoteFail passes gateway failures through with the upstream status and
// description when available.
func remoteFail(c *fiber.Ctx, logPrefix string, err error) error {
	log.Printf("%s: %v", logPrefix, err)
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"error": apperr.PublicMessage(err),
	})
}
