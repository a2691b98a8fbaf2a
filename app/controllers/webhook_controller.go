package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/billflowhq/billflow/internal/pkg/apperr"
	"github.com/billflowhq/billflow/internal/pkg/billing"
	"github.com/billflowhq/billflow/internal/pkg/env"
	"github.com/billflowhq/billflow/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2"
)

// WebhookController ingests asynchronous Razorpay notifications, the
// authoritative source of truth for subscription and payment status.
type WebhookController struct {
	svc *billing.Service
}

func NewWebhookController(svc *billing.Service) *WebhookController {
	return &WebhookController{svc: svc}
}

// HandleRazorpayWebhook authenticates, decodes and applies one webhook
// delivery. The body is taken as raw bytes before any parsing; a parsed and
// re-serialized body would break signature verification. The gateway retries
// on any non-success response, so every path must answer.
func (wc *WebhookController) HandleRazorpayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	secret := env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Print("webhook processing failed: webhook secret is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Webhook secret not configured on server.",
		})
	}

	signature := strings.TrimSpace(c.Get("x-razorpay-signature"))
	if signature == "" {
		log.Print("webhook received without signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Signature not found in headers.",
		})
	}

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		log.Print("webhook received with invalid signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid signature.",
		})
	}

	ev, err := billing.DecodeEvent(rawBody)
	if err != nil {
		log.Printf("webhook error: invalid JSON payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON payload",
		})
	}

	log.Printf("razorpay webhook received - event: %s", ev.Name)
	if err := counter.AddWebhookReceived(ev.Name); err != nil {
		log.Printf("webhook counter update failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := wc.svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		EventID:        strings.TrimSpace(c.Get("x-razorpay-event-id")),
		EventType:      ev.Name,
		PayloadJSON:    string(rawBody),
		SignatureValid: true,
	})
	if err != nil {
		log.Printf("webhook persist failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error while processing webhook.",
		})
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		// Redelivery of an event we already applied successfully. Failed
		// attempts fall through so redelivery can heal them.
		_ = counter.AddWebhookDuplicate(ev.Name)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	procErr := wc.svc.ProcessEvent(ctx, ev, signature)
	_ = wc.svc.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		_ = counter.AddWebhookFailed(ev.Name)
		var ae *apperr.AppError
		if errors.As(procErr, &ae) && ae.Kind == apperr.NotFound {
			log.Printf("webhook: related record missing for event %s: %v", ev.Name, procErr)
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": apperr.PublicMessage(procErr),
			})
		}
		log.Printf("error processing razorpay webhook %s: %v", ev.Name, procErr)
		return c.Status(apperr.HTTPStatus(procErr)).JSON(fiber.Map{
			"error": apperr.PublicMessage(procErr),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received": true,
		"message":  "Webhook processed successfully.",
	})
}
