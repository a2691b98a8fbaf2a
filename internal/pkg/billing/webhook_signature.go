package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the X-Razorpay-Signature header against an
// HMAC-SHA256 digest of the exact raw request bytes. Verification fails
// closed when the secret is unconfigured; re-serialized JSON must never be
// used as the payload because key order and whitespace would change.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// VerifyPaymentSignature checks the checkout callback signature Razorpay
// computes over "orderId|paymentId" with the API key secret. This is a fast
// client-feedback check only; the payment.captured webhook stays the source
// of truth for persistent payment status.
func VerifyPaymentSignature(orderID, paymentID, signatureHeader, keySecret string) bool {
	payload := strings.TrimSpace(orderID) + "|" + strings.TrimSpace(paymentID)
	return VerifyWebhookSignature([]byte(payload), signatureHeader, keySecret)
}
