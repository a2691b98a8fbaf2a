package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signBody(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	secret := "top-secret"

	validSig := signBody(payload, secret)
	if !VerifyWebhookSignature(payload, validSig, secret) {
		t.Fatalf("expected signature to validate")
	}

	if VerifyWebhookSignature([]byte(`{"event":"payment.captured" }`), validSig, secret) {
		t.Fatalf("expected tampered body to fail")
	}
	if VerifyWebhookSignature(payload, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifyWebhookSignature(payload, "not-hex!", secret) {
		t.Fatalf("expected non-hex signature to fail")
	}
}

func TestVerifyWebhookSignature_MissingSecret(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	validSig := signBody(payload, "secret")

	if VerifyWebhookSignature(payload, validSig, "") {
		t.Fatalf("verification must fail closed without a secret")
	}
	if VerifyWebhookSignature(payload, "", "secret") {
		t.Fatalf("verification must fail without a signature header")
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	keySecret := "key-secret"
	sig := signBody([]byte("order_1|pay_1"), keySecret)

	if !VerifyPaymentSignature("order_1", "pay_1", sig, keySecret) {
		t.Fatalf("expected payment signature to validate")
	}
	if VerifyPaymentSignature("order_2", "pay_1", sig, keySecret) {
		t.Fatalf("expected mismatched order id to fail")
	}
	if VerifyPaymentSignature("order_1", "pay_1", sig, "") {
		t.Fatalf("expected missing key secret to fail closed")
	}
}
