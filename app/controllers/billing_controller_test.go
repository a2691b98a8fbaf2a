package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/billflowhq/billflow/app/models"
	"github.com/billflowhq/billflow/internal/pkg/billing"
	"github.com/billflowhq/billflow/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

// fakeGateway records outbound calls and serves canned responses.
type fakeGateway struct {
	orders        []billing.OrderRequest
	customers     []billing.CustomerRequest
	subscriptions []billing.SubscriptionRequest
	cancels       []string

	customerIDAtSubscribe string
}

func (g *fakeGateway) CreateOrder(_ context.Context, in billing.OrderRequest) (*billing.Order, error) {
	g.orders = append(g.orders, in)
	return &billing.Order{ID: "order_1", Amount: in.Amount, Currency: in.Currency, Receipt: in.Receipt, Status: "created"}, nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, in billing.CustomerRequest) (*billing.Customer, error) {
	g.customers = append(g.customers, in)
	return &billing.Customer{ID: "cust_new", Name: in.Name, Email: in.Email}, nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, in billing.SubscriptionRequest) (*billing.RemoteSubscription, error) {
	g.subscriptions = append(g.subscriptions, in)
	g.customerIDAtSubscribe = in.CustomerID
	return &billing.RemoteSubscription{ID: "sub_new", PlanID: in.PlanID, CustomerID: in.CustomerID, Status: "created"}, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, subscriptionID string, _ bool) (*billing.RemoteSubscription, error) {
	g.cancels = append(g.cancels, subscriptionID)
	return &billing.RemoteSubscription{ID: subscriptionID, Status: "cancelled", ScheduleChangeAt: 1700000000}, nil
}

// newBillingTestApp wires the controller behind a middleware that injects the
// given user context, standing in for the session layer.
func newBillingTestApp(repo billing.Repository, gw billing.Gateway, userCtx *usercontext.UserContext) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userCtx != nil {
			c.Locals("USER_CONTEXT", *userCtx)
		}
		return c.Next()
	})

	bc := NewBillingController(billing.NewService(repo), gw)
	app.Post("/api/razorpay/create-order", bc.HandleCreateOrder)
	app.Post("/api/razorpay/create-subscription", bc.HandleCreateSubscription)
	app.Post("/api/razorpay/cancel-subscription", bc.HandleCancelSubscription)
	app.Post("/api/razorpay/verify-payment", bc.HandleVerifyPayment)
	app.Get("/api/user/subscription", bc.HandleGetSubscription)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func loggedIn(userID uint) *usercontext.UserContext {
	return &usercontext.UserContext{UserID: userID, Username: "demo", IsLoggedIn: true}
}

func TestHandleCreateOrder(t *testing.T) {
	gw := &fakeGateway{}
	app := newBillingTestApp(newMemRepo(), gw, nil)

	resp, out := doJSON(t, app, http.MethodPost, "/api/razorpay/create-order", fiber.Map{"amount": 999})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "order_1", out["orderId"])

	assert.Len(t, gw.orders, 1)
	assert.Equal(t, int64(99900), gw.orders[0].Amount)
	assert.Equal(t, "INR", gw.orders[0].Currency)
	assert.NotEmpty(t, gw.orders[0].Receipt)
}

func TestHandleCreateOrder_InvalidAmount(t *testing.T) {
	gw := &fakeGateway{}
	app := newBillingTestApp(newMemRepo(), gw, nil)

	for _, body := range []fiber.Map{
		{"amount": 0},
		{"amount": -5},
		{"amount": "abc"},
	} {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/razorpay/create-order", body)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	}
	assert.Empty(t, gw.orders)
}

func TestHandleCreateSubscription_Unauthorized(t *testing.T) {
	app := newBillingTestApp(newMemRepo(), &fakeGateway{}, nil)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/razorpay/create-subscription", fiber.Map{"plan_id": "plan_x"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandleCreateSubscription_NewCustomer(t *testing.T) {
	repo := newMemRepo()
	repo.users[1] = &models.User{ID: 1, Name: "demo", Email: "demo@example.com"}
	gw := &fakeGateway{}
	app := newBillingTestApp(repo, gw, loggedIn(1))

	resp, out := doJSON(t, app, http.MethodPost, "/api/razorpay/create-subscription", fiber.Map{"plan_id": "plan_x"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "sub_new", out["subscriptionId"])
	assert.Equal(t, "cust_new", out["razorpayCustomerId"])

	// Customer is created once and the mapping persists before subscribing, so
	// a later subscription.activated webhook can resolve the owner.
	assert.Len(t, gw.customers, 1)
	assert.Equal(t, "1", gw.customers[0].Notes["internal_user_id"])
	assert.Equal(t, "cust_new", repo.users[1].RazorpayCustomerID)
	assert.Equal(t, "cust_new", gw.customerIDAtSubscribe)

	assert.Len(t, gw.subscriptions, 1)
	assert.Equal(t, 12, gw.subscriptions[0].TotalCount)

	// No local row: the webhook path is the only writer.
	assert.Empty(t, repo.subscriptions)
}

func TestHandleCreateSubscription_ExistingCustomer(t *testing.T) {
	repo := newMemRepo()
	repo.users[1] = &models.User{ID: 1, Name: "demo", Email: "demo@example.com", RazorpayCustomerID: "cust_1"}
	gw := &fakeGateway{}
	app := newBillingTestApp(repo, gw, loggedIn(1))

	resp, _ := doJSON(t, app, http.MethodPost, "/api/razorpay/create-subscription", fiber.Map{"plan_id": "plan_x", "total_count": 6})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Empty(t, gw.customers)
	assert.Equal(t, "cust_1", gw.customerIDAtSubscribe)
	assert.Equal(t, 6, gw.subscriptions[0].TotalCount)
}

func TestHandleCreateSubscription_MissingPlan(t *testing.T) {
	repo := newMemRepo()
	repo.users[1] = &models.User{ID: 1, Name: "demo", Email: "demo@example.com"}
	app := newBillingTestApp(repo, &fakeGateway{}, loggedIn(1))

	resp, _ := doJSON(t, app, http.MethodPost, "/api/razorpay/create-subscription", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleCancelSubscription(t *testing.T) {
	repo := newMemRepo()
	repo.subscriptions["sub_1"] = &models.Subscription{
		ID: 1, UserID: 1, RazorpaySubscriptionID: "sub_1", Status: models.SubscriptionStatusActive,
	}
	gw := &fakeGateway{}
	app := newBillingTestApp(repo, gw, loggedIn(1))

	resp, out := doJSON(t, app, http.MethodPost, "/api/razorpay/cancel-subscription", fiber.Map{"razorpay_subscription_id": "sub_1"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", out["status"])
	assert.Equal(t, []string{"sub_1"}, gw.cancels)

	// The local row stays as-is until the subscription.cancelled webhook.
	assert.Equal(t, models.SubscriptionStatusActive, repo.subscriptions["sub_1"].Status)
}

func TestHandleCancelSubscription_NotOwned(t *testing.T) {
	repo := newMemRepo()
	repo.subscriptions["sub_1"] = &models.Subscription{
		ID: 1, UserID: 2, RazorpaySubscriptionID: "sub_1", Status: models.SubscriptionStatusActive,
	}
	gw := &fakeGateway{}
	app := newBillingTestApp(repo, gw, loggedIn(1))

	resp, _ := doJSON(t, app, http.MethodPost, "/api/razorpay/cancel-subscription", fiber.Map{"razorpay_subscription_id": "sub_1"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Empty(t, gw.cancels)
}

func TestHandleCancelSubscription_AlreadyTerminal(t *testing.T) {
	repo := newMemRepo()
	repo.subscriptions["sub_1"] = &models.Subscription{
		ID: 1, UserID: 1, RazorpaySubscriptionID: "sub_1", Status: models.SubscriptionStatusCancelled,
	}
	gw := &fakeGateway{}
	app := newBillingTestApp(repo, gw, loggedIn(1))

	resp, out := doJSON(t, app, http.MethodPost, "/api/razorpay/cancel-subscription", fiber.Map{"razorpay_subscription_id": "sub_1"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Subscription is already cancelled.", out["error"])

	// No remote call and no local mutation for terminal subscriptions.
	assert.Empty(t, gw.cancels)
	assert.Equal(t, models.SubscriptionStatusCancelled, repo.subscriptions["sub_1"].Status)
}

func TestHandleVerifyPayment(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_SECRET", "key_secret_test")
	app := newBillingTestApp(newMemRepo(), &fakeGateway{}, nil)

	mac := hmac.New(sha256.New, []byte("key_secret_test"))
	mac.Write([]byte("order_1|pay_1"))
	sig := hex.EncodeToString(mac.Sum(nil))

	resp, out := doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", fiber.Map{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sig,
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["verified"])
}

func TestHandleVerifyPayment_InvalidSignature(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_SECRET", "key_secret_test")
	app := newBillingTestApp(newMemRepo(), &fakeGateway{}, nil)

	resp, out := doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", fiber.Map{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "0000",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, out["verified"])
}

func TestHandleVerifyPayment_MissingFields(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_SECRET", "key_secret_test")
	app := newBillingTestApp(newMemRepo(), &fakeGateway{}, nil)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", fiber.Map{
		"razorpay_order_id": "order_1",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleVerifyPayment_MissingSecret(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_SECRET", "")
	app := newBillingTestApp(newMemRepo(), &fakeGateway{}, nil)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", fiber.Map{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "abcd",
	})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestHandleGetSubscription_None(t *testing.T) {
	app := newBillingTestApp(newMemRepo(), &fakeGateway{}, loggedIn(1))

	resp, out := doJSON(t, app, http.MethodGet, "/api/user/subscription", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Nil(t, out["subscription"])
}

func TestHandleGetSubscription(t *testing.T) {
	repo := newMemRepo()
	repo.subscriptions["sub_1"] = &models.Subscription{
		ID: 1, UserID: 1, RazorpaySubscriptionID: "sub_1",
		RazorpayPlanID: "plan_x", Status: models.SubscriptionStatusActive,
	}
	app := newBillingTestApp(repo, &fakeGateway{}, loggedIn(1))

	resp, out := doJSON(t, app, http.MethodGet, "/api/user/subscription", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	sub, ok := out["subscription"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "sub_1", sub["razorpay_subscription_id"])
	assert.Equal(t, "active", sub["status"])
}
