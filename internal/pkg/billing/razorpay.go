package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/billflowhq/billflow/internal/pkg/apperr"
	"github.com/billflowhq/billflow/internal/pkg/env"
)

const defaultRazorpayAPIBaseURL = "https://api.razorpay.com/v1"

// Gateway abstracts the outbound Razorpay REST calls so controllers can be
// tested against a fake remote.
type Gateway interface {
	CreateOrder(ctx context.Context, in OrderRequest) (*Order, error)
	CreateCustomer(ctx context.Context, in CustomerRequest) (*Customer, error)
	CreateSubscription(ctx context.Context, in SubscriptionRequest) (*RemoteSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, cancelAtCycleEnd bool) (*RemoteSubscription, error)
}

// Client talks to the Razorpay REST API with key id/secret basic auth.
type Client struct {
	KeyID     string
	KeySecret string

	APIBaseURL string
	HTTPClient *http.Client
}

type OrderRequest struct {
	Amount   int64             `json:"amount"` // minor units (paise)
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type CustomerRequest struct {
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Contact      string            `json:"contact,omitempty"`
	FailExisting string            `json:"fail_existing,omitempty"`
	Notes        map[string]string `json:"notes,omitempty"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type SubscriptionRequest struct {
	PlanID         string            `json:"plan_id"`
	CustomerID     string            `json:"customer_id,omitempty"`
	TotalCount     int               `json:"total_count"`
	Quantity       int               `json:"quantity,omitempty"`
	CustomerNotify int               `json:"customer_notify"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type RemoteSubscription struct {
	ID               string `json:"id"`
	PlanID           string `json:"plan_id"`
	CustomerID       string `json:"customer_id"`
	Status           string `json:"status"`
	CurrentEnd       int64  `json:"current_end"`
	ScheduleChangeAt int64  `json:"schedule_change_at"`
}

// razorpayError is the gateway's error envelope on non-2xx responses.
type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Field       string `json:"field"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

// NewClientFromEnv builds a client from RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET.
// Missing credentials are an error, never a silent no-auth client.
func NewClientFromEnv() (*Client, error) {
	keyID, err := env.RequireEnv("RAZORPAY_KEY_ID")
	if err != nil {
		return nil, err
	}
	keySecret, err := env.RequireEnv("RAZORPAY_KEY_SECRET")
	if err != nil {
		return nil, err
	}

	return &Client{
		KeyID:      keyID,
		KeySecret:  keySecret,
		APIBaseURL: strings.TrimSpace(env.GetEnv("RAZORPAY_API_BASE_URL", defaultRazorpayAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (c *Client) CreateOrder(ctx context.Context, in OrderRequest) (*Order, error) {
	var out Order
	if err := c.post(ctx, "/orders", in, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, apperr.Wrap(errors.New("razorpay order creation returned empty id"))
	}
	return &out, nil
}

func (c *Client) CreateCustomer(ctx context.Context, in CustomerRequest) (*Customer, error) {
	var out Customer
	if err := c.post(ctx, "/customers", in, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, apperr.Wrap(errors.New("razorpay customer creation returned empty id"))
	}
	return &out, nil
}

func (c *Client) CreateSubscription(ctx context.Context, in SubscriptionRequest) (*RemoteSubscription, error) {
	var out RemoteSubscription
	if err := c.post(ctx, "/subscriptions", in, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, apperr.Wrap(errors.New("razorpay subscription creation returned empty id"))
	}
	return &out, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string, cancelAtCycleEnd bool) (*RemoteSubscription, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, apperr.InvalidErr("subscription id is required")
	}

	body := map[string]int{"cancel_at_cycle_end": 0}
	if cancelAtCycleEnd {
		body["cancel_at_cycle_end"] = 1
	}

	var out RemoteSubscription
	if err := c.post(ctx, "/subscriptions/"+id+"/cancel", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(err)
	}

	baseURL := strings.TrimRight(c.APIBaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperr.Wrap(err)
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperr.RemoteErr(http.StatusBadGateway, "Payment gateway unreachable.", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Pass the upstream status and description through when available.
		var rzpErr razorpayError
		msg := "Payment gateway request failed."
		if json.Unmarshal(respBody, &rzpErr) == nil && rzpErr.Error.Description != "" {
			msg = rzpErr.Error.Description
		}
		return apperr.RemoteErr(resp.StatusCode, msg,
			fmt.Errorf("razorpay %s failed: status=%d body=%s", path, resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.Wrap(err)
	}
	return nil
}
