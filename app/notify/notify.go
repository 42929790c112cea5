package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fashionstore/payments-service/app/entity"
)

type Config struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

// Client posts payment outcomes to the notifications service. With an empty
// base URL it is a no-op, which is how dev environments run.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type paymentNotification struct {
	UserID        string  `json:"userId"`
	PaymentID     string  `json:"paymentId"`
	OrderID       string  `json:"orderId"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	FailureReason string  `json:"failureReason,omitempty"`
}

func (c *Client) SendPaymentSuccess(ctx context.Context, payment *entity.Payment) error {
	return c.post(ctx, "/notifications/payment-success", &paymentNotification{
		UserID:    payment.UserID,
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Status:    string(payment.Status),
	})
}

func (c *Client) SendPaymentFailed(ctx context.Context, payment *entity.Payment, reason string) error {
	return c.post(ctx, "/notifications/payment-failed", &paymentNotification{
		UserID:        payment.UserID,
		PaymentID:     payment.PaymentID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Status:        string(payment.Status),
		FailureReason: reason,
	})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	if c.cfg.BaseURL == "" {
		return nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification delivery failed: status=%d", resp.StatusCode)
	}

	return nil
}
