package notify

import (
	"context"
	"time"

	"github.com/fashionstore/payments-service/app/entity"
)

// Emitter publishes payment.processed events to the platform's event intake
// over the same HTTP channel the notifier uses.
type Emitter struct {
	client *Client
}

func NewEmitter(cfg Config) *Emitter {
	return &Emitter{client: NewClient(cfg)}
}

type paymentProcessedEvent struct {
	Event         string  `json:"event"`
	PaymentID     string  `json:"paymentId"`
	OrderID       string  `json:"orderId"`
	UserID        string  `json:"userId"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	TransactionID string  `json:"transactionId,omitempty"`
	EmittedAt     string  `json:"emittedAt"`
}

func (e *Emitter) EmitPaymentProcessed(ctx context.Context, payment *entity.Payment) error {
	event := &paymentProcessedEvent{
		Event:     "payment.processed",
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Status:    string(payment.Status),
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if payment.TransactionID != nil {
		event.TransactionID = *payment.TransactionID
	}
	return e.client.post(ctx, "/events/payment-processed", event)
}
