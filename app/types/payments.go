package types

import (
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

type BillingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// PaymentDetails carries the method-specific fields of a charge request.
// Only the fields relevant to the chosen method are validated; the rest may
// stay empty.
type PaymentDetails struct {
	CardNumber     string `json:"cardNumber,omitempty"`
	ExpiryMonth    string `json:"expiryMonth,omitempty"`
	ExpiryYear     string `json:"expiryYear,omitempty"`
	CVV            string `json:"cvv,omitempty"`
	CardHolderName string `json:"cardHolderName,omitempty"`

	PayPalEmail string `json:"paypalEmail,omitempty"`
	PayPalToken string `json:"paypalToken,omitempty"`

	StripeToken           string `json:"stripeToken,omitempty"`
	StripePaymentMethodID string `json:"stripePaymentMethodId,omitempty"`

	BillingAddress *BillingAddress `json:"billingAddress,omitempty"`
}

type ProcessPaymentRequest struct {
	OrderID        string          `json:"orderId"`
	Method         PaymentMethod   `json:"method"`
	PaymentDetails *PaymentDetails `json:"paymentDetails"`
	Notes          string          `json:"notes,omitempty"`
}

func NewProcessPaymentRequestFromContext(ctx echo.Context) (*ProcessPaymentRequest, error) {
	var body ProcessPaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.OrderID = strings.TrimSpace(body.OrderID)
	body.Method = PaymentMethod(strings.ToUpper(strings.TrimSpace(string(body.Method))))
	body.Notes = strings.TrimSpace(body.Notes)
	if body.PaymentDetails != nil {
		body.PaymentDetails.CardNumber = strings.ReplaceAll(strings.TrimSpace(body.PaymentDetails.CardNumber), " ", "")
		body.PaymentDetails.ExpiryMonth = strings.TrimSpace(body.PaymentDetails.ExpiryMonth)
		body.PaymentDetails.ExpiryYear = strings.TrimSpace(body.PaymentDetails.ExpiryYear)
		body.PaymentDetails.CVV = strings.TrimSpace(body.PaymentDetails.CVV)
		body.PaymentDetails.CardHolderName = strings.TrimSpace(body.PaymentDetails.CardHolderName)
		body.PaymentDetails.StripePaymentMethodID = strings.TrimSpace(body.PaymentDetails.StripePaymentMethodID)
		body.PaymentDetails.StripeToken = strings.TrimSpace(body.PaymentDetails.StripeToken)
	}

	return &body, nil
}

func (r *ProcessPaymentRequest) Validate() error {
	if r.OrderID == "" {
		return errors.New("orderId is required")
	}
	if !IsValidPaymentMethod(r.Method) {
		return errors.New("method must be one of CREDIT_CARD, DEBIT_CARD, PAYPAL, STRIPE, BANK_TRANSFER")
	}
	if r.PaymentDetails == nil {
		return errors.New("paymentDetails is required")
	}

	switch r.Method {
	case PaymentMethodCreditCard, PaymentMethodDebitCard:
		if r.PaymentDetails.CardNumber == "" {
			return errors.New("paymentDetails.cardNumber is required for card payments")
		}
		if r.PaymentDetails.ExpiryMonth == "" || r.PaymentDetails.ExpiryYear == "" {
			return errors.New("paymentDetails.expiryMonth and expiryYear are required for card payments")
		}
		if r.PaymentDetails.CVV == "" {
			return errors.New("paymentDetails.cvv is required for card payments")
		}
	case PaymentMethodStripe:
		if r.PaymentDetails.StripePaymentMethodID == "" && r.PaymentDetails.StripeToken == "" {
			return errors.New("paymentDetails.stripePaymentMethodId or stripeToken is required")
		}
	}

	return nil
}

type RefundPaymentRequest struct {
	PaymentID string   `json:"-"`
	Amount    *float64 `json:"amount,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

func NewRefundPaymentRequestFromContext(ctx echo.Context) (*RefundPaymentRequest, error) {
	paymentID := strings.TrimSpace(ctx.Param("paymentId"))
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}

	var body RefundPaymentRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.PaymentID = paymentID
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *RefundPaymentRequest) Validate() error {
	if strings.TrimSpace(r.PaymentID) == "" {
		return errors.New("payment id is required")
	}
	if r.Amount != nil && *r.Amount <= 0 {
		return errors.New("amount must be > 0")
	}
	return nil
}

// Payment is the external representation of a payment record. The raw
// gateway response stays internal (audit only).
type Payment struct {
	PaymentID     string        `json:"paymentId"`
	OrderID       string        `json:"orderId"`
	UserID        string        `json:"userId"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transactionId,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	RefundID      string        `json:"refundId,omitempty"`
	RefundAmount  float64       `json:"refundAmount,omitempty"`
	ProcessedAt   string        `json:"processedAt,omitempty"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

// WebhookAckResponse is the body returned to gateways. Gateways retry on
// non-2xx, so application-level failures are acknowledged with status
// "error" rather than an error status code.
type WebhookAckResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type WebhookHealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Webhooks  map[string]string `json:"webhooks"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
