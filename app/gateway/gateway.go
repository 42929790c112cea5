package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/fashionstore/payments-service/app/types"
)

var (
	// ErrInvalidSignature means webhook authenticity could not be
	// established. No state mutation may happen after it.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrRefundRejected means the gateway refused the refund (unknown
	// charge, amount exceeds capture, window closed, ...).
	ErrRefundRejected = errors.New("refund rejected by gateway")
)

type ChargeInput struct {
	PaymentID string
	OrderRef  string
	Amount    float64
	Currency  string
	Method    types.PaymentMethod
	Details   *types.PaymentDetails
}

// ChargeResult reports the gateway's verdict. A declined payment is a
// normal result with Success=false; only infrastructure failures (network,
// auth, 5xx) surface as errors from Charge.
type ChargeResult struct {
	Success         bool
	TransactionID   string
	GatewayResponse string
	DeclineReason   string
}

type RefundInput struct {
	TransactionID string
	Amount        float64
	Reason        string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// WebhookEvent is a verified, decoded gateway callback. TransactionID is
// the primary reconciliation key; CorrelationID carries the payment id the
// gateway echoes back (custom_id / metadata) as a fallback.
type WebhookEvent struct {
	EventType      string
	GatewayEventID string
	TransactionID  string
	CorrelationID  string
	RefundID       string
	RefundAmount   *float64
	FailureReason  string
}

// Adapter translates to one external gateway's API. Implementations hold
// only configuration and are safe for concurrent use.
type Adapter interface {
	Name() string
	Methods() []types.PaymentMethod
	Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error)
	Refund(ctx context.Context, input *RefundInput) (*RefundResult, error)
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error)
	ChargeStatus(ctx context.Context, transactionID string) (types.PaymentStatus, error)
}

// minorUnits converts a decimal amount to the gateway's integer minor-unit
// convention. Round-half-up: 19.999 becomes 2000, never 1999.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
