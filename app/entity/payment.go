package entity

import (
	"time"

	"github.com/fashionstore/payments-service/app/types"
)

// Payment is the persistent record of one charge attempt against an order.
// It is never deleted; after creation only the status-related fields change,
// and TransactionID is set at most once (webhooks correlate by it).
type Payment struct {
	ID uint64

	PaymentID string
	OrderID   string
	UserID    string

	Amount   float64
	Currency string

	Method types.PaymentMethod
	Status types.PaymentStatus

	TransactionID   *string
	GatewayResponse *string

	FailureReason *string
	RefundID      *string
	RefundAmount  *float64
	ProcessedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
