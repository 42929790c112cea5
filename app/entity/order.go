package entity

import (
	"time"

	"github.com/fashionstore/payments-service/app/types"
)

// Order is the collaborator entity owned by the orders subsystem. This
// service only reads it and applies the PAID/REFUNDED payment-status
// transitions.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string

	TotalAmount   float64
	PaymentStatus types.OrderPaymentStatus
	PaymentID     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
