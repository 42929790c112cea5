package entity

import (
	"time"

	"github.com/fashionstore/payments-service/app/types"
)

type PaymentEvent struct {
	ID uint64

	PaymentID string

	EventType string

	OldStatus *types.PaymentStatus
	NewStatus types.PaymentStatus

	GatewayEventID *string
	PayloadJSON    *string

	CreatedAt time.Time
}
