package entity

import "time"

const (
	WebhookDispositionProcessed = "processed"
	WebhookDispositionIgnored   = "ignored"
	WebhookDispositionRejected  = "rejected"
)

// WebhookRecord is an append-only audit row for every inbound gateway
// webhook, including ones that fail signature verification.
type WebhookRecord struct {
	ID uint64

	PaymentID *string

	Gateway     string
	EventType   string
	Signature   string
	PayloadJSON string
	Disposition string
	Error       *string

	CreatedAt time.Time
}
