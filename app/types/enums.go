package types

// PaymentStatus is the lifecycle state of a payment. Transitions only move
// forward: PENDING -> PROCESSING -> {COMPLETED, FAILED}; COMPLETED ->
// REFUNDED. FAILED, CANCELLED and REFUNDED are terminal.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentMethodPayPal       PaymentMethod = "PAYPAL"
	PaymentMethodStripe       PaymentMethod = "STRIPE"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// OrderPaymentStatus is the order-side payment state mutated by this service.
type OrderPaymentStatus string

const (
	OrderPaymentStatusUnpaid   OrderPaymentStatus = "UNPAID"
	OrderPaymentStatusPaid     OrderPaymentStatus = "PAID"
	OrderPaymentStatusRefunded OrderPaymentStatus = "REFUNDED"
)

func IsValidPaymentMethod(method PaymentMethod) bool {
	switch method {
	case PaymentMethodCreditCard,
		PaymentMethodDebitCard,
		PaymentMethodPayPal,
		PaymentMethodStripe,
		PaymentMethodBankTransfer:
		return true
	default:
		return false
	}
}

func IsValidPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusCompleted,
		PaymentStatusFailed,
		PaymentStatusCancelled,
		PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

func IsTerminalPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionPaymentStatus reports whether a payment may move from one
// status to another. REFUNDED and CANCELLED payments never resurrect, and a
// COMPLETED payment only moves to REFUNDED.
func CanTransitionPaymentStatus(from, to PaymentStatus) bool {
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusProcessing || to == PaymentStatusCompleted ||
			to == PaymentStatusFailed || to == PaymentStatusCancelled
	case PaymentStatusProcessing:
		return to == PaymentStatusCompleted || to == PaymentStatusFailed || to == PaymentStatusCancelled
	case PaymentStatusCompleted:
		return to == PaymentStatusRefunded
	default:
		return false
	}
}
