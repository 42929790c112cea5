package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAlreadyPaid    = errors.New("order is already paid")
	ErrMethodUnsupported   = errors.New("payment method is not supported")
	ErrGatewayUnsupported  = errors.New("gateway is not supported")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrNotRefundable       = errors.New("payment is not refundable")
	ErrRefundFailed        = errors.New("refund failed")
	ErrWebhookUnverifiable = errors.New("webhook signature verification failed")
)
