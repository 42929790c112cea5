package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/gateway"
	"github.com/fashionstore/payments-service/app/types"
)

// RefundPayment refunds a COMPLETED payment through its gateway. Partial
// refunds are allowed; the amount defaults to the full charge. The record
// only moves to REFUNDED once the gateway has accepted the refund.
func (s *PaymentService) RefundPayment(ctx context.Context, userID string, request *types.RefundPaymentRequest) (*entity.Payment, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	payment, err := s.paymentRepository.FindByPaymentID(ctx, request.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != types.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment is %s", ErrNotRefundable, payment.Status)
	}
	if payment.TransactionID == nil || *payment.TransactionID == "" {
		return nil, fmt.Errorf("%w: payment has no gateway transaction", ErrNotRefundable)
	}

	adapter, err := s.gateways.ForMethod(payment.Method)
	if err != nil {
		return nil, ErrMethodUnsupported
	}

	amount := payment.Amount
	if request.Amount != nil {
		amount = *request.Amount
	}

	logger := s.logger.WithFields(logrus.Fields{
		"payment_id": payment.PaymentID,
		"gateway":    adapter.Name(),
		"amount":     amount,
	})
	logger.Info("refunding payment")

	refundCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	result, err := adapter.Refund(refundCtx, &gateway.RefundInput{
		TransactionID: *payment.TransactionID,
		Amount:        amount,
		Reason:        request.Reason,
	})
	if err != nil {
		logger.WithError(err).Error("refund attempt failed")
		return nil, fmt.Errorf("%w: %s", ErrRefundFailed, err.Error())
	}

	now := time.Now().UTC()
	applied, err := s.paymentRepository.MarkRefunded(ctx, payment.PaymentID, result.RefundID, amount, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A refund webhook got there first. The gateway accepted the refund,
		// so report the current state rather than an error.
		logger.Info("payment already refunded")
		return s.paymentRepository.FindByPaymentID(ctx, payment.PaymentID)
	}

	oldStatus := payment.Status
	payment.Status = types.PaymentStatusRefunded
	payment.RefundID = &result.RefundID
	payment.RefundAmount = &amount
	payment.UpdatedAt = now
	s.recordEvent(ctx, payment, "payment.refunded", &oldStatus, nil, nil)

	if _, err := s.orderRepository.MarkRefunded(ctx, payment.OrderID, now); err != nil {
		return nil, err
	}

	logger.WithField("refund_id", result.RefundID).Info("payment refunded")

	return payment, nil
}
