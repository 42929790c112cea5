package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/types"
)

const (
	defaultStuckAfter   = 15 * time.Minute
	defaultJobBatchSize = 100
)

// RunReconcileStuckBatch settles payments stuck in PROCESSING. A payment
// with no transaction id cannot be queried at the gateway and is failed for
// manual follow-up; otherwise the gateway's status endpoint decides.
// Returns the number of payments examined.
func (s *PaymentService) RunReconcileStuckBatch(ctx context.Context) (int, error) {
	stuckAfter := s.cfg.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	batchSize := s.cfg.JobBatchSize
	if batchSize <= 0 {
		batchSize = defaultJobBatchSize
	}

	cutoff := time.Now().UTC().Add(-stuckAfter)
	payments, err := s.paymentRepository.ListStuckProcessing(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	var firstErr error
	for _, payment := range payments {
		if err := s.reconcileStuckPayment(ctx, payment); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return len(payments), firstErr
}

func (s *PaymentService) reconcileStuckPayment(ctx context.Context, payment *entity.Payment) error {
	logger := s.logger.WithFields(logrus.Fields{
		"payment_id": payment.PaymentID,
		"order_id":   payment.OrderID,
	})

	now := time.Now().UTC()

	if payment.TransactionID == nil || *payment.TransactionID == "" {
		reason := "charge outcome unknown, manual reconciliation required"
		applied, err := s.paymentRepository.MarkFailed(ctx, payment.PaymentID, reason, nil, nil, now)
		if err != nil {
			logger.WithError(err).Error("failed to settle stuck payment")
			return err
		}
		if applied {
			oldStatus := payment.Status
			payment.Status = types.PaymentStatusFailed
			s.recordEvent(ctx, payment, "payment.reconciled", &oldStatus, nil, nil)
			logger.Warn("stuck payment failed without gateway transaction")
		}
		return nil
	}

	adapter, err := s.gateways.ForMethod(payment.Method)
	if err != nil {
		logger.WithError(err).Error("stuck payment has no gateway adapter")
		return err
	}

	statusCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	status, err := adapter.ChargeStatus(statusCtx, *payment.TransactionID)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("gateway status lookup failed; will retry next run")
		return err
	}

	switch status {
	case types.PaymentStatusCompleted:
		applied, err := s.paymentRepository.MarkCompleted(ctx, payment.PaymentID, nil, nil, now)
		if err != nil {
			return err
		}
		if applied {
			oldStatus := payment.Status
			payment.Status = types.PaymentStatusCompleted
			s.recordEvent(ctx, payment, "payment.reconciled", &oldStatus, nil, nil)
			if _, err := s.orderRepository.MarkPaid(ctx, payment.OrderID, payment.PaymentID, now); err != nil {
				return err
			}
			logger.Info("stuck payment reconciled as completed")
			s.notifySuccess(ctx, payment)
		}
	case types.PaymentStatusFailed, types.PaymentStatusCancelled:
		reason := "charge did not complete at gateway"
		applied, err := s.paymentRepository.MarkFailed(ctx, payment.PaymentID, reason, nil, nil, now)
		if err != nil {
			return err
		}
		if applied {
			oldStatus := payment.Status
			payment.Status = types.PaymentStatusFailed
			s.recordEvent(ctx, payment, "payment.reconciled", &oldStatus, nil, nil)
			logger.Info("stuck payment reconciled as failed")
			s.notifyFailed(ctx, payment, reason)
		}
	case types.PaymentStatusProcessing:
		logger.Info("payment still processing at gateway")
	default:
		logger.Warn("gateway reported no status for stuck payment")
	}

	return nil
}
