package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/gateway"
	"github.com/fashionstore/payments-service/app/types"
	"github.com/fashionstore/payments-service/config"
)

const defaultCurrency = "USD"

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByPaymentID(ctx context.Context, paymentID string) (*entity.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*entity.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Payment, error)
	ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error)
	MarkCompleted(ctx context.Context, paymentID string, transactionID, gatewayResponse *string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, paymentID, reason string, transactionID, gatewayResponse *string, now time.Time) (bool, error)
	MarkDisputed(ctx context.Context, paymentID, reason string, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, paymentID, refundID string, refundAmount float64, now time.Time) (bool, error)
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (*entity.Order, error)
	MarkPaid(ctx context.Context, orderID, paymentID string, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, orderID string, now time.Time) (bool, error)
}

type PaymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type WebhookRecordRepository interface {
	Create(ctx context.Context, record *entity.WebhookRecord) error
}

// Notifier delivers user-facing notifications. Delivery failures never fail
// the payment; the service logs and moves on.
type Notifier interface {
	SendPaymentSuccess(ctx context.Context, payment *entity.Payment) error
	SendPaymentFailed(ctx context.Context, payment *entity.Payment, reason string) error
}

// EventEmitter publishes payment outcomes to the rest of the platform.
type EventEmitter interface {
	EmitPaymentProcessed(ctx context.Context, payment *entity.Payment) error
}

type PaymentService struct {
	paymentRepository PaymentRepository
	orderRepository   OrderRepository
	eventRepository   PaymentEventRepository
	webhookRepository WebhookRecordRepository
	gateways          *gateway.Registry
	notifier          Notifier
	emitter           EventEmitter
	cfg               config.PaymentsConfig
	logger            logrus.FieldLogger
}

func NewPaymentService(
	paymentRepository PaymentRepository,
	orderRepository OrderRepository,
	eventRepository PaymentEventRepository,
	webhookRepository WebhookRecordRepository,
	gateways *gateway.Registry,
	notifier Notifier,
	emitter EventEmitter,
	cfg config.PaymentsConfig,
	logger logrus.FieldLogger,
) *PaymentService {
	return &PaymentService{
		paymentRepository: paymentRepository,
		orderRepository:   orderRepository,
		eventRepository:   eventRepository,
		webhookRepository: webhookRepository,
		gateways:          gateways,
		notifier:          notifier,
		emitter:           emitter,
		cfg:               cfg,
		logger:            logger,
	}
}

// ProcessPayment runs the full charge flow for an order: validate, create a
// PROCESSING record, call the gateway, settle the record and the order. A
// declined charge is a normal outcome: the returned payment carries status
// FAILED and no error is returned.
func (s *PaymentService) ProcessPayment(ctx context.Context, userID string, request *types.ProcessPaymentRequest) (*entity.Payment, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	adapter, err := s.gateways.ForMethod(request.Method)
	if err != nil {
		return nil, ErrMethodUnsupported
	}

	order, err := s.orderRepository.FindByID(ctx, request.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if order.PaymentStatus == types.OrderPaymentStatusPaid {
		return nil, ErrOrderAlreadyPaid
	}

	now := time.Now().UTC()
	payment := &entity.Payment{
		PaymentID: newPaymentID(now),
		OrderID:   order.ID,
		UserID:    userID,
		Amount:    order.TotalAmount,
		Currency:  defaultCurrency,
		Method:    request.Method,
		Status:    types.PaymentStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.paymentRepository.Create(ctx, payment); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"payment_id": payment.PaymentID,
		"order_id":   payment.OrderID,
		"gateway":    adapter.Name(),
	})
	logger.Info("charging payment")

	chargeCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	result, err := adapter.Charge(chargeCtx, &gateway.ChargeInput{
		PaymentID: payment.PaymentID,
		OrderRef:  order.ID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Method:    request.Method,
		Details:   request.PaymentDetails,
	})
	if err != nil {
		reason := "gateway error: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			// The charge may or may not have gone through; the reconcile
			// job picks these up via the gateway's status endpoint.
			reason = "gateway timeout: outcome unknown, manual reconciliation required"
		}
		logger.WithError(err).Error("charge attempt failed")
		return s.settleFailed(ctx, payment, reason, nil, nil)
	}

	gatewayResponse := nonEmptyPtr(result.GatewayResponse)
	transactionID := nonEmptyPtr(result.TransactionID)

	if !result.Success {
		reason := result.DeclineReason
		if reason == "" {
			reason = "payment declined"
		}
		logger.WithField("reason", reason).Info("payment declined")
		return s.settleFailed(ctx, payment, reason, transactionID, gatewayResponse)
	}

	settledAt := time.Now().UTC()
	applied, err := s.paymentRepository.MarkCompleted(ctx, payment.PaymentID, transactionID, gatewayResponse, settledAt)
	if err != nil {
		return nil, err
	}
	if applied {
		oldStatus := payment.Status
		payment.Status = types.PaymentStatusCompleted
		payment.TransactionID = transactionID
		payment.GatewayResponse = gatewayResponse
		payment.ProcessedAt = &settledAt
		payment.UpdatedAt = settledAt
		s.recordEvent(ctx, payment, "payment.completed", &oldStatus, nil, nil)
	}

	orderPaid, err := s.orderRepository.MarkPaid(ctx, order.ID, payment.PaymentID, settledAt)
	if err != nil {
		return nil, err
	}
	if !orderPaid {
		// Another payment won the race; this charge succeeded against a
		// now-paid order and needs operator attention.
		logger.Warn("order already paid by a concurrent payment")
	}

	logger.WithField("transaction_id", result.TransactionID).Info("payment completed")

	s.notifySuccess(ctx, payment)
	s.emitProcessed(ctx, payment)

	return payment, nil
}

func (s *PaymentService) ListPaymentsByUser(ctx context.Context, userID string) ([]*entity.Payment, error) {
	return s.paymentRepository.ListByUser(ctx, userID)
}

// FindPaymentByOrder returns the latest payment for an order, or nil.
func (s *PaymentService) FindPaymentByOrder(ctx context.Context, userID, orderID string) (*entity.Payment, error) {
	payment, err := s.paymentRepository.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.UserID != userID {
		return nil, nil
	}
	return payment, nil
}

func (s *PaymentService) GatewayNames() []string {
	return s.gateways.GatewayNames()
}

func (s *PaymentService) settleFailed(ctx context.Context, payment *entity.Payment, reason string, transactionID, gatewayResponse *string) (*entity.Payment, error) {
	now := time.Now().UTC()
	applied, err := s.paymentRepository.MarkFailed(ctx, payment.PaymentID, reason, transactionID, gatewayResponse, now)
	if err != nil {
		return nil, err
	}
	if applied {
		oldStatus := payment.Status
		payment.Status = types.PaymentStatusFailed
		payment.FailureReason = &reason
		payment.TransactionID = transactionID
		payment.GatewayResponse = gatewayResponse
		payment.UpdatedAt = now
		s.recordEvent(ctx, payment, "payment.failed", &oldStatus, nil, nil)
	}

	s.notifyFailed(ctx, payment, reason)
	s.emitProcessed(ctx, payment)

	return payment, nil
}

func (s *PaymentService) recordEvent(ctx context.Context, payment *entity.Payment, eventType string, oldStatus *types.PaymentStatus, gatewayEventID, payloadJSON *string) {
	event := &entity.PaymentEvent{
		PaymentID:      payment.PaymentID,
		EventType:      eventType,
		OldStatus:      oldStatus,
		NewStatus:      payment.Status,
		GatewayEventID: gatewayEventID,
		PayloadJSON:    payloadJSON,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.eventRepository.Create(ctx, event); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.PaymentID).Error("failed to record payment event")
	}
}

func (s *PaymentService) notifySuccess(ctx context.Context, payment *entity.Payment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendPaymentSuccess(ctx, payment); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.PaymentID).Warn("failed to send success notification")
	}
}

func (s *PaymentService) notifyFailed(ctx context.Context, payment *entity.Payment, reason string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendPaymentFailed(ctx, payment, reason); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.PaymentID).Warn("failed to send failure notification")
	}
}

func (s *PaymentService) emitProcessed(ctx context.Context, payment *entity.Payment) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitPaymentProcessed(ctx, payment); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.PaymentID).Warn("failed to emit payment event")
	}
}

func (s *PaymentService) gatewayTimeout() time.Duration {
	if s.cfg.GatewayTimeout > 0 {
		return s.cfg.GatewayTimeout
	}
	return 30 * time.Second
}

// newPaymentID builds a sortable external id: PAY + unix millis + 6 random
// uppercase hex characters.
func newPaymentID(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("PAY%d%s", now.UnixMilli(), random)
}

func nonEmptyPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
