package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/gateway"
	"github.com/fashionstore/payments-service/app/types"
)

const (
	WebhookStatusSuccess = "success"
	WebhookStatusIgnored = "ignored"
	WebhookStatusError   = "error"
)

type WebhookResult struct {
	Status string
	Detail string
}

type webhookAction int

const (
	webhookActionNone webhookAction = iota
	webhookActionComplete
	webhookActionFail
	webhookActionRefund
	webhookActionDispute
	webhookActionLogOnly
)

// webhookActions is the fixed table of event types this service reacts to.
// Anything not listed is acknowledged and ignored so gateways stop retrying.
var webhookActions = map[string]webhookAction{
	"payment_intent.succeeded":      webhookActionComplete,
	"payment_intent.payment_failed": webhookActionFail,
	"charge.refunded":               webhookActionRefund,
	"charge.dispute.created":        webhookActionDispute,
	"invoice.payment_succeeded":     webhookActionLogOnly,

	"PAYMENT.CAPTURE.COMPLETED": webhookActionComplete,
	"PAYMENT.CAPTURE.DENIED":    webhookActionFail,
	"PAYMENT.CAPTURE.REFUNDED":  webhookActionRefund,
	"CHECKOUT.ORDER.APPROVED":   webhookActionLogOnly,
}

// HandleWebhook verifies and applies one inbound gateway webhook. Every
// delivery is recorded; state changes go through conditional updates, so a
// redundant delivery settles as a no-op rather than a double transition.
func (s *PaymentService) HandleWebhook(ctx context.Context, gatewayName string, payload []byte, headers http.Header) (*WebhookResult, error) {
	adapter, err := s.gateways.ForGateway(gatewayName)
	if err != nil {
		return nil, ErrGatewayUnsupported
	}

	signature := headers.Get("Stripe-Signature")
	if signature == "" {
		signature = headers.Get("Paypal-Transmission-Sig")
	}

	event, err := adapter.VerifyWebhook(ctx, payload, headers)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			s.recordWebhook(ctx, nil, gatewayName, "", signature, payload, entity.WebhookDispositionRejected, err)
			s.logger.WithField("gateway", gatewayName).Warn("rejected webhook with invalid signature")
			return nil, ErrWebhookUnverifiable
		}
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"gateway":    gatewayName,
		"event_type": event.EventType,
		"event_id":   event.GatewayEventID,
	})

	action, known := webhookActions[event.EventType]
	if !known {
		s.recordWebhook(ctx, nil, gatewayName, event.EventType, signature, payload, entity.WebhookDispositionIgnored, nil)
		logger.Info("ignoring unhandled webhook event type")
		return &WebhookResult{Status: WebhookStatusIgnored, Detail: "unhandled event type"}, nil
	}

	payment, err := s.lookupWebhookPayment(ctx, event)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		// Gateways may deliver events for charges created outside this
		// service. Acknowledge so they stop retrying.
		s.recordWebhook(ctx, nil, gatewayName, event.EventType, signature, payload, entity.WebhookDispositionIgnored, nil)
		logger.Info("no payment matches webhook event")
		return &WebhookResult{Status: WebhookStatusIgnored, Detail: "no matching payment"}, nil
	}

	logger = logger.WithField("payment_id", payment.PaymentID)

	if action == webhookActionLogOnly {
		s.recordWebhook(ctx, &payment.PaymentID, gatewayName, event.EventType, signature, payload, entity.WebhookDispositionProcessed, nil)
		logger.Info("acknowledged informational webhook")
		return &WebhookResult{Status: WebhookStatusSuccess, Detail: "acknowledged"}, nil
	}

	result, err := s.applyWebhookAction(ctx, action, payment, event, logger)
	if err != nil {
		return nil, err
	}

	disposition := entity.WebhookDispositionProcessed
	if result.Status == WebhookStatusIgnored {
		disposition = entity.WebhookDispositionIgnored
	}
	s.recordWebhook(ctx, &payment.PaymentID, gatewayName, event.EventType, signature, payload, disposition, nil)

	return result, nil
}

func (s *PaymentService) applyWebhookAction(ctx context.Context, action webhookAction, payment *entity.Payment, event *gateway.WebhookEvent, logger logrus.FieldLogger) (*WebhookResult, error) {
	now := time.Now().UTC()
	eventID := nonEmptyPtr(event.GatewayEventID)

	switch action {
	case webhookActionComplete:
		applied, err := s.paymentRepository.MarkCompleted(ctx, payment.PaymentID, nonEmptyPtr(event.TransactionID), nil, now)
		if err != nil {
			return nil, err
		}
		if !applied {
			logger.Info("payment already settled; webhook is a no-op")
			return &WebhookResult{Status: WebhookStatusIgnored, Detail: "already settled"}, nil
		}

		oldStatus := payment.Status
		payment.Status = types.PaymentStatusCompleted
		s.recordEvent(ctx, payment, event.EventType, &oldStatus, eventID, nil)

		if _, err := s.orderRepository.MarkPaid(ctx, payment.OrderID, payment.PaymentID, now); err != nil {
			return nil, err
		}
		logger.Info("payment completed via webhook")
		s.notifySuccess(ctx, payment)
		return &WebhookResult{Status: WebhookStatusSuccess, Detail: "payment completed"}, nil

	case webhookActionFail:
		reason := event.FailureReason
		if reason == "" {
			reason = "payment failed at gateway"
		}
		applied, err := s.paymentRepository.MarkFailed(ctx, payment.PaymentID, reason, nonEmptyPtr(event.TransactionID), nil, now)
		if err != nil {
			return nil, err
		}
		if !applied {
			logger.Info("payment already settled; failure webhook is a no-op")
			return &WebhookResult{Status: WebhookStatusIgnored, Detail: "already settled"}, nil
		}

		oldStatus := payment.Status
		payment.Status = types.PaymentStatusFailed
		s.recordEvent(ctx, payment, event.EventType, &oldStatus, eventID, nil)
		logger.WithField("reason", reason).Info("payment failed via webhook")
		s.notifyFailed(ctx, payment, reason)
		return &WebhookResult{Status: WebhookStatusSuccess, Detail: "payment failed"}, nil

	case webhookActionRefund:
		amount := payment.Amount
		if event.RefundAmount != nil && *event.RefundAmount > 0 {
			amount = *event.RefundAmount
		}
		applied, err := s.paymentRepository.MarkRefunded(ctx, payment.PaymentID, event.RefundID, amount, now)
		if err != nil {
			return nil, err
		}
		if !applied {
			logger.Info("payment not refundable; refund webhook is a no-op")
			return &WebhookResult{Status: WebhookStatusIgnored, Detail: "not refundable"}, nil
		}

		oldStatus := payment.Status
		payment.Status = types.PaymentStatusRefunded
		s.recordEvent(ctx, payment, event.EventType, &oldStatus, eventID, nil)

		if _, err := s.orderRepository.MarkRefunded(ctx, payment.OrderID, now); err != nil {
			return nil, err
		}
		logger.WithField("refund_amount", amount).Info("payment refunded via webhook")
		return &WebhookResult{Status: WebhookStatusSuccess, Detail: "payment refunded"}, nil

	case webhookActionDispute:
		reason := "chargeback dispute opened"
		if event.FailureReason != "" {
			reason = "chargeback dispute opened: " + event.FailureReason
		}
		applied, err := s.paymentRepository.MarkDisputed(ctx, payment.PaymentID, reason, now)
		if err != nil {
			return nil, err
		}
		if !applied {
			logger.Info("payment already terminal; dispute webhook is a no-op")
			return &WebhookResult{Status: WebhookStatusIgnored, Detail: "already terminal"}, nil
		}

		oldStatus := payment.Status
		payment.Status = types.PaymentStatusFailed
		s.recordEvent(ctx, payment, event.EventType, &oldStatus, eventID, nil)
		logger.Warn("payment disputed")
		return &WebhookResult{Status: WebhookStatusSuccess, Detail: "dispute recorded"}, nil
	}

	return &WebhookResult{Status: WebhookStatusIgnored, Detail: "no action"}, nil
}

// lookupWebhookPayment resolves the payment a webhook refers to: first by
// the stored transaction id, then by the payment id the gateway echoes back.
// PayPal capture events need the fallback because the capture id differs
// from the checkout order id we store.
func (s *PaymentService) lookupWebhookPayment(ctx context.Context, event *gateway.WebhookEvent) (*entity.Payment, error) {
	if event.TransactionID != "" {
		payment, err := s.paymentRepository.FindByTransactionID(ctx, event.TransactionID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	if event.CorrelationID != "" {
		return s.paymentRepository.FindByPaymentID(ctx, event.CorrelationID)
	}
	return nil, nil
}

func (s *PaymentService) recordWebhook(ctx context.Context, paymentID *string, gatewayName, eventType, signature string, payload []byte, disposition string, cause error) {
	record := &entity.WebhookRecord{
		PaymentID:   paymentID,
		Gateway:     gatewayName,
		EventType:   eventType,
		Signature:   signature,
		PayloadJSON: string(payload),
		Disposition: disposition,
		CreatedAt:   time.Now().UTC(),
	}
	if cause != nil {
		message := cause.Error()
		record.Error = &message
	}
	if err := s.webhookRepository.Create(ctx, record); err != nil {
		s.logger.WithError(err).WithField("gateway", gatewayName).Error("failed to record webhook")
	}
}
