package mapper

import (
	"time"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/types"
)

func PaymentToResponse(payment *entity.Payment) *types.Payment {
	if payment == nil {
		return nil
	}

	response := &types.Payment{
		PaymentID:     payment.PaymentID,
		OrderID:       payment.OrderID,
		UserID:        payment.UserID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Method:        payment.Method,
		Status:        payment.Status,
		TransactionID: stringValue(payment.TransactionID),
		FailureReason: stringValue(payment.FailureReason),
		RefundID:      stringValue(payment.RefundID),
		RefundAmount:  float64Value(payment.RefundAmount),
		CreatedAt:     payment.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     payment.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if payment.ProcessedAt != nil {
		response.ProcessedAt = payment.ProcessedAt.UTC().Format(time.RFC3339)
	}

	return response
}

func PaymentsToResponse(payments []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(payments))
	for _, payment := range payments {
		result = append(result, PaymentToResponse(payment))
	}
	return result
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func float64Value(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}
