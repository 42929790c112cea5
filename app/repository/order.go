package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/types"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderRepository is the payment service's view of the orders table. Only
// reads plus the two conditional payment-status transitions are exposed;
// everything else about orders belongs to the orders subsystem.
type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*entity.Order, error) {
	query := `
		SELECT order_id, order_number, user_id, total_amount, payment_status, payment_id, created_at, updated_at
		FROM orders
		WHERE order_id = ?
		LIMIT 1
	`

	order := &entity.Order{}
	var paymentStatus string
	var paymentID sql.NullString

	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.TotalAmount,
		&paymentStatus,
		&paymentID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	order.PaymentStatus = types.OrderPaymentStatus(paymentStatus)
	order.PaymentID = stringPtrFromNull(paymentID)
	return order, nil
}

// MarkPaid sets the order PAID and records the winning payment id. The
// write is conditional on the order not being PAID already, which closes
// the race between two concurrent charges for the same order.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID, paymentID string, now time.Time) (bool, error) {
	query := `
		UPDATE orders SET payment_status = ?, payment_id = ?, updated_at = ?
		WHERE order_id = ? AND payment_status <> ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.OrderPaymentStatusPaid),
		paymentID,
		now,
		orderID,
		string(types.OrderPaymentStatusPaid),
	)
	if err != nil {
		return false, err
	}
	return rowsApplied(result)
}

func (r *OrderRepository) MarkRefunded(ctx context.Context, orderID string, now time.Time) (bool, error) {
	query := `
		UPDATE orders SET payment_status = ?, updated_at = ?
		WHERE order_id = ? AND payment_status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.OrderPaymentStatusRefunded),
		now,
		orderID,
		string(types.OrderPaymentStatusPaid),
	)
	if err != nil {
		return false, err
	}
	return rowsApplied(result)
}
