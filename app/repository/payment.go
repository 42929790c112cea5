package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/types"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

const paymentColumns = `
	id, payment_id, order_id, user_id, amount, currency, method, status,
	transaction_id, gateway_response, failure_reason,
	refund_id, refund_amount, processed_at,
	created_at, updated_at
`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			payment_id, order_id, user_id, amount, currency, method, status,
			transaction_id, gateway_response, failure_reason,
			refund_id, refund_amount, processed_at,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.PaymentID,
		payment.OrderID,
		payment.UserID,
		payment.Amount,
		payment.Currency,
		string(payment.Method),
		string(payment.Status),
		nullableStringValue(payment.TransactionID),
		nullableStringValue(payment.GatewayResponse),
		nullableStringValue(payment.FailureReason),
		nullableStringValue(payment.RefundID),
		nullableFloat64Value(payment.RefundAmount),
		nullableTimeValue(payment.ProcessedAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

func (r *PaymentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*entity.Payment, error) {
	query := `SELECT` + paymentColumns + `FROM payments WHERE payment_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, paymentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error) {
	query := `SELECT` + paymentColumns + `FROM payments WHERE transaction_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, transactionID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.Payment, error) {
	query := `SELECT` + paymentColumns + `FROM payments WHERE order_id = ? ORDER BY id DESC LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, orderID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Payment, error) {
	query := `SELECT` + paymentColumns + `FROM payments WHERE user_id = ? ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

// ListStuckProcessing returns payments that have stayed PROCESSING since
// before the cutoff, oldest first. Used by the reconcile job.
func (r *PaymentRepository) ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT` + paymentColumns + `
		FROM payments
		WHERE status = ? AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, string(types.PaymentStatusProcessing), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

// MarkCompleted moves a PENDING/PROCESSING payment to COMPLETED in one
// conditional statement. transaction_id is only ever filled, never replaced.
// Returns false when the payment was already past PROCESSING (idempotent
// no-op for redundant webhook deliveries).
func (r *PaymentRepository) MarkCompleted(ctx context.Context, paymentID string, transactionID, gatewayResponse *string, now time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = ?,
			transaction_id = COALESCE(transaction_id, ?),
			gateway_response = COALESCE(?, gateway_response),
			processed_at = ?,
			updated_at = ?
		WHERE payment_id = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.PaymentStatusCompleted),
		nullableStringValue(transactionID),
		nullableStringValue(gatewayResponse),
		now,
		now,
		paymentID,
		string(types.PaymentStatusPending),
		string(types.PaymentStatusProcessing),
	)
	if err != nil {
		return false, err
	}
	return rowsApplied(result)
}

// MarkFailed moves a PENDING/PROCESSING payment to FAILED. A COMPLETED
// payment is never failed through this path.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID, reason string, transactionID, gatewayResponse *string, now time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = ?,
			failure_reason = ?,
			transaction_id = COALESCE(transaction_id, ?),
			gateway_response = COALESCE(?, gateway_response),
			updated_at = ?
		WHERE payment_id = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.PaymentStatusFailed),
		reason,
		nullableStringValue(transactionID),
		nullableStringValue(gatewayResponse),
		now,
		paymentID,
		string(types.PaymentStatusPending),
		string(types.PaymentStatusProcessing),
	)
	if err != nil {
		return false, err
	}
	return rowsApplied(result)
}

// MarkDisputed fails a payment on a chargeback. Unlike MarkFailed it may
// take down a COMPLETED payment, which is the one sanctioned backward move.
func (r *PaymentRepository) MarkDisputed(ctx context.Context, paymentID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = ?,
			failure_reason = ?,
			updated_at = ?
		WHERE payment_id = ? AND status IN (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.PaymentStatusFailed),
		reason,
		now,
		paymentID,
		string(types.PaymentStatusPending),
		string(types.PaymentStatusProcessing),
		string(types.PaymentStatusCompleted),
	)
	if err != nil {
		return false, err
	}
	return rowsApplied(result)
}

// MarkRefunded moves a COMPLETED payment to REFUNDED.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, paymentID, refundID string, refundAmount float64, now time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = ?,
			refund_id = ?,
			refund_amount = ?,
			updated_at = ?
		WHERE payment_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.PaymentStatusRefunded),
		refundID,
		refundAmount,
		now,
		paymentID,
		string(types.PaymentStatusCompleted),
	)
	if err != nil {
		return false, err
	}
	return rowsApplied(result)
}

func rowsApplied(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var method, status string
	var transactionID sql.NullString
	var gatewayResponse sql.NullString
	var failureReason sql.NullString
	var refundID sql.NullString
	var refundAmount sql.NullFloat64
	var processedAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.PaymentID,
		&payment.OrderID,
		&payment.UserID,
		&payment.Amount,
		&payment.Currency,
		&method,
		&status,
		&transactionID,
		&gatewayResponse,
		&failureReason,
		&refundID,
		&refundAmount,
		&processedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.Method = types.PaymentMethod(method)
	payment.Status = types.PaymentStatus(status)
	payment.TransactionID = stringPtrFromNull(transactionID)
	payment.GatewayResponse = stringPtrFromNull(gatewayResponse)
	payment.FailureReason = stringPtrFromNull(failureReason)
	payment.RefundID = stringPtrFromNull(refundID)
	payment.RefundAmount = float64PtrFromNull(refundAmount)
	payment.ProcessedAt = timePtrFromNull(processedAt)

	return nil
}
