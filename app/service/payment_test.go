package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/gateway"
	"github.com/fashionstore/payments-service/app/repository"
	"github.com/fashionstore/payments-service/app/types"
	"github.com/fashionstore/payments-service/config"
)

type fakePaymentRepo struct {
	payments map[string]*entity.Payment
	nextID   uint64
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		payments: map[string]*entity.Payment{},
		nextID:   1,
	}
}

func (r *fakePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	if _, ok := r.payments[payment.PaymentID]; ok {
		return repository.ErrPaymentAlreadyExists
	}
	payment.ID = r.nextID
	r.nextID++
	copyItem := *payment
	r.payments[payment.PaymentID] = &copyItem
	return nil
}

func (r *fakePaymentRepo) FindByPaymentID(_ context.Context, paymentID string) (*entity.Payment, error) {
	item, ok := r.payments[paymentID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakePaymentRepo) FindByTransactionID(_ context.Context, transactionID string) (*entity.Payment, error) {
	for _, item := range r.payments {
		if item.TransactionID != nil && *item.TransactionID == transactionID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) FindByOrderID(_ context.Context, orderID string) (*entity.Payment, error) {
	var latest *entity.Payment
	for _, item := range r.payments {
		if item.OrderID != orderID {
			continue
		}
		if latest == nil || item.ID > latest.ID {
			latest = item
		}
	}
	if latest == nil {
		return nil, nil
	}
	copyItem := *latest
	return &copyItem, nil
}

func (r *fakePaymentRepo) ListByUser(_ context.Context, userID string) ([]*entity.Payment, error) {
	items := make([]*entity.Payment, 0)
	for _, item := range r.payments {
		if item.UserID == userID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (r *fakePaymentRepo) ListStuckProcessing(_ context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	items := make([]*entity.Payment, 0)
	for _, item := range r.payments {
		if item.Status == types.PaymentStatusProcessing && !item.UpdatedAt.After(cutoff) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.Before(items[j].UpdatedAt) })
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakePaymentRepo) MarkCompleted(_ context.Context, paymentID string, transactionID, gatewayResponse *string, now time.Time) (bool, error) {
	item, ok := r.payments[paymentID]
	if !ok || (item.Status != types.PaymentStatusPending && item.Status != types.PaymentStatusProcessing) {
		return false, nil
	}
	item.Status = types.PaymentStatusCompleted
	if item.TransactionID == nil {
		item.TransactionID = transactionID
	}
	if gatewayResponse != nil {
		item.GatewayResponse = gatewayResponse
	}
	processedAt := now
	item.ProcessedAt = &processedAt
	item.UpdatedAt = now
	return true, nil
}

func (r *fakePaymentRepo) MarkFailed(_ context.Context, paymentID, reason string, transactionID, gatewayResponse *string, now time.Time) (bool, error) {
	item, ok := r.payments[paymentID]
	if !ok || (item.Status != types.PaymentStatusPending && item.Status != types.PaymentStatusProcessing) {
		return false, nil
	}
	item.Status = types.PaymentStatusFailed
	item.FailureReason = &reason
	if item.TransactionID == nil {
		item.TransactionID = transactionID
	}
	if gatewayResponse != nil {
		item.GatewayResponse = gatewayResponse
	}
	item.UpdatedAt = now
	return true, nil
}

func (r *fakePaymentRepo) MarkDisputed(_ context.Context, paymentID, reason string, now time.Time) (bool, error) {
	item, ok := r.payments[paymentID]
	if !ok {
		return false, nil
	}
	switch item.Status {
	case types.PaymentStatusPending, types.PaymentStatusProcessing, types.PaymentStatusCompleted:
		item.Status = types.PaymentStatusFailed
		item.FailureReason = &reason
		item.UpdatedAt = now
		return true, nil
	default:
		return false, nil
	}
}

func (r *fakePaymentRepo) MarkRefunded(_ context.Context, paymentID, refundID string, refundAmount float64, now time.Time) (bool, error) {
	item, ok := r.payments[paymentID]
	if !ok || item.Status != types.PaymentStatusCompleted {
		return false, nil
	}
	item.Status = types.PaymentStatusRefunded
	item.RefundID = &refundID
	item.RefundAmount = &refundAmount
	item.UpdatedAt = now
	return true, nil
}

type fakeOrderRepo struct {
	orders map[string]*entity.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*entity.Order{}}
}

func (r *fakeOrderRepo) FindByID(_ context.Context, orderID string) (*entity.Order, error) {
	item, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeOrderRepo) MarkPaid(_ context.Context, orderID, paymentID string, now time.Time) (bool, error) {
	item, ok := r.orders[orderID]
	if !ok || item.PaymentStatus == types.OrderPaymentStatusPaid {
		return false, nil
	}
	item.PaymentStatus = types.OrderPaymentStatusPaid
	item.PaymentID = &paymentID
	item.UpdatedAt = now
	return true, nil
}

func (r *fakeOrderRepo) MarkRefunded(_ context.Context, orderID string, now time.Time) (bool, error) {
	item, ok := r.orders[orderID]
	if !ok || item.PaymentStatus != types.OrderPaymentStatusPaid {
		return false, nil
	}
	item.PaymentStatus = types.OrderPaymentStatusRefunded
	item.UpdatedAt = now
	return true, nil
}

type fakeEventRepo struct {
	events []*entity.PaymentEvent
}

func (r *fakeEventRepo) Create(_ context.Context, event *entity.PaymentEvent) error {
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

type fakeWebhookRepo struct {
	records []*entity.WebhookRecord
}

func (r *fakeWebhookRepo) Create(_ context.Context, record *entity.WebhookRecord) error {
	copyItem := *record
	r.records = append(r.records, &copyItem)
	return nil
}

type fakeNotifier struct {
	successCalls int
	failedCalls  int
	lastReason   string
	err          error
}

func (n *fakeNotifier) SendPaymentSuccess(_ context.Context, _ *entity.Payment) error {
	n.successCalls++
	return n.err
}

func (n *fakeNotifier) SendPaymentFailed(_ context.Context, _ *entity.Payment, reason string) error {
	n.failedCalls++
	n.lastReason = reason
	return n.err
}

type fakeEmitter struct {
	emitted int
}

func (e *fakeEmitter) EmitPaymentProcessed(_ context.Context, _ *entity.Payment) error {
	e.emitted++
	return nil
}

type fakeAdapter struct {
	name    string
	methods []types.PaymentMethod

	chargeResult *gateway.ChargeResult
	chargeErr    error
	chargeCalls  int

	refundResult *gateway.RefundResult
	refundErr    error

	webhookEvent *gateway.WebhookEvent
	verifyErr    error

	chargeStatus types.PaymentStatus
	statusErr    error
}

func (a *fakeAdapter) Name() string                   { return a.name }
func (a *fakeAdapter) Methods() []types.PaymentMethod { return a.methods }

func (a *fakeAdapter) Charge(_ context.Context, _ *gateway.ChargeInput) (*gateway.ChargeResult, error) {
	a.chargeCalls++
	if a.chargeErr != nil {
		return nil, a.chargeErr
	}
	return a.chargeResult, nil
}

func (a *fakeAdapter) Refund(_ context.Context, _ *gateway.RefundInput) (*gateway.RefundResult, error) {
	if a.refundErr != nil {
		return nil, a.refundErr
	}
	return a.refundResult, nil
}

func (a *fakeAdapter) VerifyWebhook(_ context.Context, _ []byte, _ http.Header) (*gateway.WebhookEvent, error) {
	if a.verifyErr != nil {
		return nil, a.verifyErr
	}
	return a.webhookEvent, nil
}

func (a *fakeAdapter) ChargeStatus(_ context.Context, _ string) (types.PaymentStatus, error) {
	if a.statusErr != nil {
		return "", a.statusErr
	}
	return a.chargeStatus, nil
}

type serviceFixture struct {
	service  *PaymentService
	payments *fakePaymentRepo
	orders   *fakeOrderRepo
	events   *fakeEventRepo
	webhooks *fakeWebhookRepo
	notifier *fakeNotifier
	emitter  *fakeEmitter
}

func newServiceFixture(adapters ...gateway.Adapter) *serviceFixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fixture := &serviceFixture{
		payments: newFakePaymentRepo(),
		orders:   newFakeOrderRepo(),
		events:   &fakeEventRepo{},
		webhooks: &fakeWebhookRepo{},
		notifier: &fakeNotifier{},
		emitter:  &fakeEmitter{},
	}
	fixture.service = NewPaymentService(
		fixture.payments,
		fixture.orders,
		fixture.events,
		fixture.webhooks,
		gateway.NewRegistry(adapters...),
		fixture.notifier,
		fixture.emitter,
		config.PaymentsConfig{GatewayTimeout: 5 * time.Second},
		logger,
	)
	return fixture
}

func stripeFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		name: "stripe",
		methods: []types.PaymentMethod{
			types.PaymentMethodCreditCard,
			types.PaymentMethodDebitCard,
			types.PaymentMethodStripe,
		},
	}
}

func seedOrder(fixture *serviceFixture, orderID, userID string, amount float64) {
	now := time.Now().UTC()
	fixture.orders.orders[orderID] = &entity.Order{
		ID:            orderID,
		OrderNumber:   "ORD-" + orderID,
		UserID:        userID,
		TotalAmount:   amount,
		PaymentStatus: types.OrderPaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func cardRequest(orderID string) *types.ProcessPaymentRequest {
	return &types.ProcessPaymentRequest{
		OrderID: orderID,
		Method:  types.PaymentMethodCreditCard,
		PaymentDetails: &types.PaymentDetails{
			CardNumber:  "4242424242424242",
			ExpiryMonth: "12",
			ExpiryYear:  "2030",
			CVV:         "123",
		},
	}
}

func TestProcessPaymentCompletesAndMarksOrderPaid(t *testing.T) {
	adapter := stripeFakeAdapter()
	adapter.chargeResult = &gateway.ChargeResult{
		Success:         true,
		TransactionID:   "pi_123",
		GatewayResponse: `{"id":"pi_123","status":"succeeded"}`,
	}
	fixture := newServiceFixture(adapter)
	seedOrder(fixture, "order-1", "user-1", 49.99)

	payment, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("order-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != types.PaymentStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", payment.Status)
	}
	if payment.TransactionID == nil || *payment.TransactionID != "pi_123" {
		t.Fatal("expected transaction id pi_123")
	}
	if payment.Amount != 49.99 {
		t.Fatalf("expected amount from order, got %v", payment.Amount)
	}
	if !strings.HasPrefix(payment.PaymentID, "PAY") {
		t.Fatalf("unexpected payment id format: %s", payment.PaymentID)
	}
	if payment.ProcessedAt == nil {
		t.Fatal("expected processed_at to be set")
	}

	order := fixture.orders.orders["order-1"]
	if order.PaymentStatus != types.OrderPaymentStatusPaid {
		t.Fatalf("expected order PAID, got %s", order.PaymentStatus)
	}
	if order.PaymentID == nil || *order.PaymentID != payment.PaymentID {
		t.Fatal("expected order to reference winning payment")
	}
	if fixture.notifier.successCalls != 1 {
		t.Fatalf("expected one success notification, got %d", fixture.notifier.successCalls)
	}
	if fixture.emitter.emitted != 1 {
		t.Fatalf("expected one emitted event, got %d", fixture.emitter.emitted)
	}
	if len(fixture.events.events) != 1 || fixture.events.events[0].NewStatus != types.PaymentStatusCompleted {
		t.Fatal("expected a completed payment event")
	}
}

func TestProcessPaymentDeclinedIsNotAnError(t *testing.T) {
	adapter := stripeFakeAdapter()
	adapter.chargeResult = &gateway.ChargeResult{
		Success:       false,
		DeclineReason: "Your card was declined.",
	}
	fixture := newServiceFixture(adapter)
	seedOrder(fixture, "order-1", "user-1", 25.00)

	payment, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("order-1"))
	if err != nil {
		t.Fatalf("declined charge must not be an error: %v", err)
	}
	if payment.Status != types.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", payment.Status)
	}
	if payment.FailureReason == nil || *payment.FailureReason != "Your card was declined." {
		t.Fatal("expected decline reason on payment")
	}

	if fixture.orders.orders["order-1"].PaymentStatus != types.OrderPaymentStatusUnpaid {
		t.Fatal("declined payment must not mark the order paid")
	}
	if fixture.notifier.failedCalls != 1 {
		t.Fatalf("expected one failure notification, got %d", fixture.notifier.failedCalls)
	}
}

func TestProcessPaymentOrderNotFound(t *testing.T) {
	fixture := newServiceFixture(stripeFakeAdapter())

	_, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("missing"))
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestProcessPaymentOtherUsersOrderIsNotFound(t *testing.T) {
	fixture := newServiceFixture(stripeFakeAdapter())
	seedOrder(fixture, "order-1", "user-1", 10.00)

	_, err := fixture.service.ProcessPayment(context.Background(), "user-2", cardRequest("order-1"))
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestProcessPaymentOrderAlreadyPaid(t *testing.T) {
	adapter := stripeFakeAdapter()
	fixture := newServiceFixture(adapter)
	seedOrder(fixture, "order-1", "user-1", 10.00)
	fixture.orders.orders["order-1"].PaymentStatus = types.OrderPaymentStatusPaid

	_, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("order-1"))
	if !errors.Is(err, ErrOrderAlreadyPaid) {
		t.Fatalf("expected ErrOrderAlreadyPaid, got %v", err)
	}
	if len(fixture.payments.payments) != 0 {
		t.Fatal("no payment row may be created for a paid order")
	}
	if adapter.chargeCalls != 0 {
		t.Fatal("gateway must not be called for a paid order")
	}
}

func TestProcessPaymentUnsupportedMethod(t *testing.T) {
	fixture := newServiceFixture(stripeFakeAdapter())
	seedOrder(fixture, "order-1", "user-1", 10.00)

	request := &types.ProcessPaymentRequest{
		OrderID:        "order-1",
		Method:         types.PaymentMethodBankTransfer,
		PaymentDetails: &types.PaymentDetails{},
	}
	_, err := fixture.service.ProcessPayment(context.Background(), "user-1", request)
	if !errors.Is(err, ErrMethodUnsupported) {
		t.Fatalf("expected ErrMethodUnsupported, got %v", err)
	}
}

func TestProcessPaymentGatewayTimeoutFailsWithReconcileReason(t *testing.T) {
	adapter := stripeFakeAdapter()
	adapter.chargeErr = context.DeadlineExceeded
	fixture := newServiceFixture(adapter)
	seedOrder(fixture, "order-1", "user-1", 10.00)

	payment, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("order-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != types.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", payment.Status)
	}
	if payment.FailureReason == nil || !strings.Contains(*payment.FailureReason, "manual reconciliation") {
		t.Fatal("timeout failure must flag manual reconciliation")
	}
}

func TestProcessPaymentNotificationFailureIsSwallowed(t *testing.T) {
	adapter := stripeFakeAdapter()
	adapter.chargeResult = &gateway.ChargeResult{Success: true, TransactionID: "pi_9"}
	fixture := newServiceFixture(adapter)
	fixture.notifier.err = errors.New("notifications service down")
	seedOrder(fixture, "order-1", "user-1", 10.00)

	payment, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("order-1"))
	if err != nil {
		t.Fatalf("notification failure must not fail the payment: %v", err)
	}
	if payment.Status != types.PaymentStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", payment.Status)
	}
}

func TestFindPaymentByOrderReturnsLatestForOwner(t *testing.T) {
	adapter := stripeFakeAdapter()
	adapter.chargeResult = &gateway.ChargeResult{Success: false, DeclineReason: "declined"}
	fixture := newServiceFixture(adapter)
	seedOrder(fixture, "order-1", "user-1", 10.00)

	if _, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("order-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adapter.chargeResult = &gateway.ChargeResult{Success: true, TransactionID: "pi_2"}
	second, err := fixture.service.ProcessPayment(context.Background(), "user-1", cardRequest("order-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := fixture.service.FindPaymentByOrder(context.Background(), "user-1", "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.PaymentID != second.PaymentID {
		t.Fatal("expected the latest payment for the order")
	}

	other, err := fixture.service.FindPaymentByOrder(context.Background(), "user-2", "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != nil {
		t.Fatal("another user must not see the payment")
	}
}
