package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fashionstore/payments-service/app/entity"
	"github.com/fashionstore/payments-service/app/types"
)

func testPayment() *entity.Payment {
	return &entity.Payment{
		PaymentID: "PAY1",
		OrderID:   "order-1",
		UserID:    "user-1",
		Amount:    49.99,
		Currency:  "USD",
		Method:    types.PaymentMethodCreditCard,
		Status:    types.PaymentStatusCompleted,
	}
}

func TestClientSendsSuccessNotification(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key-1"})
	if err := client.SendPaymentSuccess(context.Background(), testPayment()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/notifications/payment-success" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAPIKey != "key-1" {
		t.Fatal("expected api key header")
	}
	if gotBody["paymentId"] != "PAY1" || gotBody["userId"] != "user-1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestClientReportsDeliveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if err := client.SendPaymentFailed(context.Background(), testPayment(), "declined"); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestClientWithoutBaseURLIsNoOp(t *testing.T) {
	client := NewClient(Config{})
	if err := client.SendPaymentSuccess(context.Background(), testPayment()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestEmitterPostsProcessedEvent(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/payment-processed" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	emitter := NewEmitter(Config{BaseURL: server.URL})
	if err := emitter.EmitPaymentProcessed(context.Background(), testPayment()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["event"] != "payment.processed" || gotBody["status"] != "COMPLETED" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}
