package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fashionstore/payments-service/app/types"
)

func paypalTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Fatal("expected basic auth on token request")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"token-1"}`))
	})
	for path, handler := range handlers {
		mux.HandleFunc(path, handler)
	}
	return httptest.NewServer(mux)
}

func TestPayPalChargeCreatesAndCapturesOrder(t *testing.T) {
	server := paypalTestServer(t, map[string]http.HandlerFunc{
		"/v2/checkout/orders": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Intent        string `json:"intent"`
				PurchaseUnits []struct {
					ReferenceID string `json:"reference_id"`
					CustomID    string `json:"custom_id"`
					Amount      struct {
						Value string `json:"value"`
					} `json:"amount"`
				} `json:"purchase_units"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Intent != "CAPTURE" {
				t.Fatalf("expected CAPTURE intent, got %s", body.Intent)
			}
			if len(body.PurchaseUnits) != 1 || body.PurchaseUnits[0].CustomID != "PAY1" {
				t.Fatal("expected custom_id PAY1")
			}
			if body.PurchaseUnits[0].Amount.Value != "49.99" {
				t.Fatalf("expected amount 49.99, got %s", body.PurchaseUnits[0].Amount.Value)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"paypal-order-1","status":"CREATED"}`))
		},
		"/v2/checkout/orders/paypal-order-1/capture": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"paypal-order-1","status":"COMPLETED"}`))
		},
	})
	defer server.Close()

	adapter := NewPayPalAdapter(PayPalConfig{ClientID: "id", ClientSecret: "secret", APIBaseURL: server.URL})
	result, err := adapter.Charge(context.Background(), &ChargeInput{
		PaymentID: "PAY1",
		OrderRef:  "order-1",
		Amount:    49.99,
		Currency:  "USD",
		Method:    types.PaymentMethodPayPal,
		Details:   &types.PaymentDetails{PayPalEmail: "buyer@example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TransactionID != "paypal-order-1" {
		t.Fatalf("expected order id as transaction id, got %s", result.TransactionID)
	}
}

func TestPayPalChargeCaptureDeclined(t *testing.T) {
	server := paypalTestServer(t, map[string]http.HandlerFunc{
		"/v2/checkout/orders": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"paypal-order-1","status":"CREATED"}`))
		},
		"/v2/checkout/orders/paypal-order-1/capture": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED","description":"The instrument presented was declined."}]}`))
		},
	})
	defer server.Close()

	adapter := NewPayPalAdapter(PayPalConfig{ClientID: "id", ClientSecret: "secret", APIBaseURL: server.URL})
	result, err := adapter.Charge(context.Background(), &ChargeInput{
		PaymentID: "PAY1",
		OrderRef:  "order-1",
		Amount:    10,
		Currency:  "USD",
		Method:    types.PaymentMethodPayPal,
		Details:   &types.PaymentDetails{},
	})
	if err != nil {
		t.Fatalf("decline must not be an error: %v", err)
	}
	if result.Success {
		t.Fatal("expected declined result")
	}
	if result.DeclineReason != "The instrument presented was declined." {
		t.Fatalf("unexpected decline reason: %s", result.DeclineReason)
	}
}

func TestPayPalVerifyWebhookRemoteVerification(t *testing.T) {
	payload := []byte(`{
		"id": "WH-1",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "capture-77",
			"custom_id": "PAY1",
			"supplementary_data": {"related_ids": {"order_id": "paypal-order-1"}}
		}
	}`)
	server := paypalTestServer(t, map[string]http.HandlerFunc{
		"/v1/notifications/verify-webhook-signature": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				WebhookID string `json:"webhook_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.WebhookID != "hook-1" {
				t.Fatalf("expected webhook id hook-1, got %s", body.WebhookID)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"verification_status":"SUCCESS"}`))
		},
	})
	defer server.Close()

	adapter := NewPayPalAdapter(PayPalConfig{ClientID: "id", ClientSecret: "secret", APIBaseURL: server.URL, WebhookID: "hook-1"})

	event, err := adapter.VerifyWebhook(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.TransactionID != "paypal-order-1" {
		t.Fatalf("expected related order id, got %s", event.TransactionID)
	}
	if event.CorrelationID != "PAY1" {
		t.Fatal("expected custom_id correlation")
	}
}

func TestPayPalVerifyWebhookFailureIsInvalidSignature(t *testing.T) {
	server := paypalTestServer(t, map[string]http.HandlerFunc{
		"/v1/notifications/verify-webhook-signature": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"verification_status":"FAILURE"}`))
		},
	})
	defer server.Close()

	adapter := NewPayPalAdapter(PayPalConfig{ClientID: "id", ClientSecret: "secret", APIBaseURL: server.URL, WebhookID: "hook-1"})

	_, err := adapter.VerifyWebhook(context.Background(), []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`), http.Header{})
	if err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPayPalVerifyWebhookWithoutWebhookIDIsRejected(t *testing.T) {
	adapter := NewPayPalAdapter(PayPalConfig{ClientID: "id", ClientSecret: "secret"})

	_, err := adapter.VerifyWebhook(context.Background(), []byte(`{}`), http.Header{})
	if err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPayPalRefundUsesCaptureID(t *testing.T) {
	server := paypalTestServer(t, map[string]http.HandlerFunc{
		"/v2/checkout/orders/paypal-order-1": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"paypal-order-1","purchase_units":[{"payments":{"captures":[{"id":"capture-77"}]}}]}`))
		},
		"/v2/payments/captures/capture-77/refund": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"refund-9","status":"COMPLETED"}`))
		},
	})
	defer server.Close()

	adapter := NewPayPalAdapter(PayPalConfig{ClientID: "id", ClientSecret: "secret", APIBaseURL: server.URL})

	result, err := adapter.Refund(context.Background(), &RefundInput{TransactionID: "paypal-order-1", Amount: 49.99})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RefundID != "refund-9" {
		t.Fatalf("expected refund-9, got %s", result.RefundID)
	}
}

func TestRegistryRouting(t *testing.T) {
	stripe := NewStripeAdapter(StripeConfig{})
	paypal := NewPayPalAdapter(PayPalConfig{})
	registry := NewRegistry(stripe, paypal)

	adapter, err := registry.ForMethod(types.PaymentMethodCreditCard)
	if err != nil || adapter.Name() != "stripe" {
		t.Fatalf("expected stripe for CREDIT_CARD, got %v %v", adapter, err)
	}
	adapter, err = registry.ForMethod(types.PaymentMethodPayPal)
	if err != nil || adapter.Name() != "paypal" {
		t.Fatalf("expected paypal for PAYPAL, got %v %v", adapter, err)
	}
	if _, err := registry.ForMethod(types.PaymentMethodBankTransfer); err != ErrMethodUnsupported {
		t.Fatalf("expected ErrMethodUnsupported, got %v", err)
	}
	if _, err := registry.ForGateway("square"); err != ErrGatewayUnsupported {
		t.Fatalf("expected ErrGatewayUnsupported, got %v", err)
	}
}
