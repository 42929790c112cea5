package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fashionstore/payments-service/app/types"
)

const paypalDefaultBaseURL = "https://api-m.paypal.com"

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	WebhookID    string
	HTTPTimeout  time.Duration
}

// PayPalAdapter drives the checkout orders API: create an order with intent
// CAPTURE, then capture it immediately. The order id doubles as our
// transaction id; webhooks that carry a capture id instead are reconciled
// through custom_id.
type PayPalAdapter struct {
	cfg    PayPalConfig
	client *http.Client
}

func NewPayPalAdapter(cfg PayPalConfig) *PayPalAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = paypalDefaultBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return &PayPalAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *PayPalAdapter) Name() string {
	return "paypal"
}

func (a *PayPalAdapter) Methods() []types.PaymentMethod {
	return []types.PaymentMethod{types.PaymentMethodPayPal}
}

func (a *PayPalAdapter) Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	orderPayload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": input.OrderRef,
				"custom_id":    input.PaymentID,
				"amount": map[string]string{
					"currency_code": strings.ToUpper(input.Currency),
					"value":         fmt.Sprintf("%.2f", input.Amount),
				},
			},
		},
		"application_context": map[string]string{
			"brand_name":   "Fashion Store",
			"user_action":  "PAY_NOW",
			"landing_page": "NO_PREFERENCE",
		},
	}

	status, body, err := a.postJSON(ctx, "/v2/checkout/orders", token, orderPayload)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		if infraStatus(status) {
			return nil, fmt.Errorf("paypal create order failed: status=%d body=%s", status, string(body))
		}
		return &ChargeResult{
			Success:         false,
			GatewayResponse: string(body),
			DeclineReason:   paypalErrorMessage(body),
		}, nil
	}

	var order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, fmt.Errorf("paypal create order returned no id: %s", string(body))
	}

	status, body, err = a.postJSON(ctx, "/v2/checkout/orders/"+url.PathEscape(order.ID)+"/capture", token, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		if infraStatus(status) {
			return nil, fmt.Errorf("paypal capture failed: status=%d body=%s", status, string(body))
		}
		return &ChargeResult{
			Success:         false,
			TransactionID:   order.ID,
			GatewayResponse: string(body),
			DeclineReason:   paypalErrorMessage(body),
		}, nil
	}

	var captured struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &captured); err != nil {
		return nil, err
	}

	result := &ChargeResult{
		Success:         captured.Status == "COMPLETED",
		TransactionID:   order.ID,
		GatewayResponse: string(body),
	}
	if !result.Success {
		result.DeclineReason = "capture not completed: " + captured.Status
	}

	return result, nil
}

func (a *PayPalAdapter) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	captureID, err := a.captureIDForOrder(ctx, token, input.TransactionID)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"amount": map[string]string{
			"currency_code": "USD",
			"value":         fmt.Sprintf("%.2f", input.Amount),
		},
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		payload["note_to_payer"] = reason
	}

	status, body, err := a.postJSON(ctx, "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", token, payload)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		if infraStatus(status) {
			return nil, fmt.Errorf("paypal refund failed: status=%d body=%s", status, string(body))
		}
		return nil, fmt.Errorf("%w: %s", ErrRefundRejected, paypalErrorMessage(body))
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, err
	}

	return &RefundResult{RefundID: refund.ID, Status: refund.Status}, nil
}

func (a *PayPalAdapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error) {
	if strings.TrimSpace(a.cfg.WebhookID) == "" {
		return nil, ErrInvalidSignature
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	verification := map[string]interface{}{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        a.cfg.WebhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	status, body, err := a.postJSON(ctx, "/v1/notifications/verify-webhook-signature", token, verification)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("paypal webhook verification failed: status=%d body=%s", status, string(body))
	}

	var verdict struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(body, &verdict); err != nil {
		return nil, err
	}
	if verdict.VerificationStatus != "SUCCESS" {
		return nil, ErrInvalidSignature
	}

	var event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID       string `json:"id"`
			CustomID string `json:"custom_id"`
			Amount   struct {
				Value string `json:"value"`
			} `json:"amount"`
			StatusDetails struct {
				Reason string `json:"reason"`
			} `json:"status_details"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &WebhookEvent{
		EventType:      event.EventType,
		GatewayEventID: strings.TrimSpace(event.ID),
		CorrelationID:  strings.TrimSpace(event.Resource.CustomID),
		FailureReason:  event.Resource.StatusDetails.Reason,
	}

	// Capture events identify themselves by capture id; our transaction id
	// is the checkout order id, so prefer the related order id when present.
	if orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID; orderID != "" {
		result.TransactionID = orderID
	} else {
		result.TransactionID = event.Resource.ID
	}

	if event.EventType == "PAYMENT.CAPTURE.REFUNDED" {
		result.RefundID = event.Resource.ID
		if value := strings.TrimSpace(event.Resource.Amount.Value); value != "" {
			if amount, err := strconv.ParseFloat(value, 64); err == nil {
				result.RefundAmount = &amount
			}
		}
	}

	return result, nil
}

func (a *PayPalAdapter) ChargeStatus(ctx context.Context, transactionID string) (types.PaymentStatus, error) {
	if strings.TrimSpace(transactionID) == "" {
		return "", nil
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return "", err
	}

	status, body, err := a.getJSON(ctx, "/v2/checkout/orders/"+url.PathEscape(transactionID), token)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", nil
	}
	if status >= 400 {
		return "", fmt.Errorf("paypal get order failed: status=%d body=%s", status, string(body))
	}

	var order struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return "", err
	}

	switch order.Status {
	case "COMPLETED":
		return types.PaymentStatusCompleted, nil
	case "VOIDED":
		return types.PaymentStatusCancelled, nil
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return types.PaymentStatusProcessing, nil
	default:
		return "", nil
	}
}

func (a *PayPalAdapter) accessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(a.cfg.ClientID) == "" || strings.TrimSpace(a.cfg.ClientSecret) == "" {
		return "", errors.New("paypal credentials are not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBaseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("paypal token request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}

	return token.AccessToken, nil
}

func (a *PayPalAdapter) captureIDForOrder(ctx context.Context, token, orderID string) (string, error) {
	status, body, err := a.getJSON(ctx, "/v2/checkout/orders/"+url.PathEscape(orderID), token)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("paypal get order failed: status=%d body=%s", status, string(body))
	}

	var order struct {
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return "", err
	}
	for _, unit := range order.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			return unit.Payments.Captures[0].ID, nil
		}
	}

	return "", fmt.Errorf("%w: order %s has no captures", ErrRefundRejected, orderID)
}

func (a *PayPalAdapter) postJSON(ctx context.Context, path, token string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBaseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PayPal-Request-Id", uuid.NewString())

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, body, nil
}

func (a *PayPalAdapter) getJSON(ctx context.Context, path, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.APIBaseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, body, nil
}

func paypalErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Details []struct {
			Issue       string `json:"issue"`
			Description string `json:"description"`
		} `json:"details"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if len(payload.Details) > 0 {
			if payload.Details[0].Description != "" {
				return payload.Details[0].Description
			}
			if payload.Details[0].Issue != "" {
				return payload.Details[0].Issue
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return "payment declined"
}
