package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fashionstore/payments-service/app/types"
)

const stripeDefaultBaseURL = "https://api.stripe.com"

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// StripeAdapter charges cards through the payment-intents API. It also
// fronts the STRIPE method, where the caller supplies a tokenized payment
// method instead of raw card fields.
type StripeAdapter struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = stripeDefaultBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}

	return &StripeAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *StripeAdapter) Name() string {
	return "stripe"
}

func (a *StripeAdapter) Methods() []types.PaymentMethod {
	return []types.PaymentMethod{
		types.PaymentMethodCreditCard,
		types.PaymentMethodDebitCard,
		types.PaymentMethodStripe,
	}
}

func (a *StripeAdapter) Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error) {
	if strings.TrimSpace(a.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(minorUnits(input.Amount), 10))
	values.Set("currency", strings.ToLower(input.Currency))
	values.Set("confirmation_method", "manual")
	values.Set("confirm", "true")
	values.Set("metadata[order_id]", input.OrderRef)
	values.Set("metadata[payment_id]", input.PaymentID)

	switch input.Method {
	case types.PaymentMethodCreditCard, types.PaymentMethodDebitCard:
		values.Set("payment_method_data[type]", "card")
		values.Set("payment_method_data[card][number]", input.Details.CardNumber)
		values.Set("payment_method_data[card][exp_month]", input.Details.ExpiryMonth)
		values.Set("payment_method_data[card][exp_year]", input.Details.ExpiryYear)
		values.Set("payment_method_data[card][cvc]", input.Details.CVV)
		if input.Details.CardHolderName != "" {
			values.Set("payment_method_data[billing_details][name]", input.Details.CardHolderName)
		}
	default:
		paymentMethod := input.Details.StripePaymentMethodID
		if paymentMethod == "" {
			paymentMethod = input.Details.StripeToken
		}
		values.Set("payment_method", paymentMethod)
	}

	status, body, err := a.postForm(ctx, "/v1/payment_intents", values)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		if infraStatus(status) {
			return nil, fmt.Errorf("stripe payment intent failed: status=%d body=%s", status, string(body))
		}
		// Card errors come back as 402 with an error object; that is a
		// declined payment, not an infrastructure failure.
		return &ChargeResult{
			Success:         false,
			GatewayResponse: string(body),
			DeclineReason:   stripeErrorMessage(body),
		}, nil
	}

	var intent struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		LastPaymentError *struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, err
	}

	result := &ChargeResult{
		Success:         intent.Status == "succeeded",
		TransactionID:   intent.ID,
		GatewayResponse: string(body),
	}
	if !result.Success {
		result.DeclineReason = "payment not completed"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
			result.DeclineReason = intent.LastPaymentError.Message
		}
	}

	return result, nil
}

func (a *StripeAdapter) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	values := url.Values{}
	values.Set("payment_intent", input.TransactionID)
	values.Set("amount", strconv.FormatInt(minorUnits(input.Amount), 10))
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "requested_by_customer"
	}
	values.Set("reason", reason)

	status, body, err := a.postForm(ctx, "/v1/refunds", values)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		if infraStatus(status) {
			return nil, fmt.Errorf("stripe refund failed: status=%d body=%s", status, string(body))
		}
		return nil, fmt.Errorf("%w: %s", ErrRefundRejected, stripeErrorMessage(body))
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

func (a *StripeAdapter) VerifyWebhook(_ context.Context, payload []byte, headers http.Header) (*WebhookEvent, error) {
	if strings.TrimSpace(a.cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	signature := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if !verifyStripeSignature(payload, signature, a.cfg.WebhookSecret, a.cfg.SignatureToleranceSeconds) {
		return nil, ErrInvalidSignature
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	var object struct {
		ID               string            `json:"id"`
		PaymentIntent    string            `json:"payment_intent"`
		Metadata         map[string]string `json:"metadata"`
		AmountRefunded   int64             `json:"amount_refunded"`
		Reason           string            `json:"reason"`
		LastPaymentError *struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
		Refunds struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"refunds"`
	}
	if len(event.Data.Object) > 0 {
		if err := json.Unmarshal(event.Data.Object, &object); err != nil {
			return nil, err
		}
	}

	result := &WebhookEvent{
		EventType:      event.Type,
		GatewayEventID: strings.TrimSpace(event.ID),
		CorrelationID:  strings.TrimSpace(object.Metadata["payment_id"]),
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		result.TransactionID = object.ID
		if object.LastPaymentError != nil {
			result.FailureReason = object.LastPaymentError.Message
		}
	case "charge.refunded":
		// Object is a charge; the intent id is the reconciliation key.
		result.TransactionID = object.PaymentIntent
		if result.TransactionID == "" {
			result.TransactionID = object.ID
		}
		if len(object.Refunds.Data) > 0 {
			result.RefundID = object.Refunds.Data[0].ID
		}
		amount := float64(object.AmountRefunded) / 100
		result.RefundAmount = &amount
	case "charge.dispute.created":
		result.TransactionID = object.PaymentIntent
		result.FailureReason = object.Reason
	default:
		result.TransactionID = object.PaymentIntent
		if result.TransactionID == "" {
			result.TransactionID = object.ID
		}
	}

	return result, nil
}

func (a *StripeAdapter) ChargeStatus(ctx context.Context, transactionID string) (types.PaymentStatus, error) {
	if strings.TrimSpace(transactionID) == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.APIBaseURL+"/v1/payment_intents/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)

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
		return "", fmt.Errorf("stripe get payment intent failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var intent struct {
		Status           string `json:"status"`
		LastPaymentError *struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if err := json.Unmarshal(body, &intent); err != nil {
		return "", err
	}

	switch intent.Status {
	case "succeeded":
		return types.PaymentStatusCompleted, nil
	case "canceled":
		return types.PaymentStatusCancelled, nil
	case "requires_payment_method":
		if intent.LastPaymentError != nil {
			return types.PaymentStatusFailed, nil
		}
		return types.PaymentStatusProcessing, nil
	case "processing", "requires_confirmation", "requires_action", "requires_capture":
		return types.PaymentStatusProcessing, nil
	default:
		return "", nil
	}
}

func (a *StripeAdapter) postForm(ctx context.Context, path string, values url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

// infraStatus separates infrastructure failures from business declines:
// auth problems and server errors are ours to surface, other 4xx are the
// gateway talking about the payment itself.
func infraStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status >= 500
}

func stripeErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Error.Code != "" {
			return payload.Error.Code
		}
	}
	return "payment declined"
}

func verifyStripeSignature(payload []byte, signatureHeader, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
