package controller

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/fashionstore/payments-service/app/factory"
	"github.com/fashionstore/payments-service/app/mapper"
	"github.com/fashionstore/payments-service/app/service"
	"github.com/fashionstore/payments-service/app/types"
)

type PaymentController struct {
	service *service.PaymentService
	logger  logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		service: paymentService,
		logger:  factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) ProcessPayment(ctx echo.Context) error {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}

	request, err := types.NewProcessPaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	payment, err := c.service.ProcessPayment(ctx.Request().Context(), userID, request)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOrderNotFound):
			return writeError(ctx, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrOrderAlreadyPaid):
			return writeError(ctx, http.StatusBadRequest, "order is already paid")
		case errors.Is(err, service.ErrMethodUnsupported):
			return writeError(ctx, http.StatusBadRequest, "payment method is not supported")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("process payment failed")
			return writeError(ctx, http.StatusInternalServerError, "failed to process payment")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.PaymentEnvelopeResponse{
		Payment: mapper.PaymentToResponse(payment),
	})
}

func (c *PaymentController) RefundPayment(ctx echo.Context) error {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}

	request, err := types.NewRefundPaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	payment, err := c.service.RefundPayment(ctx.Request().Context(), userID, request)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPaymentNotFound):
			return writeError(ctx, http.StatusNotFound, "payment not found")
		case errors.Is(err, service.ErrNotRefundable), errors.Is(err, service.ErrRefundFailed):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrMethodUnsupported):
			return writeError(ctx, http.StatusBadRequest, "payment method is not supported")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("refund payment failed")
			return writeError(ctx, http.StatusInternalServerError, "failed to refund payment")
		}
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{
		Payment: mapper.PaymentToResponse(payment),
	})
}

func (c *PaymentController) ListPayments(ctx echo.Context) error {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}

	payments, err := c.service.ListPaymentsByUser(ctx.Request().Context(), userID)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("list payments failed")
		return writeError(ctx, http.StatusInternalServerError, "failed to list payments")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{
		Payments: mapper.PaymentsToResponse(payments),
	})
}

func (c *PaymentController) GetPaymentByOrder(ctx echo.Context) error {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}

	orderID := ctx.Param("orderId")
	payment, err := c.service.FindPaymentByOrder(ctx.Request().Context(), userID, orderID)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("get payment by order failed")
		return writeError(ctx, http.StatusInternalServerError, "failed to load payment")
	}
	if payment == nil {
		return writeError(ctx, http.StatusNotFound, "payment not found")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{
		Payment: mapper.PaymentToResponse(payment),
	})
}

// HandleWebhook applies a gateway callback. Gateways retry on non-2xx, so
// application-level failures are acknowledged with status "error" in the
// body; only a bad signature (400) or unknown gateway (404) gets an error
// status code.
func (c *PaymentController) HandleWebhook(ctx echo.Context) error {
	gatewayName := ctx.Param("gateway")

	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "failed to read request body")
	}

	result, err := c.service.HandleWebhook(ctx.Request().Context(), gatewayName, payload, ctx.Request().Header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookUnverifiable):
			return ctx.JSON(http.StatusBadRequest, &types.WebhookAckResponse{
				Status:  "error",
				Message: "invalid signature",
			})
		case errors.Is(err, service.ErrGatewayUnsupported):
			return writeError(ctx, http.StatusNotFound, "gateway is not supported")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("webhook processing failed")
			return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{
				Status:  "error",
				Message: "webhook processing failed",
			})
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{
		Status:  result.Status,
		Message: result.Detail,
	})
}

func (c *PaymentController) WebhookHealth(ctx echo.Context) error {
	webhooks := make(map[string]string)
	for _, name := range c.service.GatewayNames() {
		webhooks[name] = "configured"
	}

	return ctx.JSON(http.StatusOK, &types.WebhookHealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Webhooks:  webhooks,
	})
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func userIDFromContext(ctx echo.Context) (string, error) {
	userID, ok := ctx.Get("user_id").(string)
	if !ok || userID == "" {
		return "", errors.New("user id missing from context")
	}
	return userID, nil
}

func writeError(ctx echo.Context, status int, message string) error {
	return ctx.JSON(status, &types.ErrorResponse{Error: message})
}
