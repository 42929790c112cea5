package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fashionstore/payments-service/app/controller"
	"github.com/fashionstore/payments-service/app/gateway"
	"github.com/fashionstore/payments-service/app/notify"
	"github.com/fashionstore/payments-service/app/repository"
	"github.com/fashionstore/payments-service/app/service"
	"github.com/fashionstore/payments-service/app/types"
	"github.com/fashionstore/payments-service/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the payments service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	paymentController := controller.NewPaymentController(paymentService)

	e := setupHTTPServer(paymentController, cfg.App.JWTSecret)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(paymentController *controller.PaymentController, jwtSecret string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)

	// Webhooks authenticate by signature, not by user token.
	webhooks := e.Group("/payments/webhook")
	webhooks.POST("/:gateway", paymentController.HandleWebhook)
	webhooks.GET("/health", paymentController.WebhookHealth)

	payments := e.Group("/payments", requireUserToken(jwtSecret))
	payments.POST("/process", paymentController.ProcessPayment)
	payments.POST("/:paymentId/refund", paymentController.RefundPayment)
	payments.GET("", paymentController.ListPayments)
	payments.GET("/order/:orderId", paymentController.GetPaymentByOrder)

	return e
}

// requireUserToken validates a Bearer JWT signed with the shared HMAC secret
// and stores the subject claim as user_id on the request context.
func requireUserToken(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "authorization bearer token is required"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid token"})
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid token"})
			}
			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid token"})
			}

			ctx.Set("user_id", subject)
			return next(ctx)
		}
	}
}

func configureLogging(cfg *config.Config) error {
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	return nil
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	webhookRepo := repository.NewWebhookRecordRepository(db)

	stripeAdapter := gateway.NewStripeAdapter(gateway.StripeConfig{
		SecretKey:                 cfg.Stripe.SecretKey,
		WebhookSecret:             cfg.Stripe.WebhookSecret,
		APIBaseURL:                cfg.Stripe.APIBaseURL,
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Stripe.HTTPTimeout,
	})
	paypalAdapter := gateway.NewPayPalAdapter(gateway.PayPalConfig{
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		APIBaseURL:   cfg.PayPal.APIBaseURL,
		WebhookID:    cfg.PayPal.WebhookID,
		HTTPTimeout:  cfg.PayPal.HTTPTimeout,
	})

	gatewayRegistry := gateway.NewRegistry(stripeAdapter, paypalAdapter)

	notifyConfig := notify.Config{
		BaseURL:     cfg.Notifications.BaseURL,
		APIKey:      cfg.App.APIKey,
		HTTPTimeout: cfg.Notifications.HTTPTimeout,
	}
	notifier := notify.NewClient(notifyConfig)
	emitter := notify.NewEmitter(notifyConfig)

	paymentService := service.NewPaymentService(
		paymentRepo,
		orderRepo,
		eventRepo,
		webhookRepo,
		gatewayRegistry,
		notifier,
		emitter,
		cfg.Payments,
		logrus.WithField("module", "payments-service"),
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, cleanup
}
