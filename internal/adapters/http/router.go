package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
	"payflow/internal/observability"
	"payflow/internal/reports"
)

type Middleware = func(http.Handler) http.Handler

// RouterConfig carries the services and the pluggable security middleware. Authenticate is
// JWTMiddleware or OIDCAuthenticator.Middleware; Authorize and RateLimit are optional.
type RouterConfig struct {
	ServiceName  string
	Transactions ports.TransactionService
	Gateway      ports.GatewayService
	Merchants    ports.MerchantService
	Reports      *reports.Service
	HealthCheck  func(ctx context.Context) error

	Authenticate Middleware
	Authorize    Middleware
	RateLimit    Middleware
	Logger       *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	txHandler := NewTransactionHandler(cfg.Transactions, logger)
	gwHandler := NewGatewayHandler(cfg.Gateway, cfg.Reports, logger)
	checkoutHandler := NewCheckoutHandler(cfg.Gateway, logger)
	merchantHandler := NewMerchantHandler(cfg.Merchants, logger)
	adminHandler := NewAdminHandler(cfg.Merchants, cfg.Gateway, cfg.Reports, logger)

	r := chi.NewRouter()

	// Public middleware
	r.Use(middleware.RequestID, middleware.RealIP)
	if cfg.RateLimit != nil {
		r.Use(cfg.RateLimit)
	}
	r.Use(
		middleware.Recoverer,
		observability.NewLoggerMiddleware(logger),
		observability.NewMetricsMiddleware(cfg.ServiceName),
		observability.NewTracingMiddleware(cfg.ServiceName),
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "service": cfg.ServiceName}, logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": cfg.ServiceName}, logger)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Hosted checkout submission.
	r.Post("/pay/{orderRef}", checkoutHandler.HandleSubmit)

	// Merchant API, API-key authenticated.
	r.Route("/v1", func(r chi.Router) {
		r.Use(APIKeyMiddleware(cfg.Merchants, logger))

		r.Post("/orders", gwHandler.HandleCreateOrder)
		r.Get("/orders", gwHandler.HandleListOrders)
		r.Get("/orders/{orderRef}", gwHandler.HandleGetOrder)
		r.Get("/orders/{orderRef}/payments", gwHandler.HandleListOrderPayments)

		r.Get("/payments/{paymentRef}", gwHandler.HandleGetPayment)
		r.Post("/payments/{paymentRef}/capture", gwHandler.HandleCapturePayment)
		r.Post("/payments/{paymentRef}/refund", gwHandler.HandleRefundPayment)
		r.Get("/payments/{paymentRef}/refunds", gwHandler.HandleListRefunds)

		r.Get("/webhooks/logs", gwHandler.HandleListWebhookLogs)
		r.Get("/reports/revenue", gwHandler.HandleRevenueReport)
	})

	// User API, token authenticated.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Authenticate)
		if cfg.Authorize != nil {
			r.Use(cfg.Authorize)
		}

		r.Post("/transactions", txHandler.HandleCreateTransaction)
		r.Get("/transactions", txHandler.HandleListMyTransactions)
		r.Get("/transactions/{id}", txHandler.HandleGetTransaction)

		r.Post("/merchants", merchantHandler.HandleRegister)
		r.Get("/merchants/me", merchantHandler.HandleGetMine)
		r.Patch("/merchants/me", merchantHandler.HandleUpdateMine)
		r.Post("/merchants/me/keys", merchantHandler.HandleCreateAPIKey)
		r.Get("/merchants/me/keys", merchantHandler.HandleListAPIKeys)
		r.Delete("/merchants/me/keys/{keyID}", merchantHandler.HandleRevokeAPIKey)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(logger, domain.RoleAdmin))

			r.Get("/transactions", txHandler.HandleListTransactions)
			r.Post("/transactions/{id}/refund", txHandler.HandleRefundTransaction)
			r.Get("/stats", txHandler.HandleStats)
			r.Get("/payments/flagged", adminHandler.HandleListFlaggedPayments)

			r.Get("/merchants", adminHandler.HandleListMerchants)
			r.Post("/merchants/{id}/verify", adminHandler.HandleVerifyMerchant())
			r.Post("/merchants/{id}/suspend", adminHandler.HandleSuspendMerchant())
			r.Post("/merchants/{id}/reactivate", adminHandler.HandleReactivateMerchant())

			r.Get("/reports/revenue", adminHandler.HandleRevenueReport)
			r.Get("/reports/gst", adminHandler.HandleGSTReport)
		})
	})

	return r
}
