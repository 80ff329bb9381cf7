// Command webhook-receiver is a sample merchant endpoint. It verifies the signature of every
// delivery and logs the event, which makes it useful for local end-to-end testing.
package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"payflow/internal/config"
	"payflow/internal/observability"
	"payflow/internal/webhook"
)

const maxBodyBytes = 1 << 20

func newRouter(secret string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Post("/webhooks", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		if !webhook.Verify(secret, body, r.Header.Get(webhook.SignatureHeader)) {
			logger.Warn("rejected webhook with bad signature", "event", r.Header.Get(webhook.EventHeader))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var env webhook.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			logger.Error("Failed to decode webhook", "error", err)
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		logger.Info("WEBHOOK",
			"event", env.Event,
			"created_at", env.CreatedAt,
			"payment_ref", env.Payload["payment_ref"],
			"order_ref", env.Payload["order_ref"],
			"status", env.Payload["status"],
		)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
	})
	return r
}

func main() {
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg, err := config.Load(config.Path())
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg.App.Env)

	secret := os.Getenv("PAYFLOW_WEBHOOK_SECRET")
	if secret == "" {
		secret = cfg.Webhook.DefaultSecret
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           newRouter(secret, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("webhook receiver started", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
