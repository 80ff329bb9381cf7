package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"payflow/internal/adapters/auth/opa"
	httphandler "payflow/internal/adapters/http"
	"payflow/internal/adapters/messaging/kafka"
	"payflow/internal/adapters/messaging/logbroker"
	"payflow/internal/adapters/storage/memory"
	"payflow/internal/adapters/storage/postgres"
	"payflow/internal/adapters/storage/redis"
	"payflow/internal/antifraud"
	"payflow/internal/app"
	"payflow/internal/cache"
	"payflow/internal/config"
	"payflow/internal/core/ports"
	"payflow/internal/observability"
	"payflow/internal/outcome"
	"payflow/internal/reports"
	"payflow/internal/webhook"
)

const serviceName = "payflow"

// entityStore is what the server needs from a storage backend.
type entityStore interface {
	ports.Store
	Ping(ctx context.Context) error
	Close()
}

type eventBroker interface {
	ports.MessageBroker
	Close()
}

func main() {
	// --- 1. Configuration and Logging ---
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	cfg, err := config.Load(config.Path())
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("Application starting", "env", cfg.App.Env, "port", cfg.Server.Port)

	ctx := context.Background()

	// --- 2. Observability ---
	if cfg.Jaeger.PortGrpc != "" {
		shutdownTracer, err := observability.InitTracer(ctx, cfg.Jaeger.PortGrpc, serviceName, cfg.App.Env)
		if err != nil {
			logger.Warn("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.Warn("Failed to shutdown tracer", "error", err)
				}
			}()
		}
	}

	// --- 3. Dependencies ---
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var distributed ports.Cache
	var limiterRepo ports.RateLimiterRepository
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Warn("Redis unavailable, using local cache only", "error", err)
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Warn("Failed to close Redis client", "error", err)
				}
			}()
			distributed = redis.NewCache(rdb, serviceName+":")
			limiterRepo = redis.NewRateLimiterAdapter(rdb)
			logger.Info("Connected to Redis")
		}
	}
	appCache := cache.NewFailover(distributed, logger)

	broker := openBroker(ctx, cfg, logger)
	defer broker.Close()

	dispatcher := webhook.NewDispatcher(store, cfg.Webhook, logger)
	fraud := antifraud.NewRuleEngine(cfg.AntiFraud)

	// --- 4. Service Layer ---
	transactionService := app.NewTransactionService(
		store, fraud, outcome.NewSimulator(cfg.Gateway.TransactionRate()), appCache, cfg.Cache.TTL(), logger)
	gatewayService := app.NewGatewayService(app.GatewayDeps{
		Store:    store,
		Fraud:    fraud,
		Outcome:  outcome.NewSimulator(cfg.Gateway.PaymentRate()),
		Cache:    appCache,
		Notifier: dispatcher,
		Broker:   broker,
		Logger:   logger,
		CacheTTL: cfg.Cache.TTL(),
		OrderTTL: cfg.Gateway.OrderTTL(),
	})
	merchantService := app.NewMerchantService(store, store, 0, logger)
	reportService := reports.NewService(store, cfg.Reports.Location())

	// --- 5. HTTP Router ---
	routerCfg := httphandler.RouterConfig{
		ServiceName:  serviceName,
		Transactions: transactionService,
		Gateway:      gatewayService,
		Merchants:    merchantService,
		Reports:      reportService,
		HealthCheck:  store.Ping,
		Authenticate: httphandler.JWTMiddleware([]byte(cfg.JWT.Secret), logger),
		Logger:       logger,
	}
	if cfg.OIDC.URL != "" {
		oidcAuth, err := httphandler.NewOIDCAuthenticator(ctx, cfg.OIDC.URL, cfg.OIDC.ClientID, logger)
		if err != nil {
			logger.Error("Failed to initialize OIDC provider", "error", err)
			os.Exit(1)
		}
		routerCfg.Authenticate = oidcAuth.Middleware
	}
	if cfg.OPA.URL != "" {
		routerCfg.Authorize = opa.NewMiddleware(cfg.OPA.URL, httphandler.ClaimsFromRequest, logger).Authorize
	}
	if cfg.RateLimit.Enabled && limiterRepo != nil {
		limiter := httphandler.NewRateLimiterMiddleware(limiterRepo, cfg.RateLimit.Limit, cfg.RateLimit.Window(), logger)
		routerCfg.RateLimit = limiter.Handler
	}

	// --- 6. HTTP Server ---
	srv := &http.Server{
		Addr:         listenAddr(cfg.Server.Port),
		Handler:      httphandler.NewRouter(routerCfg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("Webhook deliveries still in flight at shutdown", "error", err)
	}

	logger.Info("Server exited properly")
}

// openStore connects to PostgreSQL when a DSN is configured and falls back to the in-memory
// store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (entityStore, error) {
	if cfg.Postgres.DSN == "" {
		logger.Warn("postgres.dsn is empty, using in-memory store")
		return memory.New(), nil
	}
	repo, err := postgres.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	logger.Info("Connected to PostgreSQL")
	return repo, nil
}

// openBroker connects to Kafka when bootstrap servers are configured. The event stream is
// best-effort, so an unreachable cluster degrades to logging events.
func openBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) eventBroker {
	if cfg.Kafka.BootstrapServers == "" {
		return logbroker.NewBroker(logger)
	}
	b, err := kafka.NewBroker(ctx, strings.Split(cfg.Kafka.BootstrapServers, ","), cfg.Kafka.Topic, logger)
	if err != nil {
		logger.Warn("Kafka unavailable, events will only be logged", "error", err)
		return logbroker.NewBroker(logger)
	}
	logger.Info("Kafka broker created", "topic", cfg.Kafka.Topic)
	return b
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
