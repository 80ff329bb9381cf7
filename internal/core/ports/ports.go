package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"payflow/internal/core/domain"
)

// TransactionRepository stores legacy transactions. SaveTransaction must return
// domain.ErrIdempotencyKeyUsed when the idempotency key is already taken, so a losing
// concurrent writer can re-read the winner.
type TransactionRepository interface {
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, fn func(tx *domain.Transaction) error) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	RecentTransactions(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.Transaction, error)
	TransactionStats(ctx context.Context) (domain.TransactionStats, error)
}

type TransactionFilter struct {
	UserID      *uuid.UUID
	FlaggedOnly bool
	Limit       int
}

type MerchantRepository interface {
	CreateMerchant(ctx context.Context, m *domain.Merchant) error
	GetMerchant(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	GetMerchantByUser(ctx context.Context, userID uuid.UUID) (*domain.Merchant, error)
	UpdateMerchant(ctx context.Context, m *domain.Merchant) error
	ListMerchants(ctx context.Context) ([]domain.Merchant, error)
}

type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, k *domain.APIKey) error
	GetAPIKey(ctx context.Context, keyID string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context, merchantID uuid.UUID) ([]domain.APIKey, error)
	UpdateAPIKey(ctx context.Context, k *domain.APIKey) error
}

// OrderRepository persists orders. UpdateOrder runs fn on the current row under the store's
// isolation and persists the result only if fn returns nil.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByRef(ctx context.Context, ref string) (*domain.Order, error)
	ListOrders(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, fn func(o *domain.Order) error) (*domain.Order, error)
}

// PaymentRepository persists payments and refunds. The mutating methods are atomic:
//   - InsertPayment locks the payment's order, runs fn on it, inserts p and saves the order.
//     A taken idempotency key yields domain.ErrIdempotencyKeyUsed and nothing is written.
//   - UpdatePayment locks the payment and its order and saves both after fn.
//   - InsertRefund locks the refund's payment, runs fn on it, inserts r and saves the payment.
type PaymentRepository interface {
	InsertPayment(ctx context.Context, p *domain.Payment, fn func(o *domain.Order) error) (*domain.Order, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, fn func(p *domain.Payment, o *domain.Order) error) (*domain.Payment, *domain.Order, error)
	InsertRefund(ctx context.Context, r *domain.Refund, fn func(p *domain.Payment) error) (*domain.Payment, error)

	GetPaymentByRef(ctx context.Context, ref string) (*domain.Payment, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error)
	RecentOrderPayments(ctx context.Context, orderID uuid.UUID, since time.Time) ([]domain.Payment, error)
	CountMerchantPaymentsSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int, error)
	ListFlaggedPayments(ctx context.Context, limit int) ([]domain.Payment, error)
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error)

	// ListReportPayments returns captured, refunded and failed payments whose settlement
	// instant (captured_at, else created_at) falls inside the query window.
	ListReportPayments(ctx context.Context, q domain.ReportQuery) ([]domain.Payment, error)
	// ListReportRefunds returns processed refunds created inside the query window.
	ListReportRefunds(ctx context.Context, q domain.ReportQuery) ([]domain.Refund, error)
}

type WebhookLogRepository interface {
	InsertWebhookLog(ctx context.Context, l *domain.WebhookLog) error
	ListWebhookLogs(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookLog, error)
}

// Store is the Entity Store. Postgres and the in-memory store both implement it; the core
// never special-cases either.
type Store interface {
	TransactionRepository
	MerchantRepository
	APIKeyRepository
	OrderRepository
	PaymentRepository
	WebhookLogRepository
	Ping(ctx context.Context) error
	Close()
}

// Cache is a key → serialized projection cache. Errors mean the backend is unavailable.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// OutcomeSource stands in for the acquiring bank.
type OutcomeSource interface {
	Approve() bool
}

// FraudRuleEngine evaluates the fixed rule set. It must be a pure function of its input.
type FraudRuleEngine interface {
	Check(c domain.FraudCandidate, now time.Time) domain.FraudResult
	Window() time.Duration
}

// Notifier delivers merchant webhooks. Notify must not block on delivery nor return errors.
type Notifier interface {
	Notify(ctx context.Context, e domain.Event)
}

// MessageBroker is another outgoing port for sending messages.
type MessageBroker interface {
	PublishEvent(ctx context.Context, e domain.Event) error
}

// RateLimiterRepository backs the HTTP rate limiter.
type RateLimiterRepository interface {
	IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// FraudReportSink is the analytics store for flagged payment evaluations.
type FraudReportSink interface {
	InsertFraudReports(ctx context.Context, reports []domain.FraudReport) error
	RecentFraudReports(ctx context.Context, limit int) ([]domain.FraudReport, error)
}
