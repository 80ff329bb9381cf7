package ports

import (
	"context"

	"github.com/google/uuid"

	"payflow/internal/core/domain"
)

// TransactionService is the incoming port for legacy standalone transactions.
type TransactionService interface {
	CreateTransaction(ctx context.Context, caller domain.Caller, req CreateTransactionRequest) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, caller domain.Caller, id uuid.UUID) (*domain.Transaction, error)
	ListMyTransactions(ctx context.Context, caller domain.Caller, limit int) ([]domain.Transaction, error)
	RefundTransaction(ctx context.Context, caller domain.Caller, id uuid.UUID) (*domain.Transaction, error)

	ListTransactions(ctx context.Context, caller domain.Caller, filter TransactionFilter) ([]domain.Transaction, error)
	Stats(ctx context.Context, caller domain.Caller) (domain.TransactionStats, error)
}

type CreateTransactionRequest struct {
	Amount         int64
	PaymentMethod  string
	IdempotencyKey string
}

// GatewayService is the incoming port for orders, checkout, capture and refunds.
// Merchant-scoped calls receive the merchant resolved by API-key authentication.
type GatewayService interface {
	CreateOrder(ctx context.Context, merchant *domain.Merchant, req CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, merchant *domain.Merchant, orderRef string) (*domain.Order, error)
	ListOrders(ctx context.Context, merchant *domain.Merchant, limit int) ([]domain.Order, error)
	ListOrderPayments(ctx context.Context, merchant *domain.Merchant, orderRef string) ([]domain.Payment, error)

	SubmitCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)

	GetPayment(ctx context.Context, merchant *domain.Merchant, paymentRef string) (*domain.Payment, error)
	CapturePayment(ctx context.Context, merchant *domain.Merchant, paymentRef string) (*domain.Payment, error)
	RefundPayment(ctx context.Context, merchant *domain.Merchant, paymentRef string, req RefundRequest) (*domain.Refund, *domain.Payment, error)
	ListRefunds(ctx context.Context, merchant *domain.Merchant, paymentRef string) ([]domain.Refund, error)
	ListWebhookLogs(ctx context.Context, merchant *domain.Merchant, limit int) ([]domain.WebhookLog, error)

	ListFlaggedPayments(ctx context.Context, caller domain.Caller, limit int) ([]domain.Payment, error)
}

type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    string
}

// CheckoutRequest is what the hosted checkout submits. CardCVV and CardExpiry are accepted
// for shape only and never stored.
type CheckoutRequest struct {
	OrderRef       string
	Method         string
	VPA            string
	CardNumber     string
	CardExpiry     string
	CardCVV        string
	CardName       string
	Email          string
	Contact        string
	CaptureMode    domain.CaptureMode
	IdempotencyKey string
}

type CheckoutResult struct {
	Payment *domain.Payment
	Order   *domain.Order
	// Replayed is true when the idempotency key matched an earlier submission.
	Replayed bool
}

type RefundRequest struct {
	// Amount of zero refunds the remaining balance.
	Amount int64
	Reason string
	Notes  string
}

// MerchantService covers onboarding, API keys and the admin merchant controls.
type MerchantService interface {
	Register(ctx context.Context, caller domain.Caller, req RegisterMerchantRequest) (*domain.Merchant, error)
	GetMine(ctx context.Context, caller domain.Caller) (*domain.Merchant, error)
	UpdateMine(ctx context.Context, caller domain.Caller, u domain.MerchantUpdate) (*domain.Merchant, error)

	CreateAPIKey(ctx context.Context, caller domain.Caller, label string) (*domain.APIKey, string, error)
	ListAPIKeys(ctx context.Context, caller domain.Caller) ([]domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, caller domain.Caller, keyID string) error
	Authenticate(ctx context.Context, keyID, secret string) (*domain.Merchant, error)

	ListMerchants(ctx context.Context, caller domain.Caller) ([]domain.Merchant, error)
	SetVerified(ctx context.Context, caller domain.Caller, id uuid.UUID, verified bool) (*domain.Merchant, error)
	SetActive(ctx context.Context, caller domain.Caller, id uuid.UUID, active bool) (*domain.Merchant, error)
}

type RegisterMerchantRequest struct {
	BusinessName  string
	BusinessEmail string
	Website       string
	WebhookURL    string
}
