package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is our own type for statuses to avoid "magic strings".
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusSuccess    TransactionStatus = "success"
	StatusFailed     TransactionStatus = "failed"
	StatusRefunded   TransactionStatus = "refunded"
)

// PaymentMethod is the instrument family used to pay.
type PaymentMethod string

const (
	MethodUPI        PaymentMethod = "upi"
	MethodCard       PaymentMethod = "card"
	MethodNetbanking PaymentMethod = "netbanking"
	MethodWallet     PaymentMethod = "wallet"
)

var (
	gatewayMethods = map[PaymentMethod]bool{MethodUPI: true, MethodCard: true, MethodNetbanking: true, MethodWallet: true}
	legacyMethods  = map[PaymentMethod]bool{MethodUPI: true, MethodCard: true, MethodNetbanking: true}
)

// ParseGatewayMethod normalizes a checkout method.
func ParseGatewayMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !gatewayMethods[m] {
		return "", ErrUnsupportedMethod
	}
	return m, nil
}

// ParseLegacyMethod normalizes the method of a standalone transaction. Wallets were never
// accepted on this path.
func ParseLegacyMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !legacyMethods[m] {
		return "", ErrUnsupportedMethod
	}
	return m, nil
}

// Transaction is the legacy standalone payment record. It predates orders and payments and
// keeps its own state machine.
type Transaction struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Amount         int64
	Method         PaymentMethod
	Status         TransactionStatus
	IdempotencyKey string
	IsFlagged      bool
	FlagReason     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTransaction builds a pending transaction. Amount is in minor units.
func NewTransaction(userID uuid.UUID, amount int64, method PaymentMethod, idemKey string, now time.Time) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(idemKey) == "" {
		return nil, ErrMissingField
	}
	return &Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         amount,
		Method:         method,
		Status:         StatusPending,
		IdempotencyKey: idemKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Begin moves pending → processing.
func (t *Transaction) Begin(now time.Time) error {
	if t.Status != StatusPending {
		return stateError("transaction", string(t.Status), "process", ErrInvalidTransition)
	}
	t.Status = StatusProcessing
	t.UpdatedAt = now
	return nil
}

// Complete moves processing → success|failed.
func (t *Transaction) Complete(success bool, now time.Time) error {
	if t.Status != StatusProcessing {
		return stateError("transaction", string(t.Status), "complete", ErrInvalidTransition)
	}
	if success {
		t.Status = StatusSuccess
	} else {
		t.Status = StatusFailed
	}
	t.UpdatedAt = now
	return nil
}

// Refund moves success → refunded. Only admins may refund.
func (t *Transaction) Refund(caller Caller, now time.Time) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	if t.Status != StatusSuccess {
		return stateError("transaction", string(t.Status), "refund", ErrInvalidTransition)
	}
	t.Status = StatusRefunded
	t.UpdatedAt = now
	return nil
}

// Flag records the fraud verdict.
func (t *Transaction) Flag(result FraudResult) {
	t.IsFlagged = result.Flagged
	t.FlagReason = result.Reason()
}

// TransactionStats is the system-wide summary shown to admins.
type TransactionStats struct {
	TotalTransactions int   `json:"total_transactions"`
	TotalAmount       int64 `json:"total_amount"`
	SuccessCount      int   `json:"success_count"`
	FailedCount       int   `json:"failed_count"`
	FlaggedCount      int   `json:"flagged_count"`
}
