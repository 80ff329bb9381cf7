package domain

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrUnsupportedCurrency  = errors.New("unsupported currency")
	ErrUnsupportedMethod    = errors.New("unsupported payment method")
	ErrInvalidCard          = errors.New("invalid card number")
	ErrInvalidCaptureMode   = errors.New("capture_mode must be auto or manual")
	ErrInvalidRefundAmount  = errors.New("refund amount must be positive")
	ErrInvalidPeriod        = errors.New("period must be one of daily, weekly, monthly")
	ErrInvalidLookback      = errors.New("days must be between 1 and 365")
	ErrInvalidFinancialYear = errors.New("invalid financial year")
	ErrMissingField         = errors.New("required field is missing")
	ErrIdempotencyKeyReused = errors.New("idempotency key was used for a different request")
)

// Not-found errors.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrMerchantNotFound    = errors.New("merchant not found")
	ErrAPIKeyNotFound      = errors.New("api key not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// State-conflict errors.
var (
	ErrOrderAlreadyPaid     = errors.New("order already paid")
	ErrOrderExpired         = errors.New("order has expired")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrRefundExceedsBalance = errors.New("refund amount exceeds refundable balance")
	ErrConcurrentUpdate     = errors.New("entity was modified concurrently")
	ErrMerchantExists       = errors.New("merchant profile already exists")
)

// Authorization errors.
var (
	ErrForbidden          = errors.New("caller is not allowed to perform this operation")
	ErrInvalidCredentials = errors.New("invalid api credentials")
	ErrMerchantInactive   = errors.New("merchant account inactive")
)

// Infrastructure errors.
var (
	ErrIdempotencyKeyUsed = errors.New("idempotency key already used")
	ErrBrokerUnavailable  = errors.New("kafka broker is unavailable")
	ErrStorageUnavailable = errors.New("database is unavailable")
)

// StateError reports a rejected transition together with the state the entity was in.
type StateError struct {
	Entity string
	Status string
	Action string
	Err    error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s in status '%s'", e.Action, e.Entity, e.Status)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func stateError(entity, status, action string, err error) error {
	return &StateError{Entity: entity, Status: status, Action: action, Err: err}
}
