package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderAttempted OrderStatus = "attempted"
	OrderPaid      OrderStatus = "paid"
	OrderExpired   OrderStatus = "expired"
)

var supportedCurrencies = map[string]bool{"INR": true, "USD": true, "EUR": true}

// ParseCurrency upper-cases and validates an ISO 4217 code. Empty means INR.
func ParseCurrency(s string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(s))
	if c == "" {
		c = "INR"
	}
	if !supportedCurrencies[c] {
		return "", ErrUnsupportedCurrency
	}
	return c, nil
}

// Order is a billable intent created by a merchant. Amount is in minor units (paise).
type Order struct {
	ID         uuid.UUID
	OrderRef   string
	MerchantID uuid.UUID
	Amount     int64
	Currency   string
	Status     OrderStatus
	Receipt    string
	Notes      string
	Attempts   int
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewOrder validates and builds an order that expires after ttl (no expiry when ttl is zero).
func NewOrder(merchantID uuid.UUID, ref string, amount int64, currency, receipt, notes string, ttl time.Duration, now time.Time) (*Order, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	cur, err := ParseCurrency(currency)
	if err != nil {
		return nil, err
	}
	o := &Order{
		ID:         uuid.New(),
		OrderRef:   ref,
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   cur,
		Status:     OrderCreated,
		Receipt:    receipt,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		o.ExpiresAt = &exp
	}
	return o, nil
}

func (o *Order) IsTerminal() bool {
	return o.Status == OrderPaid || o.Status == OrderExpired
}

// DueForExpiry reports whether an unpaid order is past expires_at and must be
// lazily moved to expired.
func (o *Order) DueForExpiry(now time.Time) bool {
	if o.ExpiresAt == nil || o.IsTerminal() {
		return false
	}
	return o.ExpiresAt.Before(now)
}

// Expire moves created|attempted → expired.
func (o *Order) Expire(now time.Time) error {
	if o.IsTerminal() {
		return stateError("order", string(o.Status), "expire", ErrInvalidTransition)
	}
	o.Status = OrderExpired
	o.UpdatedAt = now
	return nil
}

// CheckPayable rejects payment submissions against a terminal order.
func (o *Order) CheckPayable() error {
	switch o.Status {
	case OrderPaid:
		return ErrOrderAlreadyPaid
	case OrderExpired:
		return ErrOrderExpired
	}
	return nil
}

// RecordAttempt applies a payment attempt: attempts++ and the order becomes
// attempted, or paid when the attempt captured.
func (o *Order) RecordAttempt(captured bool, now time.Time) error {
	if err := o.CheckPayable(); err != nil {
		return err
	}
	o.Attempts++
	if captured {
		o.Status = OrderPaid
	} else {
		o.Status = OrderAttempted
	}
	o.UpdatedAt = now
	return nil
}

// MarkPaid is used by the two-step flow once an authorized payment is captured.
func (o *Order) MarkPaid(now time.Time) error {
	if o.Status == OrderPaid {
		return ErrOrderAlreadyPaid
	}
	if o.Status == OrderExpired {
		return stateError("order", string(o.Status), "mark paid", ErrOrderExpired)
	}
	o.Status = OrderPaid
	o.UpdatedAt = now
	return nil
}
