package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "created"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFailed     PaymentStatus = "failed"
)

type RefundStatus string

const (
	RefundNone    RefundStatus = "none"
	RefundPartial RefundStatus = "partial"
	RefundFull    RefundStatus = "full"
)

// CaptureMode selects between the one-step and the two-step flow.
type CaptureMode string

const (
	CaptureAuto   CaptureMode = "auto"
	CaptureManual CaptureMode = "manual"
)

// Payment is one attempt to settle an order.
type Payment struct {
	ID             uuid.UUID
	PaymentRef     string
	OrderID        uuid.UUID
	MerchantID     uuid.UUID
	Amount         int64
	Currency       string
	Method         PaymentMethod
	Status         PaymentStatus
	Email          string
	Contact        string
	VPA            string
	CardMasked     string
	CardNetwork    string
	AmountRefunded int64
	RefundStatus   RefundStatus
	IsFlagged      bool
	FlagReason     string
	IdempotencyKey string
	CreatedAt      time.Time
	CapturedAt     *time.Time
}

// NewPayment builds a payment in the created state for the given order.
func NewPayment(order *Order, ref string, method PaymentMethod, now time.Time) *Payment {
	return &Payment{
		ID:           uuid.New(),
		PaymentRef:   ref,
		OrderID:      order.ID,
		MerchantID:   order.MerchantID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Method:       method,
		Status:       PaymentCreated,
		RefundStatus: RefundNone,
		CreatedAt:    now,
	}
}

// Settle applies the outcome of the gateway draw to a created payment.
func (p *Payment) Settle(success bool, mode CaptureMode, now time.Time) error {
	if p.Status != PaymentCreated {
		return stateError("payment", string(p.Status), "settle", ErrInvalidTransition)
	}
	switch {
	case !success:
		p.Status = PaymentFailed
	case mode == CaptureManual:
		p.Status = PaymentAuthorized
	default:
		p.Status = PaymentCaptured
		p.CapturedAt = &now
	}
	return nil
}

// Capture moves authorized → captured.
func (p *Payment) Capture(now time.Time) error {
	if p.Status != PaymentAuthorized {
		return stateError("payment", string(p.Status), "capture", ErrInvalidTransition)
	}
	p.Status = PaymentCaptured
	p.CapturedAt = &now
	return nil
}

// Refundable is the balance still available for refunds.
func (p *Payment) Refundable() int64 {
	return p.Amount - p.AmountRefunded
}

// ApplyRefund reduces the refundable balance. amount == 0 means the whole remaining balance.
// It returns the amount actually applied.
func (p *Payment) ApplyRefund(amount int64) (int64, error) {
	if p.Status != PaymentCaptured && p.Status != PaymentAuthorized {
		return 0, stateError("payment", string(p.Status), "refund", ErrInvalidTransition)
	}
	if amount < 0 {
		return 0, ErrInvalidRefundAmount
	}
	remaining := p.Refundable()
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 {
		return 0, ErrInvalidRefundAmount
	}
	if amount > remaining {
		return 0, ErrRefundExceedsBalance
	}
	p.AmountRefunded += amount
	if p.AmountRefunded == p.Amount {
		p.Status = PaymentRefunded
		p.RefundStatus = RefundFull
	} else {
		p.RefundStatus = RefundPartial
	}
	return amount, nil
}

// IsSettled reports whether money moved: the payment was captured, possibly refunded
// afterwards. An authorization released by a refund never settles.
func (p *Payment) IsSettled() bool {
	return p.CapturedAt != nil
}

// SettledAt is the instant reports bucket a payment by.
func (p *Payment) SettledAt() time.Time {
	if p.CapturedAt != nil {
		return *p.CapturedAt
	}
	return p.CreatedAt
}

// Flag records the fraud verdict.
func (p *Payment) Flag(result FraudResult) {
	p.IsFlagged = result.Flagged
	p.FlagReason = result.Reason()
}

var cardNetworks = map[byte]string{'4': "Visa", '5': "Mastercard", '6': "RuPay", '3': "Amex"}

// MaskCard keeps the last four digits and detects the network from the first one.
func MaskCard(number string) (masked, network string) {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(number)
	if digits == "" {
		return "", ""
	}
	if len(digits) <= 4 {
		masked = digits
	} else {
		masked = strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
	}
	network, ok := cardNetworks[digits[0]]
	if !ok {
		network = "Unknown"
	}
	return masked, network
}

// Refund is a reduction against a captured or authorized payment.
type Refund struct {
	ID          uuid.UUID
	RefundRef   string
	PaymentID   uuid.UUID
	MerchantID  uuid.UUID
	Amount      int64
	Reason      string
	Notes       string
	Status      string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

const RefundProcessed = "processed"
