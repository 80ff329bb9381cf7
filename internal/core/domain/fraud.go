package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fraud reason codes, reported in evaluation order.
const (
	ReasonHighValue        = "high_value"
	ReasonDuplicateAmount  = "duplicate_amount"
	ReasonHighFrequency    = "high_frequency"
	ReasonInvalidVPA       = "invalid_vpa"
	ReasonMerchantVelocity = "merchant_velocity"
)

// FraudResult is the verdict of the rule engine. Flagging never blocks a payment.
type FraudResult struct {
	Flagged bool     `json:"is_flagged"`
	Reasons []string `json:"reasons"`
}

// Reason joins the reason codes the way they are persisted.
func (r FraudResult) Reason() string {
	return strings.Join(r.Reasons, ",")
}

func (r FraudResult) Has(reason string) bool {
	for _, v := range r.Reasons {
		if v == reason {
			return true
		}
	}
	return false
}

// SplitReasons is the inverse of FraudResult.Reason.
func SplitReasons(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// FraudReport is a flagged payment evaluation as kept by the analytics sink.
type FraudReport struct {
	EventID     uuid.UUID
	EventType   EventType
	MerchantID  uuid.UUID
	PaymentRef  string
	OrderRef    string
	Amount      int64
	Currency    string
	Method      string
	Status      string
	Reasons     []string
	OccurredAt  time.Time
	ProcessedAt time.Time
}
