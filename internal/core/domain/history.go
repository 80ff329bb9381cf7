package domain

import (
	"time"

	"github.com/google/uuid"
)

// FraudCandidate is everything the rule engine looks at for one payment or transaction.
type FraudCandidate struct {
	Amount int64
	Method PaymentMethod
	VPA    string
	// Recent holds prior payments of the same owner (user or order).
	Recent []HistoryEntry
	// MerchantRecent is the number of payments across the merchant's orders inside the window.
	// Negative means the rule does not apply (legacy transactions).
	MerchantRecent int
}

// HistoryEntry is the part of a prior payment the rules need.
type HistoryEntry struct {
	Amount    int64
	CreatedAt time.Time
}

// ReportQuery bounds a reporting fetch to [From, To). A nil MerchantID means all merchants.
type ReportQuery struct {
	From       time.Time
	To         time.Time
	MerchantID *uuid.UUID
}
