package antifraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"payflow/internal/config"
	"payflow/internal/core/domain"
)

func newEngine() *RuleEngine {
	return NewRuleEngine(config.Default().AntiFraud)
}

func TestRuleEngine_HighValue(t *testing.T) {
	now := time.Now()
	e := newEngine()

	res := e.Check(domain.FraudCandidate{Amount: 6_000_000, Method: domain.MethodCard, MerchantRecent: -1}, now)
	assert.True(t, res.Flagged)
	assert.Equal(t, []string{domain.ReasonHighValue}, res.Reasons)

	// The threshold itself is not above the threshold.
	res = e.Check(domain.FraudCandidate{Amount: 5_000_000, Method: domain.MethodCard, MerchantRecent: -1}, now)
	assert.False(t, res.Flagged)
	assert.Empty(t, res.Reasons)
}

func TestRuleEngine_DuplicateWindowIsInclusive(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	e := newEngine()

	atEdge := domain.FraudCandidate{
		Amount: 1000,
		Method: domain.MethodCard,
		Recent: []domain.HistoryEntry{{Amount: 1000, CreatedAt: now.Add(-60 * time.Second)}},
	}
	res := e.Check(atEdge, now)
	assert.True(t, res.Has(domain.ReasonDuplicateAmount))

	outside := domain.FraudCandidate{
		Amount: 1000,
		Method: domain.MethodCard,
		Recent: []domain.HistoryEntry{{Amount: 1000, CreatedAt: now.Add(-61 * time.Second)}},
	}
	res = e.Check(outside, now)
	assert.False(t, res.Flagged)
}

func TestRuleEngine_HighFrequency(t *testing.T) {
	now := time.Now()
	e := newEngine()

	var recent []domain.HistoryEntry
	for i := 0; i < 4; i++ {
		recent = append(recent, domain.HistoryEntry{Amount: int64(100 + i), CreatedAt: now.Add(-time.Duration(i) * time.Second)})
	}
	res := e.Check(domain.FraudCandidate{Amount: 999, Method: domain.MethodCard, Recent: recent}, now)
	assert.False(t, res.Flagged, "four prior attempts stay below the threshold")

	recent = append(recent, domain.HistoryEntry{Amount: 200, CreatedAt: now.Add(-10 * time.Second)})
	res = e.Check(domain.FraudCandidate{Amount: 999, Method: domain.MethodCard, Recent: recent}, now)
	assert.Equal(t, []string{domain.ReasonHighFrequency}, res.Reasons)
}

func TestRuleEngine_InvalidVPA(t *testing.T) {
	now := time.Now()
	e := newEngine()

	tests := []struct {
		name    string
		method  domain.PaymentMethod
		vpa     string
		flagged bool
	}{
		{"upi without at-sign", domain.MethodUPI, "alice.okbank", true},
		{"upi with handle", domain.MethodUPI, "alice@okbank", false},
		{"upi without vpa", domain.MethodUPI, "", false},
		{"card ignores vpa", domain.MethodCard, "garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Check(domain.FraudCandidate{Amount: 100, Method: tt.method, VPA: tt.vpa}, now)
			assert.Equal(t, tt.flagged, res.Has(domain.ReasonInvalidVPA))
		})
	}
}

func TestRuleEngine_MerchantVelocity(t *testing.T) {
	now := time.Now()
	e := newEngine()

	assert.True(t, e.Check(domain.FraudCandidate{Amount: 100, Method: domain.MethodCard, MerchantRecent: 50}, now).Has(domain.ReasonMerchantVelocity))
	assert.False(t, e.Check(domain.FraudCandidate{Amount: 100, Method: domain.MethodCard, MerchantRecent: 49}, now).Flagged)
	assert.False(t, e.Check(domain.FraudCandidate{Amount: 100, Method: domain.MethodCard, MerchantRecent: -1}, now).Flagged)
}

func TestRuleEngine_ReasonsAreOrderedAndAdditive(t *testing.T) {
	now := time.Now()
	e := newEngine()

	recent := make([]domain.HistoryEntry, 5)
	for i := range recent {
		recent[i] = domain.HistoryEntry{Amount: 6_000_000, CreatedAt: now.Add(-time.Second)}
	}
	res := e.Check(domain.FraudCandidate{
		Amount:         6_000_000,
		Method:         domain.MethodUPI,
		VPA:            "nobank",
		Recent:         recent,
		MerchantRecent: 80,
	}, now)

	assert.True(t, res.Flagged)
	assert.Equal(t, []string{
		domain.ReasonHighValue,
		domain.ReasonDuplicateAmount,
		domain.ReasonHighFrequency,
		domain.ReasonInvalidVPA,
		domain.ReasonMerchantVelocity,
	}, res.Reasons)
	assert.Equal(t, "high_value,duplicate_amount,high_frequency,invalid_vpa,merchant_velocity", res.Reason())
}
