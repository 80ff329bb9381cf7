package antifraud

import (
	"strings"
	"time"

	"payflow/internal/config"
	"payflow/internal/core/domain"
)

// RuleEngine implements the FraudRuleEngine interface with a fixed, ordered rule set.
// It keeps no state: the caller supplies the owner's recent history.
type RuleEngine struct {
	cfg config.AntiFraudConfig
}

// NewRuleEngine creates a new engine with the given thresholds.
func NewRuleEngine(cfg config.AntiFraudConfig) *RuleEngine {
	return &RuleEngine{cfg: cfg}
}

// Window is the trailing window the history passed to Check must cover.
func (e *RuleEngine) Window() time.Duration {
	return e.cfg.Window()
}

// Check evaluates every rule and reports all triggered reasons in evaluation order.
func (e *RuleEngine) Check(c domain.FraudCandidate, now time.Time) domain.FraudResult {
	var reasons []string

	// Rule 1: amount above the high-value threshold.
	if c.Amount > e.cfg.AmountThreshold {
		reasons = append(reasons, domain.ReasonHighValue)
	}

	// Rules 2 and 3 only look at history inside [now - window, now].
	since := now.Add(-e.Window())
	var recent, sameAmount int
	for _, h := range c.Recent {
		if h.CreatedAt.Before(since) || h.CreatedAt.After(now) {
			continue
		}
		recent++
		if h.Amount == c.Amount {
			sameAmount++
		}
	}
	if sameAmount > 0 {
		reasons = append(reasons, domain.ReasonDuplicateAmount)
	}
	if recent >= e.cfg.FrequencyThreshold {
		reasons = append(reasons, domain.ReasonHighFrequency)
	}

	// Rule 4: a UPI VPA must look like handle@bank.
	if c.Method == domain.MethodUPI && c.VPA != "" && !strings.Contains(c.VPA, "@") {
		reasons = append(reasons, domain.ReasonInvalidVPA)
	}

	// Rule 5: merchant-wide velocity, gateway payments only.
	if c.MerchantRecent >= 0 && c.MerchantRecent >= e.cfg.MerchantVelocityThreshold {
		reasons = append(reasons, domain.ReasonMerchantVelocity)
	}

	return domain.FraudResult{Flagged: len(reasons) > 0, Reasons: reasons}
}
