package reports

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"payflow/internal/core/domain"
)

// Period is the bucket granularity of a revenue report.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// ParsePeriod accepts daily, weekly or monthly. Empty means daily.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return Daily, nil
	case Daily, Weekly, Monthly:
		return p, nil
	}
	return "", domain.ErrInvalidPeriod
}

// Key returns the bucket a timestamp falls into. Keys sort lexically in time order.
func (p Period) Key(t time.Time) string {
	switch p {
	case Weekly:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case Monthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// RevenueBucket holds the figures of one period. Amounts are minor units.
type RevenueBucket struct {
	Period           string  `json:"period"`
	GMV              int64   `json:"gmv"`
	Refunds          int64   `json:"refunds"`
	NetRevenue       int64   `json:"net_revenue"`
	TransactionCount int     `json:"transaction_count"`
	SuccessCount     int     `json:"success_count"`
	FailedCount      int     `json:"failed_count"`
	RefundCount      int     `json:"refund_count"`
	SuccessRate      float64 `json:"success_rate"`
	RefundRate       float64 `json:"refund_rate"`
}

func (b *RevenueBucket) add(o RevenueBucket) {
	b.GMV += o.GMV
	b.Refunds += o.Refunds
	b.SuccessCount += o.SuccessCount
	b.FailedCount += o.FailedCount
	b.RefundCount += o.RefundCount
}

func (b *RevenueBucket) finalize() {
	b.NetRevenue = b.GMV - b.Refunds
	b.TransactionCount = b.SuccessCount + b.FailedCount
	b.SuccessRate = ratio(b.SuccessCount, b.TransactionCount)
	b.RefundRate = ratio(b.RefundCount, b.TransactionCount)
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// AggregateRevenue buckets captured and failed payments by their settlement instant and
// refunds by creation time. Payments that were never captured, including authorizations
// released by a refund, are ignored.
func AggregateRevenue(payments []domain.Payment, refunds []domain.Refund, period Period, loc *time.Location) ([]RevenueBucket, RevenueBucket) {
	if loc == nil {
		loc = time.UTC
	}
	byKey := make(map[string]*RevenueBucket)
	bucket := func(t time.Time) *RevenueBucket {
		k := period.Key(t.In(loc))
		b, ok := byKey[k]
		if !ok {
			b = &RevenueBucket{Period: k}
			byKey[k] = b
		}
		return b
	}

	for i := range payments {
		p := &payments[i]
		switch {
		case p.IsSettled():
			b := bucket(p.SettledAt())
			b.GMV += p.Amount
			b.SuccessCount++
		case p.Status == domain.PaymentFailed:
			bucket(p.SettledAt()).FailedCount++
		}
	}
	for _, r := range refunds {
		b := bucket(r.CreatedAt)
		b.Refunds += r.Amount
		b.RefundCount++
	}

	buckets := make([]RevenueBucket, 0, len(byKey))
	total := RevenueBucket{Period: "total"}
	for _, b := range byKey {
		b.finalize()
		total.add(*b)
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Period < buckets[j].Period })
	total.finalize()
	return buckets, total
}
