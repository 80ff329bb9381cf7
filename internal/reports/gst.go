package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"payflow/internal/core/domain"
)

// Each of CGST and SGST is charged at 9% of the net taxable amount.
var halfGSTRate = decimal.RequireFromString("0.09")

// GSTLine is one month of the tax report. Amounts are minor units. IGST mirrors TotalTax
// for inter-state display and is not computed separately.
type GSTLine struct {
	Month        string `json:"month"`
	PaymentCount int    `json:"payment_count"`
	RefundCount  int    `json:"refund_count"`
	Gross        int64  `json:"gross"`
	Refunds      int64  `json:"refunds"`
	NetTaxable   int64  `json:"net_taxable"`
	CGST         int64  `json:"cgst"`
	SGST         int64  `json:"sgst"`
	TotalTax     int64  `json:"total_tax"`
	IGST         int64  `json:"igst"`
	TotalWithTax int64  `json:"total_with_tax"`
}

// HalfTax is floor(net × 9%). Negative nets floor towards negative infinity.
func HalfTax(net int64) int64 {
	return decimal.NewFromInt(net).Mul(halfGSTRate).Floor().IntPart()
}

func (l *GSTLine) compute() {
	l.NetTaxable = l.Gross - l.Refunds
	l.CGST = HalfTax(l.NetTaxable)
	l.SGST = HalfTax(l.NetTaxable)
	l.TotalTax = l.CGST + l.SGST
	l.IGST = l.TotalTax
	l.TotalWithTax = l.NetTaxable + l.TotalTax
}

// FinancialYearOf returns the start year of the April–March financial year containing t.
func FinancialYearOf(t time.Time) int {
	if t.Month() >= time.April {
		return t.Year()
	}
	return t.Year() - 1
}

// FinancialYearBounds returns [April 1 fy, April 1 fy+1) in loc.
func FinancialYearBounds(fy int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(fy, time.April, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(1, 0, 0)
}

func FinancialYearLabel(fy int) string {
	return fmt.Sprintf("FY %d-%02d", fy, (fy+1)%100)
}

// AggregateGST always returns twelve lines, April of fy through March of fy+1. Tax is
// floored per month; the totals row sums the monthly lines rather than recomputing.
func AggregateGST(fy int, payments []domain.Payment, refunds []domain.Refund, loc *time.Location) ([]GSTLine, GSTLine) {
	if loc == nil {
		loc = time.UTC
	}
	from, to := FinancialYearBounds(fy, loc)

	lines := make([]GSTLine, 12)
	index := make(map[string]int, 12)
	for i := range lines {
		m := from.AddDate(0, i, 0).Format("2006-01")
		lines[i].Month = m
		index[m] = i
	}
	within := func(t time.Time) (int, bool) {
		if t.Before(from) || !t.Before(to) {
			return 0, false
		}
		i, ok := index[t.In(loc).Format("2006-01")]
		return i, ok
	}

	for i := range payments {
		p := &payments[i]
		if !p.IsSettled() {
			continue
		}
		if idx, ok := within(p.SettledAt()); ok {
			lines[idx].Gross += p.Amount
			lines[idx].PaymentCount++
		}
	}
	for _, r := range refunds {
		if idx, ok := within(r.CreatedAt); ok {
			lines[idx].Refunds += r.Amount
			lines[idx].RefundCount++
		}
	}

	total := GSTLine{Month: "total"}
	for i := range lines {
		lines[i].compute()
		l := lines[i]
		total.PaymentCount += l.PaymentCount
		total.RefundCount += l.RefundCount
		total.Gross += l.Gross
		total.Refunds += l.Refunds
		total.NetTaxable += l.NetTaxable
		total.CGST += l.CGST
		total.SGST += l.SGST
		total.TotalTax += l.TotalTax
		total.IGST += l.IGST
		total.TotalWithTax += l.TotalWithTax
	}
	return lines, total
}

// FormatMinor renders minor units as a two-decimal major-unit string.
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
