package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"payflow/internal/core/domain"
)

// Source is the part of the Entity Store that feeds the reports.
type Source interface {
	ListReportPayments(ctx context.Context, q domain.ReportQuery) ([]domain.Payment, error)
	ListReportRefunds(ctx context.Context, q domain.ReportQuery) ([]domain.Refund, error)
}

const (
	DefaultLookbackDays = 30
	MaxLookbackDays     = 365
)

type RevenueReport struct {
	Period  Period          `json:"period"`
	Days    int             `json:"days"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Buckets []RevenueBucket `json:"buckets"`
	Total   RevenueBucket   `json:"total"`
}

type GSTReport struct {
	FinancialYear int       `json:"financial_year"`
	Label         string    `json:"label"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Lines         []GSTLine `json:"line_items"`
	Total         GSTLine   `json:"grand_total"`
}

// Service turns stored payments and refunds into revenue and tax reports.
type Service struct {
	src Source
	loc *time.Location
	now func() time.Time
}

func NewService(src Source, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{src: src, loc: loc, now: time.Now}
}

// Revenue reports the trailing days (1..365, 0 means 30) bucketed by period.
// A nil merchantID covers every merchant.
func (s *Service) Revenue(ctx context.Context, period string, days int, merchantID *uuid.UUID) (*RevenueReport, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if days == 0 {
		days = DefaultLookbackDays
	}
	if days < 1 || days > MaxLookbackDays {
		return nil, domain.ErrInvalidLookback
	}

	to := s.now().In(s.loc)
	from := to.AddDate(0, 0, -days)
	q := domain.ReportQuery{From: from, To: to, MerchantID: merchantID}

	payments, refunds, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	buckets, total := AggregateRevenue(payments, refunds, p, s.loc)
	return &RevenueReport{Period: p, Days: days, From: from, To: to, Buckets: buckets, Total: total}, nil
}

// GST reports the financial year starting in April of fy. fy == 0 means the year containing now.
func (s *Service) GST(ctx context.Context, fy int, merchantID *uuid.UUID) (*GSTReport, error) {
	if fy == 0 {
		fy = FinancialYearOf(s.now().In(s.loc))
	}
	if fy < 1970 || fy > 9998 {
		return nil, domain.ErrInvalidFinancialYear
	}

	from, to := FinancialYearBounds(fy, s.loc)
	payments, refunds, err := s.fetch(ctx, domain.ReportQuery{From: from, To: to, MerchantID: merchantID})
	if err != nil {
		return nil, err
	}
	lines, total := AggregateGST(fy, payments, refunds, s.loc)
	return &GSTReport{
		FinancialYear: fy,
		Label:         FinancialYearLabel(fy),
		From:          from,
		To:            to,
		Lines:         lines,
		Total:         total,
	}, nil
}

func (s *Service) fetch(ctx context.Context, q domain.ReportQuery) ([]domain.Payment, []domain.Refund, error) {
	payments, err := s.src.ListReportPayments(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payments: %w", err)
	}
	refunds, err := s.src.ListReportRefunds(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load refunds: %w", err)
	}
	return payments, refunds, nil
}
