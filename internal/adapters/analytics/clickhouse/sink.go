package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"payflow/internal/config"
	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

// Repeated evaluations of the same payment (checkout, then capture) collapse on merge.
const createFraudReports = `
	CREATE TABLE IF NOT EXISTS fraud_reports (
		event_id     UUID,
		event_type   LowCardinality(String),
		merchant_id  UUID,
		payment_ref  String,
		order_ref    String,
		amount       Int64,
		currency     LowCardinality(String),
		method       LowCardinality(String),
		status       LowCardinality(String),
		reasons      Array(String),
		occurred_at  DateTime64(3, 'UTC'),
		processed_at DateTime64(3, 'UTC')
	)
	ENGINE = ReplacingMergeTree(processed_at)
	ORDER BY (merchant_id, payment_ref)
`

// Sink writes fraud evaluations to ClickHouse.
type Sink struct {
	conn driver.Conn
}

var _ ports.FraudReportSink = (*Sink)(nil)

func Open(ctx context.Context, cfg config.ClickHouseConfig) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &Sink{conn: conn}, nil
}

func (s *Sink) Migrate(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createFraudReports); err != nil {
		return fmt.Errorf("create fraud_reports: %w", err)
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *Sink) Close() error {
	return s.conn.Close()
}

// InsertFraudReports writes all reports as a single batch.
func (s *Sink) InsertFraudReports(ctx context.Context, reports []domain.FraudReport) error {
	if len(reports) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO fraud_reports")
	if err != nil {
		return fmt.Errorf("prepare fraud report batch: %w", err)
	}
	for _, r := range reports {
		err := batch.Append(
			r.EventID,
			string(r.EventType),
			r.MerchantID,
			r.PaymentRef,
			r.OrderRef,
			r.Amount,
			r.Currency,
			r.Method,
			r.Status,
			r.Reasons,
			r.OccurredAt,
			r.ProcessedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append fraud report %s: %w", r.PaymentRef, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send fraud report batch: %w", err)
	}
	return nil
}

func (s *Sink) RecentFraudReports(ctx context.Context, limit int) ([]domain.FraudReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(ctx, `
		SELECT event_id, event_type, merchant_id, payment_ref, order_ref, amount, currency, method, status,
		       reasons, occurred_at, processed_at
		FROM fraud_reports FINAL
		ORDER BY processed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fraud reports: %w", err)
	}
	defer rows.Close()

	var out []domain.FraudReport
	for rows.Next() {
		var (
			r         domain.FraudReport
			eventType string
		)
		if err := rows.Scan(&r.EventID, &eventType, &r.MerchantID, &r.PaymentRef, &r.OrderRef, &r.Amount,
			&r.Currency, &r.Method, &r.Status, &r.Reasons, &r.OccurredAt, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan fraud report: %w", err)
		}
		r.EventType = domain.EventType(eventType)
		out = append(out, r)
	}
	return out, rows.Err()
}
