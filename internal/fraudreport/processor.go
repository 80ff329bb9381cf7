// Package fraudreport turns payment events from the event stream into fraud analytics rows.
package fraudreport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"payflow/internal/adapters/messaging/kafka"
	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

// DeadLetterFunc hands a record that cannot be processed to the DLQ.
type DeadLetterFunc func(ctx context.Context, rec *kgo.Record)

type Processor struct {
	sink     ports.FraudReportSink
	dlqTopic string
	dlq      DeadLetterFunc
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessor(sink ports.FraudReportSink, dlqTopic string, dlq DeadLetterFunc, logger *slog.Logger) *Processor {
	return &Processor{
		sink:     sink,
		dlqTopic: dlqTopic,
		dlq:      dlq,
		logger:   logger,
		now:      time.Now,
	}
}

// Process handles one fetched batch. Undecodable records go to the DLQ and do not fail the
// batch; a sink error does, so the caller can skip committing offsets.
func (p *Processor) Process(ctx context.Context, records []*kgo.Record) (int, error) {
	reports := make([]domain.FraudReport, 0, len(records))
	for _, rec := range records {
		msg, err := kafka.Decode(rec.Value)
		if err != nil {
			p.logger.Error("failed to decode event, sending to DLQ", "topic", rec.Topic, "offset", rec.Offset, "error", err)
			p.dlq(ctx, kafka.DeadLetter(p.dlqTopic, rec, "unmarshal_error", err.Error()))
			continue
		}
		if r, ok := p.toReport(msg); ok {
			reports = append(reports, r)
		}
	}

	if err := p.sink.InsertFraudReports(ctx, reports); err != nil {
		return 0, fmt.Errorf("persist fraud reports: %w", err)
	}
	for _, r := range reports {
		p.logger.Info("fraud report stored", "payment_ref", r.PaymentRef, "merchant_id", r.MerchantID, "reasons", r.Reasons)
	}
	return len(reports), nil
}

// toReport keeps flagged payment events only.
func (p *Processor) toReport(msg kafka.EventMessage) (domain.FraudReport, bool) {
	if !strings.HasPrefix(string(msg.Type), "payment.") || !msg.Bool("is_flagged") {
		return domain.FraudReport{}, false
	}
	return domain.FraudReport{
		EventID:     msg.EventID,
		EventType:   msg.Type,
		MerchantID:  msg.MerchantID,
		PaymentRef:  msg.String("payment_ref"),
		OrderRef:    msg.String("order_ref"),
		Amount:      msg.Int("amount"),
		Currency:    msg.String("currency"),
		Method:      msg.String("method"),
		Status:      msg.String("status"),
		Reasons:     domain.SplitReasons(msg.String("flag_reason")),
		OccurredAt:  msg.OccurredAt,
		ProcessedAt: p.now().UTC(),
	}, true
}
