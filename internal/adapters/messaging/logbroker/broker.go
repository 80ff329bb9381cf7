// Package logbroker is the MessageBroker used when no Kafka cluster is configured. Events
// are written to the log instead of a topic.
package logbroker

import (
	"context"
	"log/slog"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

type Broker struct {
	logger *slog.Logger
}

var _ ports.MessageBroker = (*Broker)(nil)

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{logger: logger}
}

func (b *Broker) PublishEvent(_ context.Context, e domain.Event) error {
	b.logger.Debug("event published", "event", e.Type, "merchant_id", e.MerchantID, "data", e.Data)
	return nil
}

func (b *Broker) Close() {}
