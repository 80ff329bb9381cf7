package app

import (
	"context"
	"log/slog"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

// emitter fans events out to merchant webhooks and the event stream. Both are best-effort:
// by the time an event exists the state change is committed.
type emitter struct {
	notifier ports.Notifier
	broker   ports.MessageBroker
	logger   *slog.Logger
}

func (e emitter) emit(ctx context.Context, events ...domain.Event) {
	for _, ev := range events {
		if e.notifier != nil {
			e.notifier.Notify(ctx, ev)
		}
		if e.broker != nil {
			if err := e.broker.PublishEvent(ctx, ev); err != nil {
				e.logger.Warn("failed to publish event", "event", ev.Type, "merchant_id", ev.MerchantID, "error", err)
			}
		}
	}
}
