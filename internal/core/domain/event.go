package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a merchant-facing notification.
type EventType string

const (
	EventPaymentCaptured   EventType = "payment.captured"
	EventPaymentFailed     EventType = "payment.failed"
	EventPaymentAuthorized EventType = "payment.authorized"
	EventOrderPaid         EventType = "order.paid"
	EventRefundProcessed   EventType = "refund.processed"
)

// Event is what the core emits after a state change. Data is the merchant-visible payload.
type Event struct {
	Type       EventType
	MerchantID uuid.UUID
	Data       map[string]any
	OccurredAt time.Time
}

// WebhookLog is the append-only audit record of one delivery attempt.
type WebhookLog struct {
	ID             uuid.UUID
	MerchantID     uuid.UUID
	EventType      EventType
	Payload        string
	TargetURL      string
	ResponseStatus *int
	ResponseBody   string
	Success        bool
	CreatedAt      time.Time
}

// PaymentEvent returns the event emitted when a checkout or capture settles a payment.
func PaymentEvent(p *Payment, orderRef string, now time.Time) Event {
	t := EventPaymentFailed
	switch p.Status {
	case PaymentCaptured:
		t = EventPaymentCaptured
	case PaymentAuthorized:
		t = EventPaymentAuthorized
	}
	return Event{
		Type:       t,
		MerchantID: p.MerchantID,
		OccurredAt: now,
		Data: map[string]any{
			"payment_ref": p.PaymentRef,
			"order_ref":   orderRef,
			"amount":      p.Amount,
			"currency":    p.Currency,
			"method":      string(p.Method),
			"status":      string(p.Status),
			"is_flagged":  p.IsFlagged,
			"flag_reason": p.FlagReason,
		},
	}
}

func OrderPaidEvent(o *Order, paymentRef string, now time.Time) Event {
	return Event{
		Type:       EventOrderPaid,
		MerchantID: o.MerchantID,
		OccurredAt: now,
		Data: map[string]any{
			"order_ref":   o.OrderRef,
			"payment_ref": paymentRef,
			"amount":      o.Amount,
			"currency":    o.Currency,
			"attempts":    o.Attempts,
		},
	}
}

func RefundEvent(r *Refund, p *Payment, now time.Time) Event {
	return Event{
		Type:       EventRefundProcessed,
		MerchantID: p.MerchantID,
		OccurredAt: now,
		Data: map[string]any{
			"refund_ref":      r.RefundRef,
			"payment_ref":     p.PaymentRef,
			"amount":          r.Amount,
			"amount_refunded": p.AmountRefunded,
			"refund_status":   string(p.RefundStatus),
		},
	}
}
