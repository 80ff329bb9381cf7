package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
	"payflow/internal/observability"
)

// GatewayDeps groups the collaborators of the gateway service.
type GatewayDeps struct {
	Store    ports.Store
	Fraud    ports.FraudRuleEngine
	Outcome  ports.OutcomeSource
	Cache    ports.Cache
	Notifier ports.Notifier
	Broker   ports.MessageBroker
	Logger   *slog.Logger
	CacheTTL time.Duration
	OrderTTL time.Duration
}

type gatewayService struct {
	store    ports.Store
	fraud    ports.FraudRuleEngine
	outcome  ports.OutcomeSource
	cache    ports.Cache
	events   emitter
	logger   *slog.Logger
	cacheTTL time.Duration
	orderTTL time.Duration
	now      func() time.Time
}

func NewGatewayService(d GatewayDeps) ports.GatewayService {
	return &gatewayService{
		store:    d.Store,
		fraud:    d.Fraud,
		outcome:  d.Outcome,
		cache:    d.Cache,
		events:   emitter{notifier: d.Notifier, broker: d.Broker, logger: d.Logger},
		logger:   d.Logger,
		cacheTTL: d.CacheTTL,
		orderTTL: d.OrderTTL,
		now:      time.Now,
	}
}

func paymentCacheKey(ref string) string {
	return "pay:" + ref
}

// --- orders ---

func (s *gatewayService) CreateOrder(ctx context.Context, merchant *domain.Merchant, req ports.CreateOrderRequest) (*domain.Order, error) {
	o, err := domain.NewOrder(merchant.ID, newOrderRef(), req.Amount, req.Currency, req.Receipt, req.Notes, s.orderTTL, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("order created", "order_ref", o.OrderRef, "merchant_id", merchant.ID, "amount", o.Amount, "currency", o.Currency)
	return o, nil
}

// ownOrder loads an order by ref and hides other merchants' orders behind not-found.
func (s *gatewayService) ownOrder(ctx context.Context, merchant *domain.Merchant, ref string) (*domain.Order, error) {
	o, err := s.store.GetOrderByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if o.MerchantID != merchant.ID {
		return nil, domain.ErrOrderNotFound
	}
	return s.expireIfDue(ctx, o)
}

// expireIfDue applies the lazy created|attempted → expired transition.
func (s *gatewayService) expireIfDue(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	now := s.now().UTC()
	if !o.DueForExpiry(now) {
		return o, nil
	}
	updated, err := s.store.UpdateOrder(ctx, o.ID, func(cur *domain.Order) error {
		if !cur.DueForExpiry(now) {
			return nil
		}
		return cur.Expire(now)
	})
	if err != nil {
		return nil, err
	}
	if updated.Status == domain.OrderExpired {
		s.logger.Info("order expired", "order_ref", updated.OrderRef)
	}
	return updated, nil
}

func (s *gatewayService) GetOrder(ctx context.Context, merchant *domain.Merchant, orderRef string) (*domain.Order, error) {
	return s.ownOrder(ctx, merchant, orderRef)
}

func (s *gatewayService) ListOrders(ctx context.Context, merchant *domain.Merchant, limit int) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, merchant.ID, limit)
}

func (s *gatewayService) ListOrderPayments(ctx context.Context, merchant *domain.Merchant, orderRef string) ([]domain.Payment, error) {
	o, err := s.ownOrder(ctx, merchant, orderRef)
	if err != nil {
		return nil, err
	}
	return s.store.ListPaymentsByOrder(ctx, o.ID)
}

// --- checkout ---

func (s *gatewayService) SubmitCheckout(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutResult, error) {
	method, err := domain.ParseGatewayMethod(req.Method)
	if err != nil {
		return nil, err
	}
	mode := req.CaptureMode
	switch mode {
	case "":
		mode = domain.CaptureAuto
	case domain.CaptureAuto, domain.CaptureManual:
	default:
		return nil, domain.ErrInvalidCaptureMode
	}
	if method == domain.MethodCard && req.CardNumber != "" && !isValidCard(req.CardNumber) {
		return nil, domain.ErrInvalidCard
	}

	order, err := s.store.GetOrderByRef(ctx, req.OrderRef)
	if err != nil {
		return nil, err
	}

	var settledOrder *domain.Order
	payment, replayed, err := guard(ctx, req.IdempotencyKey, s.store.GetPaymentByIdempotencyKey, domain.ErrPaymentNotFound,
		func() (*domain.Payment, error) {
			p, o, err := s.charge(ctx, order, method, mode, req)
			settledOrder = o
			return p, err
		})
	if err != nil {
		return nil, err
	}

	if replayed {
		if payment.OrderID != order.ID {
			return nil, domain.ErrIdempotencyKeyReused
		}
		o, err := s.store.GetOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("idempotent replay", "payment_ref", payment.PaymentRef, "idempotency_key", req.IdempotencyKey)
		return &ports.CheckoutResult{Payment: payment, Order: o, Replayed: true}, nil
	}

	observability.RecordPayment("payment", string(payment.Status))
	observability.RecordFraudFlags(domain.SplitReasons(payment.FlagReason))
	s.logger.Info("payment processed",
		"payment_ref", payment.PaymentRef,
		"order_ref", settledOrder.OrderRef,
		"status", payment.Status,
		"is_flagged", payment.IsFlagged,
		"flag_reason", payment.FlagReason,
	)

	s.cachePayment(ctx, payment)
	now := s.now().UTC()
	events := []domain.Event{domain.PaymentEvent(payment, settledOrder.OrderRef, now)}
	if settledOrder.Status == domain.OrderPaid {
		events = append(events, domain.OrderPaidEvent(settledOrder, payment.PaymentRef, now))
	}
	s.events.emit(ctx, events...)

	return &ports.CheckoutResult{Payment: payment, Order: settledOrder}, nil
}

// charge runs the fraud rules and the outcome draw and stores the payment together with the
// order's attempt counter. The order's payable guard is re-checked under the store's lock so
// two racing submissions cannot both pay it, and neither can pay an order that expired mid-charge.
func (s *gatewayService) charge(ctx context.Context, order *domain.Order, method domain.PaymentMethod, mode domain.CaptureMode, req ports.CheckoutRequest) (*domain.Payment, *domain.Order, error) {
	order, err := s.expireIfDue(ctx, order)
	if err != nil {
		return nil, nil, err
	}
	if err := order.CheckPayable(); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	since := now.Add(-s.fraud.Window())
	recent, err := s.store.RecentOrderPayments(ctx, order.ID, since)
	if err != nil {
		return nil, nil, err
	}
	merchantRecent, err := s.store.CountMerchantPaymentsSince(ctx, order.MerchantID, since)
	if err != nil {
		return nil, nil, err
	}
	candidate := domain.FraudCandidate{Amount: order.Amount, Method: method, VPA: req.VPA, MerchantRecent: merchantRecent}
	for _, r := range recent {
		candidate.Recent = append(candidate.Recent, domain.HistoryEntry{Amount: r.Amount, CreatedAt: r.CreatedAt})
	}

	p := domain.NewPayment(order, newPaymentRef(), method, now)
	p.IdempotencyKey = req.IdempotencyKey
	p.Email = req.Email
	p.Contact = req.Contact
	switch method {
	case domain.MethodUPI:
		p.VPA = req.VPA
	case domain.MethodCard:
		p.CardMasked, p.CardNetwork = domain.MaskCard(req.CardNumber)
	}
	p.Flag(s.fraud.Check(candidate, now))
	if err := p.Settle(s.outcome.Approve(), mode, now); err != nil {
		return nil, nil, err
	}

	updated, err := s.store.InsertPayment(ctx, p, func(o *domain.Order) error {
		// The TTL may have run out while the outcome was drawn.
		if o.DueForExpiry(s.now().UTC()) {
			return domain.ErrOrderExpired
		}
		return o.RecordAttempt(p.Status == domain.PaymentCaptured, now)
	})
	if err != nil {
		return nil, nil, err
	}
	return p, updated, nil
}

// --- payments ---

func (s *gatewayService) cachePayment(ctx context.Context, p *domain.Payment) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, paymentCacheKey(p.PaymentRef), raw, s.cacheTTL); err != nil {
		s.logger.Warn("cache set failed", "payment_ref", p.PaymentRef, "error", err)
	}
}

func (s *gatewayService) invalidatePayment(ctx context.Context, ref string) {
	if err := s.cache.Invalidate(ctx, paymentCacheKey(ref)); err != nil {
		s.logger.Warn("cache invalidate failed", "payment_ref", ref, "error", err)
	}
}

func (s *gatewayService) ownPayment(ctx context.Context, merchant *domain.Merchant, ref string) (*domain.Payment, error) {
	p, err := s.store.GetPaymentByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.MerchantID != merchant.ID {
		return nil, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (s *gatewayService) GetPayment(ctx context.Context, merchant *domain.Merchant, paymentRef string) (*domain.Payment, error) {
	if raw, ok, _ := s.cache.Get(ctx, paymentCacheKey(paymentRef)); ok {
		var p domain.Payment
		if err := json.Unmarshal(raw, &p); err == nil {
			if p.MerchantID != merchant.ID {
				return nil, domain.ErrPaymentNotFound
			}
			return &p, nil
		}
	}
	p, err := s.ownPayment(ctx, merchant, paymentRef)
	if err != nil {
		return nil, err
	}
	s.cachePayment(ctx, p)
	return p, nil
}

func (s *gatewayService) CapturePayment(ctx context.Context, merchant *domain.Merchant, paymentRef string) (*domain.Payment, error) {
	p, err := s.ownPayment(ctx, merchant, paymentRef)
	if err != nil {
		return nil, err
	}
	order, err := s.store.GetOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	// An authorization does not outlive its order.
	if _, err := s.expireIfDue(ctx, order); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	captured, order, err := s.store.UpdatePayment(ctx, p.ID, func(p *domain.Payment, o *domain.Order) error {
		if err := p.Capture(now); err != nil {
			return err
		}
		return o.MarkPaid(now)
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePayment(ctx, paymentRef)

	observability.RecordPayment("payment", string(captured.Status))
	s.logger.Info("payment captured", "payment_ref", paymentRef, "order_ref", order.OrderRef)
	s.events.emit(ctx,
		domain.PaymentEvent(captured, order.OrderRef, now),
		domain.OrderPaidEvent(order, captured.PaymentRef, now),
	)
	return captured, nil
}

func (s *gatewayService) RefundPayment(ctx context.Context, merchant *domain.Merchant, paymentRef string, req ports.RefundRequest) (*domain.Refund, *domain.Payment, error) {
	if req.Amount < 0 {
		return nil, nil, domain.ErrInvalidRefundAmount
	}
	p, err := s.ownPayment(ctx, merchant, paymentRef)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	r := &domain.Refund{
		ID:          uuid.New(),
		RefundRef:   newRefundRef(),
		PaymentID:   p.ID,
		MerchantID:  p.MerchantID,
		Reason:      strings.TrimSpace(req.Reason),
		Notes:       req.Notes,
		Status:      domain.RefundProcessed,
		CreatedAt:   now,
		ProcessedAt: &now,
	}
	updated, err := s.store.InsertRefund(ctx, r, func(p *domain.Payment) error {
		applied, err := p.ApplyRefund(req.Amount)
		if err != nil {
			return err
		}
		r.Amount = applied
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.invalidatePayment(ctx, paymentRef)

	observability.RecordRefund(r.Amount)
	s.logger.Info("refund processed",
		"refund_ref", r.RefundRef,
		"payment_ref", paymentRef,
		"amount", r.Amount,
		"refund_status", updated.RefundStatus,
	)
	s.events.emit(ctx, domain.RefundEvent(r, updated, now))
	return r, updated, nil
}

func (s *gatewayService) ListRefunds(ctx context.Context, merchant *domain.Merchant, paymentRef string) ([]domain.Refund, error) {
	p, err := s.ownPayment(ctx, merchant, paymentRef)
	if err != nil {
		return nil, err
	}
	return s.store.ListRefunds(ctx, p.ID)
}

func (s *gatewayService) ListWebhookLogs(ctx context.Context, merchant *domain.Merchant, limit int) ([]domain.WebhookLog, error) {
	return s.store.ListWebhookLogs(ctx, merchant.ID, limit)
}

func (s *gatewayService) ListFlaggedPayments(ctx context.Context, caller domain.Caller, limit int) ([]domain.Payment, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.store.ListFlaggedPayments(ctx, limit)
}

// isValidCard validates a card number using the Luhn algorithm
func isValidCard(cardNum string) bool {
	cardNum = strings.NewReplacer(" ", "", "-", "").Replace(cardNum)
	if len(cardNum) < 12 || len(cardNum) > 19 {
		return false
	}

	sum := 0
	isSecond := false

	// Process digits from right to left
	for i := len(cardNum) - 1; i >= 0; i-- {
		digit, err := strconv.Atoi(string(cardNum[i]))
		if err != nil {
			return false
		}

		if isSecond {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		isSecond = !isSecond
	}

	return sum%10 == 0
}
