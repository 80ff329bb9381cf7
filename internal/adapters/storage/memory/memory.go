// Package memory is an in-process Entity Store. A single mutex serializes every operation,
// which gives the closure-based updates the same atomicity the postgres store gets from
// row locks.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

type Store struct {
	mu sync.Mutex

	transactions map[uuid.UUID]domain.Transaction
	txByKey      map[string]uuid.UUID

	merchants       map[uuid.UUID]domain.Merchant
	merchantsByUser map[uuid.UUID]uuid.UUID
	apiKeys         map[string]domain.APIKey

	orders       map[uuid.UUID]domain.Order
	ordersByRef  map[string]uuid.UUID
	payments     map[uuid.UUID]domain.Payment
	paymentByRef map[string]uuid.UUID
	paymentByKey map[string]uuid.UUID
	refunds      map[uuid.UUID]domain.Refund

	webhookLogs []domain.WebhookLog
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		transactions:    make(map[uuid.UUID]domain.Transaction),
		txByKey:         make(map[string]uuid.UUID),
		merchants:       make(map[uuid.UUID]domain.Merchant),
		merchantsByUser: make(map[uuid.UUID]uuid.UUID),
		apiKeys:         make(map[string]domain.APIKey),
		orders:          make(map[uuid.UUID]domain.Order),
		ordersByRef:     make(map[string]uuid.UUID),
		payments:        make(map[uuid.UUID]domain.Payment),
		paymentByRef:    make(map[string]uuid.UUID),
		paymentByKey:    make(map[string]uuid.UUID),
		refunds:         make(map[uuid.UUID]domain.Refund),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

func limitOf(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// --- legacy transactions ---

func (s *Store) SaveTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txByKey[tx.IdempotencyKey]; ok {
		return domain.ErrIdempotencyKeyUsed
	}
	s.transactions[tx.ID] = *tx
	s.txByKey[tx.IdempotencyKey] = tx.ID
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &tx, nil
}

func (s *Store) GetTransactionByIdempotencyKey(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.txByKey[key]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	tx := s.transactions[id]
	return &tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id uuid.UUID, fn func(tx *domain.Transaction) error) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if err := fn(&tx); err != nil {
		return nil, err
	}
	s.transactions[id] = tx
	return &tx, nil
}

func (s *Store) ListTransactions(_ context.Context, f ports.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transaction, 0)
	for _, tx := range s.transactions {
		if f.UserID != nil && tx.UserID != *f.UserID {
			continue
		}
		if f.FlaggedOnly && !tx.IsFlagged {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if l := limitOf(f.Limit, 100); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

func (s *Store) RecentTransactions(_ context.Context, userID uuid.UUID, since time.Time) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID && !tx.CreatedAt.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) TransactionStats(context.Context) (domain.TransactionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.TransactionStats
	for _, tx := range s.transactions {
		st.TotalTransactions++
		st.TotalAmount += tx.Amount
		switch tx.Status {
		case domain.StatusSuccess:
			st.SuccessCount++
		case domain.StatusFailed:
			st.FailedCount++
		}
		if tx.IsFlagged {
			st.FlaggedCount++
		}
	}
	return st, nil
}

// --- merchants and keys ---

func (s *Store) CreateMerchant(_ context.Context, m *domain.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.merchantsByUser[m.UserID]; ok {
		return domain.ErrMerchantExists
	}
	for _, other := range s.merchants {
		if strings.EqualFold(other.BusinessEmail, m.BusinessEmail) {
			return domain.ErrMerchantExists
		}
	}
	s.merchants[m.ID] = *m
	s.merchantsByUser[m.UserID] = m.ID
	return nil
}

func (s *Store) GetMerchant(_ context.Context, id uuid.UUID) (*domain.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merchants[id]
	if !ok {
		return nil, domain.ErrMerchantNotFound
	}
	return &m, nil
}

func (s *Store) GetMerchantByUser(_ context.Context, userID uuid.UUID) (*domain.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.merchantsByUser[userID]
	if !ok {
		return nil, domain.ErrMerchantNotFound
	}
	m := s.merchants[id]
	return &m, nil
}

func (s *Store) UpdateMerchant(_ context.Context, m *domain.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.merchants[m.ID]; !ok {
		return domain.ErrMerchantNotFound
	}
	s.merchants[m.ID] = *m
	return nil
}

func (s *Store) ListMerchants(context.Context) ([]domain.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Merchant, 0, len(s.merchants))
	for _, m := range s.merchants {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateAPIKey(_ context.Context, k *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[k.KeyID]; ok {
		return domain.ErrIdempotencyKeyUsed
	}
	s.apiKeys[k.KeyID] = *k
	return nil
}

func (s *Store) GetAPIKey(_ context.Context, keyID string) (*domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[keyID]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	return &k, nil
}

func (s *Store) ListAPIKeys(_ context.Context, merchantID uuid.UUID) ([]domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.APIKey, 0)
	for _, k := range s.apiKeys {
		if k.MerchantID == merchantID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateAPIKey(_ context.Context, k *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[k.KeyID]; !ok {
		return domain.ErrAPIKeyNotFound
	}
	s.apiKeys[k.KeyID] = *k
	return nil
}

// --- orders ---

func (s *Store) CreateOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	s.ordersByRef[o.OrderRef] = o.ID
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (s *Store) GetOrderByRef(_ context.Context, ref string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ordersByRef[ref]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o := s.orders[id]
	return &o, nil
}

func (s *Store) ListOrders(_ context.Context, merchantID uuid.UUID, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if o.MerchantID == merchantID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if l := limitOf(limit, 100); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

func (s *Store) UpdateOrder(_ context.Context, id uuid.UUID, fn func(o *domain.Order) error) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if err := fn(&o); err != nil {
		return nil, err
	}
	s.orders[id] = o
	return &o, nil
}

// --- payments and refunds ---

func (s *Store) InsertPayment(_ context.Context, p *domain.Payment, fn func(o *domain.Order) error) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.IdempotencyKey != "" {
		if _, ok := s.paymentByKey[p.IdempotencyKey]; ok {
			return nil, domain.ErrIdempotencyKeyUsed
		}
	}
	o, ok := s.orders[p.OrderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if err := fn(&o); err != nil {
		return nil, err
	}
	s.orders[o.ID] = o
	s.payments[p.ID] = *p
	s.paymentByRef[p.PaymentRef] = p.ID
	if p.IdempotencyKey != "" {
		s.paymentByKey[p.IdempotencyKey] = p.ID
	}
	return &o, nil
}

func (s *Store) UpdatePayment(_ context.Context, id uuid.UUID, fn func(p *domain.Payment, o *domain.Order) error) (*domain.Payment, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, nil, domain.ErrPaymentNotFound
	}
	o, ok := s.orders[p.OrderID]
	if !ok {
		return nil, nil, domain.ErrOrderNotFound
	}
	if err := fn(&p, &o); err != nil {
		return nil, nil, err
	}
	s.payments[id] = p
	s.orders[o.ID] = o
	return &p, &o, nil
}

func (s *Store) InsertRefund(_ context.Context, r *domain.Refund, fn func(p *domain.Payment) error) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[r.PaymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	s.payments[p.ID] = p
	s.refunds[r.ID] = *r
	return &p, nil
}

func (s *Store) GetPaymentByRef(_ context.Context, ref string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.paymentByRef[ref]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	p := s.payments[id]
	return &p, nil
}

func (s *Store) GetPaymentByIdempotencyKey(_ context.Context, key string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.paymentByKey[key]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	p := s.payments[id]
	return &p, nil
}

func (s *Store) filterPayments(keep func(p *domain.Payment) bool) []domain.Payment {
	out := make([]domain.Payment, 0)
	for _, p := range s.payments {
		if keep(&p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) ListPaymentsByOrder(_ context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterPayments(func(p *domain.Payment) bool { return p.OrderID == orderID }), nil
}

func (s *Store) RecentOrderPayments(_ context.Context, orderID uuid.UUID, since time.Time) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterPayments(func(p *domain.Payment) bool {
		return p.OrderID == orderID && !p.CreatedAt.Before(since)
	}), nil
}

func (s *Store) CountMerchantPaymentsSince(_ context.Context, merchantID uuid.UUID, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.payments {
		if p.MerchantID == merchantID && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListFlaggedPayments(_ context.Context, limit int) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filterPayments(func(p *domain.Payment) bool { return p.IsFlagged })
	if l := limitOf(limit, 100); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

func (s *Store) ListRefunds(_ context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Refund, 0)
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func inWindow(t time.Time, q domain.ReportQuery) bool {
	return !t.Before(q.From) && t.Before(q.To)
}

func (s *Store) ListReportPayments(_ context.Context, q domain.ReportQuery) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterPayments(func(p *domain.Payment) bool {
		if q.MerchantID != nil && p.MerchantID != *q.MerchantID {
			return false
		}
		if !p.IsSettled() && p.Status != domain.PaymentFailed {
			return false
		}
		return inWindow(p.SettledAt(), q)
	}), nil
}

func (s *Store) ListReportRefunds(_ context.Context, q domain.ReportQuery) ([]domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Refund, 0)
	for _, r := range s.refunds {
		if q.MerchantID != nil && r.MerchantID != *q.MerchantID {
			continue
		}
		// Refunds of an authorization that was never captured moved no money.
		if p, ok := s.payments[r.PaymentID]; !ok || !p.IsSettled() {
			continue
		}
		if r.Status == domain.RefundProcessed && inWindow(r.CreatedAt, q) {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- webhook logs ---

func (s *Store) InsertWebhookLog(_ context.Context, l *domain.WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookLogs = append(s.webhookLogs, *l)
	return nil
}

func (s *Store) ListWebhookLogs(_ context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WebhookLog, 0)
	for i := len(s.webhookLogs) - 1; i >= 0; i-- {
		if s.webhookLogs[i].MerchantID == merchantID {
			out = append(out, s.webhookLogs[i])
		}
	}
	if l := limitOf(limit, 50); len(out) > l {
		out = out[:l]
	}
	return out, nil
}
