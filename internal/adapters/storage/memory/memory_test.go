package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payflow/internal/core/domain"
)

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func seedOrder(t *testing.T, s *Store, merchantID uuid.UUID, amount int64) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(merchantID, "pf_order_"+uuid.NewString()[:8], amount, "INR", "", "", time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, s.CreateOrder(context.Background(), o))
	return o
}

func TestStore_TransactionIdempotencyKeyIsUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx, err := domain.NewTransaction(uuid.New(), 100, domain.MethodUPI, "key-1", now)
	require.NoError(t, err)
	require.NoError(t, s.SaveTransaction(ctx, tx))

	dup, _ := domain.NewTransaction(uuid.New(), 200, domain.MethodCard, "key-1", now)
	assert.ErrorIs(t, s.SaveTransaction(ctx, dup), domain.ErrIdempotencyKeyUsed)

	got, err := s.GetTransactionByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	_, err = s.GetTransactionByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestStore_UpdateTransactionDiscardsOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx, _ := domain.NewTransaction(uuid.New(), 100, domain.MethodUPI, "key-1", now)
	require.NoError(t, s.SaveTransaction(ctx, tx))

	boom := errors.New("boom")
	_, err := s.UpdateTransaction(ctx, tx.ID, func(tx *domain.Transaction) error {
		tx.Status = domain.StatusFailed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestStore_MerchantUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := &domain.Merchant{ID: uuid.New(), UserID: uuid.New(), BusinessEmail: "ops@acme.test", CreatedAt: now}
	require.NoError(t, s.CreateMerchant(ctx, m))

	sameUser := &domain.Merchant{ID: uuid.New(), UserID: m.UserID, BusinessEmail: "other@acme.test"}
	assert.ErrorIs(t, s.CreateMerchant(ctx, sameUser), domain.ErrMerchantExists)

	sameEmail := &domain.Merchant{ID: uuid.New(), UserID: uuid.New(), BusinessEmail: "OPS@acme.test"}
	assert.ErrorIs(t, s.CreateMerchant(ctx, sameEmail), domain.ErrMerchantExists)

	got, err := s.GetMerchantByUser(ctx, m.UserID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	assert.ErrorIs(t, s.UpdateMerchant(ctx, &domain.Merchant{ID: uuid.New()}), domain.ErrMerchantNotFound)
}

func TestStore_InsertPayment(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := seedOrder(t, s, uuid.New(), 5000)

	p := domain.NewPayment(o, "pf_pay_1", domain.MethodCard, now)
	p.IdempotencyKey = "chk-1"
	require.NoError(t, p.Settle(true, domain.CaptureAuto, now))

	saved, err := s.InsertPayment(ctx, p, func(o *domain.Order) error {
		return o.RecordAttempt(true, now)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, saved.Status)

	byKey, err := s.GetPaymentByIdempotencyKey(ctx, "chk-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byKey.ID)

	// A rejected order mutation leaves neither the payment nor the order behind.
	second := domain.NewPayment(o, "pf_pay_2", domain.MethodUPI, now)
	_, err = s.InsertPayment(ctx, second, func(o *domain.Order) error {
		return o.RecordAttempt(true, now)
	})
	assert.ErrorIs(t, err, domain.ErrOrderAlreadyPaid)
	_, err = s.GetPaymentByRef(ctx, "pf_pay_2")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	stored, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)

	dup := domain.NewPayment(o, "pf_pay_3", domain.MethodUPI, now)
	dup.IdempotencyKey = "chk-1"
	_, err = s.InsertPayment(ctx, dup, func(*domain.Order) error { return nil })
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyUsed)
}

func TestStore_InsertRefund(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := seedOrder(t, s, uuid.New(), 1000)
	p := domain.NewPayment(o, "pf_pay_1", domain.MethodCard, now)
	require.NoError(t, p.Settle(true, domain.CaptureAuto, now))
	_, err := s.InsertPayment(ctx, p, func(o *domain.Order) error { return o.RecordAttempt(true, now) })
	require.NoError(t, err)

	refund := func(amount int64) error {
		r := &domain.Refund{ID: uuid.New(), PaymentID: p.ID, MerchantID: p.MerchantID, Status: domain.RefundProcessed, CreatedAt: now}
		_, err := s.InsertRefund(ctx, r, func(p *domain.Payment) error {
			applied, err := p.ApplyRefund(amount)
			r.Amount = applied
			return err
		})
		return err
	}

	require.NoError(t, refund(600))
	assert.ErrorIs(t, refund(500), domain.ErrRefundExceedsBalance)
	require.NoError(t, refund(0))

	refunds, err := s.ListRefunds(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)

	got, err := s.GetPaymentByRef(ctx, "pf_pay_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, got.Status)
	assert.Equal(t, int64(1000), got.AmountRefunded)
}

func TestStore_ReportFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	merchant := uuid.New()
	other := uuid.New()

	settle := func(merchantID uuid.UUID, success bool, at time.Time) {
		o := seedOrder(t, s, merchantID, 1000)
		p := domain.NewPayment(o, "pf_pay_"+uuid.NewString()[:8], domain.MethodUPI, at)
		require.NoError(t, p.Settle(success, domain.CaptureAuto, at))
		_, err := s.InsertPayment(ctx, p, func(o *domain.Order) error { return o.RecordAttempt(success, at) })
		require.NoError(t, err)
	}

	settle(merchant, true, now)
	settle(merchant, false, now.Add(time.Hour))
	settle(merchant, true, now.Add(-48*time.Hour))
	settle(other, true, now)

	// An unsettled manual-capture payment is excluded.
	o := seedOrder(t, s, merchant, 1000)
	pending := domain.NewPayment(o, "pf_pay_auth", domain.MethodCard, now)
	require.NoError(t, pending.Settle(true, domain.CaptureManual, now))
	_, err := s.InsertPayment(ctx, pending, func(o *domain.Order) error { return o.RecordAttempt(false, now) })
	require.NoError(t, err)

	q := domain.ReportQuery{From: now.Add(-time.Hour), To: now.Add(2 * time.Hour), MerchantID: &merchant}
	got, err := s.ListReportPayments(ctx, q)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	q.MerchantID = nil
	got, err = s.ListReportPayments(ctx, q)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_WebhookLogsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	merchant := uuid.New()

	for i := range 3 {
		require.NoError(t, s.InsertWebhookLog(ctx, &domain.WebhookLog{
			ID:         uuid.New(),
			MerchantID: merchant,
			EventType:  domain.EventPaymentCaptured,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.InsertWebhookLog(ctx, &domain.WebhookLog{ID: uuid.New(), MerchantID: uuid.New()}))

	logs, err := s.ListWebhookLogs(ctx, merchant, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, now.Add(2*time.Minute), logs[0].CreatedAt)
}
