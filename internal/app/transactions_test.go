package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payflow/internal/adapters/storage/memory"
	"payflow/internal/antifraud"
	"payflow/internal/cache"
	"payflow/internal/config"
	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
	"payflow/internal/outcome"
)

type txFixture struct {
	store *memory.Store
	cache ports.Cache
	clock *clock
	svc   *transactionService
	user  domain.Caller
	admin domain.Caller
}

func newTxFixture(src ports.OutcomeSource) *txFixture {
	cfg := config.Default()
	store := memory.New()
	c := cache.NewFailover(nil, testLogger())
	clk := newClock()
	svc := NewTransactionService(store, antifraud.NewRuleEngine(cfg.AntiFraud), src, c, cfg.Cache.TTL(), testLogger()).(*transactionService)
	svc.now = clk.Now
	return &txFixture{
		store: store,
		cache: c,
		clock: clk,
		svc:   svc,
		user:  domain.Caller{UserID: uuid.New(), Role: domain.RoleUser},
		admin: domain.Caller{UserID: uuid.New(), Role: domain.RoleAdmin},
	}
}

func TestTransactionService_CreateTransaction_Success(t *testing.T) {
	// --- Arrange ---
	f := newTxFixture(outcome.Fixed(true))
	ctx := context.Background()

	// --- Act ---
	tx, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "UPI", IdempotencyKey: "k1"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, tx.Status)
	assert.Equal(t, domain.MethodUPI, tx.Method)
	assert.Equal(t, f.user.UserID, tx.UserID)
	assert.False(t, tx.IsFlagged)

	stored, err := f.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
}

func TestTransactionService_CreateTransaction_Failure(t *testing.T) {
	f := newTxFixture(outcome.Fixed(false))

	tx, err := f.svc.CreateTransaction(context.Background(), f.user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "card", IdempotencyKey: "k1"})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, tx.Status)
}

func TestTransactionService_CreateTransaction_Validation(t *testing.T) {
	f := newTxFixture(outcome.Fixed(true))
	ctx := context.Background()

	tests := []struct {
		name string
		req  ports.CreateTransactionRequest
		err  error
	}{
		{"zero amount", ports.CreateTransactionRequest{Amount: 0, PaymentMethod: "upi", IdempotencyKey: "a"}, domain.ErrInvalidAmount},
		{"negative amount", ports.CreateTransactionRequest{Amount: -50, PaymentMethod: "upi", IdempotencyKey: "a"}, domain.ErrInvalidAmount},
		{"wallet is gateway only", ports.CreateTransactionRequest{Amount: 10, PaymentMethod: "wallet", IdempotencyKey: "a"}, domain.ErrUnsupportedMethod},
		{"missing key", ports.CreateTransactionRequest{Amount: 10, PaymentMethod: "upi"}, domain.ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTransaction(ctx, f.user, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	all, err := f.store.ListTransactions(ctx, ports.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransactionService_IdempotentReplay(t *testing.T) {
	f := newTxFixture(outcome.NewSequence(true, false))
	ctx := context.Background()
	req := ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "same"}

	first, err := f.svc.CreateTransaction(ctx, f.user, req)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)
	second, err := f.svc.CreateTransaction(ctx, f.user, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.StatusSuccess, second.Status)
	assert.False(t, second.IsFlagged, "a replay is not re-evaluated by the fraud rules")

	all, err := f.store.ListTransactions(ctx, ports.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	other := domain.Caller{UserID: uuid.New(), Role: domain.RoleUser}
	_, err = f.svc.CreateTransaction(ctx, other, req)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
}

func TestTransactionService_IdempotentUnderConcurrency(t *testing.T) {
	f := newTxFixture(outcome.Fixed(true))
	ctx := context.Background()
	req := ports.CreateTransactionRequest{Amount: 2_500, PaymentMethod: "netbanking", IdempotencyKey: "race"}

	const n = 20
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := f.svc.CreateTransaction(ctx, f.user, req)
			if assert.NoError(t, err) {
				ids[i] = tx.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	all, err := f.store.ListTransactions(ctx, ports.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTransactionService_FraudRules(t *testing.T) {
	f := newTxFixture(outcome.Fixed(true))
	ctx := context.Background()

	first, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "d1"})
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	second, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "d2"})
	require.NoError(t, err)

	assert.False(t, first.IsFlagged)
	assert.True(t, second.IsFlagged)
	assert.Contains(t, domain.SplitReasons(second.FlagReason), domain.ReasonDuplicateAmount)
	assert.Equal(t, domain.StatusSuccess, second.Status, "flagging never blocks")

	big, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: 6_000_000, PaymentMethod: "card", IdempotencyKey: "hv"})
	require.NoError(t, err)
	assert.True(t, big.IsFlagged)
	assert.Equal(t, "high_value", big.FlagReason)

	// Another user's history does not count.
	other := domain.Caller{UserID: uuid.New(), Role: domain.RoleUser}
	theirs, err := f.svc.CreateTransaction(ctx, other, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "o1"})
	require.NoError(t, err)
	assert.False(t, theirs.IsFlagged)
}

func TestTransactionService_HighFrequency(t *testing.T) {
	f := newTxFixture(outcome.Fixed(true))
	ctx := context.Background()

	var last *domain.Transaction
	for i := 0; i < 6; i++ {
		tx, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{
			Amount:         int64(100 + i),
			PaymentMethod:  "card",
			IdempotencyKey: fmt.Sprintf("hf-%d", i),
		})
		require.NoError(t, err)
		last = tx
		f.clock.Advance(time.Second)
	}
	assert.Equal(t, "high_frequency", last.FlagReason)
}

func TestTransactionService_GetUsesCacheAndChecksOwner(t *testing.T) {
	f := newTxFixture(outcome.Fixed(true))
	ctx := context.Background()
	tx, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "g"})
	require.NoError(t, err)

	got, err := f.svc.GetTransaction(ctx, f.user, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	_, cached, _ := f.cache.Get(ctx, txnCacheKey(tx.ID))
	assert.True(t, cached)

	stranger := domain.Caller{UserID: uuid.New(), Role: domain.RoleUser}
	_, err = f.svc.GetTransaction(ctx, stranger, tx.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err = f.svc.GetTransaction(ctx, f.admin, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	_, err = f.svc.GetTransaction(ctx, f.admin, uuid.New())
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestTransactionService_GetSurvivesCacheErrors(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	down := errors.New("redis: connection refused")

	c := new(MockCache)
	c.On("Get", mock.Anything, mock.Anything).Return(nil, false, down)
	c.On("Set", mock.Anything, mock.Anything, mock.Anything, cfg.Cache.TTL()).Return(down)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	svc := NewTransactionService(store, antifraud.NewRuleEngine(cfg.AntiFraud), outcome.Fixed(true), c, cfg.Cache.TTL(), logger)

	user := domain.Caller{UserID: uuid.New(), Role: domain.RoleUser}
	ctx := context.Background()
	tx, err := svc.CreateTransaction(ctx, user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "cache-down"})
	require.NoError(t, err)

	got, err := svc.GetTransaction(ctx, user, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	assert.Contains(t, logs.String(), "cache get failed")
	assert.Contains(t, logs.String(), "cache set failed")
	assert.Contains(t, logs.String(), "transaction_id="+tx.ID.String())
	c.AssertCalled(t, "Set", mock.Anything, txnCacheKey(tx.ID), mock.Anything, cfg.Cache.TTL())
}

func TestTransactionService_Refund(t *testing.T) {
	f := newTxFixture(outcome.Fixed(true))
	ctx := context.Background()
	tx, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "r"})
	require.NoError(t, err)

	// Warm the cache with the success projection.
	_, err = f.svc.GetTransaction(ctx, f.user, tx.ID)
	require.NoError(t, err)

	_, err = f.svc.RefundTransaction(ctx, f.user, tx.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	refunded, err := f.svc.RefundTransaction(ctx, f.admin, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)

	got, err := f.svc.GetTransaction(ctx, f.user, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, got.Status, "cache was invalidated")

	_, err = f.svc.RefundTransaction(ctx, f.admin, tx.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "'refunded'")
}

func TestTransactionService_RefundFailedIsRejected(t *testing.T) {
	f := newTxFixture(outcome.Fixed(false))
	ctx := context.Background()
	tx, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: 1_000, PaymentMethod: "upi", IdempotencyKey: "rf"})
	require.NoError(t, err)

	_, err = f.svc.RefundTransaction(ctx, f.admin, tx.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransactionService_AdminViews(t *testing.T) {
	f := newTxFixture(outcome.NewSequence(true, false, true))
	ctx := context.Background()
	for i, amount := range []int64{1_000, 2_000, 6_000_000} {
		_, err := f.svc.CreateTransaction(ctx, f.user, ports.CreateTransactionRequest{Amount: amount, PaymentMethod: "card", IdempotencyKey: fmt.Sprintf("a%d", i)})
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)
	}

	stats, err := f.svc.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStats{
		TotalTransactions: 3,
		TotalAmount:       6_003_000,
		SuccessCount:      2,
		FailedCount:       1,
		FlaggedCount:      1,
	}, stats)

	flagged, err := f.svc.ListTransactions(ctx, f.admin, ports.TransactionFilter{FlaggedOnly: true})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, int64(6_000_000), flagged[0].Amount)

	mine, err := f.svc.ListMyTransactions(ctx, f.user, 2)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, int64(6_000_000), mine[0].Amount, "newest first")

	_, err = f.svc.Stats(ctx, f.user)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.ListTransactions(ctx, f.user, ports.TransactionFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
