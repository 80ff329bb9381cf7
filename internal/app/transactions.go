package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
	"payflow/internal/observability"
)

// transactionService is the implementation of the TransactionService port.
type transactionService struct {
	repo    ports.TransactionRepository
	fraud   ports.FraudRuleEngine
	outcome ports.OutcomeSource
	cache   ports.Cache
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewTransactionService wires the legacy transaction flow.
func NewTransactionService(
	repo ports.TransactionRepository,
	fraud ports.FraudRuleEngine,
	outcome ports.OutcomeSource,
	cache ports.Cache,
	ttl time.Duration,
	logger *slog.Logger,
) ports.TransactionService {
	return &transactionService{
		repo:    repo,
		fraud:   fraud,
		outcome: outcome,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

func txnCacheKey(id uuid.UUID) string {
	return "txn:" + id.String()
}

func (s *transactionService) CreateTransaction(ctx context.Context, caller domain.Caller, req ports.CreateTransactionRequest) (*domain.Transaction, error) {
	method, err := domain.ParseLegacyMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	tx, err := domain.NewTransaction(caller.UserID, req.Amount, method, req.IdempotencyKey, now)
	if err != nil {
		return nil, err
	}

	result, replayed, err := guard(ctx, req.IdempotencyKey, s.repo.GetTransactionByIdempotencyKey, domain.ErrTransactionNotFound,
		func() (*domain.Transaction, error) {
			return tx, s.process(ctx, tx, now)
		})
	if err != nil {
		s.logger.Error("failed to create transaction", "idempotency_key", req.IdempotencyKey, "error", err)
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	if replayed {
		if result.UserID != caller.UserID {
			return nil, domain.ErrIdempotencyKeyReused
		}
		s.logger.Info("idempotent replay", "transaction_id", result.ID, "idempotency_key", req.IdempotencyKey)
		return result, nil
	}

	observability.RecordPayment("transaction", string(result.Status))
	observability.RecordFraudFlags(domain.SplitReasons(result.FlagReason))
	s.logger.Info("transaction processed",
		"transaction_id", result.ID,
		"status", result.Status,
		"is_flagged", result.IsFlagged,
		"flag_reason", result.FlagReason,
	)
	return result, nil
}

// process scores, settles and persists a new transaction. The record is written once, in
// its terminal state, so the unique idempotency key is the only serialization point.
func (s *transactionService) process(ctx context.Context, tx *domain.Transaction, now time.Time) error {
	recent, err := s.repo.RecentTransactions(ctx, tx.UserID, now.Add(-s.fraud.Window()))
	if err != nil {
		return err
	}
	candidate := domain.FraudCandidate{Amount: tx.Amount, Method: tx.Method, MerchantRecent: -1}
	for _, r := range recent {
		candidate.Recent = append(candidate.Recent, domain.HistoryEntry{Amount: r.Amount, CreatedAt: r.CreatedAt})
	}
	tx.Flag(s.fraud.Check(candidate, now))

	if err := tx.Begin(now); err != nil {
		return err
	}
	if err := tx.Complete(s.outcome.Approve(), now); err != nil {
		return err
	}
	return s.repo.SaveTransaction(ctx, tx)
}

func (s *transactionService) GetTransaction(ctx context.Context, caller domain.Caller, id uuid.UUID) (*domain.Transaction, error) {
	key := txnCacheKey(id)
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", "transaction_id", id, "error", err)
	}
	if ok {
		var tx domain.Transaction
		if err := json.Unmarshal(raw, &tx); err == nil {
			if !caller.CanActFor(tx.UserID) {
				return nil, domain.ErrForbidden
			}
			return &tx, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key)
	}

	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanActFor(tx.UserID) {
		return nil, domain.ErrForbidden
	}
	raw, err = json.Marshal(tx)
	if err != nil {
		s.logger.Warn("cache encode failed", "transaction_id", id, "error", err)
		return tx, nil
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("cache set failed", "transaction_id", id, "error", err)
	}
	return tx, nil
}

func (s *transactionService) ListMyTransactions(ctx context.Context, caller domain.Caller, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, ports.TransactionFilter{UserID: &caller.UserID, Limit: limit})
}

func (s *transactionService) RefundTransaction(ctx context.Context, caller domain.Caller, id uuid.UUID) (*domain.Transaction, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	now := s.now().UTC()
	tx, err := s.repo.UpdateTransaction(ctx, id, func(tx *domain.Transaction) error {
		return tx.Refund(caller, now)
	})
	if err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, txnCacheKey(id)); err != nil {
		s.logger.Warn("cache invalidate failed", "transaction_id", id, "error", err)
	}
	observability.RecordPayment("transaction", string(tx.Status))
	s.logger.Info("transaction refunded", "transaction_id", id, "admin_id", caller.UserID)
	return tx, nil
}

func (s *transactionService) ListTransactions(ctx context.Context, caller domain.Caller, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListTransactions(ctx, filter)
}

func (s *transactionService) Stats(ctx context.Context, caller domain.Caller) (domain.TransactionStats, error) {
	if !caller.IsAdmin() {
		return domain.TransactionStats{}, domain.ErrForbidden
	}
	return s.repo.TransactionStats(ctx)
}
