package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

const transactionColumns = `id, user_id, amount, payment_method, status, idempotency_key, is_flagged, flag_reason, created_at, updated_at`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Method, &tx.Status, &tx.IdempotencyKey,
		&tx.IsFlagged, &tx.FlagReason, &tx.CreatedAt, &tx.UpdatedAt)
	return tx, err
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Transaction, error) {
		return scanTransaction(row)
	})
}

// SaveTransaction inserts a transaction in its final state. A taken idempotency key is
// reported as domain.ErrIdempotencyKeyUsed.
func (r *Repository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	const sql = `
		INSERT INTO transactions
		    (id, user_id, amount, payment_method, status, idempotency_key, is_flagged, flag_reason, created_at, updated_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, sql,
		tx.ID,
		tx.UserID,
		tx.Amount,
		tx.Method,
		tx.Status,
		tx.IdempotencyKey,
		tx.IsFlagged,
		tx.FlagReason,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return storageErr("failed to save transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdempotencyKeyUsed
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("get transaction", err, domain.ErrTransactionNotFound)
	}
	return &tx, nil
}

func (r *Repository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, notFound("get transaction by key", err, domain.ErrTransactionNotFound)
	}
	return &tx, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, id uuid.UUID, fn func(tx *domain.Transaction) error) (*domain.Transaction, error) {
	var out domain.Transaction
	err := r.inTx(ctx, "update transaction", func(dbtx pgx.Tx) error {
		tx, err := scanTransaction(dbtx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound("lock transaction", err, domain.ErrTransactionNotFound)
		}
		if err := fn(&tx); err != nil {
			return err
		}
		_, err = dbtx.Exec(ctx,
			`UPDATE transactions SET status = $2, is_flagged = $3, flag_reason = $4, updated_at = $5 WHERE id = $1`,
			tx.ID, tx.Status, tx.IsFlagged, tx.FlagReason, tx.UpdatedAt)
		if err != nil {
			return storageErr("update transaction", err)
		}
		out = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) ListTransactions(ctx context.Context, f ports.TransactionFilter) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE ($1::uuid IS NULL OR user_id = $1) AND (NOT $2 OR is_flagged)
		ORDER BY created_at DESC
		LIMIT $3`,
		f.UserID, f.FlaggedOnly, limitOf(f.Limit, 100))
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	out, err := collectTransactions(rows)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	return out, nil
}

func (r *Repository) RecentTransactions(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND created_at >= $2`,
		userID, since)
	if err != nil {
		return nil, storageErr("recent transactions", err)
	}
	out, err := collectTransactions(rows)
	if err != nil {
		return nil, storageErr("recent transactions", err)
	}
	return out, nil
}

func (r *Repository) TransactionStats(ctx context.Context) (domain.TransactionStats, error) {
	var st domain.TransactionStats
	err := r.pool.QueryRow(ctx, `
		SELECT
		    COUNT(*),
		    COALESCE(SUM(amount), 0),
		    COUNT(*) FILTER (WHERE status = 'success'),
		    COUNT(*) FILTER (WHERE status = 'failed'),
		    COUNT(*) FILTER (WHERE is_flagged)
		FROM transactions`).
		Scan(&st.TotalTransactions, &st.TotalAmount, &st.SuccessCount, &st.FailedCount, &st.FlaggedCount)
	if err != nil {
		return st, storageErr("transaction stats", err)
	}
	return st, nil
}
