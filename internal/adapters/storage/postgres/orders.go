package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payflow/internal/core/domain"
)

const orderColumns = `id, order_ref, merchant_id, amount, currency, status, receipt, notes, attempts, expires_at, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.OrderRef, &o.MerchantID, &o.Amount, &o.Currency, &o.Status,
		&o.Receipt, &o.Notes, &o.Attempts, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.OrderRef, o.MerchantID, o.Amount, o.Currency, o.Status,
		o.Receipt, o.Notes, o.Attempts, o.ExpiresAt, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return storageErr("create order", err)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("get order", err, domain.ErrOrderNotFound)
	}
	return &o, nil
}

func (r *Repository) GetOrderByRef(ctx context.Context, ref string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_ref = $1`, ref))
	if err != nil {
		return nil, notFound("get order by ref", err, domain.ErrOrderNotFound)
	}
	return &o, nil
}

func (r *Repository) ListOrders(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE merchant_id = $1 ORDER BY created_at DESC LIMIT $2`,
		merchantID, limitOf(limit, 100))
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	return out, nil
}

func (r *Repository) UpdateOrder(ctx context.Context, id uuid.UUID, fn func(o *domain.Order) error) (*domain.Order, error) {
	var out domain.Order
	err := r.inTx(ctx, "update order", func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&o); err != nil {
			return err
		}
		if err := saveOrder(ctx, tx, &o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func lockOrder(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return o, notFound("lock order", err, domain.ErrOrderNotFound)
	}
	return o, nil
}

func saveOrder(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	_, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, attempts = $3, updated_at = $4 WHERE id = $1`,
		o.ID, o.Status, o.Attempts, o.UpdatedAt)
	if err != nil {
		return storageErr("save order", err)
	}
	return nil
}
