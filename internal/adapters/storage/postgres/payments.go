package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payflow/internal/core/domain"
)

const paymentColumns = `id, payment_ref, order_id, merchant_id, amount, currency, method, status, email, contact, vpa,
	card_masked, card_network, amount_refunded, refund_status, is_flagged, flag_reason, idempotency_key, created_at, captured_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.PaymentRef, &p.OrderID, &p.MerchantID, &p.Amount, &p.Currency, &p.Method,
		&p.Status, &p.Email, &p.Contact, &p.VPA, &p.CardMasked, &p.CardNetwork, &p.AmountRefunded,
		&p.RefundStatus, &p.IsFlagged, &p.FlagReason, &p.IdempotencyKey, &p.CreatedAt, &p.CapturedAt)
	return p, err
}

func (r *Repository) queryPayments(ctx context.Context, op, sql string, args ...any) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Payment, error) {
		return scanPayment(row)
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// InsertPayment locks the order, rejects a taken idempotency key, lets fn apply the attempt
// and writes the payment and the order in one transaction.
func (r *Repository) InsertPayment(ctx context.Context, p *domain.Payment, fn func(o *domain.Order) error) (*domain.Order, error) {
	var out domain.Order
	err := r.inTx(ctx, "insert payment", func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		// The order lock serializes attempts on this order, so a concurrent winner with the
		// same key is visible here.
		if p.IdempotencyKey != "" {
			var taken bool
			err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE idempotency_key = $1)`, p.IdempotencyKey).Scan(&taken)
			if err != nil {
				return storageErr("check idempotency key", err)
			}
			if taken {
				return domain.ErrIdempotencyKeyUsed
			}
		}
		if err := fn(&o); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO payments (`+paymentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			p.ID, p.PaymentRef, p.OrderID, p.MerchantID, p.Amount, p.Currency, p.Method, p.Status,
			p.Email, p.Contact, p.VPA, p.CardMasked, p.CardNetwork, p.AmountRefunded, p.RefundStatus,
			p.IsFlagged, p.FlagReason, p.IdempotencyKey, p.CreatedAt, p.CapturedAt)
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyKeyUsed
		}
		if err != nil {
			return storageErr("insert payment", err)
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

func (r *Repository) UpdatePayment(ctx context.Context, id uuid.UUID, fn func(p *domain.Payment, o *domain.Order) error) (*domain.Payment, *domain.Order, error) {
	var (
		outP domain.Payment
		outO domain.Order
	)
	err := r.inTx(ctx, "update payment", func(tx pgx.Tx) error {
		p, err := lockPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		o, err := lockOrder(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		if err := fn(&p, &o); err != nil {
			return err
		}
		if err := savePayment(ctx, tx, &p); err != nil {
			return err
		}
		if err := saveOrder(ctx, tx, &o); err != nil {
			return err
		}
		outP, outO = p, o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &outP, &outO, nil
}

func (r *Repository) InsertRefund(ctx context.Context, ref *domain.Refund, fn func(p *domain.Payment) error) (*domain.Payment, error) {
	var out domain.Payment
	err := r.inTx(ctx, "insert refund", func(tx pgx.Tx) error {
		p, err := lockPayment(ctx, tx, ref.PaymentID)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		if err := savePayment(ctx, tx, &p); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO refunds (`+refundColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			ref.ID, ref.RefundRef, ref.PaymentID, ref.MerchantID, ref.Amount, ref.Reason, ref.Notes,
			ref.Status, ref.CreatedAt, ref.ProcessedAt)
		if err != nil {
			return storageErr("insert refund", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func lockPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return p, notFound("lock payment", err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func savePayment(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, amount_refunded = $3, refund_status = $4, is_flagged = $5, flag_reason = $6, captured_at = $7
		WHERE id = $1`,
		p.ID, p.Status, p.AmountRefunded, p.RefundStatus, p.IsFlagged, p.FlagReason, p.CapturedAt)
	if err != nil {
		return storageErr("save payment", err)
	}
	return nil
}

func (r *Repository) GetPaymentByRef(ctx context.Context, ref string) (*domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_ref = $1`, ref))
	if err != nil {
		return nil, notFound("get payment", err, domain.ErrPaymentNotFound)
	}
	return &p, nil
}

func (r *Repository) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1 AND idempotency_key <> ''`, key))
	if err != nil {
		return nil, notFound("get payment by key", err, domain.ErrPaymentNotFound)
	}
	return &p, nil
}

func (r *Repository) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	return r.queryPayments(ctx, "list order payments",
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
}

func (r *Repository) RecentOrderPayments(ctx context.Context, orderID uuid.UUID, since time.Time) ([]domain.Payment, error) {
	return r.queryPayments(ctx, "recent order payments",
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 AND created_at >= $2 ORDER BY created_at DESC`,
		orderID, since)
}

func (r *Repository) CountMerchantPaymentsSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE merchant_id = $1 AND created_at >= $2`, merchantID, since).Scan(&n)
	if err != nil {
		return 0, storageErr("count merchant payments", err)
	}
	return n, nil
}

func (r *Repository) ListFlaggedPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	return r.queryPayments(ctx, "list flagged payments",
		`SELECT `+paymentColumns+` FROM payments WHERE is_flagged ORDER BY created_at DESC LIMIT $1`,
		limitOf(limit, 100))
}

func (r *Repository) ListReportPayments(ctx context.Context, q domain.ReportQuery) ([]domain.Payment, error) {
	return r.queryPayments(ctx, "list report payments", `
		SELECT `+paymentColumns+` FROM payments
		WHERE (captured_at IS NOT NULL OR status = 'failed')
		  AND COALESCE(captured_at, created_at) >= $1
		  AND COALESCE(captured_at, created_at) < $2
		  AND ($3::uuid IS NULL OR merchant_id = $3)
		ORDER BY created_at DESC`,
		q.From, q.To, q.MerchantID)
}

const refundColumns = `id, refund_ref, payment_id, merchant_id, amount, reason, notes, status, created_at, processed_at`

func scanRefund(row pgx.Row) (domain.Refund, error) {
	var f domain.Refund
	err := row.Scan(&f.ID, &f.RefundRef, &f.PaymentID, &f.MerchantID, &f.Amount, &f.Reason, &f.Notes,
		&f.Status, &f.CreatedAt, &f.ProcessedAt)
	return f, err
}

func (r *Repository) queryRefunds(ctx context.Context, op, sql string, args ...any) ([]domain.Refund, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Refund, error) {
		return scanRefund(row)
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (r *Repository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	return r.queryRefunds(ctx, "list refunds",
		`SELECT `+refundColumns+` FROM refunds WHERE payment_id = $1 ORDER BY created_at DESC`, paymentID)
}

func (r *Repository) ListReportRefunds(ctx context.Context, q domain.ReportQuery) ([]domain.Refund, error) {
	return r.queryRefunds(ctx, "list report refunds", `
		SELECT `+refundColumns+` FROM refunds
		WHERE status = 'processed'
		  AND created_at >= $1 AND created_at < $2
		  AND ($3::uuid IS NULL OR merchant_id = $3)
		  AND EXISTS (SELECT 1 FROM payments p WHERE p.id = refunds.payment_id AND p.captured_at IS NOT NULL)`,
		q.From, q.To, q.MerchantID)
}
