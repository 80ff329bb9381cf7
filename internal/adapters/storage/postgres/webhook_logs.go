package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payflow/internal/core/domain"
)

func (r *Repository) InsertWebhookLog(ctx context.Context, l *domain.WebhookLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_logs (id, merchant_id, event_type, payload, target_url, response_status, response_body, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.MerchantID, l.EventType, l.Payload, l.TargetURL, l.ResponseStatus, l.ResponseBody, l.Success, l.CreatedAt)
	if err != nil {
		return storageErr("insert webhook log", err)
	}
	return nil
}

func (r *Repository) ListWebhookLogs(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, event_type, payload, target_url, response_status, response_body, success, created_at
		FROM webhook_logs
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		merchantID, limitOf(limit, 50))
	if err != nil {
		return nil, storageErr("list webhook logs", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.WebhookLog, error) {
		var l domain.WebhookLog
		err := row.Scan(&l.ID, &l.MerchantID, &l.EventType, &l.Payload, &l.TargetURL,
			&l.ResponseStatus, &l.ResponseBody, &l.Success, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, storageErr("list webhook logs", err)
	}
	return out, nil
}
