package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payflow/internal/core/domain"
)

const merchantColumns = `id, user_id, business_name, business_email, website, webhook_url, webhook_secret, is_active, is_verified, created_at`

func scanMerchant(row pgx.Row) (domain.Merchant, error) {
	var m domain.Merchant
	err := row.Scan(&m.ID, &m.UserID, &m.BusinessName, &m.BusinessEmail, &m.Website,
		&m.WebhookURL, &m.WebhookSecret, &m.IsActive, &m.IsVerified, &m.CreatedAt)
	return m, err
}

func (r *Repository) CreateMerchant(ctx context.Context, m *domain.Merchant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO merchants (`+merchantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.UserID, m.BusinessName, m.BusinessEmail, m.Website,
		m.WebhookURL, m.WebhookSecret, m.IsActive, m.IsVerified, m.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrMerchantExists
	}
	if err != nil {
		return storageErr("create merchant", err)
	}
	return nil
}

func (r *Repository) GetMerchant(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	m, err := scanMerchant(r.pool.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("get merchant", err, domain.ErrMerchantNotFound)
	}
	return &m, nil
}

func (r *Repository) GetMerchantByUser(ctx context.Context, userID uuid.UUID) (*domain.Merchant, error) {
	m, err := scanMerchant(r.pool.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound("get merchant by user", err, domain.ErrMerchantNotFound)
	}
	return &m, nil
}

func (r *Repository) UpdateMerchant(ctx context.Context, m *domain.Merchant) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET business_name = $2, website = $3, webhook_url = $4, webhook_secret = $5, is_active = $6, is_verified = $7
		WHERE id = $1`,
		m.ID, m.BusinessName, m.Website, m.WebhookURL, m.WebhookSecret, m.IsActive, m.IsVerified)
	if err != nil {
		return storageErr("update merchant", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMerchantNotFound
	}
	return nil
}

func (r *Repository) ListMerchants(ctx context.Context) ([]domain.Merchant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+merchantColumns+` FROM merchants ORDER BY created_at DESC`)
	if err != nil {
		return nil, storageErr("list merchants", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Merchant, error) {
		return scanMerchant(row)
	})
	if err != nil {
		return nil, storageErr("list merchants", err)
	}
	return out, nil
}

const apiKeyColumns = `id, merchant_id, key_id, key_secret_hash, label, is_active, created_at, last_used_at`

func scanAPIKey(row pgx.Row) (domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.MerchantID, &k.KeyID, &k.KeySecretHash, &k.Label, &k.IsActive, &k.CreatedAt, &k.LastUsedAt)
	return k, err
}

func (r *Repository) CreateAPIKey(ctx context.Context, k *domain.APIKey) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		k.ID, k.MerchantID, k.KeyID, k.KeySecretHash, k.Label, k.IsActive, k.CreatedAt, k.LastUsedAt)
	if isUniqueViolation(err) {
		return domain.ErrIdempotencyKeyUsed
	}
	if err != nil {
		return storageErr("create api key", err)
	}
	return nil
}

func (r *Repository) GetAPIKey(ctx context.Context, keyID string) (*domain.APIKey, error) {
	k, err := scanAPIKey(r.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_id = $1`, keyID))
	if err != nil {
		return nil, notFound("get api key", err, domain.ErrAPIKeyNotFound)
	}
	return &k, nil
}

func (r *Repository) ListAPIKeys(ctx context.Context, merchantID uuid.UUID) ([]domain.APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE merchant_id = $1 ORDER BY created_at DESC`, merchantID)
	if err != nil {
		return nil, storageErr("list api keys", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.APIKey, error) {
		return scanAPIKey(row)
	})
	if err != nil {
		return nil, storageErr("list api keys", err)
	}
	return out, nil
}

func (r *Repository) UpdateAPIKey(ctx context.Context, k *domain.APIKey) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET label = $2, is_active = $3, last_used_at = $4 WHERE key_id = $1`,
		k.KeyID, k.Label, k.IsActive, k.LastUsedAt)
	if err != nil {
		return storageErr("update api key", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}
