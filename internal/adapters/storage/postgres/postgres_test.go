package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"payflow/internal/core/domain"
)

func TestStorageErr(t *testing.T) {
	t.Run("server errors are not unavailability", func(t *testing.T) {
		err := storageErr("insert payment", &pgconn.PgError{Code: "23503", Message: "fk violation"})
		assert.False(t, errors.Is(err, domain.ErrStorageUnavailable))
		assert.Contains(t, err.Error(), "insert payment")
	})

	t.Run("connection errors are unavailability", func(t *testing.T) {
		cause := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
		err := storageErr("get order", cause)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.ErrorIs(t, err, cause)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, isUniqueViolation(nil))
}

func TestNotFound(t *testing.T) {
	assert.Equal(t, domain.ErrOrderNotFound, notFound("get order", pgx.ErrNoRows, domain.ErrOrderNotFound))
	assert.ErrorIs(t, notFound("get order", errors.New("boom"), domain.ErrOrderNotFound), domain.ErrStorageUnavailable)
}

func TestSchemaIsEmbedded(t *testing.T) {
	for _, table := range []string{"transactions", "merchants", "api_keys", "orders", "payments", "refunds", "webhook_logs"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, schema, "payments_idempotency_key_idx")
}
