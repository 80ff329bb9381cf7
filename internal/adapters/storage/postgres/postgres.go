package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Repository is an implementation of the Entity Store for PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ ports.Store = (*Repository)(nil)

// NewRepository creates a new repository instance.
// Accepts a DSN (Data Source Name) to connect to.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Let's check that the connection to the database actually works.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w: %w", domain.ErrStorageUnavailable, err)
	}

	return &Repository{pool: pool}, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// inTx runs fn inside a transaction. Any error from fn rolls everything back and is
// returned unchanged, so domain errors raised by update closures reach the caller as is.
func (r *Repository) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageErr(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr(op, err)
	}
	return nil
}

// storageErr classifies a driver error. Server-side errors keep their detail; anything
// else means the database could not be reached.
func storageErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps pgx.ErrNoRows to the entity's sentinel.
func notFound(op string, err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return storageErr(op, err)
}

func limitOf(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
