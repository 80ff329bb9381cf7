package app

import (
	"context"
	"errors"

	"payflow/internal/core/domain"
)

// guard runs create at most once per idempotency key. A prior record is returned unchanged
// with replayed=true. When a concurrent writer wins the unique-key insert, the winner is
// re-read and returned the same way.
func guard[T any](
	ctx context.Context,
	key string,
	lookup func(ctx context.Context, key string) (T, error),
	notFound error,
	create func() (T, error),
) (result T, replayed bool, err error) {
	if key != "" {
		prior, err := lookup(ctx, key)
		if err == nil {
			return prior, true, nil
		}
		if !errors.Is(err, notFound) {
			return result, false, err
		}
	}

	result, err = create()
	if err == nil {
		return result, false, nil
	}
	if key == "" || !errors.Is(err, domain.ErrIdempotencyKeyUsed) {
		return result, false, err
	}

	winner, lerr := lookup(ctx, key)
	if lerr != nil {
		return result, false, lerr
	}
	return winner, true, nil
}
