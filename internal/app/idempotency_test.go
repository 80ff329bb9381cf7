package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payflow/internal/core/domain"
)

var errNotFound = errors.New("not found")

func TestGuard_ReturnsPriorWithoutCreating(t *testing.T) {
	lookup := func(context.Context, string) (string, error) { return "prior", nil }
	created := false

	res, replayed, err := guard(context.Background(), "k", lookup, errNotFound, func() (string, error) {
		created = true
		return "new", nil
	})

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "prior", res)
	assert.False(t, created)
}

func TestGuard_CreatesWhenUnknown(t *testing.T) {
	lookup := func(context.Context, string) (string, error) { return "", errNotFound }

	res, replayed, err := guard(context.Background(), "k", lookup, errNotFound, func() (string, error) { return "new", nil })

	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "new", res)
}

func TestGuard_LosingWriterReadsWinner(t *testing.T) {
	calls := 0
	lookup := func(context.Context, string) (string, error) {
		calls++
		if calls == 1 {
			return "", errNotFound
		}
		return "winner", nil
	}

	res, replayed, err := guard(context.Background(), "k", lookup, errNotFound, func() (string, error) {
		return "", domain.ErrIdempotencyKeyUsed
	})

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "winner", res)
	assert.Equal(t, 2, calls)
}

func TestGuard_PropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	lookup := func(context.Context, string) (string, error) { return "", boom }

	_, _, err := guard(context.Background(), "k", lookup, errNotFound, func() (string, error) { return "new", nil })
	assert.ErrorIs(t, err, boom)

	noKey := func(context.Context, string) (string, error) {
		t.Fatal("lookup must not run without a key")
		return "", nil
	}
	_, _, err = guard(context.Background(), "", noKey, errNotFound, func() (string, error) { return "", domain.ErrOrderAlreadyPaid })
	assert.ErrorIs(t, err, domain.ErrOrderAlreadyPaid)
}
