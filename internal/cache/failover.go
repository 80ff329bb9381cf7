package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"payflow/internal/core/ports"
	"payflow/internal/observability"
)

// defaultTombstoneTTL bounds a tombstone when no Set has revealed the entry lifetime yet.
const defaultTombstoneTTL = 5 * time.Minute

// Failover fronts a distributed cache and degrades to a local one whenever the distributed
// backend errors. Invalidation always hits both so an entry written during an outage can
// never outlive a later state change.
//
// When the distributed invalidate itself fails, the key is tombstoned locally for as long as
// the stale copy could live there. A distributed hit on a tombstoned key is ignored and the
// invalidate retried, so the old value cannot resurface once the backend recovers.
type Failover struct {
	primary ports.Cache
	local   *Local
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	maxTTL     time.Duration
	tombstones map[string]time.Time
	clearUntil time.Time
}

// NewFailover builds the cache layer. A nil primary means local-only.
func NewFailover(primary ports.Cache, logger *slog.Logger) *Failover {
	return &Failover{
		primary:    primary,
		local:      NewLocal(),
		logger:     logger,
		now:        time.Now,
		tombstones: make(map[string]time.Time),
	}
}

func (f *Failover) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.primary != nil {
		val, ok, err := f.primary.Get(ctx, key)
		switch {
		case err != nil:
			f.logger.Warn("distributed cache unavailable, using local cache", "op", "get", "key", key, "error", err)
		case ok && f.shadowed(ctx, key):
			f.logger.Warn("ignoring distributed entry that missed an invalidate", "key", key)
		default:
			observability.RecordCacheLookup("redis", ok)
			return val, ok, nil
		}
	}
	val, ok, _ := f.local.Get(ctx, key)
	observability.RecordCacheLookup("local", ok)
	return val, ok, nil
}

func (f *Failover) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	if ttl > f.maxTTL {
		f.maxTTL = ttl
	}
	f.mu.Unlock()

	if f.primary != nil {
		err := f.primary.Set(ctx, key, value, ttl)
		if err == nil {
			// The write replaced whatever stale copy the tombstone guarded.
			f.mu.Lock()
			delete(f.tombstones, key)
			f.mu.Unlock()
			return nil
		}
		f.logger.Warn("distributed cache unavailable, using local cache", "op", "set", "key", key, "error", err)
	}
	return f.local.Set(ctx, key, value, ttl)
}

func (f *Failover) Invalidate(ctx context.Context, key string) error {
	if f.primary != nil {
		if err := f.primary.Invalidate(ctx, key); err != nil {
			f.logger.Warn("distributed cache invalidate failed, tombstoning key", "key", key, "error", err)
			f.mu.Lock()
			f.tombstones[key] = f.now().Add(f.horizon())
			f.mu.Unlock()
		}
	}
	return f.local.Invalidate(ctx, key)
}

func (f *Failover) Clear(ctx context.Context) error {
	if f.primary != nil {
		if err := f.primary.Clear(ctx); err != nil {
			f.logger.Warn("distributed cache clear failed, ignoring its entries until retried", "error", err)
			f.mu.Lock()
			f.clearUntil = f.now().Add(f.horizon())
			f.mu.Unlock()
		}
	}
	return f.local.Clear(ctx)
}

// horizon is how long a distributed entry written so far can live. Callers hold f.mu.
func (f *Failover) horizon() time.Duration {
	if f.maxTTL > 0 {
		return f.maxTTL
	}
	return defaultTombstoneTTL
}

// shadowed reports whether a distributed hit for key predates a failed invalidate or clear.
// It retries the missed operation and drops the tombstone once the backend accepts it.
// The value already read is stale either way.
func (f *Failover) shadowed(ctx context.Context, key string) bool {
	f.mu.Lock()
	now := f.now()
	until, tombstoned := f.tombstones[key]
	if tombstoned && !now.Before(until) {
		delete(f.tombstones, key)
		tombstoned = false
	}
	clearing := now.Before(f.clearUntil)
	f.mu.Unlock()

	switch {
	case clearing:
		if err := f.primary.Clear(ctx); err != nil {
			f.logger.Warn("distributed cache clear retry failed", "error", err)
			return true
		}
		f.mu.Lock()
		f.clearUntil = time.Time{}
		clear(f.tombstones)
		f.mu.Unlock()
		return true
	case tombstoned:
		if err := f.primary.Invalidate(ctx, key); err != nil {
			f.logger.Warn("distributed cache invalidate retry failed", "key", key, "error", err)
			return true
		}
		f.mu.Lock()
		delete(f.tombstones, key)
		f.mu.Unlock()
		return true
	}
	return false
}
