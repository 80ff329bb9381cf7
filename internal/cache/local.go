package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Local is a process-scoped cache with the same contract as the distributed backend.
type Local struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]entry), now: time.Now}
}

func (l *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		l.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, ok := l.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(l.entries, key)
		}
		l.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (l *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = l.now().Add(ttl)
	}
	l.mu.Lock()
	l.entries[key] = e
	l.mu.Unlock()
	return nil
}

func (l *Local) Invalidate(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

func (l *Local) Clear(_ context.Context) error {
	l.mu.Lock()
	l.entries = make(map[string]entry)
	l.mu.Unlock()
	return nil
}
