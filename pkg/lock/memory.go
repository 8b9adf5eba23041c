package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker inside a single process, for tests and
// local development.
type MemoryLocker struct {
	mu    sync.Mutex
	holds map[string]time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holds: make(map[string]time.Time)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if expiry, held := l.holds[key]; held && expiry.After(now) {
		return nil, false, nil
	}

	l.holds[key] = now.Add(ttl)

	release := func(_ context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()

		delete(l.holds, key)

		return nil
	}

	return release, true, nil
}
