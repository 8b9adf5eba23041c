// Package lock provides advisory TTL locks for mutually exclusive jobs.
package lock

import (
	"context"
	"time"
)

// ReleaseFunc releases a held lock. Releasing an already-expired lock is
// a no-op.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out advisory locks with a TTL so a crashed holder cannot
// block the job forever.
type Locker interface {
	// Acquire tries to take the named lock. ok is false when another
	// holder owns it; the error reports infrastructure failures only.
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error)
}
