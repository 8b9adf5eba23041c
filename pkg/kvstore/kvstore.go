// Package kvstore provides an expiring key-value store for short-lived
// engine state such as one-time codes and dedup markers.
package kvstore

import (
	"context"
	"time"
)

// Store is an expiring key-value store. A zero TTL means no expiry.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether the key exists and has not expired.
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
