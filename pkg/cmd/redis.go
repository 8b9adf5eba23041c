package cmd

import (
	"fmt"

	"github.com/leadline/leadline/pkg/kvstore"
	"github.com/leadline/leadline/pkg/lock"
	redis "github.com/redis/go-redis/v9"
)

// NewRedisClient creates a client from a redis:// URL.
func NewRedisClient(redisURL string) redis.UniversalClient {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("invalid redis URL: %w", err))
	}

	return redis.NewClient(opts)
}

// NewLocker creates the sweep advisory locker: Redis-backed when a URL is
// configured, in-process otherwise.
func NewLocker(redisURL string) lock.Locker {
	if redisURL == "" {
		return lock.NewMemoryLocker()
	}

	return lock.NewRedisLocker(NewRedisClient(redisURL))
}

// NewKVStore creates the expiring key-value store: Redis-backed when a
// URL is configured, in-process otherwise.
func NewKVStore(redisURL string) kvstore.Store {
	if redisURL == "" {
		return kvstore.NewMemoryStore()
	}

	return kvstore.NewRedisStore(NewRedisClient(redisURL))
}
