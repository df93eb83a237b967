package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface used by repositories and services.
type Cache interface {
	BasicOps
	LockOps
	VersionOps

	// Ping checks the connection to the backend
	Ping(ctx context.Context) error
	// Close releases underlying resources
	Close() error
}

// BasicOps covers plain string keys and counters.
type BasicOps interface {
	// Get returns "" without error when the key does not exist
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetNX sets the key only when it does not exist
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// LockOps implements owner-token locks. Only the holder of token can release or extend.
type LockOps interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

// VersionOps stores values that only move forward. Each write carries a
// version and is refused when the stored version is higher; the compare and
// the write happen atomically.
type VersionOps interface {
	// SetIfNewer writes value when no stored version exceeds version
	SetIfNewer(ctx context.Context, key, value string, version int64, ttl time.Duration) (bool, error)
	// GetVersioned returns "" and 0 without error when the key does not exist
	GetVersioned(ctx context.Context, key string) (string, int64, error)
}
