package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"contestjudge/internal/common/cache"
	appErr "contestjudge/pkg/errors"
)

const (
	lockKeyPrefix  = "judge:lock:"
	defaultLockTTL = 2 * time.Minute
)

// JudgeLock is the per-submission judging lock. Only the token holder can
// release or extend it.
type JudgeLock struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewJudgeLock creates a lock helper with the given TTL.
func NewJudgeLock(cacheClient cache.Cache, ttl time.Duration) *JudgeLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &JudgeLock{cache: cacheClient, ttl: ttl}
}

// TTL returns the lock lifetime.
func (l *JudgeLock) TTL() time.Duration {
	return l.ttl
}

// Acquire takes the lock. ok is false when another owner holds it.
func (l *JudgeLock) Acquire(ctx context.Context, submissionID string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.cache.TryLock(ctx, lockKeyPrefix+submissionID, token, l.ttl)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.LockFailed, "acquire judge lock failed")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Extend pushes the expiry forward. It reports false once the lock is lost.
func (l *JudgeLock) Extend(ctx context.Context, submissionID, token string) (bool, error) {
	ok, err := l.cache.ExtendLock(ctx, lockKeyPrefix+submissionID, token, l.ttl)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.LockFailed, "extend judge lock failed")
	}
	return ok, nil
}

// Release frees the lock if token still owns it.
func (l *JudgeLock) Release(ctx context.Context, submissionID, token string) error {
	if _, err := l.cache.Unlock(ctx, lockKeyPrefix+submissionID, token); err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "release judge lock failed")
	}
	return nil
}
