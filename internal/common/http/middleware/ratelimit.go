package middleware

import (
	"context"
	"fmt"
	"time"

	"contestjudge/internal/common/cache"
	pkgerrors "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const defaultRateLimitTimeout = 200 * time.Millisecond

// RateLimitPolicy limits requests per client IP and per route.
// A zero max disables that dimension.
type RateLimitPolicy struct {
	Window   time.Duration `yaml:"window"`
	IPMax    int           `yaml:"ipMax"`
	RouteMax int           `yaml:"routeMax"`
}

// RateLimiter enforces fixed-window counters in Redis.
type RateLimiter struct {
	cache   cache.BasicOps
	prefix  string
	timeout time.Duration
}

// NewRateLimiter creates a limiter whose keys start with prefix.
func NewRateLimiter(cacheClient cache.BasicOps, prefix string, timeout time.Duration) *RateLimiter {
	if timeout <= 0 {
		timeout = defaultRateLimitTimeout
	}
	return &RateLimiter{cache: cacheClient, prefix: prefix, timeout: timeout}
}

// Allow counts one hit on key and fails once max is exceeded within window.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 || window <= 0 {
		return nil
	}
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	ctxCache, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// a key that lost its TTL would block forever
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}

// RateLimitMiddleware applies policy to a single route.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := fmt.Sprintf("%s:ip:%s:%s", limiter.prefix, c.ClientIP(), routeKey)
			if err := limiter.Allow(ctx, key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.RouteMax > 0 {
			key := fmt.Sprintf("%s:route:%s", limiter.prefix, routeKey)
			if err := limiter.Allow(ctx, key, policy.RouteMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
