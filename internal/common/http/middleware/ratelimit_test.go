package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contestjudge/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cacheClient, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("init cache: %v", err)
	}
	return NewRateLimiter(cacheClient, "http:rate", time.Second), mr
}

func TestRateLimitMiddlewarePerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, mr := newTestLimiter(t)

	router := gin.New()
	router.POST("/submit", RateLimitMiddleware(limiter, "submit", RateLimitPolicy{Window: time.Minute, IPMax: 2}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("other client should pass, got %d", code)
	}

	mr.FastForward(time.Minute + time.Second)
	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(nil, "http:rate", 0)
	if err := limiter.Allow(t.Context(), "k", 0, time.Minute); err != nil {
		t.Fatalf("zero max should allow, got %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RateLimitMiddleware(nil, "root", RateLimitPolicy{IPMax: 1, Window: time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("nil limiter should pass, got %d", w.Code)
		}
	}
}
