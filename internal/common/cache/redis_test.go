package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheGetMissing(t *testing.T) {
	c, _ := newTestCache(t)
	value, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value, got %q", value)
	}
}

func TestRedisCacheLockOwnership(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "judge:lock:1", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = c.TryLock(ctx, "judge:lock:1", "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second lock to fail, got ok=%v err=%v", ok, err)
	}

	released, err := c.Unlock(ctx, "judge:lock:1", "owner-b")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if released {
		t.Fatalf("expected foreign token to leave the lock in place")
	}

	extended, err := c.ExtendLock(ctx, "judge:lock:1", "owner-a", 2*time.Minute)
	if err != nil || !extended {
		t.Fatalf("expected owner to extend, got ok=%v err=%v", extended, err)
	}
	if ttl := mr.TTL("judge:lock:1"); ttl <= time.Minute {
		t.Fatalf("expected ttl above one minute, got %v", ttl)
	}

	released, err = c.Unlock(ctx, "judge:lock:1", "owner-a")
	if err != nil || !released {
		t.Fatalf("expected owner unlock, got ok=%v err=%v", released, err)
	}
	if mr.Exists("judge:lock:1") {
		t.Fatalf("expected lock key removed")
	}
}

type record struct {
	ID string `json:"id"`
}

func TestGetWithCached(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	load := func(ctx context.Context) (*record, error) {
		calls++
		return &record{ID: "42"}, nil
	}
	isEmpty := func(r *record) bool { return r == nil }

	for i := 0; i < 2; i++ {
		got, err := GetWithCached(ctx, c, "record:42", time.Minute, time.Second, isEmpty,
			JSONMarshal[*record], JSONUnmarshal[*record], load)
		if err != nil {
			t.Fatalf("get with cached: %v", err)
		}
		if got == nil || got.ID != "42" {
			t.Fatalf("expected record 42, got %+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one source call, got %d", calls)
	}

	missCalls := 0
	missing := func(ctx context.Context) (*record, error) {
		missCalls++
		return nil, nil
	}
	for i := 0; i < 2; i++ {
		got, err := GetWithCached(ctx, c, "record:none", time.Minute, time.Minute, isEmpty,
			JSONMarshal[*record], JSONUnmarshal[*record], missing)
		if err != nil || got != nil {
			t.Fatalf("expected nil record, got %+v err=%v", got, err)
		}
	}
	if missCalls != 1 {
		t.Fatalf("expected null value to be cached, got %d source calls", missCalls)
	}
	if v, _ := mr.Get("record:none"); v != NullCacheValue {
		t.Fatalf("expected null marker, got %q", v)
	}
}

func TestGetWithCachedPropagatesSourceError(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("boom")
	_, err := GetWithCached(context.Background(), c, "record:err", time.Minute, time.Second,
		func(r *record) bool { return r == nil },
		JSONMarshal[*record], JSONUnmarshal[*record],
		func(ctx context.Context) (*record, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestJitterTTL(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		got := JitterTTL(time.Minute)
		if got > time.Minute || got < 54*time.Second {
			t.Fatalf("expected ttl in [54s, 60s], got %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatalf("expected zero ttl unchanged")
	}
}

func TestSetIfNewerRefusesOlderVersion(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if data, version, err := c.GetVersioned(ctx, "k"); err != nil || data != "" || version != 0 {
		t.Fatalf("expected empty value, got %q/%d err=%v", data, version, err)
	}
	steps := []struct {
		value   string
		version int64
		stored  bool
	}{
		{"pending", 0, true},
		{"running", 1, true},
		{"running-again", 1, true},
		{"done", 2, true},
		{"late-running", 1, false},
		{"late-pending", 0, false},
	}
	for _, step := range steps {
		ok, err := c.SetIfNewer(ctx, "k", step.value, step.version, time.Minute)
		if err != nil {
			t.Fatalf("set %s: %v", step.value, err)
		}
		if ok != step.stored {
			t.Fatalf("set %s: expected stored=%v, got %v", step.value, step.stored, ok)
		}
	}
	data, version, err := c.GetVersioned(ctx, "k")
	if err != nil || data != "done" || version != 2 {
		t.Fatalf("expected done@2, got %q@%d err=%v", data, version, err)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Fatalf("expected TTL 1m, got %v", ttl)
	}
}
