package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "test:"), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "a", []byte("hello"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, ok, err := store.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get() = %q, %v, %v", val, ok, err)
	}
	if string(val) != "hello" {
		t.Errorf("val = %q, want %q", val, "hello")
	}
}

func TestRedisStore_Miss(t *testing.T) {
	store, _ := newTestRedisStore(t)
	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	_ = store.Set(ctx, "a", []byte("x"), time.Second)

	mr.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected expired entry to miss")
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	_ = store.Set(ctx, "a", []byte("1"), 0)
	_ = store.Delete(ctx, "a")

	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Error("expected deleted key to miss")
	}
}

func TestRedisStore_KeyPrefixNamespacing(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisStore(client, "cache:")
	job := NewRedisStore(client, "job:")

	_ = cache.Set(ctx, "x", []byte("cache-value"), 0)
	_ = job.Set(ctx, "x", []byte("job-value"), 0)

	cacheVal, _, _ := cache.Get(ctx, "x")
	jobVal, _, _ := job.Get(ctx, "x")

	if string(cacheVal) != "cache-value" || string(jobVal) != "job-value" {
		t.Errorf("prefix collision: cache=%q job=%q", cacheVal, jobVal)
	}
}
