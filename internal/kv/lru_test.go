package kv

import (
	"context"
	"testing"
	"time"
)

func TestLRU_SetGet(t *testing.T) {
	l := NewLRU(10)
	ctx := context.Background()

	if err := l.Set(ctx, "a", []byte("hello"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, ok, err := l.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get() = %q, %v, %v", val, ok, err)
	}
	if string(val) != "hello" {
		t.Errorf("val = %q, want %q", val, "hello")
	}
}

func TestLRU_Miss(t *testing.T) {
	l := NewLRU(10)
	_, ok, err := l.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestLRU_Expiry(t *testing.T) {
	l := NewLRU(10)
	ctx := context.Background()
	_ = l.Set(ctx, "a", []byte("x"), time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	_, ok, err := l.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected expired entry to miss")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	l := NewLRU(2)
	ctx := context.Background()
	_ = l.Set(ctx, "a", []byte("1"), 0)
	_ = l.Set(ctx, "b", []byte("2"), 0)

	// touch "a" so "b" becomes the least recently used
	_, _, _ = l.Get(ctx, "a")

	_ = l.Set(ctx, "c", []byte("3"), 0)

	if _, ok, _ := l.Get(ctx, "b"); ok {
		t.Error("expected 'b' to be evicted as least recently used")
	}
	if _, ok, _ := l.Get(ctx, "a"); !ok {
		t.Error("expected 'a' to survive eviction")
	}
	if _, ok, _ := l.Get(ctx, "c"); !ok {
		t.Error("expected 'c' to be present")
	}
}

func TestLRU_Delete(t *testing.T) {
	l := NewLRU(10)
	ctx := context.Background()
	_ = l.Set(ctx, "a", []byte("1"), 0)
	_ = l.Delete(ctx, "a")

	if _, ok, _ := l.Get(ctx, "a"); ok {
		t.Error("expected deleted key to miss")
	}
}

func TestLRU_Overwrite(t *testing.T) {
	l := NewLRU(10)
	ctx := context.Background()
	_ = l.Set(ctx, "a", []byte("1"), 0)
	_ = l.Set(ctx, "a", []byte("2"), 0)

	val, _, _ := l.Get(ctx, "a")
	if string(val) != "2" {
		t.Errorf("val = %q, want %q", val, "2")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}
