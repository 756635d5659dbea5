package kv

import (
	"context"
	"time"
)

// Tiered composes an L1 (in-process) and L2 (distributed) Store. A miss on
// L1 that hits L2 backfills L1 so the next read for the same key is local.
// Writes go to both tiers; an L1 write failure is impossible by
// construction (LRU never errors), an L2 write failure is propagated since
// callers rely on L2 durability surviving process restarts.
type Tiered struct {
	L1 Store
	L2 Store
}

// NewTiered builds a two-tier Store from an L1 and L2.
func NewTiered(l1, l2 Store) *Tiered {
	return &Tiered{L1: l1, L2: l2}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := t.L1.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		return val, true, nil
	}

	val, ok, err := t.L2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	// Backfill L1 with an unspecified TTL; callers that need precise
	// expiry parity should Set() through Tiered directly instead of
	// relying on a read to repopulate it.
	_ = t.L1.Set(ctx, key, val, 0)
	return val, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = t.L1.Set(ctx, key, value, ttl)
	return t.L2.Set(ctx, key, value, ttl)
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	_ = t.L1.Delete(ctx, key)
	return t.L2.Delete(ctx, key)
}
