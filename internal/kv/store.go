// Package kv provides the abstract TTL-keyed byte store the rest of the
// system treats as its persistence boundary: an in-process LRU tier (L1),
// a Redis tier (L2), and a Tiered composition of the two. Job Store and
// Cache Entries are both thin record layers over this Store.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is a sentinel for a missing or expired key, for wrapping code
// that wants an error value for a miss so errors.Is composes cleanly. The
// stores in this package do not return it: Get reports a miss as
// (nil, false, nil).
var ErrNotFound = errors.New("kv: not found")

// Store is the abstract TTL-keyed byte store every higher-level package
// (Job Store, Provider Gateway cache) is built on.
type Store interface {
	// Get returns the stored value and true, or nil and false if absent or
	// expired. A non-nil error means the store itself failed, distinct from
	// a legitimate miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key with the given TTL. A zero TTL means no
	// expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
