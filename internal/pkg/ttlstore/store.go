// Package ttlstore defines the keyed TTL store used by every stateful risk
// component, plus an in-memory sharded implementation and a background sweeper.
//
// The scoring logic only sees the Store interface. Single-instance deployments
// use MemoryStore; multi-instance deployments plug in an external cache
// (see internal/infrastructure/cache/redis).
package ttlstore

import (
	"context"
	"errors"
	"time"
)

// ErrSkipWrite may be returned by an UpdateFunc to leave the stored entry
// untouched. Upsert then returns the current value and a nil error.
var ErrSkipWrite = errors.New("ttlstore: skip write")

// UpdateFunc computes the next value for a key from its current value.
// exists is false when the key is absent or expired. fn runs while the key is
// locked; it must not mutate current in place and must return a fresh value.
// A zero expiresAt means the entry never expires.
type UpdateFunc[V any] func(current V, exists bool) (next V, expiresAt time.Time, err error)

// Store is a keyed store whose entries carry an absolute expiry.
type Store[V any] interface {
	// Get returns the live value for key. Expired entries are reported absent.
	Get(ctx context.Context, key string, now time.Time) (V, bool, error)

	// Upsert atomically applies fn to the entry for key. Concurrent upserts on
	// the same key are serialized; upserts on different keys never contend.
	Upsert(ctx context.Context, key string, now time.Time, fn UpdateFunc[V]) (V, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep deletes every entry whose expiry is at or before now and returns
	// how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
