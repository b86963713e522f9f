package ttlstore

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// DefaultShardCount is used when NewMemoryStore is given a non-positive count.
const DefaultShardCount = 64

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
}

// MemoryStore is a sharded-lock in-memory Store. Each shard owns a mutex and a
// map; a key always maps to the same shard, so per-key mutation is serialized
// while unrelated keys usually land on different shards.
type MemoryStore[V any] struct {
	shards []*shard[V]
}

// NewMemoryStore creates a store with shardCount shards.
func NewMemoryStore[V any](shardCount int) *MemoryStore[V] {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	shards := make([]*shard[V], shardCount)
	for i := range shards {
		shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return &MemoryStore[V]{shards: shards}
}

func (m *MemoryStore[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Get returns the live value stored under key.
func (m *MemoryStore[V]) Get(ctx context.Context, key string, now time.Time) (V, bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	e, ok := s.items[key]
	if !ok {
		return zero, false, nil
	}
	if expired(e.expiresAt, now) {
		delete(s.items, key)
		return zero, false, nil
	}
	return e.value, true, nil
}

// Upsert applies fn under the shard lock.
func (m *MemoryStore[V]) Upsert(ctx context.Context, key string, now time.Time, fn UpdateFunc[V]) (V, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	current, exists := s.items[key]
	if exists && expired(current.expiresAt, now) {
		delete(s.items, key)
		current, exists = entry[V]{}, false
	}

	next, expiresAt, err := fn(current.value, exists)
	if err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return current.value, nil
		}
		return zero, err
	}

	s.items[key] = entry[V]{value: next, expiresAt: expiresAt}
	return next, nil
}

// Delete removes key.
func (m *MemoryStore[V]) Delete(ctx context.Context, key string) error {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Sweep removes expired entries one shard at a time.
func (m *MemoryStore[V]) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for _, s := range m.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s.mu.Lock()
		for key, e := range s.items {
			if expired(e.expiresAt, now) {
				delete(s.items, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryStore[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}
