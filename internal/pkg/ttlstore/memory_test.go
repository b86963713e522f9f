package ttlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStore_UpsertAndGet(t *testing.T) {
	store := NewMemoryStore[int](4)
	ctx := context.Background()

	v, err := store.Upsert(ctx, "a", t0, func(cur int, exists bool) (int, time.Time, error) {
		assert.False(t, exists)
		return cur + 1, t0.Add(time.Minute), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	got, ok, err := store.Get(ctx, "a", t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestMemoryStore_ExpiredIsAbsent(t *testing.T) {
	store := NewMemoryStore[string](4)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "k", t0, func(string, bool) (string, time.Time, error) {
		return "v", t0.Add(time.Minute), nil
	})
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "k", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "entry expiring exactly now is gone")

	_, err = store.Upsert(ctx, "k", t0.Add(2*time.Minute), func(cur string, exists bool) (string, time.Time, error) {
		assert.False(t, exists)
		assert.Empty(t, cur)
		return "fresh", time.Time{}, nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_SkipWrite(t *testing.T) {
	store := NewMemoryStore[int](1)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "k", t0, func(int, bool) (int, time.Time, error) {
		return 7, time.Time{}, nil
	})
	require.NoError(t, err)

	v, err := store.Upsert(ctx, "k", t0, func(cur int, exists bool) (int, time.Time, error) {
		return 0, time.Time{}, ErrSkipWrite
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	got, _, _ := store.Get(ctx, "k", t0)
	assert.Equal(t, 7, got)
}

func TestMemoryStore_UpdateError(t *testing.T) {
	store := NewMemoryStore[int](1)
	boom := errors.New("boom")

	_, err := store.Upsert(context.Background(), "k", t0, func(int, bool) (int, time.Time, error) {
		return 1, time.Time{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, _ := store.Get(context.Background(), "k", t0)
	assert.False(t, ok)
}

func TestMemoryStore_ConcurrentUpsertSameKey(t *testing.T) {
	store := NewMemoryStore[int](8)
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Upsert(ctx, "counter", t0, func(cur int, _ bool) (int, time.Time, error) {
				return cur + 1, time.Time{}, nil
			})
		}()
	}
	wg.Wait()

	got, ok, err := store.Get(ctx, "counter", t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, n, got)
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore[int](4)
	ctx := context.Background()

	for i, ttl := range []time.Duration{time.Minute, 2 * time.Minute, 0} {
		exp := time.Time{}
		if ttl > 0 {
			exp = t0.Add(ttl)
		}
		key := string(rune('a' + i))
		_, err := store.Upsert(ctx, key, t0, func(int, bool) (int, time.Time, error) {
			return i, exp, nil
		})
		require.NoError(t, err)
	}

	removed, err := store.Sweep(ctx, t0.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, store.Len())

	removed, err = store.Sweep(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len(), "entries without expiry survive")
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore[int](0)
	ctx := context.Background()

	_, _ = store.Upsert(ctx, "k", t0, func(int, bool) (int, time.Time, error) { return 1, time.Time{}, nil })
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "missing"))

	_, ok, _ := store.Get(ctx, "k", t0)
	assert.False(t, ok)
}

func TestSweeper_SweepNow(t *testing.T) {
	store := NewMemoryStore[int](2)
	ctx := context.Background()
	_, _ = store.Upsert(ctx, "k", t0, func(int, bool) (int, time.Time, error) {
		return 1, t0.Add(time.Second), nil
	})

	sw := NewSweeper("test", store, time.Minute, nil)
	sw.now = func() time.Time { return t0.Add(time.Hour) }

	assert.Equal(t, 1, sw.SweepNow(ctx))
	assert.Equal(t, 0, store.Len())
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	sw := NewSweeper("test", NewMemoryStore[int](1), time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
