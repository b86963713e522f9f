package velocity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskguard/internal/pkg/ttlstore"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTracker(cfg Config) *Tracker {
	return NewTracker(ttlstore.NewMemoryStore[Record](ttlstore.DefaultShardCount), cfg)
}

func txKey(user string) Key {
	return Key{Scope: ScopeTransaction, UserID: user}
}

func TestTracker_FirstTransactionIsClean(t *testing.T) {
	tr := newTracker(DefaultConfig())

	res, err := tr.Evaluate(context.Background(), txKey("u1"), decimal.NewFromInt(500), "8.8.8.8", t0)
	require.NoError(t, err)
	assert.Zero(t, res.Score)
	assert.Empty(t, res.Flags)
}

func TestTracker_EleventhTransactionExceedsLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinGap = 0
	tr := newTracker(cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(100), "8.8.8.8", t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.False(t, res.HasFlag(FlagCountExceeded), "transaction %d", i+1)
	}

	res, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(100), "8.8.8.8", t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.HasFlag(FlagCountExceeded))
	assert.GreaterOrEqual(t, res.Score, cfg.HardCountPenalty)
}

func TestTracker_SoftThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinGap = 0
	tr := newTracker(cfg)
	ctx := context.Background()

	var last = make([]bool, 0, 7)
	for i := 0; i < 7; i++ {
		res, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(1), "", t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		last = append(last, res.HasFlag(FlagCountHigh))
	}
	// 7 of 10 reaches the 0.7 ratio
	assert.Equal(t, []bool{false, false, false, false, false, false, true}, last)
}

func TestTracker_WindowBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = time.Minute
	cfg.MaxPerWindow = 1
	cfg.SoftRatio = 1
	cfg.MinGap = 0

	tests := []struct {
		name    string
		offset  time.Duration
		counted bool
	}{
		{"just outside", -(time.Minute + time.Millisecond), false},
		{"just inside", -(time.Minute - time.Millisecond), true},
		{"exact boundary", -time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(cfg)
			ctx := context.Background()

			_, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(1), "", t0.Add(tt.offset))
			require.NoError(t, err)

			res, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(1), "", t0)
			require.NoError(t, err)
			assert.Equal(t, tt.counted, res.HasFlag(FlagCountExceeded))

			st, err := tr.Snapshot(ctx, txKey("u1"), t0)
			require.NoError(t, err)
			if tt.counted {
				assert.Equal(t, 2, st.Count)
			} else {
				assert.Equal(t, 1, st.Count)
			}
		})
	}
}

func TestTracker_AmountAndIPsAndGap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWindowAmount = decimal.NewFromInt(1000)
	cfg.MaxDistinctIPs = 2
	tr := newTracker(cfg)
	ctx := context.Background()

	_, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(600), "1.1.1.1", t0)
	require.NoError(t, err)
	_, err = tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(100), "2.2.2.2", t0.Add(5*time.Minute))
	require.NoError(t, err)

	res, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(400), "3.3.3.3", t0.Add(5*time.Minute+10*time.Second))
	require.NoError(t, err)

	assert.True(t, res.HasFlag(FlagAmountExceeded))
	assert.True(t, res.HasFlag(FlagMultipleIPs))
	assert.True(t, res.HasFlag(FlagRapidSuccession))
	assert.Equal(t, cfg.AmountPenalty+cfg.MultipleIPPenalty+cfg.RapidPenalty, res.Score)
}

func TestTracker_NegativeAmountIsNotRecorded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWindowAmount = decimal.NewFromInt(100000)
	cfg.MinGap = 0
	tr := newTracker(cfg)
	ctx := context.Background()

	res, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(90000), "1.1.1.1", t0)
	require.NoError(t, err)
	assert.False(t, res.HasFlag(FlagAmountExceeded))

	_, err = tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(-90000), "1.1.1.1", t0.Add(time.Minute))
	require.ErrorIs(t, err, ErrNegativeAmount)

	stats, err := tr.Snapshot(ctx, txKey("u1"), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	assert.True(t, stats.TotalAmount.Equal(decimal.NewFromInt(90000)))

	res, err = tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(90000), "1.1.1.1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.HasFlag(FlagAmountExceeded))
}

func TestTracker_ScopesAreIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerWindow = 1
	cfg.MinGap = 0
	tr := newTracker(cfg)
	ctx := context.Background()

	_, err := tr.Evaluate(ctx, txKey("u1"), decimal.NewFromInt(1), "", t0)
	require.NoError(t, err)

	res, err := tr.Evaluate(ctx, Key{Scope: ScopeLogin, UserID: "u1"}, decimal.Zero, "", t0)
	require.NoError(t, err)
	assert.False(t, res.HasFlag(FlagCountExceeded))
}

func TestTracker_ConcurrentEvaluateNoLostUpdates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerWindow = 1000
	tr := newTracker(cfg)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.Evaluate(ctx, txKey("shared"), decimal.NewFromInt(1), fmt.Sprintf("10.0.0.%d", i%4), t0.Add(time.Duration(i)*time.Millisecond))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := tr.Entries(ctx, txKey("shared"), t0.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, entries, n)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].At.Before(entries[i-1].At), "entries must stay ordered")
	}
}

func TestTracker_Deterministic(t *testing.T) {
	run := func() []int {
		tr := newTracker(DefaultConfig())
		var scores []int
		for i := 0; i < 12; i++ {
			res, err := tr.Evaluate(context.Background(), txKey("u1"), decimal.NewFromInt(20000), "1.1.1.1", t0.Add(time.Duration(i)*10*time.Second))
			require.NoError(t, err)
			scores = append(scores, res.Score)
		}
		return scores
	}
	assert.Equal(t, run(), run())
}

func TestTracker_SnapshotEmpty(t *testing.T) {
	tr := newTracker(DefaultConfig())
	st, err := tr.Snapshot(context.Background(), txKey("nobody"), t0)
	require.NoError(t, err)
	assert.Zero(t, st.Count)
	assert.True(t, st.TotalAmount.IsZero())
	assert.Nil(t, st.LastAt)
}
