package ttlstore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"riskguard/internal/pkg/metrics"
)

// Sweepable is anything that can evict its expired entries.
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically evicts expired entries from one store. It is owned by
// the process lifecycle: Run blocks until its context is cancelled.
type Sweeper struct {
	name     string
	store    Sweepable
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper for store that fires every interval.
func NewSweeper(name string, store Sweepable, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		name:     name,
		store:    store,
		interval: interval,
		logger:   logger.With(zap.String("store", name)),
		now:      time.Now,
	}
}

// Name is the store name used in logs and metrics
func (s *Sweeper) Name() string { return s.name }

// Interval is the time between sweeps
func (s *Sweeper) Interval() time.Duration { return s.interval }

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepNow(ctx)
		}
	}
}

// SweepNow runs a single sweep and returns the number of evicted entries.
func (s *Sweeper) SweepNow(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Warn("sweep failed", zap.Error(err))
	}
	if removed > 0 {
		metrics.StoreEvictionsTotal.WithLabelValues(s.name).Add(float64(removed))
		s.logger.Debug("expired entries evicted", zap.Int("removed", removed))
	}
	return removed
}
