package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"riskguard/internal/pkg/metrics"
	"riskguard/internal/pkg/ttlstore"
)

// ErrTooManyConflicts is returned when an optimistic transaction keeps
// losing the race for the same key.
var ErrTooManyConflicts = errors.New("redis: too many concurrent updates")

// StoreOptions configures a TTLStore
type StoreOptions struct {
	Prefix          string
	MaxRetries      int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Logger          *zap.Logger
}

// TTLStore is a ttlstore.Store backed by Redis. Values are JSON encoded
// and expire natively through PX, so Sweep has nothing to do.
type TTLStore[V any] struct {
	client     *Client
	name       string
	prefix     string
	maxRetries int
	breaker    *gobreaker.CircuitBreaker
}

var _ ttlstore.Store[struct{}] = (*TTLStore[struct{}])(nil)

// NewTTLStore creates a Redis-backed store. name is used for metrics and
// for the breaker.
func NewTTLStore[V any](client *Client, name string, opts StoreOptions) *TTLStore[V] {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	prefix := name
	if opts.Prefix != "" {
		prefix = opts.Prefix + ":" + name
	}

	failures := opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis:" + name,
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var ce callerError
			return err == nil || errors.As(err, &ce)
		},
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			metrics.StoreBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn("store circuit breaker changed state",
				zap.String("breaker", breaker),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &TTLStore[V]{
		client:     client,
		name:       name,
		prefix:     prefix,
		maxRetries: opts.MaxRetries,
		breaker:    cb,
	}
}

// callerError marks errors produced by an UpdateFunc so they do not count
// as Redis failures.
type callerError struct{ err error }

func (e callerError) Error() string { return e.err.Error() }
func (e callerError) Unwrap() error { return e.err }

func (s *TTLStore[V]) key(k string) string {
	return s.prefix + ":" + k
}

// Get returns the value stored under key. Redis expires keys on its own
// clock; now is unused.
func (s *TTLStore[V]) Get(ctx context.Context, key string, _ time.Time) (V, bool, error) {
	var zero V
	res, err := s.breaker.Execute(func() (interface{}, error) {
		raw, err := s.client.rdb.Get(ctx, s.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return raw, err
	})
	if err != nil {
		return zero, false, fmt.Errorf("%s get: %w", s.name, err)
	}
	raw, _ := res.([]byte)
	if raw == nil {
		return zero, false, nil
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("%s decode: %w", s.name, err)
	}
	return v, true, nil
}

// Upsert runs fn inside a WATCH/MULTI transaction, retrying when another
// writer touches the key between the read and the write.
func (s *TTLStore[V]) Upsert(ctx context.Context, key string, now time.Time, fn ttlstore.UpdateFunc[V]) (V, error) {
	var zero V
	k := s.key(key)

	res, err := s.breaker.Execute(func() (interface{}, error) {
		for attempt := 0; attempt < s.maxRetries; attempt++ {
			var out V
			err := s.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
				var (
					current V
					exists  bool
				)
				raw, err := tx.Get(ctx, k).Bytes()
				switch {
				case errors.Is(err, redis.Nil):
				case err != nil:
					return err
				default:
					if err := json.Unmarshal(raw, &current); err != nil {
						return fmt.Errorf("decode: %w", err)
					}
					exists = true
				}

				next, expiresAt, err := fn(current, exists)
				if errors.Is(err, ttlstore.ErrSkipWrite) {
					out = current
					return nil
				}
				if err != nil {
					return callerError{err}
				}

				encoded, err := json.Marshal(next)
				if err != nil {
					return callerError{fmt.Errorf("encode: %w", err)}
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					switch {
					case expiresAt.IsZero():
						pipe.Set(ctx, k, encoded, 0)
					case !now.Before(expiresAt):
						pipe.Del(ctx, k)
					default:
						pipe.Set(ctx, k, encoded, expiresAt.Sub(now))
					}
					return nil
				})
				if err != nil {
					return err
				}
				out = next
				return nil
			}, k)

			if errors.Is(err, redis.TxFailedErr) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return out, nil
		}
		return nil, ErrTooManyConflicts
	})
	if err != nil {
		var ce callerError
		if errors.As(err, &ce) {
			return zero, ce.err
		}
		return zero, fmt.Errorf("%s upsert: %w", s.name, err)
	}
	v, _ := res.(V)
	return v, nil
}

// Delete removes key
func (s *TTLStore[V]) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.rdb.Del(ctx, s.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("%s delete: %w", s.name, err)
	}
	return nil
}

// Sweep is a no-op; Redis evicts expired keys itself.
func (s *TTLStore[V]) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
