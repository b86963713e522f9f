// Package kv stores user block flags in a ttlstore.Store, for deployments
// that run without PostgreSQL.
package kv

import (
	"context"
	"time"

	"riskguard/internal/domain/fraud"
	"riskguard/internal/pkg/ttlstore"
)

// BlockStateRepository implements fraud.BlockStateRepository on a TTL store.
// Timed blocks expire out of the store one hour after UnblockAt so the
// lapsed state stays visible to the clear-on-read path for a while.
type BlockStateRepository struct {
	store ttlstore.Store[fraud.UserBlockState]
	now   func() time.Time
}

const lapsedRetention = time.Hour

// NewBlockStateRepository creates a repository backed by store
func NewBlockStateRepository(store ttlstore.Store[fraud.UserBlockState]) *BlockStateRepository {
	return &BlockStateRepository{store: store, now: time.Now}
}

// Get retrieves the block state for a user
func (r *BlockStateRepository) Get(ctx context.Context, userID string) (*fraud.UserBlockState, error) {
	state, ok, err := r.store.Get(ctx, userID, r.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fraud.ErrBlockStateNotFound
	}
	return &state, nil
}

// Upsert creates or replaces the block state for a user
func (r *BlockStateRepository) Upsert(ctx context.Context, state *fraud.UserBlockState) error {
	next := *state
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = r.now()
	}
	var expiresAt time.Time
	if next.UnblockAt != nil {
		expiresAt = next.UnblockAt.Add(lapsedRetention)
	}
	_, err := r.store.Upsert(ctx, next.UserID, r.now(), func(_ fraud.UserBlockState, _ bool) (fraud.UserBlockState, time.Time, error) {
		return next, expiresAt, nil
	})
	return err
}

// Clear lifts the block for a user. Clearing an unknown user is a no-op.
func (r *BlockStateRepository) Clear(ctx context.Context, userID string) error {
	return r.store.Delete(ctx, userID)
}
