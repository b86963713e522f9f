package fraud

import (
	"context"
)

// BlockStateRepository persists per-user block flags
type BlockStateRepository interface {
	// Get returns the state for userID, or ErrBlockStateNotFound
	Get(ctx context.Context, userID string) (*UserBlockState, error)

	// Upsert creates or replaces the state for state.UserID
	Upsert(ctx context.Context, state *UserBlockState) error

	// Clear lifts the block for userID
	Clear(ctx context.Context, userID string) error
}
