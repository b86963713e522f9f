package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"riskguard/internal/domain/fraud"
)

// UserBlockStateModel is the database model for user block flags
type UserBlockStateModel struct {
	UserID    string     `gorm:"type:varchar(128);primaryKey"`
	IsBlocked bool       `gorm:"index;not null"`
	UnblockAt *time.Time `gorm:"index"`
	Reason    string     `gorm:"type:text"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}

// TableName returns the table name for user block states
func (UserBlockStateModel) TableName() string {
	return "user_block_states"
}

// BlockStateRepository implements fraud.BlockStateRepository
type BlockStateRepository struct {
	db *gorm.DB
}

// NewBlockStateRepository creates a new block state repository
func NewBlockStateRepository(client *Client) *BlockStateRepository {
	return &BlockStateRepository{db: client.DB()}
}

// Get retrieves the block state for a user
func (r *BlockStateRepository) Get(ctx context.Context, userID string) (*fraud.UserBlockState, error) {
	var model UserBlockStateModel
	if err := r.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fraud.ErrBlockStateNotFound
		}
		return nil, err
	}
	return modelToBlockState(&model), nil
}

// Upsert creates or replaces the block state for a user
func (r *BlockStateRepository) Upsert(ctx context.Context, state *fraud.UserBlockState) error {
	now := state.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	model := &UserBlockStateModel{
		UserID:    state.UserID,
		IsBlocked: state.IsBlocked,
		UnblockAt: state.UnblockAt,
		Reason:    state.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_blocked", "unblock_at", "reason", "updated_at"}),
	}).Create(model).Error
}

// Clear lifts the block for a user. Clearing an unknown user is a no-op.
func (r *BlockStateRepository) Clear(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Model(&UserBlockStateModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"is_blocked": false,
			"unblock_at": nil,
			"updated_at": time.Now(),
		}).Error
}

func modelToBlockState(m *UserBlockStateModel) *fraud.UserBlockState {
	return &fraud.UserBlockState{
		UserID:    m.UserID,
		IsBlocked: m.IsBlocked,
		UnblockAt: m.UnblockAt,
		Reason:    m.Reason,
		UpdatedAt: m.UpdatedAt,
	}
}
