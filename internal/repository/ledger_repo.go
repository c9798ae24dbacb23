package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/campus-connect/internal/db"
)

// LedgerRepository provides data access for swipes, connections and blocks.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new repository bound to the given DB connection.
func NewLedgerRepository(database *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: database}
}

// UpsertSwipe inserts or updates the decision made by actor -> target.
//
// Behavior:
//   - If (actor_id, target_id) exists → the row gets the new decision and a
//     fresh updated_at (last write wins).
//   - If it doesn’t exist → a new row is inserted.
//   - Single statement, so it commits atomically on its own.
//
// Example:
//
//	repo.UpsertSwipe(ctx, 1, 2, db.DecisionLike) // user 1 liked user 2
func (r *LedgerRepository) UpsertSwipe(ctx context.Context, actorID, targetID uint64, decision string) error {
	swipe := db.SwipeDecision{
		ActorID:  actorID,
		TargetID: targetID,
		Decision: decision,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"decision", "updated_at"}),
		}).
		Create(&swipe).Error
}

// HasLiked checks whether an actor's current decision on a target is like.
//
// Used for the reciprocal check during match materialization.
func (r *LedgerRepository) HasLiked(ctx context.Context, actorID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.SwipeDecision{}).
		Where("actor_id = ? AND target_id = ? AND decision = ?", actorID, targetID, db.DecisionLike).
		Count(&count).Error
	return count > 0, err
}

// CreateConnection materializes the connection for the unordered pair.
//
// Behavior:
//   - Insert keyed by (low, high) with ON CONFLICT DO NOTHING: a compare-and-set
//     on the pair. Exactly one concurrent caller sees created == true.
func (r *LedgerRepository) CreateConnection(ctx context.Context, a, b uint64) (bool, error) {
	low, high := OrderPair(a, b)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Connection{UserLowID: low, UserHighID: high})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IsConnected reports whether a connection exists for the unordered pair.
func (r *LedgerRepository) IsConnected(ctx context.Context, a, b uint64) (bool, error) {
	low, high := OrderPair(a, b)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Connection{}).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Count(&count).Error
	return count > 0, err
}

// IsBlocked reports whether a block exists in either direction.
func (r *LedgerRepository) IsBlocked(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// InsertBlock sets the directed block; repeated calls are no-ops.
func (r *LedgerRepository) InsertBlock(ctx context.Context, blockerID, blockedID uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Block{BlockerID: blockerID, BlockedID: blockedID}).Error
}

// DeleteBlock clears the directed block; the reverse direction is untouched.
func (r *LedgerRepository) DeleteBlock(ctx context.Context, blockerID, blockedID uint64) error {
	return r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&db.Block{}).Error
}

// OrderPair returns the pair as (low, high).
func OrderPair(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}
