package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/campus-connect/internal/db"
)

// GroupRepository stores team groups and their rosters.
type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(database *gorm.DB) *GroupRepository {
	return &GroupRepository{db: database}
}

// Create inserts the group and its initial roster in one transaction. Every
// member starts active with the watermark at join time.
func (r *GroupRepository) Create(ctx context.Context, g *db.Group, memberIDs []uint64, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(g).Error; err != nil {
			return err
		}
		members := make([]db.GroupMember, 0, len(memberIDs))
		for _, id := range memberIDs {
			members = append(members, db.GroupMember{
				GroupID:    g.ID,
				UserID:     id,
				Active:     true,
				JoinedAt:   now,
				LastReadAt: now,
			})
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		g.Members = members
		return nil
	})
}

// Get returns the group with its roster ordered by join time then user id.
func (r *GroupRepository) Get(ctx context.Context, id uint64) (*db.Group, error) {
	var g db.Group
	err := r.db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("joined_at ASC, user_id ASC")
		}).
		First(&g, id).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetMember returns the roster entry or gorm.ErrRecordNotFound.
func (r *GroupRepository) GetMember(ctx context.Context, groupID, userID uint64) (*db.GroupMember, error) {
	var m db.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertMember adds the user, or reactivates a former member keeping their
// join time and watermark.
func (r *GroupRepository) UpsertMember(ctx context.Context, groupID, userID uint64, now time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"active"}),
		}).
		Create(&db.GroupMember{
			GroupID:    groupID,
			UserID:     userID,
			Active:     true,
			JoinedAt:   now,
			LastReadAt: now,
		}).Error
}

// AdvanceLastRead moves the member's watermark to at. The WHERE clause keeps
// it monotonic: an older value from a slow request never moves it back.
func (r *GroupRepository) AdvanceLastRead(ctx context.Context, groupID, userID uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND last_read_at < ?", groupID, userID, at).
		Update("last_read_at", at).Error
}
