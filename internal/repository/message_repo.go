package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/campus-connect/internal/db"
	"github.com/oggyb/campus-connect/internal/utils/pagination"
)

// MessageRepository is the durable message log.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// Create appends a message. ID is assigned by the database; CreatedAt must be
// set by the caller.
func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// LastCreatedAt returns the newest created_at in a room. ok is false when the
// room has no messages yet.
func (r *MessageRepository) LastCreatedAt(ctx context.Context, roomKey string) (t time.Time, ok bool, err error) {
	var m db.Message
	err = r.db.WithContext(ctx).
		Select("created_at").
		Where("room_key = ?", roomKey).
		Order("created_at DESC, id DESC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, err
	}
	return m.CreatedAt.UTC(), true, nil
}

// MarkDirectRead flips is_read on every unread message from counterpart to
// user and returns how many rows changed.
func (r *MessageRepository) MarkDirectRead(ctx context.Context, userID, counterpartID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", userID, counterpartID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// CountUnreadDirect counts unread direct messages addressed to user.
func (r *MessageRepository) CountUnreadDirect(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// CountUnreadDirectFrom counts unread direct messages from counterpart to user.
func (r *MessageRepository) CountUnreadDirectFrom(ctx context.Context, userID, counterpartID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", userID, counterpartID, false).
		Count(&count).Error
	return count, err
}

// CountGroupSince counts group messages written by others after the watermark.
func (r *MessageRepository) CountGroupSince(ctx context.Context, groupID, userID uint64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("group_id = ? AND sender_id <> ? AND created_at > ?", groupID, userID, since).
		Count(&count).Error
	return count, err
}

// GroupUnread is one row of CountUnreadGroups.
type GroupUnread struct {
	GroupID uint64
	Unread  int64
}

// CountUnreadGroups returns the unread count for every group the user is an
// active member of, groups with nothing unread included.
func (r *MessageRepository) CountUnreadGroups(ctx context.Context, userID uint64) ([]GroupUnread, error) {
	var rows []GroupUnread
	err := r.db.WithContext(ctx).
		Table("team_group_members gm").
		Select("gm.group_id AS group_id, COUNT(m.id) AS unread").
		Joins(`LEFT JOIN messages m
			ON m.group_id = gm.group_id
			AND m.sender_id <> gm.user_id
			AND m.created_at > gm.last_read_at`).
		Where("gm.user_id = ? AND gm.active = ?", userID, true).
		Group("gm.group_id").
		Order("gm.group_id ASC").
		Scan(&rows).Error
	return rows, err
}

// ListRoom returns up to limit messages of a room in stored order
// (created_at ASC, id ASC), starting after the cursor.
func (r *MessageRepository) ListRoom(ctx context.Context, roomKey string, after pagination.Cursor, limit int) ([]db.Message, error) {
	query := r.db.WithContext(ctx).
		Where("room_key = ?", roomKey).
		Order("created_at ASC, id ASC").
		Limit(limit)

	if !after.IsZero() {
		ts := after.CreatedAt()
		query = query.Where(
			"(created_at > ? OR (created_at = ? AND id > ?))",
			ts, ts, after.MessageID,
		)
	}

	var msgs []db.Message
	if err := query.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
