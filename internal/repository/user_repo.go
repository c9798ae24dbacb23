package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/campus-connect/internal/db"
)

// UserRepository reads identities and profiles owned by the profile service.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// GetUser returns the user or gorm.ErrRecordNotFound.
func (r *UserRepository) GetUser(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetProfile returns the user's profile or gorm.ErrRecordNotFound.
func (r *UserRepository) GetProfile(ctx context.Context, userID uint64) (*db.Profile, error) {
	var p db.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Exists reports whether every given id is a known user.
func (r *UserRepository) Exists(ctx context.Context, ids ...uint64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	uniq := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&db.User{}).Where("id IN ?", ids).Count(&count).Error
	return count == int64(len(uniq)), err
}

// Candidates returns every user eligible to be recommended to userID, with
// profiles preloaded.
//
// Behavior:
//   - Only users that have a profile and an active (not admin-blocked) account.
//   - Excludes the requester.
//   - Excludes users connected to the requester.
//   - Excludes users with a block in either direction.
//   - Excludes users the requester already swiped, like or pass.
//   - Ordered by id ASC.
func (r *UserRepository) Candidates(ctx context.Context, userID uint64) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Select("users.*").
		Joins("JOIN profiles ON profiles.user_id = users.id").
		Where("users.id <> ? AND users.blocked = ?", userID, false).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM connections c
				WHERE (c.user_low_id = ? AND c.user_high_id = users.id)
				   OR (c.user_high_id = ? AND c.user_low_id = users.id)
			)`, userID, userID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = ? AND b.blocked_id = users.id)
				   OR (b.blocked_id = ? AND b.blocker_id = users.id)
			)`, userID, userID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM swipe_decisions s
				WHERE s.actor_id = ? AND s.target_id = users.id
			)`, userID).
		Order("users.id ASC").
		Preload("Profile").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
