package messages

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/campus-connect/internal/db"
	svcErr "github.com/oggyb/campus-connect/internal/errors"
)

const maxGroupName = 128

// CreateGroup makes a team group. The creator and every listed user become
// active members with the watermark at creation time.
func (s *Store) CreateGroup(ctx context.Context, creatorID uint64, name string, memberIDs []uint64) (*db.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, svcErr.InvalidArgument("group name must not be empty")
	}
	if len(name) > maxGroupName {
		return nil, svcErr.InvalidArgument("group name too long")
	}

	members := []uint64{creatorID}
	seen := map[uint64]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	ok, err := s.users.Exists(ctx, members...)
	if err != nil {
		return nil, svcErr.Transient("look up members", err)
	}
	if !ok {
		return nil, svcErr.NotFound("user not found")
	}

	g := &db.Group{Name: name, CreatorID: creatorID}
	if err := s.groups.Create(ctx, g, members, s.stamp()); err != nil {
		s.log.Error("create group failed", "creator", creatorID, "err", err)
		return nil, svcErr.Transient("create group", err)
	}
	s.log.Info("group created", "group_id", g.ID, "creator", creatorID, "members", len(members))
	return s.groups.Get(ctx, g.ID)
}

// AddGroupMember lets the group's creator add userID. Re-adding a former
// member reactivates them with their old watermark.
func (s *Store) AddGroupMember(ctx context.Context, actorID, groupID, userID uint64) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound("group not found")
		}
		return svcErr.Transient("load group", err)
	}
	if g.CreatorID != actorID {
		return svcErr.Forbidden("only the creator can add members")
	}

	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return svcErr.Transient("look up user", err)
	}
	if !ok {
		return svcErr.NotFound("user not found")
	}

	if err := s.groups.UpsertMember(ctx, groupID, userID, s.stamp()); err != nil {
		return svcErr.Transient("add member", err)
	}
	return nil
}

// Group returns a group with its ordered roster, visible to active members.
func (s *Store) Group(ctx context.Context, userID, groupID uint64) (*db.Group, error) {
	if _, err := s.activeMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, svcErr.Transient("load group", err)
	}
	return g, nil
}
