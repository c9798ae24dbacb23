package campus

import (
	"time"

	"github.com/oggyb/campus-connect/internal/db"
	"github.com/oggyb/campus-connect/internal/service/messages"
	"github.com/oggyb/campus-connect/internal/service/recommend"
)

// Request and response messages of campus.v1.Campus. They travel as JSON on
// both the gRPC service and the HTTP gateway.

type Empty struct{}

type SwipeRequest struct {
	TargetID uint64 `json:"target_id" validate:"required"`
	Decision string `json:"decision" validate:"required,oneof=like pass"`
}

type SwipeResponse struct {
	Matched       bool `json:"matched"`
	NewConnection bool `json:"new_connection"`
}

type BlockRequest struct {
	TargetID uint64 `json:"target_id" validate:"required"`
}

type RecommendRequest struct {
	Limit int `json:"limit"`
}

type Candidate struct {
	UserID           uint64   `json:"user_id"`
	DisplayName      string   `json:"display_name"`
	Skills           []string `json:"skills"`
	Interests        []string `json:"interests"`
	MatchedSkills    []string `json:"matched_skills,omitempty"`
	MatchedInterests []string `json:"matched_interests,omitempty"`
	SharedIntents    []string `json:"shared_intents,omitempty"`
	Score            float64  `json:"score"`
	IsRecommended    bool     `json:"is_recommended"`
}

type RecommendResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type SendDirectRequest struct {
	ReceiverID uint64  `json:"receiver_id" validate:"required"`
	Content    string  `json:"content" validate:"required"`
	Attachment *string `json:"attachment,omitempty" validate:"omitempty,max=512"`
}

type SendGroupRequest struct {
	GroupID    uint64  `json:"group_id" validate:"required"`
	Content    string  `json:"content" validate:"required"`
	Attachment *string `json:"attachment,omitempty" validate:"omitempty,max=512"`
}

type SendResponse struct {
	Message messages.View `json:"message"`
	State   string        `json:"state"`
}

type MarkDirectReadRequest struct {
	CounterpartID uint64 `json:"counterpart_id" validate:"required"`
}

type MarkDirectReadResponse struct {
	Updated int64 `json:"updated"`
}

type MarkGroupReadRequest struct {
	GroupID uint64 `json:"group_id" validate:"required"`
}

type UnreadCountsResponse struct {
	Direct int64            `json:"direct"`
	Groups map[uint64]int64 `json:"groups"`
}

type ListMessagesRequest struct {
	RoomID    string `json:"room_id" validate:"required"`
	PageToken string `json:"page_token,omitempty"`
	Limit     int    `json:"limit,omitempty" validate:"gte=0"`
}

type ListMessagesResponse struct {
	Messages      []messages.View `json:"messages"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type CreateGroupRequest struct {
	Name      string   `json:"name" validate:"required,max=128"`
	MemberIDs []uint64 `json:"member_ids,omitempty" validate:"dive,required"`
}

type AddGroupMemberRequest struct {
	GroupID uint64 `json:"group_id" validate:"required"`
	UserID  uint64 `json:"user_id" validate:"required"`
}

type GroupMember struct {
	UserID   uint64    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type GroupResponse struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	CreatorID uint64        `json:"creator_id"`
	Members   []GroupMember `json:"members"`
}

func toCandidates(scores []recommend.Score) []Candidate {
	out := make([]Candidate, 0, len(scores))
	for _, s := range scores {
		out = append(out, Candidate{
			UserID:           s.UserID,
			DisplayName:      s.DisplayName,
			Skills:           s.Skills,
			Interests:        s.Interests,
			MatchedSkills:    s.MatchedSkills,
			MatchedInterests: s.MatchedInterests,
			SharedIntents:    s.SharedIntents,
			Score:            s.Score,
			IsRecommended:    s.IsRecommended,
		})
	}
	return out
}

func toGroupResponse(g *db.Group) *GroupResponse {
	resp := &GroupResponse{ID: g.ID, Name: g.Name, CreatorID: g.CreatorID}
	for _, m := range g.Members {
		if !m.Active {
			continue
		}
		resp.Members = append(resp.Members, GroupMember{UserID: m.UserID, JoinedAt: m.JoinedAt.UTC()})
	}
	return resp
}
