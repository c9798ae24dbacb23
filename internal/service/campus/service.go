// Package campus exposes the matching and messaging core as the
// campus.v1.Campus API. The same Service backs the gRPC server and the HTTP
// gateway; it returns domain errors and each transport maps them.
package campus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oggyb/campus-connect/internal/app"
	"github.com/oggyb/campus-connect/internal/auth"
	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/service/messages"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// checkRequest turns struct-tag validation failures into InvalidArgument.
func checkRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return svcErr.InvalidArgument("invalid fields: " + strings.Join(fields, ", "))
	}
	return svcErr.InvalidArgument("invalid request")
}

// Service implements the Campus API on top of the AppContext components.
type Service struct {
	appCtx *app.AppContext
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// caller returns the authenticated user id placed on ctx by the auth layer.
func caller(ctx context.Context) (uint64, error) {
	id, ok := auth.UserID(ctx)
	if !ok {
		return 0, svcErr.Unauthenticated("authentication required")
	}
	return id, nil
}

// Swipe records a like or pass on target_id.
func (s *Service) Swipe(ctx context.Context, req *SwipeRequest) (*SwipeResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("Swipe called", "user_id", uid, "target", req.TargetID, "decision", req.Decision)

	res, err := s.appCtx.Dispatcher.Swipe(ctx, uid, req.TargetID, req.Decision)
	if err != nil {
		return nil, err
	}
	return &SwipeResponse{Matched: res.Matched, NewConnection: res.NewConnection}, nil
}

func (s *Service) Block(ctx context.Context, req *BlockRequest) (*Empty, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if err := s.appCtx.Dispatcher.Block(ctx, uid, req.TargetID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Service) Unblock(ctx context.Context, req *BlockRequest) (*Empty, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if err := s.appCtx.Ledger.Unblock(ctx, uid, req.TargetID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// Recommend ranks candidates for the caller.
func (s *Service) Recommend(ctx context.Context, req *RecommendRequest) (*RecommendResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	scores, err := s.appCtx.Recommender.Recommend(ctx, uid, req.Limit)
	if err != nil {
		return nil, err
	}
	return &RecommendResponse{Candidates: toCandidates(scores)}, nil
}

func (s *Service) SendDirect(ctx context.Context, req *SendDirectRequest) (*SendResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	r, err := s.appCtx.Dispatcher.SendDirect(ctx, uid, req.ReceiverID, req.Content, req.Attachment)
	if err != nil {
		return nil, err
	}
	return &SendResponse{Message: r.Message, State: r.State.String()}, nil
}

func (s *Service) SendGroup(ctx context.Context, req *SendGroupRequest) (*SendResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	r, err := s.appCtx.Dispatcher.SendGroup(ctx, uid, req.GroupID, req.Content, req.Attachment)
	if err != nil {
		return nil, err
	}
	return &SendResponse{Message: r.Message, State: r.State.String()}, nil
}

func (s *Service) MarkDirectRead(ctx context.Context, req *MarkDirectReadRequest) (*MarkDirectReadResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	n, err := s.appCtx.Dispatcher.MarkDirectRead(ctx, uid, req.CounterpartID)
	if err != nil {
		return nil, err
	}
	return &MarkDirectReadResponse{Updated: n}, nil
}

func (s *Service) MarkGroupRead(ctx context.Context, req *MarkGroupReadRequest) (*Empty, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if err := s.appCtx.Dispatcher.MarkGroupRead(ctx, uid, req.GroupID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// UnreadCounts returns the direct total and a per-group breakdown.
func (s *Service) UnreadCounts(ctx context.Context, _ *Empty) (*UnreadCountsResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.appCtx.Messages.UnreadCounts(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &UnreadCountsResponse{Direct: u.Direct, Groups: u.Groups}, nil
}

// ListMessages pages through a room's history in stored order.
func (s *Service) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	rows, next, err := s.appCtx.Messages.History(ctx, uid, req.RoomID, req.PageToken, req.Limit)
	if err != nil {
		return nil, err
	}
	return &ListMessagesResponse{Messages: messages.ToViews(rows), NextPageToken: next}, nil
}

func (s *Service) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*GroupResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	g, err := s.appCtx.Messages.CreateGroup(ctx, uid, req.Name, req.MemberIDs)
	if err != nil {
		return nil, err
	}
	return toGroupResponse(g), nil
}

func (s *Service) AddGroupMember(ctx context.Context, req *AddGroupMemberRequest) (*GroupResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if err := s.appCtx.Messages.AddGroupMember(ctx, uid, req.GroupID, req.UserID); err != nil {
		return nil, err
	}
	g, err := s.appCtx.Messages.Group(ctx, uid, req.GroupID)
	if err != nil {
		return nil, err
	}
	return toGroupResponse(g), nil
}
