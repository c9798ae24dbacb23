package campus

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/service/dispatch"
)

// ContentSubtype selects the JSON codec registered by the server package.
const ContentSubtype = "json"

// EventsClient is the client side of the event channel.
type EventsClient = grpc.BidiStreamingClient[dispatch.Command, presence.Event]

// Client is a thin typed wrapper over a connection to campus.v1.Campus.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, c *Client, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(ContentSubtype)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Swipe(ctx context.Context, in *SwipeRequest, opts ...grpc.CallOption) (*SwipeResponse, error) {
	return invoke[SwipeRequest, SwipeResponse](ctx, c, "Swipe", in, opts...)
}

func (c *Client) Block(ctx context.Context, in *BlockRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[BlockRequest, Empty](ctx, c, "Block", in, opts...)
}

func (c *Client) Unblock(ctx context.Context, in *BlockRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[BlockRequest, Empty](ctx, c, "Unblock", in, opts...)
}

func (c *Client) Recommend(ctx context.Context, in *RecommendRequest, opts ...grpc.CallOption) (*RecommendResponse, error) {
	return invoke[RecommendRequest, RecommendResponse](ctx, c, "Recommend", in, opts...)
}

func (c *Client) SendDirect(ctx context.Context, in *SendDirectRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendDirectRequest, SendResponse](ctx, c, "SendDirect", in, opts...)
}

func (c *Client) SendGroup(ctx context.Context, in *SendGroupRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendGroupRequest, SendResponse](ctx, c, "SendGroup", in, opts...)
}

func (c *Client) MarkDirectRead(ctx context.Context, in *MarkDirectReadRequest, opts ...grpc.CallOption) (*MarkDirectReadResponse, error) {
	return invoke[MarkDirectReadRequest, MarkDirectReadResponse](ctx, c, "MarkDirectRead", in, opts...)
}

func (c *Client) MarkGroupRead(ctx context.Context, in *MarkGroupReadRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[MarkGroupReadRequest, Empty](ctx, c, "MarkGroupRead", in, opts...)
}

func (c *Client) UnreadCounts(ctx context.Context, opts ...grpc.CallOption) (*UnreadCountsResponse, error) {
	return invoke[Empty, UnreadCountsResponse](ctx, c, "UnreadCounts", &Empty{}, opts...)
}

func (c *Client) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesRequest, ListMessagesResponse](ctx, c, "ListMessages", in, opts...)
}

func (c *Client) CreateGroup(ctx context.Context, in *CreateGroupRequest, opts ...grpc.CallOption) (*GroupResponse, error) {
	return invoke[CreateGroupRequest, GroupResponse](ctx, c, "CreateGroup", in, opts...)
}

func (c *Client) AddGroupMember(ctx context.Context, in *AddGroupMemberRequest, opts ...grpc.CallOption) (*GroupResponse, error) {
	return invoke[AddGroupMemberRequest, GroupResponse](ctx, c, "AddGroupMember", in, opts...)
}

// Events opens the bidirectional event channel.
func (c *Client) Events(ctx context.Context, opts ...grpc.CallOption) (EventsClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(ContentSubtype)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Events", opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[dispatch.Command, presence.Event]{ClientStream: stream}, nil
}
