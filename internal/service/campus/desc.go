package campus

import (
	"context"

	"google.golang.org/grpc"

	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/service/dispatch"
)

const ServiceName = "campus.v1.Campus"

// EventsServer is the server side of the bidirectional event channel.
type EventsServer = grpc.BidiStreamingServer[dispatch.Command, presence.Event]

// CampusServer is the full API surface registered on the gRPC server.
type CampusServer interface {
	Swipe(context.Context, *SwipeRequest) (*SwipeResponse, error)
	Block(context.Context, *BlockRequest) (*Empty, error)
	Unblock(context.Context, *BlockRequest) (*Empty, error)
	Recommend(context.Context, *RecommendRequest) (*RecommendResponse, error)
	SendDirect(context.Context, *SendDirectRequest) (*SendResponse, error)
	SendGroup(context.Context, *SendGroupRequest) (*SendResponse, error)
	MarkDirectRead(context.Context, *MarkDirectReadRequest) (*MarkDirectReadResponse, error)
	MarkGroupRead(context.Context, *MarkGroupReadRequest) (*Empty, error)
	UnreadCounts(context.Context, *Empty) (*UnreadCountsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	CreateGroup(context.Context, *CreateGroupRequest) (*GroupResponse, error)
	AddGroupMember(context.Context, *AddGroupMemberRequest) (*GroupResponse, error)
	Events(EventsServer) error
}

var _ CampusServer = (*Service)(nil)

// unary builds the method descriptor for one RPC. Domain errors are mapped to
// status codes here so Service stays transport-neutral.
func unary[Req, Resp any](name string, call func(CampusServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			invoke := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(CampusServer), ctx, req.(*Req))
				if err != nil {
					return nil, svcErr.Map(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return invoke(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, invoke)
		},
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	err := srv.(CampusServer).Events(&grpc.GenericServerStream[dispatch.Command, presence.Event]{ServerStream: stream})
	return svcErr.Map(err)
}

// ServiceDesc describes campus.v1.Campus for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CampusServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Swipe", CampusServer.Swipe),
		unary("Block", CampusServer.Block),
		unary("Unblock", CampusServer.Unblock),
		unary("Recommend", CampusServer.Recommend),
		unary("SendDirect", CampusServer.SendDirect),
		unary("SendGroup", CampusServer.SendGroup),
		unary("MarkDirectRead", CampusServer.MarkDirectRead),
		unary("MarkGroupRead", CampusServer.MarkGroupRead),
		unary("UnreadCounts", CampusServer.UnreadCounts),
		unary("ListMessages", CampusServer.ListMessages),
		unary("CreateGroup", CampusServer.CreateGroup),
		unary("AddGroupMember", CampusServer.AddGroupMember),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "campus/v1/campus.proto",
}
