package apiv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	ChatServiceName    = "tacsync.v1.ChatService"
	MessageServiceName = "tacsync.v1.MessageService"
	SyncServiceName    = "tacsync.v1.SyncService"
)

// EventStream is the server side of a watch stream.
type EventStream interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

// ChatServiceServer serves the cached chat list.
type ChatServiceServer interface {
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	GetChat(context.Context, *GetChatRequest) (*GetChatResponse, error)
	WatchChats(*WatchRequest, EventStream) error
}

// MessageServiceServer serves message pages, loads, search, and sends.
type MessageServiceServer interface {
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	LoadMessages(context.Context, *LoadMessagesRequest) (*LoadMessagesResponse, error)
	SearchMessages(context.Context, *SearchMessagesRequest) (*SearchMessagesResponse, error)
	SendText(context.Context, *SendTextRequest) (*SendTextResponse, error)
	ListPending(context.Context, *emptypb.Empty) (*ListPendingResponse, error)
	Resend(context.Context, *ResendRequest) (*emptypb.Empty, error)
	WatchMessages(*WatchRequest, EventStream) error
	WatchPending(*WatchRequest, EventStream) error
}

// SyncServiceServer controls connectivity, the open chat, and the signed-in user.
type SyncServiceServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*GetStatusResponse, error)
	OpenChat(context.Context, *OpenChatRequest) (*OpenChatResponse, error)
	CloseChat(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SignIn(context.Context, *SignInRequest) (*emptypb.Empty, error)
	SignOut(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListChats", ChatServiceServer.ListChats),
		unary(ChatServiceName, "GetChat", ChatServiceServer.GetChat),
	},
	Streams: []grpc.StreamDesc{
		watch("WatchChats", ChatServiceServer.WatchChats),
	},
	Metadata: "tacsync/v1/tacsync.proto",
}

var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "ListMessages", MessageServiceServer.ListMessages),
		unary(MessageServiceName, "LoadMessages", MessageServiceServer.LoadMessages),
		unary(MessageServiceName, "SearchMessages", MessageServiceServer.SearchMessages),
		unary(MessageServiceName, "SendText", MessageServiceServer.SendText),
		unary(MessageServiceName, "ListPending", MessageServiceServer.ListPending),
		unary(MessageServiceName, "Resend", MessageServiceServer.Resend),
	},
	Streams: []grpc.StreamDesc{
		watch("WatchMessages", MessageServiceServer.WatchMessages),
		watch("WatchPending", MessageServiceServer.WatchPending),
	},
	Metadata: "tacsync/v1/tacsync.proto",
}

var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SyncServiceName, "GetStatus", SyncServiceServer.GetStatus),
		unary(SyncServiceName, "OpenChat", SyncServiceServer.OpenChat),
		unary(SyncServiceName, "CloseChat", SyncServiceServer.CloseChat),
		unary(SyncServiceName, "SignIn", SyncServiceServer.SignIn),
		unary(SyncServiceName, "SignOut", SyncServiceServer.SignOut),
	},
	Metadata: "tacsync/v1/tacsync.proto",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

func RegisterMessageServiceServer(s grpc.ServiceRegistrar, srv MessageServiceServer) {
	s.RegisterService(&MessageServiceDesc, srv)
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&SyncServiceDesc, srv)
}

func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

func watch[S any](name string, call func(S, *WatchRequest, EventStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(WatchRequest)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(S), in, eventServerStream{stream})
		},
	}
}

type eventServerStream struct {
	grpc.ServerStream
}

func (s eventServerStream) Send(e *EventEnvelope) error {
	return s.SendMsg(e)
}
