package apiv1

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client wraps a connection to the daemon with typed service clients.
type Client struct {
	conn    *grpc.ClientConn
	Chat    *ChatClient
	Message *MessageClient
	Sync    *SyncClient
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{
		conn:    conn,
		Chat:    &ChatClient{cc: conn},
		Message: &MessageClient{cc: conn},
		Sync:    &SyncClient{cc: conn},
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

type ChatClient struct{ cc grpc.ClientConnInterface }

func (c *ChatClient) ListChats(ctx context.Context, in *ListChatsRequest) (*ListChatsResponse, error) {
	return invoke[ListChatsResponse](ctx, c.cc, ChatServiceName, "ListChats", in)
}

func (c *ChatClient) GetChat(ctx context.Context, in *GetChatRequest) (*GetChatResponse, error) {
	return invoke[GetChatResponse](ctx, c.cc, ChatServiceName, "GetChat", in)
}

func (c *ChatClient) WatchChats(ctx context.Context, in *WatchRequest) (*EventReceiver, error) {
	return openWatch(ctx, c.cc, &ChatServiceDesc.Streams[0], ChatServiceName, in)
}

type MessageClient struct{ cc grpc.ClientConnInterface }

func (c *MessageClient) ListMessages(ctx context.Context, in *ListMessagesRequest) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, MessageServiceName, "ListMessages", in)
}

func (c *MessageClient) LoadMessages(ctx context.Context, in *LoadMessagesRequest) (*LoadMessagesResponse, error) {
	return invoke[LoadMessagesResponse](ctx, c.cc, MessageServiceName, "LoadMessages", in)
}

func (c *MessageClient) SearchMessages(ctx context.Context, in *SearchMessagesRequest) (*SearchMessagesResponse, error) {
	return invoke[SearchMessagesResponse](ctx, c.cc, MessageServiceName, "SearchMessages", in)
}

func (c *MessageClient) SendText(ctx context.Context, in *SendTextRequest) (*SendTextResponse, error) {
	return invoke[SendTextResponse](ctx, c.cc, MessageServiceName, "SendText", in)
}

func (c *MessageClient) ListPending(ctx context.Context) (*ListPendingResponse, error) {
	return invoke[ListPendingResponse](ctx, c.cc, MessageServiceName, "ListPending", &emptypb.Empty{})
}

func (c *MessageClient) Resend(ctx context.Context, in *ResendRequest) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, MessageServiceName, "Resend", in)
	return err
}

func (c *MessageClient) WatchMessages(ctx context.Context, in *WatchRequest) (*EventReceiver, error) {
	return openWatch(ctx, c.cc, &MessageServiceDesc.Streams[0], MessageServiceName, in)
}

// WatchPending streams outbound queue changes, optionally for one chat.
func (c *MessageClient) WatchPending(ctx context.Context, in *WatchRequest) (*EventReceiver, error) {
	return openWatch(ctx, c.cc, &MessageServiceDesc.Streams[1], MessageServiceName, in)
}

type SyncClient struct{ cc grpc.ClientConnInterface }

func (c *SyncClient) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c.cc, SyncServiceName, "GetStatus", &emptypb.Empty{})
}

func (c *SyncClient) OpenChat(ctx context.Context, in *OpenChatRequest) (*OpenChatResponse, error) {
	return invoke[OpenChatResponse](ctx, c.cc, SyncServiceName, "OpenChat", in)
}

func (c *SyncClient) CloseChat(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, SyncServiceName, "CloseChat", &emptypb.Empty{})
	return err
}

func (c *SyncClient) SignIn(ctx context.Context, userID string) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, SyncServiceName, "SignIn", &SignInRequest{UserID: userID})
	return err
}

func (c *SyncClient) SignOut(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, SyncServiceName, "SignOut", &emptypb.Empty{})
	return err
}

// EventReceiver is the client side of a watch stream.
type EventReceiver struct {
	stream grpc.ClientStream
}

// Recv blocks for the next envelope. It returns io.EOF when the daemon
// ends the stream.
func (r *EventReceiver) Recv() (*EventEnvelope, error) {
	e := new(EventEnvelope)
	if err := r.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func openWatch(ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, service string, in *WatchRequest) (*EventReceiver, error) {
	stream, err := cc.NewStream(ctx, desc, "/"+service+"/"+desc.StreamName, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventReceiver{stream: stream}, nil
}
