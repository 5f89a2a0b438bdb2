package api

import (
	"context"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/messageai/tacsync/internal/apiv1"
	"github.com/messageai/tacsync/internal/store"
)

// ChatService implements the ChatService gRPC service.
type ChatService struct {
	db      *store.DB
	profile string
}

// NewChatService creates a chat service backed by the store.
func NewChatService(db *store.DB, profile string) *ChatService {
	return &ChatService{db: db, profile: profile}
}

func (s *ChatService) ListChats(ctx context.Context, req *apiv1.ListChatsRequest) (*apiv1.ListChatsResponse, error) {
	chats, err := s.db.Chats(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list chats: %v", err)
	}
	if req.Limit > 0 && len(chats) > req.Limit {
		chats = chats[:req.Limit]
	}
	out := make([]apiv1.Chat, 0, len(chats))
	for i := range chats {
		out = append(out, chatToWire(&chats[i]))
	}
	return &apiv1.ListChatsResponse{Chats: out}, nil
}

func (s *ChatService) GetChat(ctx context.Context, req *apiv1.GetChatRequest) (*apiv1.GetChatResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	c, err := s.db.Chat(ctx, req.ChatID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "get chat: %v", err)
	}
	if c == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "chat %q not found", req.ChatID)
	}
	return &apiv1.GetChatResponse{Chat: chatToWire(c)}, nil
}

// WatchChats streams a notice whenever the cached chat list changes.
func (s *ChatService) WatchChats(req *apiv1.WatchRequest, stream apiv1.EventStream) error {
	ch, unsub := s.db.WatchChats(req.ChatID, watchBuffer)
	defer unsub()
	return forward(stream, s.profile, ch)
}
