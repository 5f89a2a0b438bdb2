package api

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/messageai/tacsync/internal/apiv1"
	"github.com/messageai/tacsync/internal/bus"
	"github.com/messageai/tacsync/internal/outbox"
	"github.com/messageai/tacsync/internal/store"
	intsync "github.com/messageai/tacsync/internal/sync"
)

const defaultSearchLimit = 50

// MessageService implements the MessageService gRPC service.
type MessageService struct {
	db       *store.DB
	mediator *intsync.Mediator
	pager    *intsync.Pager
	outbox   *outbox.Outbox
	profile  string
	pageSize int
	logger   *zap.Logger
}

// NewMessageService creates a message service. pageSize is used when a
// request does not name one.
func NewMessageService(db *store.DB, m *intsync.Mediator, p *intsync.Pager, o *outbox.Outbox, profile string, pageSize int, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = intsync.DefaultPageSize
	}
	return &MessageService{db: db, mediator: m, pager: p, outbox: o, profile: profile, pageSize: pageSize, logger: logger}
}

func (s *MessageService) size(n int) int {
	if n > 0 {
		return n
	}
	return s.pageSize
}

// ListMessages serves a newest-first page through the pager. A remote
// failure is not an RPC error: the cached rows come back flagged.
func (s *MessageService) ListMessages(ctx context.Context, req *apiv1.ListMessagesRequest) (*apiv1.ListMessagesResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	page, err := s.pager.Page(ctx, req.ChatID, req.PageToken, s.size(req.PageSize))
	resp := &apiv1.ListMessagesResponse{
		Messages:        messagesToWire(page.Messages),
		NextPageToken:   page.NextToken,
		EndOfPagination: page.EndOfPagination,
	}
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, intsync.ErrRemote):
		s.logger.Debug("page served from cache", zap.String("chat_id", req.ChatID), zap.Error(err))
		resp.RemoteError = err.Error()
		return resp, nil
	case errors.Is(err, store.ErrBadToken):
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "page_token: %v", err)
	default:
		return nil, grpcstatus.Errorf(codes.Internal, "list messages: %v", err)
	}
}

func (s *MessageService) LoadMessages(ctx context.Context, req *apiv1.LoadMessagesRequest) (*apiv1.LoadMessagesResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	typ, err := intsync.ParseLoadType(req.LoadType)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "load_type: %v", err)
	}
	res, err := s.mediator.Load(ctx, req.ChatID, typ, s.size(req.PageSize))
	if errors.Is(err, intsync.ErrRemote) {
		return nil, grpcstatus.Errorf(codes.Unavailable, "%v", err)
	}
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "load messages: %v", err)
	}
	return &apiv1.LoadMessagesResponse{EndOfPagination: res.EndOfPagination, Fetched: res.Fetched}, nil
}

func (s *MessageService) SearchMessages(ctx context.Context, req *apiv1.SearchMessagesRequest) (*apiv1.SearchMessagesResponse, error) {
	if req.Query == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	results, err := s.db.SearchMessages(ctx, req.Query, req.ChatID, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	out := make([]apiv1.SearchResult, 0, len(results))
	for i := range results {
		out = append(out, apiv1.SearchResult{Message: messageToWire(&results[i].Message), Snippet: results[i].Snippet})
	}
	return &apiv1.SearchMessagesResponse{Results: out}, nil
}

func (s *MessageService) SendText(ctx context.Context, req *apiv1.SendTextRequest) (*apiv1.SendTextResponse, error) {
	msg, err := s.outbox.Send(ctx, outbox.SendRequest{
		ChatID:    req.ChatID,
		Text:      req.Text,
		ImageURL:  req.ImageURL,
		MessageID: req.MessageID,
	})
	if errors.Is(err, outbox.ErrEmptyMessage) || errors.Is(err, outbox.ErrNoChat) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "send: %v", err)
	}
	if msg == nil {
		return &apiv1.SendTextResponse{Accepted: false}, nil
	}
	wire := messageToWire(msg)
	return &apiv1.SendTextResponse{Accepted: true, Message: &wire}, nil
}

func (s *MessageService) ListPending(ctx context.Context, _ *emptypb.Empty) (*apiv1.ListPendingResponse, error) {
	entries, err := s.db.PendingSends(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list pending: %v", err)
	}
	out := make([]apiv1.PendingSend, 0, len(entries))
	for _, e := range entries {
		out = append(out, apiv1.PendingSend{
			MessageID:  e.MessageID,
			ChatID:     e.ChatID,
			RetryCount: e.RetryCount,
			LastError:  e.LastError,
			CreatedAt:  e.CreatedAt,
			UpdatedAt:  e.UpdatedAt,
		})
	}
	return &apiv1.ListPendingResponse{Entries: out}, nil
}

func (s *MessageService) Resend(ctx context.Context, req *apiv1.ResendRequest) (*emptypb.Empty, error) {
	err := s.outbox.Resend(ctx, req.MessageID)
	if errors.Is(err, outbox.ErrNotFound) {
		return nil, grpcstatus.Errorf(codes.NotFound, "message %q is not queued", req.MessageID)
	}
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "resend: %v", err)
	}
	return &emptypb.Empty{}, nil
}

// WatchMessages streams cache writes, live sync hints and send outcomes,
// optionally for one chat.
func (s *MessageService) WatchMessages(req *apiv1.WatchRequest, stream apiv1.EventStream) error {
	writes, unsubWrites := s.db.WatchMessages(req.ChatID, watchBuffer)
	defer unsubWrites()
	synced, unsubSynced := s.db.Bus().SubscribeKey(bus.KindDataChanged, req.ChatID, watchBuffer)
	defer unsubSynced()
	sends, unsubSends := s.db.Bus().SubscribeKey("outbox.", req.ChatID, watchBuffer)
	defer unsubSends()
	return forward(stream, s.profile, writes, synced, sends)
}

// WatchPending streams a notice on every committed outbound queue change.
func (s *MessageService) WatchPending(req *apiv1.WatchRequest, stream apiv1.EventStream) error {
	ch, unsub := s.db.WatchSends(req.ChatID, watchBuffer)
	defer unsub()
	return forward(stream, s.profile, ch)
}
