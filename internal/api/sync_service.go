package api

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/messageai/tacsync/internal/apiv1"
	"github.com/messageai/tacsync/internal/auth"
	"github.com/messageai/tacsync/internal/status"
	"github.com/messageai/tacsync/internal/store"
	intsync "github.com/messageai/tacsync/internal/sync"
)

// SyncService implements the SyncService gRPC service.
type SyncService struct {
	profile   string
	startedAt time.Time
	machine   *status.Machine
	session   *auth.Session
	db        *store.DB
	pager     *intsync.Pager
	listener  *intsync.Listener
	pageSize  int
	logger    *zap.Logger
}

// NewSyncService creates a sync service.
func NewSyncService(profile string, machine *status.Machine, session *auth.Session, db *store.DB,
	pager *intsync.Pager, listener *intsync.Listener, pageSize int, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		profile:   profile,
		startedAt: time.Now(),
		machine:   machine,
		session:   session,
		db:        db,
		pager:     pager,
		listener:  listener,
		pageSize:  pageSize,
		logger:    logger,
	}
}

func (s *SyncService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*apiv1.GetStatusResponse, error) {
	resp := &apiv1.GetStatusResponse{
		Profile:  s.profile,
		State:    string(s.machine.Current()),
		OpenChat: s.listener.Requested(),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if id, ok := s.session.CurrentUserID(); ok {
		resp.UserID = id
	}

	// Counts are best effort.
	if n, err := s.db.ChatCount(ctx); err == nil {
		resp.ChatCount = n
	}
	if n, err := s.db.MessageCount(ctx); err == nil {
		resp.MessageCount = n
	}
	if pending, err := s.db.PendingSends(ctx); err == nil {
		resp.PendingSends = len(pending)
	}
	return resp, nil
}

// OpenChat prepares a chat for paging and attaches the live listener.
// Offline, both steps may fail without failing the call; the listener
// attaches once the feed is reachable again.
func (s *SyncService) OpenChat(ctx context.Context, req *apiv1.OpenChatRequest) (*apiv1.OpenChatResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	size := req.PageSize
	if size <= 0 {
		size = s.pageSize
	}

	resp := &apiv1.OpenChatResponse{}
	action, err := s.pager.Open(ctx, req.ChatID, size)
	switch {
	case err == nil:
		resp.Refreshed = action == intsync.LaunchRefresh
	case errors.Is(err, intsync.ErrRemote):
		resp.RemoteError = err.Error()
	default:
		return nil, grpcstatus.Errorf(codes.Internal, "open chat: %v", err)
	}

	if err := s.listener.Start(ctx, req.ChatID); err != nil {
		s.logger.Warn("live updates unavailable", zap.String("chat_id", req.ChatID), zap.Error(err))
		if resp.RemoteError == "" {
			resp.RemoteError = err.Error()
		}
	} else {
		resp.Live = true
	}
	return resp, nil
}

func (s *SyncService) CloseChat(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.listener.Stop()
	return &emptypb.Empty{}, nil
}

func (s *SyncService) SignIn(_ context.Context, req *apiv1.SignInRequest) (*emptypb.Empty, error) {
	if req.UserID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "user_id is required")
	}
	s.session.SignIn(req.UserID)
	return &emptypb.Empty{}, nil
}

func (s *SyncService) SignOut(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.session.SignOut()
	return &emptypb.Empty{}, nil
}
