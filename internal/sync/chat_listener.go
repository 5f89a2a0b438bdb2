package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/auth"
	"github.com/messageai/tacsync/internal/mapper"
	"github.com/messageai/tacsync/internal/remote"
	"github.com/messageai/tacsync/internal/store"
)

// ChatListener writes the viewer's chat documents through to the cache.
type ChatListener struct {
	db     *store.DB
	feed   remote.ChatFeed
	auth   auth.Provider
	logger *zap.Logger

	mu     gosync.Mutex
	viewer string
	sub    remote.Subscription
	cancel context.CancelFunc
}

// NewChatListener creates a chat listener.
func NewChatListener(db *store.DB, feed remote.ChatFeed, provider auth.Provider, logger *zap.Logger) *ChatListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatListener{db: db, feed: feed, auth: provider, logger: logger}
}

// Start subscribes to the current user's chats. Without a signed-in user it
// does nothing.
func (l *ChatListener) Start(ctx context.Context) error {
	viewer, ok := l.auth.CurrentUserID()
	if !ok {
		l.logger.Debug("no current user, chat listener idle")
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil && l.viewer == viewer {
		return nil
	}
	l.stopLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := l.feed.SubscribeChats(ctx, viewer, func(chats []remote.Chat) {
		l.handleChats(runCtx, viewer, chats)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe chats: %w", err)
	}
	l.viewer, l.sub, l.cancel = viewer, sub, cancel
	return nil
}

// Stop cancels the subscription and waits for an in-flight delivery.
func (l *ChatListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *ChatListener) stopLocked() {
	if l.sub == nil {
		return
	}
	l.sub.Cancel()
	l.cancel()
	l.viewer, l.sub, l.cancel = "", nil, nil
}

func (l *ChatListener) handleChats(ctx context.Context, viewer string, docs []remote.Chat) {
	if len(docs) == 0 {
		return
	}
	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		for _, doc := range docs {
			chat := mapper.ChatDocToLocal(doc, viewer)
			if err := tx.UpsertChat(ctx, &chat); err != nil {
				return err
			}
			if err := recountUnread(ctx, tx, chat.ID, viewer); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.logger.Error("failed to write chats", zap.Int("chats", len(docs)), zap.Error(err))
		return
	}
	l.logger.Debug("chats updated", zap.Int("chats", len(docs)))
}
