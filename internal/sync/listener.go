package sync

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/auth"
	"github.com/messageai/tacsync/internal/bus"
	"github.com/messageai/tacsync/internal/mapper"
	"github.com/messageai/tacsync/internal/remote"
	"github.com/messageai/tacsync/internal/store"
)

// DataChanged is the payload of bus.KindDataChanged events.
type DataChanged struct {
	ChatID string
	Rows   int
}

// Listener writes live feed changes for the open chat through to the cache.
// At most one chat is subscribed at a time.
type Listener struct {
	db     *store.DB
	feed   remote.Feed
	auth   auth.Provider
	bus    *bus.Bus
	logger *zap.Logger

	mu     gosync.Mutex
	want   string
	chatID string
	sub    remote.Subscription
	cancel context.CancelFunc
	marks  gosync.WaitGroup
}

// NewListener creates a listener. Change notices go to b.
func NewListener(db *store.DB, feed remote.Feed, provider auth.Provider, b *bus.Bus, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{db: db, feed: feed, auth: provider, bus: b, logger: logger}
}

// Start subscribes to chatID, replacing a subscription to any other chat.
// Starting the current chat again is a no-op. The chat stays requested when
// the subscribe fails, so Resume can attach it later.
func (l *Listener) Start(ctx context.Context, chatID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil && l.chatID == chatID {
		return nil
	}
	l.stopLocked()
	l.want = chatID
	return l.attachLocked(ctx)
}

// Resume attaches the requested chat if it is not subscribed yet.
func (l *Listener) Resume(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.want == "" || l.sub != nil {
		return nil
	}
	return l.attachLocked(ctx)
}

func (l *Listener) attachLocked(ctx context.Context) error {
	chatID := l.want
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := l.feed.SubscribeMessages(ctx, chatID, func(changes []remote.Change) {
		l.handleBatch(runCtx, chatID, changes)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", chatID, err)
	}
	l.chatID, l.sub, l.cancel = chatID, sub, cancel
	l.logger.Info("listening", zap.String("chat_id", chatID))
	return nil
}

// Stop cancels the subscription and forgets the requested chat. It returns
// after any in-flight batch has been written; no batch is handled afterwards.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	l.want = ""
}

// Current returns the subscribed chat id, or "" when idle.
func (l *Listener) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chatID
}

// Requested returns the chat last passed to Start, subscribed or not.
func (l *Listener) Requested() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.want
}

func (l *Listener) stopLocked() {
	if l.sub == nil {
		return
	}
	l.sub.Cancel()
	l.cancel()
	l.marks.Wait()
	l.logger.Info("stopped listening", zap.String("chat_id", l.chatID))
	l.chatID, l.sub, l.cancel = "", nil, nil
}

// handleBatch applies one feed batch. Removed changes are not propagated.
func (l *Listener) handleBatch(ctx context.Context, chatID string, changes []remote.Change) {
	var (
		rows    []store.Message
		remotes []remote.Message
	)
	for _, c := range changes {
		if c.Type != remote.Added && c.Type != remote.Modified {
			continue
		}
		rows = append(rows, mapper.RemoteToLocal(c.Message))
		remotes = append(remotes, c.Message)
	}
	if len(rows) == 0 {
		return
	}

	viewer, signedIn := "", false
	if l.auth != nil {
		viewer, signedIn = l.auth.CurrentUserID()
	}

	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertMessages(ctx, rows); err != nil {
			return err
		}
		if signedIn {
			return recountUnread(ctx, tx, chatID, viewer)
		}
		return nil
	})
	if err != nil {
		l.logger.Error("failed to write live batch", zap.String("chat_id", chatID), zap.Int("rows", len(rows)), zap.Error(err))
		return
	}

	l.bus.Publish(bus.Event{
		Kind:    bus.KindDataChanged,
		Key:     chatID,
		Payload: DataChanged{ChatID: chatID, Rows: len(rows)},
	})

	if !signedIn {
		return
	}
	for _, m := range remotes {
		if m.SenderID == viewer || slices.Contains(m.DeliveredBy, viewer) {
			continue
		}
		l.markDelivered(ctx, chatID, m.ID, viewer)
	}
}

// markDelivered is best effort; failures are logged and dropped.
func (l *Listener) markDelivered(ctx context.Context, chatID, messageID, viewer string) {
	l.marks.Add(1)
	go func() {
		defer l.marks.Done()
		if err := l.feed.MarkDelivered(ctx, chatID, messageID, viewer); err != nil {
			l.logger.Debug("mark delivered failed",
				zap.String("chat_id", chatID),
				zap.String("message_id", messageID),
				zap.Error(err))
		}
	}()
}
