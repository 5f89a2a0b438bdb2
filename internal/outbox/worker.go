package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/bus"
	"github.com/messageai/tacsync/internal/mapper"
	"github.com/messageai/tacsync/internal/remote"
	"github.com/messageai/tacsync/internal/store"
)

// Result is the outcome of one worker run.
type Result int

const (
	Success Result = iota
	Retry
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "retry"
}

// Runner executes one delivery attempt.
type Runner interface {
	Run(ctx context.Context, messageID string) Result
}

// SendAck is the payload of bus.KindSendAck events.
type SendAck struct {
	MessageID string
	ChatID    string
}

// SendRetry is the payload of bus.KindSendRetry events.
type SendRetry struct {
	MessageID string
	ChatID    string
	Attempt   int
	Err       string
}

// Worker pushes one queued message to the remote feed.
type Worker struct {
	db     *store.DB
	feed   remote.Feed
	bus    *bus.Bus
	logger *zap.Logger
}

// NewWorker creates a worker.
func NewWorker(db *store.DB, feed remote.Feed, b *bus.Bus, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{db: db, feed: feed, bus: b, logger: logger}
}

// Run pushes the message with create-or-merge semantics. On success the row
// becomes sent and synced and its queue entry is removed; otherwise the
// entry's retry count is bumped and Retry is returned.
func (w *Worker) Run(ctx context.Context, messageID string) Result {
	// Bookkeeping must land even when ctx is canceled mid-push.
	storeCtx := context.WithoutCancel(ctx)

	msg, err := w.db.Message(storeCtx, messageID)
	if err != nil {
		w.logger.Error("failed to load queued message", zap.String("message_id", messageID), zap.Error(err))
		return Retry
	}
	if msg == nil {
		w.logger.Warn("queued message missing, dropping entry", zap.String("message_id", messageID))
		if err := w.db.DeleteSend(storeCtx, messageID); err != nil {
			return Retry
		}
		return Success
	}
	if msg.Synced {
		if err := w.db.DeleteSend(storeCtx, messageID); err != nil {
			return Retry
		}
		return Success
	}

	if err := w.feed.PushMessage(ctx, mapper.LocalToRemote(*msg)); err != nil {
		attempt := w.recordFailure(storeCtx, messageID, err)
		w.logger.Warn("send failed, will retry",
			zap.String("message_id", messageID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		w.bus.Publish(bus.Event{
			Kind:    bus.KindSendRetry,
			Key:     msg.ChatID,
			Payload: SendRetry{MessageID: messageID, ChatID: msg.ChatID, Attempt: attempt, Err: err.Error()},
		})
		return Retry
	}

	err = w.db.InTx(storeCtx, func(tx *store.Tx) error {
		cur, err := tx.Message(storeCtx, messageID)
		if err != nil {
			return err
		}
		// The listener may already have written a later status.
		st := store.StatusSent
		if cur != nil && cur.Status != store.StatusSending {
			st = cur.Status
		}
		if err := tx.UpdateStatusAndSync(storeCtx, messageID, st, true); err != nil {
			return err
		}
		return tx.DeleteSend(storeCtx, messageID)
	})
	if err != nil {
		// The push is idempotent, so a retry only repeats the remote write.
		w.logger.Error("failed to record send", zap.String("message_id", messageID), zap.Error(err))
		return Retry
	}

	w.logger.Info("message sent", zap.String("message_id", messageID), zap.String("chat_id", msg.ChatID))
	w.bus.Publish(bus.Event{
		Kind:    bus.KindSendAck,
		Key:     msg.ChatID,
		Payload: SendAck{MessageID: messageID, ChatID: msg.ChatID},
	})
	return Success
}

func (w *Worker) recordFailure(ctx context.Context, messageID string, cause error) int {
	attempt := 0
	err := w.db.InTx(ctx, func(tx *store.Tx) error {
		e, err := tx.SendEntry(ctx, messageID)
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
		e.RetryCount++
		e.LastError = cause.Error()
		attempt = e.RetryCount
		return tx.UpdateSend(ctx, *e)
	})
	if err != nil {
		w.logger.Error("failed to record retry", zap.String("message_id", messageID), zap.Error(fmt.Errorf("bump retry: %w", err)))
	}
	return attempt
}
