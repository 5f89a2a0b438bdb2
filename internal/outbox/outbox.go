// Package outbox accepts outgoing messages and delivers them to the remote
// feed in the background, surviving restarts.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/auth"
	"github.com/messageai/tacsync/internal/mapper"
	"github.com/messageai/tacsync/internal/store"
)

var (
	// ErrEmptyMessage is returned for a send with neither text nor image.
	ErrEmptyMessage = errors.New("outbox: message has no text or image")
	// ErrNoChat is returned for a send without a chat id.
	ErrNoChat = errors.New("outbox: chat id is required")
	// ErrNotFound is returned by Resend for an unknown message id.
	ErrNotFound = errors.New("outbox: message not found")
)

// SendRequest is a user's intent to send one message.
type SendRequest struct {
	ChatID   string
	Text     string
	ImageURL string
	// MessageID is generated when empty. Reusing an id replaces the queued send.
	MessageID string
}

// Enqueuer schedules delivery of a queued message.
type Enqueuer interface {
	Schedule(messageID string)
}

// Outbox is the intake side of the outbound queue.
type Outbox struct {
	db     *store.DB
	auth   auth.Provider
	sched  Enqueuer
	logger *zap.Logger
	now    func() time.Time
}

// New creates an outbox.
func New(db *store.DB, provider auth.Provider, sched Enqueuer, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{db: db, auth: provider, sched: sched, logger: logger, now: time.Now}
}

// Send writes the message as sending, queues it and updates the chat
// preview in one transaction, then schedules delivery. Without a signed-in
// user it does nothing and returns nil, nil.
func (o *Outbox) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	viewer, ok := o.auth.CurrentUserID()
	if !ok {
		o.logger.Debug("send without current user ignored", zap.String("chat_id", req.ChatID))
		return nil, nil
	}
	if strings.TrimSpace(req.ChatID) == "" {
		return nil, ErrNoChat
	}
	if strings.TrimSpace(req.Text) == "" && req.ImageURL == "" {
		return nil, ErrEmptyMessage
	}

	id := req.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	now := o.now().UnixMilli()
	msg := store.Message{
		ID:        id,
		ChatID:    req.ChatID,
		SenderID:  viewer,
		Timestamp: now,
		Status:    store.StatusSending,
		Synced:    false,
		CreatedAt: now,
	}
	if req.Text != "" {
		text := req.Text
		msg.Text = &text
	}
	if req.ImageURL != "" {
		img := req.ImageURL
		msg.ImageURL = &img
	}

	err := o.db.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertMessage(ctx, &msg); err != nil {
			return err
		}
		if err := tx.EnqueueSend(ctx, store.SendEntry{ID: id, MessageID: id, ChatID: msg.ChatID, CreatedAt: now}); err != nil {
			return err
		}
		return tx.TouchChat(ctx, msg.ChatID, mapper.Preview(msg.Text, msg.ImageURL), now)
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: queue %s: %w", id, err)
	}

	o.sched.Schedule(id)
	o.logger.Info("message queued", zap.String("message_id", id), zap.String("chat_id", msg.ChatID))
	return &msg, nil
}

// Resend schedules delivery of an existing unsynced message again,
// recreating its queue entry if needed. A synced message is left alone.
func (o *Outbox) Resend(ctx context.Context, messageID string) error {
	msg, err := o.db.Message(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrNotFound
	}
	if msg.Synced {
		return nil
	}

	err = o.db.InTx(ctx, func(tx *store.Tx) error {
		e, err := tx.SendEntry(ctx, messageID)
		if err != nil || e != nil {
			return err
		}
		return tx.EnqueueSend(ctx, store.SendEntry{ID: messageID, MessageID: messageID, ChatID: msg.ChatID})
	})
	if err != nil {
		return fmt.Errorf("outbox: requeue %s: %w", messageID, err)
	}
	o.sched.Schedule(messageID)
	return nil
}

// Seed schedules every entry still in the queue once. It returns the number
// of entries scheduled.
func (o *Outbox) Seed(ctx context.Context) (int, error) {
	pending, err := o.db.PendingSends(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: seed: %w", err)
	}
	for _, e := range pending {
		o.sched.Schedule(e.MessageID)
	}
	if len(pending) > 0 {
		o.logger.Info("pending sends rescheduled", zap.Int("count", len(pending)))
	}
	return len(pending), nil
}
