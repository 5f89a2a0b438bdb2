package pgfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/remote"
)

// notice is the pub/sub payload. Subscribers refetch the document by ID so
// Postgres stays the only source of document state.
type notice struct {
	Change string `json:"change"`
	ID     string `json:"id"`
	ChatID string `json:"chat_id,omitempty"`
}

func messagesChannel(chatID string) string { return "tacsync:chat:" + chatID + ":messages" }

func chatsChannel(userID string) string { return "tacsync:user:" + userID + ":chats" }

// publish is best effort: the document is already committed, and a notice
// missed during a Redis outage is covered by the snapshot subscribers take
// when their connection resubscribes.
func (f *Feed) publish(ctx context.Context, channel string, n notice) {
	payload, err := json.Marshal(n)
	if err != nil {
		f.logger.Error("encode notice", zap.Error(err))
		return
	}
	if err := f.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		f.logger.Warn("publish notice failed", zap.String("channel", channel), zap.Error(err))
	}
}

// SubscribeMessages implements remote.Feed. The Redis channel is joined
// before the snapshot is read so no change falls between them.
func (f *Feed) SubscribeMessages(ctx context.Context, chatID string, onBatch func([]remote.Change)) (remote.Subscription, error) {
	ps, err := f.join(ctx, messagesChannel(chatID))
	if err != nil {
		return nil, err
	}
	snapshot := func(ctx context.Context) ([]remote.Change, error) {
		rows, err := f.queryMessages(ctx, chatID, snapshotLimit, nil)
		if err != nil {
			return nil, err
		}
		out := make([]remote.Change, 0, len(rows))
		for _, m := range rows {
			out = append(out, remote.Change{Type: remote.Added, Message: m})
		}
		return out, nil
	}
	first, err := snapshot(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	return follow(ctx, f, ps, onBatch, first, snapshot, func(ctx context.Context, n notice) ([]remote.Change, error) {
		if n.Change == remote.Removed.String() {
			return []remote.Change{{Type: remote.Removed, Message: remote.Message{ID: n.ID, ChatID: chatID}}}, nil
		}
		msg, ok, err := f.Message(ctx, n.ID)
		if err != nil || !ok {
			return nil, err
		}
		typ := remote.Modified
		if n.Change == remote.Added.String() {
			typ = remote.Added
		}
		return []remote.Change{{Type: typ, Message: msg}}, nil
	}), nil
}

// SubscribeChats implements remote.ChatFeed.
func (f *Feed) SubscribeChats(ctx context.Context, viewerID string, onChats func([]remote.Chat)) (remote.Subscription, error) {
	ps, err := f.join(ctx, chatsChannel(viewerID))
	if err != nil {
		return nil, err
	}
	snapshot := func(ctx context.Context) ([]remote.Chat, error) {
		return f.viewerChats(ctx, viewerID)
	}
	first, err := snapshot(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	return follow(ctx, f, ps, onChats, first, snapshot, func(ctx context.Context, n notice) ([]remote.Chat, error) {
		chat, ok, err := f.Chat(ctx, n.ID)
		if err != nil || !ok {
			return nil, err
		}
		return []remote.Chat{chat}, nil
	}), nil
}

func (f *Feed) join(ctx context.Context, channel string) (*redis.PubSub, error) {
	ps := f.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("pgfeed: subscribe %s: %w", channel, err)
	}
	return ps, nil
}

// follow delivers first, then one batch per notice resolved by fetch. The
// subscribe confirmation consumed by join is not seen here, so every
// subscribe confirmation on the channel means go-redis reconnected; notices
// sent while it was down are lost and resync supplies a fresh snapshot.
// Cancel closes the pub/sub connection and waits for the reader.
func follow[T any](ctx context.Context, f *Feed, ps *redis.PubSub, fn func([]T), first []T,
	resync func(context.Context) ([]T, error),
	fetch func(context.Context, notice) ([]T, error)) remote.Subscription {
	readCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	var q *remote.Queue[[]T]
	d := remote.NewDispatcher(fn, func() {
		stop()
		_ = ps.Close()
		<-done
		q.Close()
	})
	q = remote.NewQueue(d)
	q.Push(first)

	go func() {
		defer close(done)
		for raw := range ps.ChannelWithSubscriptions() {
			var (
				batch []T
				err   error
			)
			switch msg := raw.(type) {
			case *redis.Subscription:
				if msg.Kind != "subscribe" {
					continue
				}
				f.logger.Info("pub/sub resubscribed, taking snapshot", zap.String("channel", msg.Channel))
				batch, err = resync(readCtx)
			case *redis.Message:
				var n notice
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					f.logger.Warn("malformed notice", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				batch, err = fetch(readCtx, n)
			default:
				continue
			}
			if readCtx.Err() != nil {
				return
			}
			if err != nil {
				f.logger.Warn("refetch failed", zap.Error(err))
				continue
			}
			if len(batch) > 0 {
				q.Push(batch)
			}
		}
	}()
	return d
}
