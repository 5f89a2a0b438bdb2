// Package pgfeed implements the remote feed on PostgreSQL, with change
// notices fanned out over Redis pub/sub.
package pgfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/remote"
)

// snapshotLimit bounds the first batch of a message subscription.
const snapshotLimit = 200

// Options configures Open.
type Options struct {
	PostgresURL string
	RedisURL    string
	// ConnectWait is how long Open keeps retrying Postgres. Zero means 30s.
	ConnectWait time.Duration
	Logger      *zap.Logger
}

// Feed is a remote.Feed backed by Postgres and Redis.
type Feed struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	logger *zap.Logger
	now    func() int64
}

// Open connects to both backends and ensures the schema exists.
func Open(ctx context.Context, opts Options) (*Feed, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	wait := opts.ConnectWait
	if wait == 0 {
		wait = 30 * time.Second
	}
	pool, err := connectPool(ctx, opts.PostgresURL, wait, logger)
	if err != nil {
		return nil, err
	}
	rdb, err := connectRedis(ctx, opts.RedisURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	f := New(pool, rdb, logger)
	if err := f.EnsureSchema(ctx); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// New wraps existing clients. The caller keeps ownership until Close.
func New(pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		pool:   pool,
		rdb:    rdb,
		logger: logger.Named("pgfeed"),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock overrides the server clock used for new documents.
func (f *Feed) SetClock(now func() int64) { f.now = now }

// Close releases both clients.
func (f *Feed) Close() {
	f.pool.Close()
	if err := f.rdb.Close(); err != nil {
		f.logger.Debug("redis close", zap.Error(err))
	}
}

// Ping implements remote.Pinger. Either backend failing counts as offline.
func (f *Feed) Ping(ctx context.Context) error {
	if err := f.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %v", remote.ErrUnavailable, err)
	}
	if err := f.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %v", remote.ErrUnavailable, err)
	}
	return nil
}

const messageColumns = `id, chat_id, sender_id, text, image_url, server_ts, client_ts, status, read_by, delivered_by`

// PushMessage implements remote.Feed. A document keeps its first server
// timestamp; read-by and delivered-by sets are merged.
func (f *Feed) PushMessage(ctx context.Context, msg remote.Message) error {
	ts := f.now()
	if msg.ServerTimestamp != nil {
		ts = *msg.ServerTimestamp
	}
	status := msg.Status
	if status == "" || status == "sending" {
		status = "sent"
	}

	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgfeed: push %s: %w", msg.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var serverTS int64
	var inserted bool
	err = tx.QueryRow(ctx, `
		INSERT INTO feed_messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			image_url = EXCLUDED.image_url,
			client_ts = COALESCE(feed_messages.client_ts, EXCLUDED.client_ts),
			status = EXCLUDED.status,
			read_by = ARRAY(SELECT DISTINCT x FROM unnest(feed_messages.read_by || EXCLUDED.read_by) AS x ORDER BY x),
			delivered_by = ARRAY(SELECT DISTINCT x FROM unnest(feed_messages.delivered_by || EXCLUDED.delivered_by) AS x ORDER BY x)
		RETURNING server_ts, (xmax = 0)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.Text, msg.ImageURL, ts, msg.ClientTimestamp, status,
		orEmpty(msg.ReadBy), orEmpty(msg.DeliveredBy),
	).Scan(&serverTS, &inserted)
	if err != nil {
		return fmt.Errorf("pgfeed: push %s: %w", msg.ID, err)
	}

	var participants []string
	err = tx.QueryRow(ctx, `
		UPDATE feed_chats
		SET last_text = $2, last_image_url = $3, last_sender_id = $4, last_ts = $5, updated_at = $5
		WHERE id = $1
		RETURNING participants`,
		msg.ChatID, msg.Text, msg.ImageURL, msg.SenderID, serverTS,
	).Scan(&participants)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("pgfeed: push %s: update chat: %w", msg.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgfeed: push %s: commit: %w", msg.ID, err)
	}

	change := remote.Modified
	if inserted {
		change = remote.Added
	}
	f.publish(ctx, messagesChannel(msg.ChatID), notice{Change: change.String(), ID: msg.ID})
	for _, p := range participants {
		f.publish(ctx, chatsChannel(p), notice{Change: remote.Modified.String(), ID: msg.ChatID})
	}
	return nil
}

// PageMessages implements remote.Feed.
func (f *Feed) PageMessages(ctx context.Context, chatID string, pageSize int, olderThan *int64) ([]remote.Message, error) {
	return f.queryMessages(ctx, chatID, pageSize, olderThan)
}

func (f *Feed) queryMessages(ctx context.Context, chatID string, limit int, olderThan *int64) ([]remote.Message, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := f.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM feed_messages
		WHERE chat_id = $1 AND ($2::BIGINT IS NULL OR server_ts < $2)
		ORDER BY server_ts DESC, id DESC
		LIMIT $3`,
		chatID, olderThan, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("pgfeed: page %s: %w", chatID, err)
	}
	defer rows.Close()

	var out []remote.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("pgfeed: page %s: %w", chatID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Message fetches one document by id. ok is false when absent.
func (f *Feed) Message(ctx context.Context, id string) (msg remote.Message, ok bool, err error) {
	row := f.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM feed_messages WHERE id = $1`, id)
	msg, err = scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return remote.Message{}, false, nil
	}
	if err != nil {
		return remote.Message{}, false, fmt.Errorf("pgfeed: get %s: %w", id, err)
	}
	return msg, true, nil
}

// MarkDelivered implements remote.Feed. A sent message advances to
// delivered; repeating the call changes nothing.
func (f *Feed) MarkDelivered(ctx context.Context, chatID, messageID, viewerID string) error {
	tag, err := f.pool.Exec(ctx, `
		UPDATE feed_messages
		SET delivered_by = array_append(delivered_by, $3),
			status = CASE WHEN status = 'sent' THEN 'delivered' ELSE status END
		WHERE id = $1 AND chat_id = $2 AND NOT ($3 = ANY(delivered_by))`,
		messageID, chatID, viewerID,
	)
	if err != nil {
		return fmt.Errorf("pgfeed: mark delivered %s: %w", messageID, err)
	}
	if tag.RowsAffected() > 0 {
		f.publish(ctx, messagesChannel(chatID), notice{Change: remote.Modified.String(), ID: messageID})
	}
	return nil
}

// DeleteMessage removes a document and notifies subscribers.
func (f *Feed) DeleteMessage(ctx context.Context, messageID string) error {
	var chatID string
	err := f.pool.QueryRow(ctx, `DELETE FROM feed_messages WHERE id = $1 RETURNING chat_id`, messageID).Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pgfeed: delete %s: %w", messageID, err)
	}
	f.publish(ctx, messagesChannel(chatID), notice{Change: remote.Removed.String(), ID: messageID, ChatID: chatID})
	return nil
}

const chatColumns = `id, type, participants, participant_names, group_name,
	last_text, last_image_url, last_sender_id, last_ts, updated_at`

// PutChat creates or replaces a chat document.
func (f *Feed) PutChat(ctx context.Context, chat remote.Chat) error {
	if chat.UpdatedAt == 0 {
		chat.UpdatedAt = f.now()
	}
	names := chat.ParticipantNames
	if names == nil {
		names = map[string]string{}
	}
	var lastText, lastImage, lastSender *string
	var lastTS *int64
	if lm := chat.LastMessage; lm != nil {
		lastText, lastImage, lastSender, lastTS = lm.Text, lm.ImageURL, &lm.SenderID, &lm.Timestamp
	}
	_, err := f.pool.Exec(ctx, `
		INSERT INTO feed_chats (`+chatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			participants = EXCLUDED.participants,
			participant_names = EXCLUDED.participant_names,
			group_name = EXCLUDED.group_name,
			last_text = EXCLUDED.last_text,
			last_image_url = EXCLUDED.last_image_url,
			last_sender_id = EXCLUDED.last_sender_id,
			last_ts = EXCLUDED.last_ts,
			updated_at = EXCLUDED.updated_at`,
		chat.ID, chat.Type, orEmpty(chat.Participants), names, chat.GroupName,
		lastText, lastImage, lastSender, lastTS, chat.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("pgfeed: put chat %s: %w", chat.ID, err)
	}
	for _, p := range chat.Participants {
		f.publish(ctx, chatsChannel(p), notice{Change: remote.Modified.String(), ID: chat.ID})
	}
	return nil
}

// Chat fetches one chat document. ok is false when absent.
func (f *Feed) Chat(ctx context.Context, id string) (chat remote.Chat, ok bool, err error) {
	chat, err = scanChat(f.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM feed_chats WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return remote.Chat{}, false, nil
	}
	if err != nil {
		return remote.Chat{}, false, fmt.Errorf("pgfeed: get chat %s: %w", id, err)
	}
	return chat, true, nil
}

func (f *Feed) viewerChats(ctx context.Context, viewerID string) ([]remote.Chat, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT `+chatColumns+`
		FROM feed_chats
		WHERE $1 = ANY(participants)
		ORDER BY updated_at DESC, id ASC`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("pgfeed: chats of %s: %w", viewerID, err)
	}
	defer rows.Close()
	var out []remote.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("pgfeed: chats of %s: %w", viewerID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (remote.Message, error) {
	var m remote.Message
	var ts int64
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.ImageURL, &ts,
		&m.ClientTimestamp, &m.Status, &m.ReadBy, &m.DeliveredBy)
	if err != nil {
		return remote.Message{}, err
	}
	m.ServerTimestamp = &ts
	return m, nil
}

func scanChat(row pgx.Row) (remote.Chat, error) {
	var c remote.Chat
	var lastText, lastImage, lastSender *string
	var lastTS *int64
	err := row.Scan(&c.ID, &c.Type, &c.Participants, &c.ParticipantNames, &c.GroupName,
		&lastText, &lastImage, &lastSender, &lastTS, &c.UpdatedAt)
	if err != nil {
		return remote.Chat{}, err
	}
	if lastTS != nil {
		c.LastMessage = &remote.LastMessage{Text: lastText, ImageURL: lastImage, Timestamp: *lastTS}
		if lastSender != nil {
			c.LastMessage.SenderID = *lastSender
		}
	}
	return c, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ remote.Feed     = (*Feed)(nil)
	_ remote.ChatFeed = (*Feed)(nil)
	_ remote.Pinger   = (*Feed)(nil)
)
