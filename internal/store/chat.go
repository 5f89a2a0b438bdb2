package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/messageai/tacsync/internal/bus"
)

const chatColumns = `id, type, name, participants, last_message, last_message_at, unread_count, updated_at`

func scanChat(r rowScanner) (Chat, error) {
	var (
		c       Chat
		typ     string
		preview sql.NullString
	)
	if err := r.Scan(&c.ID, &typ, &c.Name, &c.Participants, &preview, &c.LastMessageAt, &c.UnreadCount, &c.UpdatedAt); err != nil {
		return Chat{}, err
	}
	c.Type = ChatType(typ)
	if preview.Valid {
		c.LastMessage = &preview.String
	}
	return c, nil
}

// UpsertChat inserts or updates a chat record. The unread count is owned by
// SetUnreadCount and is left untouched on update.
func (tx *Tx) UpsertChat(ctx context.Context, c *Chat) error {
	if c.Type == "" {
		c.Type = ChatDirect
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = time.Now().UnixMilli()
	}
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO chats (`+chatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			participants = excluded.participants,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		c.ID, string(c.Type), c.Name, c.Participants, c.LastMessage, c.LastMessageAt, c.UnreadCount, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", c.ID, err)
	}
	tx.touch(bus.KindChatsChanged, c.ID)
	return nil
}

// SetUnreadCount stores a recomputed unread count. Unknown chats are ignored.
func (tx *Tx) SetUnreadCount(ctx context.Context, chatID string, n int) error {
	res, err := tx.q.ExecContext(ctx, `UPDATE chats SET unread_count = ? WHERE id = ?`, n, chatID)
	if err != nil {
		return fmt.Errorf("set unread %s: %w", chatID, err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		tx.touch(bus.KindChatsChanged, chatID)
	}
	return nil
}

// TouchChat records a new last message on a chat, creating a bare direct
// chat row when the chat is not cached yet.
func (tx *Tx) TouchChat(ctx context.Context, chatID string, preview *string, at int64) error {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO chats (id, type, name, last_message, last_message_at, updated_at)
		VALUES (?, ?, '', ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		chatID, string(ChatDirect), preview, at, at)
	if err != nil {
		return fmt.Errorf("touch chat %s: %w", chatID, err)
	}
	tx.touch(bus.KindChatsChanged, chatID)
	return nil
}

// Chat returns a chat by id, or nil if absent.
func (tx *Tx) Chat(ctx context.Context, id string) (*Chat, error) {
	return getChat(ctx, tx.q, id)
}

func getChat(ctx context.Context, q querier, id string) (*Chat, error) {
	c, err := scanChat(q.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}
	return &c, nil
}

// UpsertChat inserts or updates a chat record, keeping its unread count.
func (db *DB) UpsertChat(ctx context.Context, c *Chat) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.UpsertChat(ctx, c) })
}

// SetUnreadCount stores a recomputed unread count.
func (db *DB) SetUnreadCount(ctx context.Context, chatID string, n int) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.SetUnreadCount(ctx, chatID, n) })
}

// TouchChat records a new last message on a chat.
func (db *DB) TouchChat(ctx context.Context, chatID string, preview *string, at int64) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.TouchChat(ctx, chatID, preview, at) })
}

// Chat returns a single chat by id, or nil if absent.
func (db *DB) Chat(ctx context.Context, id string) (*Chat, error) {
	return getChat(ctx, db.DB, id)
}

// Chats returns all cached chats, most recently updated first.
func (db *DB) Chats(ctx context.Context) ([]Chat, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+chatColumns+` FROM chats ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ChatCount returns the number of cached chats.
func (db *DB) ChatCount(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return n, nil
}
