package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/messageai/tacsync/internal/bus"
)

// SetCursor stores the pagination key for a chat, replacing any previous one.
func (tx *Tx) SetCursor(ctx context.Context, chatID string, key int64) error {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO cursors (chat_id, key, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET key = excluded.key, updated_at = excluded.updated_at`,
		chatID, key, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", chatID, err)
	}
	tx.touch(bus.KindCursorsChanged, chatID)
	return nil
}

// ClearCursor removes the chat's cursor.
func (tx *Tx) ClearCursor(ctx context.Context, chatID string) error {
	if _, err := tx.q.ExecContext(ctx, `DELETE FROM cursors WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear cursor %s: %w", chatID, err)
	}
	tx.touch(bus.KindCursorsChanged, chatID)
	return nil
}

// Cursor returns the chat's cursor, or nil if none is stored.
func (tx *Tx) Cursor(ctx context.Context, chatID string) (*Cursor, error) {
	return getCursor(ctx, tx.q, chatID)
}

func getCursor(ctx context.Context, q querier, chatID string) (*Cursor, error) {
	var c Cursor
	err := q.QueryRowContext(ctx, `SELECT chat_id, key, updated_at FROM cursors WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.Key, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor %s: %w", chatID, err)
	}
	return &c, nil
}

// Cursor returns the chat's cursor, or nil if none is stored.
func (db *DB) Cursor(ctx context.Context, chatID string) (*Cursor, error) {
	return getCursor(ctx, db.DB, chatID)
}

// SetCursor stores the pagination key for a chat.
func (db *DB) SetCursor(ctx context.Context, chatID string, key int64) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.SetCursor(ctx, chatID, key) })
}

// ClearCursor removes the chat's cursor, forcing the next load to refresh.
func (db *DB) ClearCursor(ctx context.Context, chatID string) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.ClearCursor(ctx, chatID) })
}
