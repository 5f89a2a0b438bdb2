package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/messageai/tacsync/internal/bus"
)

const sendColumns = `id, message_id, chat_id, retry_count, last_error, created_at, updated_at`

func scanSend(r rowScanner) (SendEntry, error) {
	var e SendEntry
	err := r.Scan(&e.ID, &e.MessageID, &e.ChatID, &e.RetryCount, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// EnqueueSend inserts or replaces a queue entry. There is at most one entry
// per message id.
func (tx *Tx) EnqueueSend(ctx context.Context, e SendEntry) error {
	if e.ID == "" {
		e.ID = e.MessageID
	}
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO send_queue (`+sendColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			message_id = excluded.message_id,
			chat_id = excluded.chat_id,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		e.ID, e.MessageID, e.ChatID, e.RetryCount, e.LastError, e.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("enqueue send %s: %w", e.ID, err)
	}
	tx.touch(bus.KindSendsChanged, e.ChatID)
	return nil
}

// UpdateSend records retry progress on an existing entry.
func (tx *Tx) UpdateSend(ctx context.Context, e SendEntry) error {
	_, err := tx.q.ExecContext(ctx, `
		UPDATE send_queue SET retry_count = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		e.RetryCount, e.LastError, time.Now().UnixMilli(), e.ID)
	if err != nil {
		return fmt.Errorf("update send %s: %w", e.ID, err)
	}
	tx.touch(bus.KindSendsChanged, e.ChatID)
	return nil
}

// DeleteSend removes a queue entry. Deleting a missing entry is not an error.
func (tx *Tx) DeleteSend(ctx context.Context, id string) error {
	if _, err := tx.q.ExecContext(ctx, `DELETE FROM send_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete send %s: %w", id, err)
	}
	tx.touch(bus.KindSendsChanged, "")
	return nil
}

// SendEntry returns a queue entry by id, or nil if absent.
func (tx *Tx) SendEntry(ctx context.Context, id string) (*SendEntry, error) {
	return getSend(ctx, tx.q, id)
}

func getSend(ctx context.Context, q querier, id string) (*SendEntry, error) {
	e, err := scanSend(q.QueryRowContext(ctx, `SELECT `+sendColumns+` FROM send_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get send %s: %w", id, err)
	}
	return &e, nil
}

// EnqueueSend inserts or replaces a queue entry.
func (db *DB) EnqueueSend(ctx context.Context, e SendEntry) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.EnqueueSend(ctx, e) })
}

// UpdateSend records retry progress on an existing entry.
func (db *DB) UpdateSend(ctx context.Context, e SendEntry) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.UpdateSend(ctx, e) })
}

// DeleteSend removes a queue entry.
func (db *DB) DeleteSend(ctx context.Context, id string) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.DeleteSend(ctx, id) })
}

// SendEntry returns a queue entry by id, or nil if absent.
func (db *DB) SendEntry(ctx context.Context, id string) (*SendEntry, error) {
	return getSend(ctx, db.DB, id)
}

// PendingSends returns all queue entries, oldest first.
func (db *DB) PendingSends(ctx context.Context) ([]SendEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+sendColumns+` FROM send_queue ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("pending sends: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []SendEntry
	for rows.Next() {
		e, err := scanSend(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
