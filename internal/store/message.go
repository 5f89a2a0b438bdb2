package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/messageai/tacsync/internal/bus"
)

const messageColumns = `id, chat_id, sender_id, text, image_url, timestamp, status, read_by, delivered_by, synced, created_at`

// ErrBadToken is returned for a page token this store did not issue.
var ErrBadToken = errors.New("store: malformed page token")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (Message, error) {
	var (
		m              Message
		text, imageURL sql.NullString
		status         string
	)
	if err := r.Scan(&m.ID, &m.ChatID, &m.SenderID, &text, &imageURL, &m.Timestamp, &status,
		&m.ReadBy, &m.DeliveredBy, &m.Synced, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	if text.Valid {
		m.Text = &text.String
	}
	if imageURL.Valid {
		m.ImageURL = &imageURL.String
	}
	m.Status = Status(status)
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()
	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpsertMessage inserts or replaces a message by id. The whole row is
// replaced; there is no field merge.
func (tx *Tx) UpsertMessage(ctx context.Context, m *Message) error {
	if m.Status == "" {
		m.Status = StatusSending
	}
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			sender_id = excluded.sender_id,
			text = excluded.text,
			image_url = excluded.image_url,
			timestamp = excluded.timestamp,
			status = excluded.status,
			read_by = excluded.read_by,
			delivered_by = excluded.delivered_by,
			synced = excluded.synced,
			created_at = excluded.created_at`,
		m.ID, m.ChatID, m.SenderID, m.Text, m.ImageURL, m.Timestamp, string(m.Status),
		m.ReadBy, m.DeliveredBy, m.Synced, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", m.ID, err)
	}
	tx.touch(bus.KindMessagesChanged, m.ChatID)
	return nil
}

// UpsertMessages upserts a batch of rows.
func (tx *Tx) UpsertMessages(ctx context.Context, msgs []Message) error {
	for i := range msgs {
		if err := tx.UpsertMessage(ctx, &msgs[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus sets a message's status.
func (tx *Tx) UpdateStatus(ctx context.Context, id string, status Status) error {
	return tx.updateMessage(ctx, id, `UPDATE messages SET status = ? WHERE id = ?`, string(status), id)
}

// UpdateStatusAndSync sets a message's status and synced flag together.
func (tx *Tx) UpdateStatusAndSync(ctx context.Context, id string, status Status, synced bool) error {
	return tx.updateMessage(ctx, id, `UPDATE messages SET status = ?, synced = ? WHERE id = ?`, string(status), synced, id)
}

func (tx *Tx) updateMessage(ctx context.Context, id, query string, args ...any) error {
	var chatID string
	err := tx.q.QueryRowContext(ctx, `SELECT chat_id FROM messages WHERE id = ?`, id).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup message %s: %w", id, err)
	}
	if _, err := tx.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}
	tx.touch(bus.KindMessagesChanged, chatID)
	return nil
}

// Message returns a message by id, or nil if absent.
func (tx *Tx) Message(ctx context.Context, id string) (*Message, error) {
	return getMessage(ctx, tx.q, id)
}

// AllMessages returns every cached message of a chat, oldest first.
func (tx *Tx) AllMessages(ctx context.Context, chatID string) ([]Message, error) {
	return allMessages(ctx, tx.q, chatID)
}

func getMessage(ctx context.Context, q querier, id string) (*Message, error) {
	m, err := scanMessage(q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &m, nil
}

func allMessages(ctx context.Context, q querier, chatID string) ([]Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE chat_id = ?
		ORDER BY timestamp ASC, id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("all messages %s: %w", chatID, err)
	}
	return collectMessages(rows)
}

// UpsertMessage inserts or replaces a message by id.
func (db *DB) UpsertMessage(ctx context.Context, m *Message) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.UpsertMessage(ctx, m) })
}

// UpsertMessages upserts a batch of rows in one transaction.
func (db *DB) UpsertMessages(ctx context.Context, msgs []Message) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.UpsertMessages(ctx, msgs) })
}

// UpdateStatus sets a message's status. Unknown ids are ignored.
func (db *DB) UpdateStatus(ctx context.Context, id string, status Status) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.UpdateStatus(ctx, id, status) })
}

// UpdateStatusAndSync sets status and synced flag. Unknown ids are ignored.
func (db *DB) UpdateStatusAndSync(ctx context.Context, id string, status Status, synced bool) error {
	return db.InTx(ctx, func(tx *Tx) error { return tx.UpdateStatusAndSync(ctx, id, status, synced) })
}

// Message returns a message by id, or nil if absent.
func (db *DB) Message(ctx context.Context, id string) (*Message, error) {
	return getMessage(ctx, db.DB, id)
}

// AllMessages returns every cached message of a chat, oldest first.
func (db *DB) AllMessages(ctx context.Context, chatID string) ([]Message, error) {
	return allMessages(ctx, db.DB, chatID)
}

// RecentMessages returns the newest limit messages of a chat in
// chronological order.
func (db *DB) RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE chat_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages %s: %w", chatID, err)
	}
	return collectMessages(rows)
}

// MessagesPage returns up to size messages of a chat, newest first,
// starting after the position encoded in token. An empty token starts
// from the newest row.
func (db *DB) MessagesPage(ctx context.Context, chatID, token string, size int) (Page, error) {
	if size <= 0 {
		size = 50
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	if token != "" {
		ts, id, err := decodeToken(token)
		if err != nil {
			return Page{}, err
		}
		query += ` AND (timestamp < ? OR (timestamp = ? AND id < ?))`
		args = append(args, ts, ts, id)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, size+1)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("messages page %s: %w", chatID, err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return Page{}, err
	}

	var page Page
	if len(msgs) > size {
		msgs = msgs[:size]
		last := msgs[size-1]
		page.NextToken = encodeToken(last.Timestamp, last.ID)
	}
	page.Messages = msgs
	return page, nil
}

// MessageCount returns the number of cached messages.
func (db *DB) MessageCount(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func encodeToken(ts int64, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(ts, 10) + ":" + id))
}

func decodeToken(token string) (int64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", ErrBadToken
	}
	tsPart, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, "", ErrBadToken
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, "", ErrBadToken
	}
	return ts, id, nil
}

// TokenAfter returns the page token that continues strictly after m.
func TokenAfter(m Message) string {
	return encodeToken(m.Timestamp, m.ID)
}
