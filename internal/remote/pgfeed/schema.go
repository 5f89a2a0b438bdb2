package pgfeed

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS feed_messages (
		id           TEXT PRIMARY KEY,
		chat_id      TEXT NOT NULL,
		sender_id    TEXT NOT NULL,
		text         TEXT,
		image_url    TEXT,
		server_ts    BIGINT NOT NULL,
		client_ts    BIGINT,
		status       TEXT NOT NULL,
		read_by      TEXT[] NOT NULL DEFAULT '{}',
		delivered_by TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS feed_messages_chat_ts
		ON feed_messages (chat_id, server_ts DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS feed_chats (
		id                TEXT PRIMARY KEY,
		type              TEXT NOT NULL,
		participants      TEXT[] NOT NULL,
		participant_names JSONB NOT NULL DEFAULT '{}',
		group_name        TEXT NOT NULL DEFAULT '',
		last_text         TEXT,
		last_image_url    TEXT,
		last_sender_id    TEXT,
		last_ts           BIGINT,
		updated_at        BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS feed_chats_participants
		ON feed_chats USING GIN (participants)`,
}

// EnsureSchema creates the feed tables if they do not exist.
func (f *Feed) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := f.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgfeed: ensure schema: %w", err)
		}
	}
	return nil
}
