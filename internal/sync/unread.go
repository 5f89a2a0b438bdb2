package sync

import (
	"context"

	"github.com/messageai/tacsync/internal/mapper"
	"github.com/messageai/tacsync/internal/store"
)

// UnreadCount counts messages not sent by viewer that viewer has not read.
func UnreadCount(msgs []store.Message, viewer string) int {
	n := 0
	for _, m := range msgs {
		if m.SenderID != viewer && !mapper.ContainsID(m.ReadBy, viewer) {
			n++
		}
	}
	return n
}

// recountUnread recomputes a chat's unread count from every cached row.
func recountUnread(ctx context.Context, tx *store.Tx, chatID, viewer string) error {
	all, err := tx.AllMessages(ctx, chatID)
	if err != nil {
		return err
	}
	return tx.SetUnreadCount(ctx, chatID, UnreadCount(all, viewer))
}
