// Package api implements the daemon's gRPC services over the sync core.
package api

import (
	"github.com/messageai/tacsync/internal/apiv1"
	"github.com/messageai/tacsync/internal/mapper"
	"github.com/messageai/tacsync/internal/store"
)

func messageToWire(m *store.Message) apiv1.Message {
	return apiv1.Message{
		ID:          m.ID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Text:        m.Text,
		ImageURL:    m.ImageURL,
		Timestamp:   m.Timestamp,
		Status:      string(m.Status),
		ReadBy:      mapper.DecodeIDs(m.ReadBy),
		DeliveredBy: mapper.DecodeIDs(m.DeliveredBy),
		Synced:      m.Synced,
		CreatedAt:   m.CreatedAt,
	}
}

func messagesToWire(msgs []store.Message) []apiv1.Message {
	out := make([]apiv1.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, messageToWire(&msgs[i]))
	}
	return out
}

func chatToWire(c *store.Chat) apiv1.Chat {
	return apiv1.Chat{
		ID:            c.ID,
		Type:          string(c.Type),
		Name:          c.Name,
		Participants:  mapper.DecodeIDs(c.Participants),
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   c.UnreadCount,
		UpdatedAt:     c.UpdatedAt,
	}
}
