// Package mapper translates between feed documents and cached rows.
// Every function is pure apart from the wall-clock fallback in RemoteToLocal.
package mapper

import (
	"sort"
	"strings"
	"time"

	"github.com/messageai/tacsync/internal/remote"
	"github.com/messageai/tacsync/internal/store"
)

// ImagePreview is the chat preview of a message that only carries an image.
const ImagePreview = "[image]"

// RemoteToLocal maps a feed message into a cache row, resolving the
// authoritative timestamp from the server value, then the client value,
// then the current time.
func RemoteToLocal(m remote.Message) store.Message {
	return RemoteToLocalAt(m, time.Now().UnixMilli())
}

// RemoteToLocalAt is RemoteToLocal with an explicit "now".
func RemoteToLocalAt(m remote.Message, now int64) store.Message {
	ts := now
	switch {
	case m.ServerTimestamp != nil:
		ts = *m.ServerTimestamp
	case m.ClientTimestamp != nil:
		ts = *m.ClientTimestamp
	}
	createdAt := ts
	if m.ClientTimestamp != nil {
		createdAt = *m.ClientTimestamp
	}

	status := store.Status(m.Status)
	if !status.Valid() {
		status = store.StatusSent
		if m.LocalOnly {
			status = store.StatusSending
		}
	}

	return store.Message{
		ID:          m.ID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Text:        m.Text,
		ImageURL:    m.ImageURL,
		Timestamp:   ts,
		Status:      status,
		ReadBy:      EncodeIDs(m.ReadBy),
		DeliveredBy: EncodeIDs(m.DeliveredBy),
		Synced:      !m.LocalOnly,
		CreatedAt:   createdAt,
	}
}

// LocalToRemote maps a cache row into a feed message. Corrupt read-by or
// delivered-by data maps to an empty set. An unsynced row carries no server
// timestamp so the feed assigns one.
func LocalToRemote(m store.Message) remote.Message {
	out := remote.Message{
		ID:          m.ID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Text:        m.Text,
		ImageURL:    m.ImageURL,
		Status:      string(m.Status),
		ReadBy:      DecodeIDs(m.ReadBy),
		DeliveredBy: DecodeIDs(m.DeliveredBy),
		LocalOnly:   !m.Synced,
	}
	if m.CreatedAt != 0 {
		created := m.CreatedAt
		out.ClientTimestamp = &created
	}
	if m.Synced {
		ts := m.Timestamp
		out.ServerTimestamp = &ts
	}
	return out
}

// ChatDocToLocal maps a chat document into a cache row as seen by viewerID.
// The unread count is left zero; it is recomputed from cached messages.
func ChatDocToLocal(c remote.Chat, viewerID string) store.Chat {
	typ := store.ChatType(c.Type)
	if typ != store.ChatDirect && typ != store.ChatGroup {
		typ = store.ChatDirect
		if len(c.Participants) > 2 {
			typ = store.ChatGroup
		}
	}

	out := store.Chat{
		ID:           c.ID,
		Type:         typ,
		Name:         chatName(c, viewerID, typ),
		Participants: EncodeIDs(c.Participants),
		UpdatedAt:    c.UpdatedAt,
	}
	if c.LastMessage != nil {
		out.LastMessage = Preview(c.LastMessage.Text, c.LastMessage.ImageURL)
		out.LastMessageAt = c.LastMessage.Timestamp
	}
	if out.UpdatedAt == 0 {
		out.UpdatedAt = out.LastMessageAt
	}
	return out
}

func chatName(c remote.Chat, viewerID string, typ store.ChatType) string {
	if typ == store.ChatGroup && c.GroupName != "" {
		return c.GroupName
	}
	nameOf := func(id string) string {
		if n := strings.TrimSpace(c.ParticipantNames[id]); n != "" {
			return n
		}
		return id
	}

	var others []string
	for _, p := range c.Participants {
		if p != viewerID {
			others = append(others, p)
		}
	}
	switch {
	case len(others) == 0:
		self := viewerID
		if len(c.Participants) == 1 {
			self = c.Participants[0]
		}
		return nameOf(self) + " (You)"
	case typ == store.ChatDirect && len(others) == 1:
		return nameOf(others[0])
	}

	names := make([]string, 0, len(others))
	for _, p := range others {
		names = append(names, nameOf(p))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Preview returns the chat list preview of a message: the image sentinel
// when there is only an image, else the text, else nil.
func Preview(text, imageURL *string) *string {
	hasText := text != nil && *text != ""
	if !hasText && imageURL != nil && *imageURL != "" {
		p := ImagePreview
		return &p
	}
	if hasText {
		t := *text
		return &t
	}
	return nil
}

// ChatID returns the deterministic id of the direct chat between a and b.
func ChatID(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}
