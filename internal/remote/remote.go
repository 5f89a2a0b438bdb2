// Package remote defines the contract of the authoritative message feed the
// sync core runs against, plus an in-memory implementation.
package remote

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the feed cannot be reached right now.
var ErrUnavailable = errors.New("remote: feed unavailable")

// Message is a message document as the feed stores it.
// Timestamps are milliseconds since the epoch; nil means absent.
type Message struct {
	ID              string   `json:"id"`
	ChatID          string   `json:"chat_id"`
	SenderID        string   `json:"sender_id"`
	Text            *string  `json:"text,omitempty"`
	ImageURL        *string  `json:"image_url,omitempty"`
	ServerTimestamp *int64   `json:"server_timestamp,omitempty"`
	ClientTimestamp *int64   `json:"client_timestamp,omitempty"`
	Status          string   `json:"status"`
	ReadBy          []string `json:"read_by,omitempty"`
	DeliveredBy     []string `json:"delivered_by,omitempty"`
	// LocalOnly marks a document that has not been confirmed by the feed.
	LocalOnly bool `json:"-"`
}

// LastMessage is the denormalized preview carried on a chat document.
type LastMessage struct {
	Text      *string `json:"text,omitempty"`
	ImageURL  *string `json:"image_url,omitempty"`
	SenderID  string  `json:"sender_id"`
	Timestamp int64   `json:"timestamp"`
}

// Chat is a chat document as the feed stores it.
type Chat struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	Participants     []string          `json:"participants"`
	ParticipantNames map[string]string `json:"participant_names,omitempty"`
	GroupName        string            `json:"group_name,omitempty"`
	LastMessage      *LastMessage      `json:"last_message,omitempty"`
	UpdatedAt        int64             `json:"updated_at"`
}

// ChangeType classifies one document change in a subscription batch.
type ChangeType int

const (
	Added ChangeType = iota
	Modified
	Removed
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change is one document change.
type Change struct {
	Type    ChangeType
	Message Message
}

// Subscription is a live feed subscription.
type Subscription interface {
	// Cancel stops delivery. It blocks until no callback is running and no
	// callback runs after it returns. Calling it again is a no-op.
	Cancel()
}

// Feed is the authoritative message source.
type Feed interface {
	// PushMessage creates or merges a message by id. Retrying a push never
	// creates a second document.
	PushMessage(ctx context.Context, msg Message) error
	// PageMessages returns up to pageSize messages of a chat strictly older
	// than olderThan (or from the newest when nil), newest first.
	PageMessages(ctx context.Context, chatID string, pageSize int, olderThan *int64) ([]Message, error)
	// SubscribeMessages delivers batches of changes for one chat. The first
	// batch is the current snapshot as Added changes.
	SubscribeMessages(ctx context.Context, chatID string, onBatch func([]Change)) (Subscription, error)
	// MarkDelivered adds viewerID to the message's delivered-by set.
	MarkDelivered(ctx context.Context, chatID, messageID, viewerID string) error
}

// ChatFeed delivers the chat documents a viewer participates in.
type ChatFeed interface {
	SubscribeChats(ctx context.Context, viewerID string, onChats func([]Chat)) (Subscription, error)
}

// Pinger reports whether the feed is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
