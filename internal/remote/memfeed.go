package remote

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemFeed is an in-memory authoritative feed. It assigns server timestamps,
// delivers per-subscription batches in order, and can be switched offline.
// It backs dev mode and the sync tests.
type MemFeed struct {
	mu       sync.Mutex
	online   bool
	now      func() int64
	messages map[string]Message
	chats    map[string]Chat
	msgSubs  map[int]*memMsgSub
	chatSubs map[int]*memChatSub
	next     int
}

type memMsgSub struct {
	chatID string
	queue  *Queue[[]Change]
}

type memChatSub struct {
	viewerID string
	queue    *Queue[[]Chat]
}

// NewMemFeed returns an online, empty feed.
func NewMemFeed() *MemFeed {
	return &MemFeed{
		online:   true,
		now:      func() int64 { return time.Now().UnixMilli() },
		messages: make(map[string]Message),
		chats:    make(map[string]Chat),
		msgSubs:  make(map[int]*memMsgSub),
		chatSubs: make(map[int]*memChatSub),
	}
}

// SetClock overrides the server clock.
func (f *MemFeed) SetClock(now func() int64) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// SetOnline switches the feed between reachable and unreachable. Offline,
// every call returns ErrUnavailable; live subscriptions stay attached.
func (f *MemFeed) SetOnline(online bool) {
	f.mu.Lock()
	f.online = online
	f.mu.Unlock()
}

// Ping implements Pinger.
func (f *MemFeed) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return ErrUnavailable
	}
	return nil
}

// PushMessage implements Feed. The first server timestamp of a document is
// kept; read-by and delivered-by sets are merged.
func (f *MemFeed) PushMessage(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return ErrUnavailable
	}

	change := Added
	prev, exists := f.messages[msg.ID]
	if exists {
		change = Modified
		msg.ServerTimestamp = prev.ServerTimestamp
		msg.ReadBy = union(prev.ReadBy, msg.ReadBy)
		msg.DeliveredBy = union(prev.DeliveredBy, msg.DeliveredBy)
	}
	if msg.ServerTimestamp == nil {
		ts := f.now()
		msg.ServerTimestamp = &ts
	}
	if msg.Status == "" || msg.Status == "sending" {
		msg.Status = "sent"
	}
	msg.LocalOnly = false
	f.messages[msg.ID] = cloneMessage(msg)
	f.notifyMessageLocked(msg.ChatID, Change{Type: change, Message: cloneMessage(msg)})

	if chat, ok := f.chats[msg.ChatID]; ok {
		chat.LastMessage = &LastMessage{Text: msg.Text, ImageURL: msg.ImageURL, SenderID: msg.SenderID, Timestamp: *msg.ServerTimestamp}
		chat.UpdatedAt = *msg.ServerTimestamp
		f.chats[chat.ID] = chat
		f.notifyChatLocked(chat)
	}
	return nil
}

// PageMessages implements Feed.
func (f *MemFeed) PageMessages(ctx context.Context, chatID string, pageSize int, olderThan *int64) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return nil, ErrUnavailable
	}

	msgs := f.chatMessagesLocked(chatID)
	var out []Message
	for _, m := range msgs {
		if olderThan != nil && *m.ServerTimestamp >= *olderThan {
			continue
		}
		out = append(out, m)
		if pageSize > 0 && len(out) == pageSize {
			break
		}
	}
	return out, nil
}

// SubscribeMessages implements Feed.
func (f *MemFeed) SubscribeMessages(ctx context.Context, chatID string, onBatch func([]Change)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return nil, ErrUnavailable
	}

	id := f.next
	f.next++
	sub := &memMsgSub{chatID: chatID}
	d := NewDispatcher(onBatch, func() {
		f.mu.Lock()
		delete(f.msgSubs, id)
		f.mu.Unlock()
		sub.queue.Close()
	})
	sub.queue = NewQueue(d)
	f.msgSubs[id] = sub

	snapshot := f.chatMessagesLocked(chatID)
	changes := make([]Change, 0, len(snapshot))
	for _, m := range snapshot {
		changes = append(changes, Change{Type: Added, Message: m})
	}
	sub.queue.Push(changes)
	return d, nil
}

// MarkDelivered implements Feed. A sent message advances to delivered.
func (f *MemFeed) MarkDelivered(ctx context.Context, chatID, messageID, viewerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return ErrUnavailable
	}

	msg, ok := f.messages[messageID]
	if !ok || msg.ChatID != chatID {
		return nil
	}
	if slices.Contains(msg.DeliveredBy, viewerID) {
		return nil
	}
	msg.DeliveredBy = append(slices.Clone(msg.DeliveredBy), viewerID)
	if msg.Status == "sent" {
		msg.Status = "delivered"
	}
	f.messages[messageID] = msg
	f.notifyMessageLocked(chatID, Change{Type: Modified, Message: cloneMessage(msg)})
	return nil
}

// MarkRead adds viewerID to a message's read-by set.
func (f *MemFeed) MarkRead(ctx context.Context, messageID, viewerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return ErrUnavailable
	}
	msg, ok := f.messages[messageID]
	if !ok || slices.Contains(msg.ReadBy, viewerID) {
		return nil
	}
	msg.ReadBy = append(slices.Clone(msg.ReadBy), viewerID)
	msg.Status = "read"
	f.messages[messageID] = msg
	f.notifyMessageLocked(msg.ChatID, Change{Type: Modified, Message: cloneMessage(msg)})
	return nil
}

// DeleteMessage removes a document and emits a Removed change.
func (f *MemFeed) DeleteMessage(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return
	}
	delete(f.messages, messageID)
	f.notifyMessageLocked(msg.ChatID, Change{Type: Removed, Message: msg})
}

// PutChat creates or replaces a chat document.
func (f *MemFeed) PutChat(chat Chat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chat.UpdatedAt == 0 {
		chat.UpdatedAt = f.now()
	}
	f.chats[chat.ID] = chat
	f.notifyChatLocked(chat)
}

// SubscribeChats implements ChatFeed. The first delivery holds every chat
// the viewer participates in; later deliveries hold the changed chat.
func (f *MemFeed) SubscribeChats(ctx context.Context, viewerID string, onChats func([]Chat)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return nil, ErrUnavailable
	}

	id := f.next
	f.next++
	sub := &memChatSub{viewerID: viewerID}
	d := NewDispatcher(onChats, func() {
		f.mu.Lock()
		delete(f.chatSubs, id)
		f.mu.Unlock()
		sub.queue.Close()
	})
	sub.queue = NewQueue(d)
	f.chatSubs[id] = sub

	var snapshot []Chat
	for _, c := range f.chats {
		if slices.Contains(c.Participants, viewerID) {
			snapshot = append(snapshot, c)
		}
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].UpdatedAt > snapshot[j].UpdatedAt })
	sub.queue.Push(snapshot)
	return d, nil
}

// Message returns the stored document for id.
func (f *MemFeed) Message(id string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	return cloneMessage(m), ok
}

// Count returns the number of message documents in a chat.
func (f *MemFeed) Count(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.ChatID == chatID {
			n++
		}
	}
	return n
}

// chatMessagesLocked returns a chat's messages newest first.
func (f *MemFeed) chatMessagesLocked(chatID string) []Message {
	var msgs []Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			msgs = append(msgs, cloneMessage(m))
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		a, b := *msgs[i].ServerTimestamp, *msgs[j].ServerTimestamp
		if a != b {
			return a > b
		}
		return msgs[i].ID > msgs[j].ID
	})
	return msgs
}

func (f *MemFeed) notifyMessageLocked(chatID string, c Change) {
	for _, sub := range f.msgSubs {
		if sub.chatID == chatID {
			sub.queue.Push([]Change{c})
		}
	}
}

func (f *MemFeed) notifyChatLocked(chat Chat) {
	for _, sub := range f.chatSubs {
		if slices.Contains(chat.Participants, sub.viewerID) {
			sub.queue.Push([]Chat{chat})
		}
	}
}

func cloneMessage(m Message) Message {
	m.ReadBy = slices.Clone(m.ReadBy)
	m.DeliveredBy = slices.Clone(m.DeliveredBy)
	return m
}

// union returns a followed by the members of b not already in a.
func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, id := range b {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

var (
	_ Feed     = (*MemFeed)(nil)
	_ ChatFeed = (*MemFeed)(nil)
	_ Pinger   = (*MemFeed)(nil)
)
