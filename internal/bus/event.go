package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Key       string // scoping key, usually a chat id; empty for table-wide events
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the sync core.
const (
	KindMessagesChanged = "store.messages"
	KindChatsChanged    = "store.chats"
	KindCursorsChanged  = "store.cursors"
	KindSendsChanged    = "store.sends"
	KindDataChanged     = "sync.changed"
	KindSendAck         = "outbox.send_ack"
	KindSendRetry       = "outbox.send_retry"
	KindStatusChanged   = "session.status_changed"
)
