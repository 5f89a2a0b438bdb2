package store

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSending, StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// ChatType distinguishes one-to-one chats from groups.
type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

// Message is a cached chat message.
// ReadBy, DeliveredBy are stored in their encoded form; see the mapper package.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Text        *string
	ImageURL    *string
	Timestamp   int64
	Status      Status
	ReadBy      []byte
	DeliveredBy []byte
	Synced      bool
	CreatedAt   int64
}

// Chat is a cached conversation.
type Chat struct {
	ID            string
	Type          ChatType
	Name          string
	Participants  []byte // encoded id set
	LastMessage   *string
	LastMessageAt int64
	UnreadCount   int
	UpdatedAt     int64
}

// Cursor is the per-chat pagination bookmark. Key is the oldest
// authoritative timestamp fetched so far.
type Cursor struct {
	ChatID    string
	Key       int64
	UpdatedAt int64
}

// SendEntry is an outbound queue row. ID equals MessageID.
type SendEntry struct {
	ID         string
	MessageID  string
	ChatID     string
	RetryCount int
	LastError  string
	CreatedAt  int64
	UpdatedAt  int64
}

// Page is one newest-first slice of a chat's messages.
// NextToken is empty when there are no older rows.
type Page struct {
	Messages  []Message
	NextToken string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
