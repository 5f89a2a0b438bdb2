package apiv1

// Chat is a cached chat row on the wire.
type Chat struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Name          string   `json:"name"`
	Participants  []string `json:"participants,omitempty"`
	LastMessage   *string  `json:"last_message,omitempty"`
	LastMessageAt int64    `json:"last_message_at,omitempty"`
	UnreadCount   int      `json:"unread_count"`
	UpdatedAt     int64    `json:"updated_at"`
}

// Message is a cached message row on the wire.
type Message struct {
	ID          string   `json:"id"`
	ChatID      string   `json:"chat_id"`
	SenderID    string   `json:"sender_id"`
	Text        *string  `json:"text,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	Timestamp   int64    `json:"timestamp"`
	Status      string   `json:"status"`
	ReadBy      []string `json:"read_by,omitempty"`
	DeliveredBy []string `json:"delivered_by,omitempty"`
	Synced      bool     `json:"synced"`
	CreatedAt   int64    `json:"created_at"`
}

// EventEnvelope is one streamed change notice.
type EventEnvelope struct {
	EventID          string `json:"event_id"`
	Profile          string `json:"profile"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
	Kind             string `json:"kind"`
	ChatID           string `json:"chat_id,omitempty"`
}

type ListChatsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
}

type GetChatRequest struct {
	ChatID string `json:"chat_id"`
}

type GetChatResponse struct {
	Chat Chat `json:"chat"`
}

// WatchRequest scopes a stream. An empty ChatID means every chat.
type WatchRequest struct {
	ChatID string `json:"chat_id,omitempty"`
}

type ListMessagesRequest struct {
	ChatID    string `json:"chat_id"`
	PageToken string `json:"page_token,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// ListMessagesResponse carries a page. RemoteError is set when the remote
// could not extend the page; Messages then holds what the cache had and
// NextPageToken retries the same position.
type ListMessagesResponse struct {
	Messages        []Message `json:"messages"`
	NextPageToken   string    `json:"next_page_token,omitempty"`
	EndOfPagination bool      `json:"end_of_pagination"`
	RemoteError     string    `json:"remote_error,omitempty"`
}

type LoadMessagesRequest struct {
	ChatID   string `json:"chat_id"`
	LoadType string `json:"load_type"`
	PageSize int    `json:"page_size,omitempty"`
}

type LoadMessagesResponse struct {
	EndOfPagination bool `json:"end_of_pagination"`
	Fetched         int  `json:"fetched"`
}

type SearchMessagesRequest struct {
	Query  string `json:"query"`
	ChatID string `json:"chat_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}

type SearchMessagesResponse struct {
	Results []SearchResult `json:"results"`
}

type SendTextRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// SendTextResponse reports the queued row. Accepted is false when no user
// is signed in and nothing was written.
type SendTextResponse struct {
	Accepted bool     `json:"accepted"`
	Message  *Message `json:"message,omitempty"`
}

type PendingSend struct {
	MessageID  string `json:"message_id"`
	ChatID     string `json:"chat_id"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

type ListPendingResponse struct {
	Entries []PendingSend `json:"entries"`
}

type ResendRequest struct {
	MessageID string `json:"message_id"`
}

type GetStatusResponse struct {
	Profile      string `json:"profile"`
	State        string `json:"state"`
	UserID       string `json:"user_id,omitempty"`
	OpenChat     string `json:"open_chat,omitempty"`
	UptimeMs     int64  `json:"uptime_ms"`
	ChatCount    int    `json:"chat_count"`
	MessageCount int    `json:"message_count"`
	PendingSends int    `json:"pending_sends"`
}

type OpenChatRequest struct {
	ChatID   string `json:"chat_id"`
	PageSize int    `json:"page_size,omitempty"`
}

// OpenChatResponse reports whether opening refreshed from the remote and
// whether live updates are attached. Both may be false offline; the cached
// rows are still served.
type OpenChatResponse struct {
	Refreshed   bool   `json:"refreshed"`
	Live        bool   `json:"live"`
	RemoteError string `json:"remote_error,omitempty"`
}

type SignInRequest struct {
	UserID string `json:"user_id"`
}
