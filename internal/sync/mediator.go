// Package sync keeps the local cache consistent with the remote feed:
// paged loads through the Mediator, live write-through via the Listener.
package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/auth"
	"github.com/messageai/tacsync/internal/mapper"
	"github.com/messageai/tacsync/internal/remote"
	"github.com/messageai/tacsync/internal/store"
)

// DefaultPageSize is used when a caller asks for a non-positive page size.
const DefaultPageSize = 50

// ErrRemote marks load failures caused by the remote feed. Callers retry
// the same load type.
var ErrRemote = errors.New("sync: remote fetch failed")

// LoadType is the intent of a page load.
type LoadType int

const (
	// Refresh reloads from the newest remote page and resets the cursor.
	Refresh LoadType = iota
	// Prepend asks for rows newer than the cache. The listener keeps the
	// cache current, so it is always satisfied.
	Prepend
	// Append fetches rows older than the cursor.
	Append
)

func (t LoadType) String() string {
	switch t {
	case Refresh:
		return "refresh"
	case Prepend:
		return "prepend"
	case Append:
		return "append"
	}
	return fmt.Sprintf("LoadType(%d)", int(t))
}

// ParseLoadType parses the String form of a LoadType.
func ParseLoadType(s string) (LoadType, error) {
	switch s {
	case "refresh", "":
		return Refresh, nil
	case "prepend":
		return Prepend, nil
	case "append":
		return Append, nil
	}
	return 0, fmt.Errorf("unknown load type %q", s)
}

// LoadResult is the outcome of a successful load.
type LoadResult struct {
	EndOfPagination bool
	Fetched         int
}

// LoadError is returned when the remote fetch of a load fails. Nothing was
// written to the cache.
type LoadError struct {
	ChatID string
	Type   LoadType
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("sync: %s load of %s: %v", e.Type, e.ChatID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRemote) hold for every LoadError.
func (e *LoadError) Is(target error) bool { return target == ErrRemote }

// InitializeAction tells a pager whether a first load must hit the remote.
type InitializeAction int

const (
	LaunchRefresh InitializeAction = iota
	SkipRefresh
)

// Mediator bridges the cache and the remote paged source.
type Mediator struct {
	db     *store.DB
	feed   remote.Feed
	auth   auth.Provider
	logger *zap.Logger
}

// NewMediator creates a mediator. A nil provider disables the unread recount.
func NewMediator(db *store.DB, feed remote.Feed, provider auth.Provider, logger *zap.Logger) *Mediator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mediator{db: db, feed: feed, auth: provider, logger: logger}
}

// Initialize reports whether the chat has never been loaded.
func (m *Mediator) Initialize(ctx context.Context, chatID string) (InitializeAction, error) {
	c, err := m.db.Cursor(ctx, chatID)
	if err != nil {
		return LaunchRefresh, err
	}
	if c == nil {
		return LaunchRefresh, nil
	}
	return SkipRefresh, nil
}

// Load runs one page load. The remote fetch happens first; the cursor
// update and row upserts then commit in a single transaction.
func (m *Mediator) Load(ctx context.Context, chatID string, typ LoadType, pageSize int) (LoadResult, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var olderThan *int64
	switch typ {
	case Prepend:
		return LoadResult{EndOfPagination: true}, nil
	case Append:
		c, err := m.db.Cursor(ctx, chatID)
		if err != nil {
			return LoadResult{}, err
		}
		if c == nil {
			m.logger.Debug("append without cursor", zap.String("chat_id", chatID))
			return LoadResult{EndOfPagination: true}, nil
		}
		key := c.Key
		olderThan = &key
	case Refresh:
	default:
		return LoadResult{}, fmt.Errorf("sync: unknown load type %d", typ)
	}

	page, err := m.feed.PageMessages(ctx, chatID, pageSize, olderThan)
	if err != nil {
		return LoadResult{}, &LoadError{ChatID: chatID, Type: typ, Err: err}
	}

	rows := make([]store.Message, 0, len(page))
	for _, rm := range page {
		rows = append(rows, mapper.RemoteToLocal(rm))
	}
	viewer, signedIn := "", false
	if m.auth != nil {
		viewer, signedIn = m.auth.CurrentUserID()
	}

	err = m.db.InTx(ctx, func(tx *store.Tx) error {
		if typ == Refresh {
			if err := tx.ClearCursor(ctx, chatID); err != nil {
				return err
			}
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.UpsertMessages(ctx, rows); err != nil {
			return err
		}
		if err := tx.SetCursor(ctx, chatID, oldest(rows)); err != nil {
			return err
		}
		if signedIn {
			return recountUnread(ctx, tx, chatID, viewer)
		}
		return nil
	})
	if err != nil {
		return LoadResult{}, fmt.Errorf("sync: persist %s page of %s: %w", typ, chatID, err)
	}

	m.logger.Debug("page loaded",
		zap.String("chat_id", chatID),
		zap.Stringer("type", typ),
		zap.Int("rows", len(rows)))
	return LoadResult{EndOfPagination: len(rows) == 0, Fetched: len(rows)}, nil
}

func oldest(rows []store.Message) int64 {
	lo := rows[0].Timestamp
	for _, r := range rows[1:] {
		lo = min(lo, r.Timestamp)
	}
	return lo
}
