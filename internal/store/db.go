package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/messageai/tacsync/internal/bus"
)

// DB wraps the SQLite connection for a profile's cache.db.
// Committed mutations are announced on the bus so reactive reads can re-run.
type DB struct {
	*sql.DB
	events *bus.Bus
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Transactions take the write lock up front so concurrent writers wait on
// the busy timeout instead of failing on lock upgrade. A nil bus gets a
// private one.
func Open(path string, events *bus.Bus) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if events == nil {
		events = bus.New()
	}
	return &DB{DB: db, events: events}, nil
}

// Bus returns the bus change notices are published on.
func (db *DB) Bus() *bus.Bus {
	return db.events
}

type notice struct {
	kind string
	key  string
}

// Tx is an open cache transaction. Every mutation on DB is also available
// here; notices are held back until the transaction commits.
type Tx struct {
	q       querier
	notices map[notice]struct{}
}

func (tx *Tx) touch(kind, key string) {
	if tx.notices == nil {
		tx.notices = make(map[notice]struct{})
	}
	tx.notices[notice{kind: kind, key: key}] = struct{}{}
}

// InTx runs fn inside one transaction. Either all of fn's writes commit or
// none do. A panic in fn rolls back and re-panics.
func (db *DB) InTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &Tx{q: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}
	done = true
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	for n := range tx.notices {
		db.events.Notify(n.kind, n.key)
	}
	return nil
}

// WatchMessages subscribes to committed changes to chatID's messages, or to
// every chat when chatID is empty. Call cancel to release it.
func (db *DB) WatchMessages(chatID string, buf int) (<-chan bus.Event, func()) {
	return db.events.SubscribeKey(bus.KindMessagesChanged, chatID, buf)
}

// WatchChats subscribes to committed changes to the chat list.
func (db *DB) WatchChats(chatID string, buf int) (<-chan bus.Event, func()) {
	return db.events.SubscribeKey(bus.KindChatsChanged, chatID, buf)
}

// WatchSends subscribes to committed changes to the outbound queue. Deletes
// carry no chat id and reach every subscriber.
func (db *DB) WatchSends(chatID string, buf int) (<-chan bus.Event, func()) {
	return db.events.SubscribeKey(bus.KindSendsChanged, chatID, buf)
}
