package sync

import (
	"context"
	gosync "sync"

	"github.com/messageai/tacsync/internal/store"
)

// Page is a pager result. EndOfPagination means neither the cache nor the
// remote feed has older rows.
type Page struct {
	Messages        []store.Message
	NextToken       string
	EndOfPagination bool
}

// Pager serves newest-first pages from the cache and falls back to a remote
// load when the cached rows run out: Refresh while the chat has no cursor,
// Append after that.
type Pager struct {
	db       *store.DB
	mediator *Mediator

	mu        gosync.Mutex
	exhausted map[string]bool
}

// NewPager creates a pager.
func NewPager(db *store.DB, m *Mediator) *Pager {
	return &Pager{db: db, mediator: m, exhausted: make(map[string]bool)}
}

// Open prepares a chat for paging, refreshing from the remote when the chat
// has never been loaded. It returns the action taken.
func (p *Pager) Open(ctx context.Context, chatID string, pageSize int) (InitializeAction, error) {
	p.setExhausted(chatID, false)
	action, err := p.mediator.Initialize(ctx, chatID)
	if err != nil {
		return action, err
	}
	if action == SkipRefresh {
		return action, nil
	}
	res, err := p.mediator.Load(ctx, chatID, Refresh, pageSize)
	if err != nil {
		return action, err
	}
	if res.EndOfPagination {
		p.setExhausted(chatID, true)
	}
	return action, nil
}

// Page returns up to size rows after token. On a remote failure the rows
// already cached are returned together with the error; retrying with the
// same token is safe. A chat is only marked exhausted after the remote
// returns an empty page.
func (p *Pager) Page(ctx context.Context, chatID, token string, size int) (Page, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	for {
		local, err := p.db.MessagesPage(ctx, chatID, token, size)
		if err != nil {
			return Page{}, err
		}
		if local.NextToken != "" {
			return Page{Messages: local.Messages, NextToken: local.NextToken}, nil
		}
		if p.isExhausted(chatID) {
			return Page{Messages: local.Messages, EndOfPagination: true}, nil
		}

		typ := Append
		action, err := p.mediator.Initialize(ctx, chatID)
		if err != nil {
			return Page{}, err
		}
		if action == LaunchRefresh {
			typ = Refresh
		}
		res, err := p.mediator.Load(ctx, chatID, typ, size)
		if err != nil {
			out := Page{Messages: local.Messages, NextToken: token}
			if n := len(local.Messages); n > 0 {
				out.NextToken = store.TokenAfter(local.Messages[n-1])
			}
			return out, err
		}
		if res.EndOfPagination {
			p.setExhausted(chatID, true)
		}
	}
}

func (p *Pager) isExhausted(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted[chatID]
}

func (p *Pager) setExhausted(chatID string, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v {
		p.exhausted[chatID] = true
	} else {
		delete(p.exhausted, chatID)
	}
}
