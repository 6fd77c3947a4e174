package chatflow

import (
	"context"
	"errors"
	"sync"
)

// HistoryFetcher fetches one page of persisted messages for a conversation.
// *MessagesClient is the production implementation.
type HistoryFetcher interface {
	List(ctx context.Context, conversationID int64, page, pageSize int) (*MessagePage, error)
}

var (
	// ErrFetchInFlight is returned when a page fetch is requested while
	// another one for the same conversation has not resolved yet.
	ErrFetchInFlight = errors.New("chatflow: history fetch already in flight")

	// ErrNoMorePages is returned once every history page has been fetched.
	ErrNoMorePages = errors.New("chatflow: no more history pages")
)

// Pager walks a conversation's history in ascending page order starting at 1.
// A fetch error leaves the cursor untouched, so the call is retryable and
// already-merged earlier pages stay valid.
type Pager struct {
	fetcher        HistoryFetcher
	conversationID int64
	pageSize       int

	mu         sync.Mutex
	nextPage   int
	totalPages int
	started    bool
	inFlight   bool
}

// NewPager creates a pager for one conversation. pageSize defaults to
// DefaultPageSize when zero.
func NewPager(fetcher HistoryFetcher, conversationID int64, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{
		fetcher:        fetcher,
		conversationID: conversationID,
		pageSize:       pageSize,
		nextPage:       1,
	}
}

// ConversationID returns the conversation this pager reads.
func (p *Pager) ConversationID() int64 {
	return p.conversationID
}

// HasNext reports whether an unfetched page remains. Before the first fetch
// the total is unknown and HasNext is true.
func (p *Pager) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return true
	}
	return p.nextPage <= p.totalPages
}

// FetchNext retrieves the next page. At most one fetch is in flight at a
// time; a second concurrent call gets ErrFetchInFlight.
func (p *Pager) FetchNext(ctx context.Context) ([]MessageRecord, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil, ErrFetchInFlight
	}
	if p.started && p.nextPage > p.totalPages {
		p.mu.Unlock()
		return nil, ErrNoMorePages
	}
	page := p.nextPage
	p.inFlight = true
	p.mu.Unlock()

	result, err := p.fetcher.List(ctx, p.conversationID, page, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	if err != nil {
		return nil, err
	}

	p.started = true
	p.totalPages = result.PaginationInfo.TotalPages
	if result.PaginationInfo.CurrentPage >= page {
		p.nextPage = result.PaginationInfo.CurrentPage + 1
	} else {
		p.nextPage = page + 1
	}
	return result.Records, nil
}
