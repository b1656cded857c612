package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// CachedSource memoizes quotes from a remote source for ttl so one instruction that values the vault
// several times hits the remote once per feed.
type CachedSource struct {
	base PriceSource
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cachedQuote
}

type cachedQuote struct {
	quote     types.PriceQuote
	fetchedAt time.Time
}

// NewCachedSource wraps base.
func NewCachedSource(base PriceSource, ttl time.Duration) *CachedSource {
	return &CachedSource{
		base:    base,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedQuote),
	}
}

// Quote implements PriceSource.
func (c *CachedSource) Quote(ctx context.Context, feedID string) (types.PriceQuote, error) {
	c.mu.Lock()
	entry, ok := c.entries[feedID]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.quote, nil
	}

	q, err := c.base.Quote(ctx, feedID)
	if err != nil {
		return types.PriceQuote{}, err
	}

	c.mu.Lock()
	c.entries[feedID] = cachedQuote{quote: q, fetchedAt: c.now()}
	c.mu.Unlock()
	return q, nil
}

// ValidFeed delegates to the wrapped source when it validates feeds.
func (c *CachedSource) ValidFeed(feedID string) bool {
	if v, ok := c.base.(FeedValidator); ok {
		return v.ValidFeed(feedID)
	}
	return feedID != ""
}
