package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// StaticSource serves quotes pushed into it. It backs tests and ORACLE_SOURCE=static.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]types.PriceQuote
}

// NewStaticSource creates an empty source.
func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]types.PriceQuote)}
}

// Set publishes price for feedID at publishTime with a zero confidence interval.
func (s *StaticSource) Set(feedID string, price sdkmath.LegacyDec, publishTime time.Time) {
	s.SetQuote(types.PriceQuote{
		FeedID:      feedID,
		Price:       price,
		Confidence:  sdkmath.LegacyZeroDec(),
		PublishTime: publishTime,
	})
}

// SetQuote publishes a full quote.
func (s *StaticSource) SetQuote(q types.PriceQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.FeedID] = q
}

// Remove withdraws the quote for feedID.
func (s *StaticSource) Remove(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, feedID)
}

// Quote implements PriceSource.
func (s *StaticSource) Quote(_ context.Context, feedID string) (types.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[feedID]
	if !ok {
		return types.PriceQuote{}, fmt.Errorf("%w: %s", ErrNoQuote, feedID)
	}
	return q, nil
}

// ValidFeed implements FeedValidator.
func (s *StaticSource) ValidFeed(feedID string) bool {
	return feedID != ""
}
