package venue

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/banana-dao/banana-vaults/internal/oracle"
	"github.com/banana-dao/banana-vaults/internal/types"
)

// FeedResolver maps a vault denom to its oracle feed. reference is true for the reference denom.
type FeedResolver interface {
	ResolveFeed(ctx context.Context, denom string) (feedID string, reference bool, err error)
}

// LPPriceSource quotes pool share denoms from pool reserves and the quotes of both legs. Every other feed
// is passed to base. An LP asset is configured with its own denom as feed id, e.g. "amm/pool/1".
type LPPriceSource struct {
	base  oracle.PriceSource
	amm   *AMM
	feeds FeedResolver
}

// NewLPPriceSource decorates base.
func NewLPPriceSource(base oracle.PriceSource, amm *AMM, feeds FeedResolver) *LPPriceSource {
	return &LPPriceSource{base: base, amm: amm, feeds: feeds}
}

// Quote implements oracle.PriceSource. The quote is as old as the oldest leg quote.
func (s *LPPriceSource) Quote(ctx context.Context, feedID string) (types.PriceQuote, error) {
	id, ok := types.ParseLPDenom(feedID)
	if !ok {
		return s.base.Quote(ctx, feedID)
	}

	pool, err := s.amm.Pool(ctx, id)
	if err != nil {
		return types.PriceQuote{}, fmt.Errorf("%w: %w", oracle.ErrNoQuote, err)
	}
	if !pool.TotalShares.IsPositive() {
		return types.PriceQuote{}, fmt.Errorf("%w: pool %d has no shares", oracle.ErrNoQuote, id)
	}

	value := sdkmath.LegacyZeroDec()
	confidence := sdkmath.LegacyZeroDec()
	var publishTime time.Time
	for _, denom := range []string{pool.DenomA, pool.DenomB} {
		leg, err := s.legQuote(ctx, denom)
		if err != nil {
			return types.PriceQuote{}, err
		}
		reserve := sdkmath.LegacyNewDecFromInt(pool.Reserve(denom))
		value = value.Add(leg.Price.Mul(reserve))
		if !leg.Confidence.IsNil() {
			confidence = confidence.Add(leg.Confidence.Mul(reserve))
		}
		if !leg.PublishTime.IsZero() && (publishTime.IsZero() || leg.PublishTime.Before(publishTime)) {
			publishTime = leg.PublishTime
		}
	}

	return types.PriceQuote{
		Denom:       pool.LPDenom(),
		FeedID:      feedID,
		Price:       value.QuoInt(pool.TotalShares),
		Confidence:  confidence.QuoInt(pool.TotalShares),
		PublishTime: publishTime,
	}, nil
}

func (s *LPPriceSource) legQuote(ctx context.Context, denom string) (types.PriceQuote, error) {
	feedID, reference, err := s.feeds.ResolveFeed(ctx, denom)
	if err != nil {
		return types.PriceQuote{}, err
	}
	if reference {
		return types.PriceQuote{Denom: denom, Price: sdkmath.LegacyOneDec(), Confidence: sdkmath.LegacyZeroDec()}, nil
	}
	q, err := s.base.Quote(ctx, feedID)
	if err != nil {
		return types.PriceQuote{}, err
	}
	return q, nil
}

// ValidFeed implements oracle.FeedValidator.
func (s *LPPriceSource) ValidFeed(feedID string) bool {
	if _, ok := types.ParseLPDenom(feedID); ok {
		return true
	}
	if v, ok := s.base.(oracle.FeedValidator); ok {
		return v.ValidFeed(feedID)
	}
	return feedID != ""
}
