/*
Price sources answer "what is one base unit of this feed worth in reference base units". The valuation
engine decides whether an answer is fresh enough; sources only report what they know.
*/

package oracle

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
)

var oracleLogger = logger.GetForComponent("oracle")

// Error definitions
var (
	ErrNoQuote       = errors.New("no quote available for feed")
	ErrInvalidQuote  = errors.New("quote is invalid")
	ErrSourceFailure = errors.New("price source request failed")
)

// PriceSource returns the latest quote for an oracle feed.
type PriceSource interface {
	Quote(ctx context.Context, feedID string) (types.PriceQuote, error)
}

// FeedValidator is implemented by sources that can tell whether a feed id is well formed.
type FeedValidator interface {
	ValidFeed(feedID string) bool
}

// NormalizePrice converts a price quoted in whole reference tokens per whole asset token into
// reference base units per asset base unit. shift is referenceDecimals - assetDecimals.
func NormalizePrice(raw decimal.Decimal, shift int32) (sdkmath.LegacyDec, error) {
	if raw.IsNegative() || raw.IsZero() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: price %s must be positive", ErrInvalidQuote, raw)
	}
	scaled := raw.Shift(shift)
	price, err := sdkmath.LegacyNewDecFromStr(scaled.StringFixed(sdkmath.LegacyPrecision))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %w", ErrInvalidQuote, err)
	}
	if !price.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: price %s rounds to zero at 18 decimals", ErrInvalidQuote, scaled)
	}
	return price, nil
}

// DecimalShift returns the NormalizePrice shift for an asset quoted against the reference denom.
func DecimalShift(referenceDecimals, assetDecimals uint32) int32 {
	return int32(referenceDecimals) - int32(assetDecimals)
}
