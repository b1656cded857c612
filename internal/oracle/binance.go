package oracle

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/banana-dao/banana-vaults/internal/types"
)

var binanceSymbolPattern = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)

// BinanceSource quotes spot ticker prices. Feed ids are exchange symbols such as "ATOMUSDT".
// The ticker carries no publish time or confidence, so the fetch time is used and confidence is zero.
type BinanceSource struct {
	client  *binance.Client
	retrier *Retrier
	shifts  map[string]int32
	now     func() time.Time
}

// NewBinanceSource creates a source using client. shifts maps feed ids to DecimalShift values.
func NewBinanceSource(client *binance.Client, retrier *Retrier, shifts map[string]int32) *BinanceSource {
	if retrier == nil {
		retrier = NewRetrier()
	}
	if shifts == nil {
		shifts = map[string]int32{}
	}
	return &BinanceSource{client: client, retrier: retrier, shifts: shifts, now: time.Now}
}

// Quote implements PriceSource.
func (b *BinanceSource) Quote(ctx context.Context, feedID string) (types.PriceQuote, error) {
	prices, err := DoWithData(b.retrier, ctx, func(ctx context.Context) ([]*binance.SymbolPrice, error) {
		return b.client.NewListPricesService().Symbol(feedID).Do(ctx)
	})
	if err != nil {
		oracleLogger.Warn().Err(err).Str("feed", feedID).Msg("Binance price request failed")
		return types.PriceQuote{}, fmt.Errorf("%w: binance %s: %w", ErrSourceFailure, feedID, err)
	}
	if len(prices) == 0 || prices[0] == nil {
		return types.PriceQuote{}, fmt.Errorf("%w: %s", ErrNoQuote, feedID)
	}

	raw, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return types.PriceQuote{}, fmt.Errorf("%w: %s price %q: %w", ErrInvalidQuote, feedID, prices[0].Price, err)
	}
	price, err := NormalizePrice(raw, b.shifts[feedID])
	if err != nil {
		return types.PriceQuote{}, err
	}

	oracleLogger.Debug().Str("feed", feedID).Str("raw", raw.String()).Str("price", price.String()).Msg("Binance quote")

	return types.PriceQuote{
		FeedID:      feedID,
		Price:       price,
		Confidence:  sdkmath.LegacyZeroDec(),
		PublishTime: b.now(),
	}, nil
}

// ValidFeed implements FeedValidator.
func (b *BinanceSource) ValidFeed(feedID string) bool {
	return binanceSymbolPattern.MatchString(feedID)
}
