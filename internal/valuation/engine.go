/*
The valuation engine prices vault holdings in the reference denomination.

Summation is done over holdings sorted by denom with 256-bit bounded integers, so the same holdings
and quotes always produce the same NAV. The engine never writes state.
*/

package valuation

import (
	"context"
	"fmt"
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/oracle"
	"github.com/banana-dao/banana-vaults/internal/types"
)

var valuationLogger = logger.GetForComponent("valuation")

// precisionMultiplier is 10^18, the fixed-point scale of LegacyDec.
var precisionMultiplier = sdkmath.NewIntFromBigInt(sdkmath.LegacyOneDec().BigInt())

// Ledger is the read side of the ledger the engine needs.
type Ledger interface {
	GetConfig(ctx context.Context) (types.VaultConfig, error)
	GetHoldings(ctx context.Context) (sdk.Coins, error)
}

// Custody reports what the host actually holds for an account.
type Custody interface {
	GetBalance(ctx context.Context, addr, denom string) (sdkmath.Int, error)
}

// Engine computes the vault NAV.
type Engine struct {
	ledger  Ledger
	prices  oracle.PriceSource
	custody Custody
	account string
}

// NewEngine creates an engine. custody may be nil, which disables the holdings cross-check.
func NewEngine(ledger Ledger, prices oracle.PriceSource, custody Custody, account string) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if prices == nil {
		return nil, fmt.Errorf("price source cannot be nil")
	}
	if custody != nil && account == "" {
		return nil, fmt.Errorf("custody account is required for the holdings cross-check")
	}
	return &Engine{ledger: ledger, prices: prices, custody: custody, account: account}, nil
}

// Prices returns the engine's price source.
func (e *Engine) Prices() oracle.PriceSource {
	return e.prices
}

// ComputeNAV values the current holdings at the block time of ctx.
func (e *Engine) ComputeNAV(ctx sdk.Context) (types.NAV, error) {
	cfg, err := e.ledger.GetConfig(ctx)
	if err != nil {
		return types.NAV{}, err
	}
	holdings, err := e.ledger.GetHoldings(ctx)
	if err != nil {
		return types.NAV{}, err
	}
	if err := e.CrossCheck(ctx, holdings); err != nil {
		return types.NAV{}, err
	}
	return e.Value(ctx, cfg, holdings, ctx.BlockTime())
}

// Value prices holdings at now. Holdings are summed in ascending denom order regardless of input order.
func (e *Engine) Value(ctx context.Context, cfg types.VaultConfig, holdings sdk.Coins, now time.Time) (types.NAV, error) {
	sorted := make(sdk.Coins, len(holdings))
	copy(sorted, holdings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Denom < sorted[j].Denom })

	nav := types.NAV{Total: sdkmath.ZeroInt(), Timestamp: now}
	for _, coin := range sorted {
		if coin.Amount.IsZero() {
			continue
		}
		value, price, err := e.valueOf(ctx, cfg, coin, now)
		if err != nil {
			return types.NAV{}, err
		}
		nav.Total, err = nav.Total.SafeAdd(value)
		if err != nil {
			return types.NAV{}, errorsmod.Wrapf(types.ErrOverflow, "NAV sum at %s", coin.Denom)
		}
		nav.Components = append(nav.Components, types.AssetValue{
			Denom:  coin.Denom,
			Amount: coin.Amount,
			Price:  price,
			Value:  value,
		})
	}
	return nav, nil
}

// ValueOf prices a single coin, e.g. an incoming deposit.
func (e *Engine) ValueOf(ctx context.Context, cfg types.VaultConfig, coin sdk.Coin, now time.Time) (sdkmath.Int, error) {
	value, _, err := e.valueOf(ctx, cfg, coin, now)
	return value, err
}

func (e *Engine) valueOf(ctx context.Context, cfg types.VaultConfig, coin sdk.Coin, now time.Time) (sdkmath.Int, sdkmath.LegacyDec, error) {
	if coin.Denom == cfg.ReferenceDenom {
		return coin.Amount, sdkmath.LegacyOneDec(), nil
	}

	asset, ok := cfg.Asset(coin.Denom)
	if !ok || asset.FeedID == "" {
		return sdkmath.Int{}, sdkmath.LegacyDec{}, errorsmod.Wrapf(types.ErrMissingFeed, "no feed configured for %s", coin.Denom)
	}

	quote, err := e.prices.Quote(ctx, asset.FeedID)
	if err != nil {
		if types.KindOf(err) != types.KindInternal {
			return sdkmath.Int{}, sdkmath.LegacyDec{}, err
		}
		valuationLogger.Warn().Err(err).Str("denom", coin.Denom).Str("feed", asset.FeedID).Msg("No usable quote")
		return sdkmath.Int{}, sdkmath.LegacyDec{}, errorsmod.Wrapf(types.ErrMissingFeed, "%s (feed %s): %s", coin.Denom, asset.FeedID, err)
	}
	if err := CheckQuote(cfg, quote, now); err != nil {
		return sdkmath.Int{}, sdkmath.LegacyDec{}, errorsmod.Wrapf(err, "%s", coin.Denom)
	}

	value, err := MulPrice(coin.Amount, quote.Price)
	if err != nil {
		return sdkmath.Int{}, sdkmath.LegacyDec{}, errorsmod.Wrapf(err, "%s", coin.Denom)
	}
	return value, quote.Price, nil
}

// CheckQuote applies the staleness window and confidence bound of cfg to q.
func CheckQuote(cfg types.VaultConfig, q types.PriceQuote, now time.Time) error {
	if q.Price.IsNil() || !q.Price.IsPositive() {
		return errorsmod.Wrapf(types.ErrMissingFeed, "feed %s reported a non-positive price", q.FeedID)
	}
	age := q.Age(now)
	if age > cfg.MaxPriceAge {
		return errorsmod.Wrapf(types.ErrStalePrice, "feed %s quote is %s old, tolerance %s", q.FeedID, age, cfg.MaxPriceAge)
	}
	if -age > cfg.MaxPriceSkew {
		return errorsmod.Wrapf(types.ErrStalePrice, "feed %s quote published %s ahead of block time", q.FeedID, -age)
	}
	if cfg.MaxConfidenceBps > 0 && !q.Confidence.IsNil() && q.Confidence.IsPositive() {
		// confidence / price > bps / 10000
		if q.Confidence.MulInt64(types.BasisPoints).GT(q.Price.MulInt64(int64(cfg.MaxConfidenceBps))) {
			return errorsmod.Wrapf(types.ErrLowConfidence, "feed %s confidence %s on price %s", q.FeedID, q.Confidence, q.Price)
		}
	}
	return nil
}

// MulPrice returns floor(amount * price) without leaving the 256-bit integer domain.
func MulPrice(amount sdkmath.Int, price sdkmath.LegacyDec) (sdkmath.Int, error) {
	scaled := price.BigInt()
	if scaled.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, errorsmod.Wrapf(types.ErrOverflow, "price %s", price)
	}
	product, err := amount.SafeMul(sdkmath.NewIntFromBigInt(scaled))
	if err != nil {
		return sdkmath.Int{}, errorsmod.Wrapf(types.ErrOverflow, "%s times price %s", amount, price)
	}
	return product.Quo(precisionMultiplier), nil
}

// CrossCheck fails when a recorded holding is larger than the custody balance backing it. A larger custody
// balance (unsolicited transfers) is ignored so nobody can move the share price by donating.
func (e *Engine) CrossCheck(ctx context.Context, holdings sdk.Coins) error {
	if e.custody == nil {
		return nil
	}
	for _, coin := range holdings {
		balance, err := e.custody.GetBalance(ctx, e.account, coin.Denom)
		if err != nil {
			return err
		}
		if balance.LT(coin.Amount) {
			valuationLogger.Error().
				Bool("invariant_breach", true).
				Str("denom", coin.Denom).
				Str("recorded", coin.Amount.String()).
				Str("custody", balance.String()).
				Msg("Recorded holdings exceed custody balance")
			return errorsmod.Wrapf(types.ErrHoldingsMismatch, "%s: recorded %s, custody %s", coin.Denom, coin.Amount, balance)
		}
	}
	return nil
}
