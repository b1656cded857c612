/*

This file contains the types for manager trades: the route handed to the venue, the settlement the
venue reports back, and the result returned to the manager.

*/

package types

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// TradeKind defines the venue operations a manager may route through.
type TradeKind string

const (
	TradeSwap     TradeKind = "SWAP"
	TradeJoinPool TradeKind = "JOIN_POOL" // Two-sided proportional join, pays DenomIn plus the matching other leg
	TradeExitPool TradeKind = "EXIT_POOL" // Burns LP shares for both legs
)

// Route describes a single venue action.
type Route struct {
	Kind     TradeKind `json:"kind"`
	PoolID   PoolID    `json:"pool_id"`
	DenomIn  string    `json:"denom_in"`  // SWAP/JOIN_POOL: token paid in. EXIT_POOL: the LP denom
	DenomOut string    `json:"denom_out"` // Leg bounded by min_amount_out. JOIN_POOL: the LP denom
}

// Validate performs stateless checks on the route.
func (r Route) Validate() error {
	switch r.Kind {
	case TradeSwap, TradeJoinPool, TradeExitPool:
	default:
		return errorsmod.Wrapf(ErrInvalidRoute, "unknown trade kind %q", r.Kind)
	}
	if err := sdktypes.ValidateDenom(r.DenomIn); err != nil {
		return errorsmod.Wrapf(ErrInvalidRoute, "denom in: %s", err)
	}
	if err := sdktypes.ValidateDenom(r.DenomOut); err != nil {
		return errorsmod.Wrapf(ErrInvalidRoute, "denom out: %s", err)
	}
	if r.DenomIn == r.DenomOut {
		return errorsmod.Wrap(ErrInvalidRoute, "denom in and denom out must differ")
	}
	lp := LPDenom(r.PoolID)
	switch r.Kind {
	case TradeSwap:
		if r.DenomIn == lp || r.DenomOut == lp {
			return errorsmod.Wrap(ErrInvalidRoute, "swaps cannot route pool shares")
		}
	case TradeJoinPool:
		if r.DenomOut != lp {
			return errorsmod.Wrapf(ErrInvalidRoute, "join must output %s", lp)
		}
	case TradeExitPool:
		if r.DenomIn != lp {
			return errorsmod.Wrapf(ErrInvalidRoute, "exit must burn %s", lp)
		}
	}
	return nil
}

// Settlement is what the venue reports as actually moved.
type Settlement struct {
	Spent    sdktypes.Coins `json:"spent"`
	Received sdktypes.Coins `json:"received"`
}

// TradeResult is returned by a successful manager trade.
type TradeResult struct {
	Route      Route       `json:"route"`
	AmountIn   sdkmath.Int `json:"amount_in"`
	Settlement Settlement  `json:"settlement"`
	NAVBefore  sdkmath.Int `json:"nav_before"`
	NAVAfter   sdkmath.Int `json:"nav_after"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// SwapEstimation contains the result of a swap simulation
type SwapEstimation struct {
	TokenOutAmount sdkmath.Int       `json:"token_out_amount"`
	PriceImpact    sdkmath.LegacyDec `json:"price_impact"` // Fraction of the spot price lost to the trade size, fee excluded
}
