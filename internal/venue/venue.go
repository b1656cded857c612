/*
Package venue executes manager trades. The Adapter is the only caller of a TradeVenue; it validates
routes against the vault config before execution and reconciles ledger holdings from what the venue
reports as settled.
*/

package venue

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// Error definitions
var (
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInvalidPool           = errors.New("invalid pool parameters")
	ErrDenomNotInPool        = errors.New("denom is not a leg of the pool")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrMinOutNotMet          = errors.New("output below minimum amount out")
)

// TradeVenue executes a route on behalf of trader and reports what was actually moved.
type TradeVenue interface {
	Execute(ctx context.Context, trader string, route types.Route, amountIn, minAmountOut sdkmath.Int) (types.Settlement, error)
}

// Bank moves custody between accounts.
type Bank interface {
	SendCoins(ctx context.Context, from, to string, amt sdk.Coins) error
	MintCoins(ctx context.Context, addr string, amt sdk.Coins) error
	BurnCoins(ctx context.Context, addr string, amt sdk.Coins) error
}
