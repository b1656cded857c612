package venue

import (
	"context"
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
)

var adapterLogger = logger.GetForComponent("venue_adapter")

// Holdings is the ledger surface the adapter reconciles.
type Holdings interface {
	GetHolding(ctx context.Context, denom string) (sdkmath.Int, error)
	AddHolding(ctx context.Context, coin sdk.Coin) error
	SubHolding(ctx context.Context, coin sdk.Coin) error
}

// Adapter routes manager trades to a venue on behalf of the vault account.
type Adapter struct {
	venue   TradeVenue
	ledger  Holdings
	account string
}

// NewAdapter creates an adapter trading from account.
func NewAdapter(venue TradeVenue, ledger Holdings, account string) (*Adapter, error) {
	var errs []error
	if venue == nil {
		errs = append(errs, fmt.Errorf("venue cannot be nil"))
	}
	if ledger == nil {
		errs = append(errs, fmt.Errorf("ledger cannot be nil"))
	}
	if account == "" {
		errs = append(errs, fmt.Errorf("vault account is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Adapter{venue: venue, ledger: ledger, account: account}, nil
}

// ExecuteTrade validates route against cfg, executes it and records the settled legs in the ledger.
// Holdings change only by what the venue reports as spent and received.
func (a *Adapter) ExecuteTrade(ctx context.Context, cfg types.VaultConfig, route types.Route, amountIn, minAmountOut sdkmath.Int) (types.Settlement, error) {
	if err := a.validate(ctx, cfg, route, amountIn, minAmountOut); err != nil {
		return types.Settlement{}, err
	}

	settlement, err := a.venue.Execute(ctx, a.account, route, amountIn, minAmountOut)
	if err != nil {
		if errors.Is(err, types.ErrReentrancyRejected) {
			return types.Settlement{}, err
		}
		adapterLogger.Warn().Err(err).Str("kind", string(route.Kind)).Uint64("pool_id", uint64(route.PoolID)).Msg("Venue rejected trade")
		return types.Settlement{}, errorsmod.Wrap(types.ErrVenueRejected, err.Error())
	}

	if err := checkSettlement(cfg, route, amountIn, minAmountOut, settlement); err != nil {
		return types.Settlement{}, err
	}

	for _, coin := range settlement.Spent {
		if err := a.ledger.SubHolding(ctx, coin); err != nil {
			return types.Settlement{}, err
		}
	}
	for _, coin := range settlement.Received {
		if err := a.ledger.AddHolding(ctx, coin); err != nil {
			return types.Settlement{}, err
		}
	}

	adapterLogger.Info().
		Str("kind", string(route.Kind)).
		Uint64("pool_id", uint64(route.PoolID)).
		Str("spent", settlement.Spent.String()).
		Str("received", settlement.Received.String()).
		Msg("Trade reconciled")
	return settlement, nil
}

func (a *Adapter) validate(ctx context.Context, cfg types.VaultConfig, route types.Route, amountIn, minAmountOut sdkmath.Int) error {
	if err := route.Validate(); err != nil {
		return err
	}
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "amount in %v must be positive", amountIn)
	}
	if minAmountOut.IsNil() || minAmountOut.IsNegative() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "min amount out %v must be non-negative", minAmountOut)
	}
	for _, denom := range []string{route.DenomIn, route.DenomOut} {
		if _, ok := cfg.Asset(denom); !ok {
			return errorsmod.Wrapf(types.ErrInvalidDenom, "%s is not a vault asset", denom)
		}
	}

	liquid, err := a.ledger.GetHolding(ctx, route.DenomIn)
	if err != nil {
		return err
	}
	if amountIn.GT(liquid) {
		return errorsmod.Wrapf(types.ErrInsufficientHoldings, "trade of %s%s exceeds holding %s", amountIn, route.DenomIn, liquid)
	}
	return nil
}

func checkSettlement(cfg types.VaultConfig, route types.Route, amountIn, minAmountOut sdkmath.Int, s types.Settlement) error {
	if !s.Spent.IsValid() || !s.Received.IsValid() {
		return errorsmod.Wrapf(types.ErrVenueRejected, "malformed settlement spent=%s received=%s", s.Spent, s.Received)
	}
	if s.Spent.AmountOf(route.DenomIn).GT(amountIn) {
		return errorsmod.Wrapf(types.ErrVenueRejected, "venue took %s%s, trade was for %s", s.Spent.AmountOf(route.DenomIn), route.DenomIn, amountIn)
	}
	for _, coin := range s.Received {
		if _, ok := cfg.Asset(coin.Denom); !ok {
			return errorsmod.Wrapf(types.ErrVenueRejected, "settlement pays non-whitelisted %s", coin.Denom)
		}
	}
	if got := s.Received.AmountOf(route.DenomOut); got.LT(minAmountOut) {
		return errorsmod.Wrapf(types.ErrVenueRejected, "received %s%s, minimum %s", got, route.DenomOut, minAmountOut)
	}
	return nil
}
