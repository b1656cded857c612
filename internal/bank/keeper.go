/*
Package bank is the custody layer of the host: per-account balances keyed by (address, denom).

It plays the part of the chain's bank module. Depositors, the vault and the venue pools all hold
their coins here, so every instruction moves real balances and the vault ledger can be checked
against them.
*/

package bank

import (
	"context"
	"errors"

	"cosmossdk.io/collections"
	corestore "cosmossdk.io/core/store"
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// Keeper holds account balances.
type Keeper struct {
	Schema   collections.Schema
	Balances collections.Map[collections.Pair[string, string], sdkmath.Int]
}

// NewKeeper builds the balance collections on top of storeService.
func NewKeeper(storeService corestore.KVStoreService) (*Keeper, error) {
	builder := collections.NewSchemaBuilder(storeService)
	k := &Keeper{
		Balances: collections.NewMap(
			builder,
			types.BalancesPrefix,
			"balances",
			collections.PairKeyCodec(collections.StringKey, collections.StringKey),
			sdk.IntValue,
		),
	}
	schema, err := builder.Build()
	if err != nil {
		return nil, err
	}
	k.Schema = schema
	return k, nil
}

// GetBalance returns the balance of denom held by addr.
func (k *Keeper) GetBalance(ctx context.Context, addr, denom string) (sdkmath.Int, error) {
	amount, err := k.Balances.Get(ctx, collections.Join(addr, denom))
	if errors.Is(err, collections.ErrNotFound) {
		return sdkmath.ZeroInt(), nil
	}
	return amount, err
}

// GetAllBalances returns every nonzero balance of addr sorted by denom.
func (k *Keeper) GetAllBalances(ctx context.Context, addr string) (sdk.Coins, error) {
	var coins sdk.Coins
	rng := collections.NewPrefixedPairRange[string, string](addr)
	err := k.Balances.Walk(ctx, rng, func(key collections.Pair[string, string], amount sdkmath.Int) (bool, error) {
		if amount.IsPositive() {
			coins = append(coins, sdk.NewCoin(key.K2(), amount))
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return coins, nil
}

// SendCoins moves amt from one account to another.
func (k *Keeper) SendCoins(ctx context.Context, from, to string, amt sdk.Coins) error {
	if from == "" || to == "" {
		return errorsmod.Wrap(types.ErrInvalidAddress, "empty sender or recipient")
	}
	if !amt.IsValid() {
		return errorsmod.Wrapf(sdkerrors.ErrInvalidCoins, "%s", amt)
	}
	for _, coin := range amt {
		if err := k.sub(ctx, from, coin); err != nil {
			return err
		}
		if err := k.add(ctx, to, coin); err != nil {
			return err
		}
	}
	return nil
}

// MintCoins creates amt in addr. Used to fund accounts and to issue pool shares.
func (k *Keeper) MintCoins(ctx context.Context, addr string, amt sdk.Coins) error {
	if !amt.IsValid() {
		return errorsmod.Wrapf(sdkerrors.ErrInvalidCoins, "%s", amt)
	}
	for _, coin := range amt {
		if err := k.add(ctx, addr, coin); err != nil {
			return err
		}
	}
	return nil
}

// BurnCoins destroys amt held by addr.
func (k *Keeper) BurnCoins(ctx context.Context, addr string, amt sdk.Coins) error {
	if !amt.IsValid() {
		return errorsmod.Wrapf(sdkerrors.ErrInvalidCoins, "%s", amt)
	}
	for _, coin := range amt {
		if err := k.sub(ctx, addr, coin); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keeper) add(ctx context.Context, addr string, coin sdk.Coin) error {
	balance, err := k.GetBalance(ctx, addr, coin.Denom)
	if err != nil {
		return err
	}
	next, err := balance.SafeAdd(coin.Amount)
	if err != nil {
		return errorsmod.Wrapf(types.ErrOverflow, "balance of %s in %s", addr, coin.Denom)
	}
	return k.Balances.Set(ctx, collections.Join(addr, coin.Denom), next)
}

func (k *Keeper) sub(ctx context.Context, addr string, coin sdk.Coin) error {
	balance, err := k.GetBalance(ctx, addr, coin.Denom)
	if err != nil {
		return err
	}
	if balance.LT(coin.Amount) {
		return errorsmod.Wrapf(sdkerrors.ErrInsufficientFunds, "%s has %s%s, needs %s", addr, balance, coin.Denom, coin.Amount)
	}
	next := balance.Sub(coin.Amount)
	if next.IsZero() {
		return k.Balances.Remove(ctx, collections.Join(addr, coin.Denom))
	}
	return k.Balances.Set(ctx, collections.Join(addr, coin.Denom), next)
}
