/*

The ledger is the only persistence boundary of the vault. Every record lives in a collections
Item/Map under its own prefix (see types/Keys.go), so iteration is in ascending key order and holdings
are always walked sorted by denomination.

*/

package ledger

import (
	"context"
	"errors"

	"cosmossdk.io/collections"
	corestore "cosmossdk.io/core/store"
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// Store holds the vault ledger records.
type Store struct {
	Schema collections.Schema

	Config      collections.Item[types.VaultConfig]
	Status      collections.Item[types.VaultStatus]
	TotalShares collections.Item[sdkmath.Int]
	Positions   collections.Map[string, sdkmath.Int]
	Holdings    collections.Map[string, sdkmath.Int]
	Pending     collections.Item[string]
	Whitelist   collections.KeySet[string]
}

// NewStore builds the ledger collections on top of storeService.
func NewStore(storeService corestore.KVStoreService) (*Store, error) {
	builder := collections.NewSchemaBuilder(storeService)

	s := &Store{
		Config:      collections.NewItem(builder, types.ConfigKey, "config", JSONValue[types.VaultConfig]()),
		Status:      collections.NewItem(builder, types.StatusKey, "status", JSONValue[types.VaultStatus]()),
		TotalShares: collections.NewItem(builder, types.TotalSharesKey, "total_shares", sdk.IntValue),
		Positions:   collections.NewMap(builder, types.PositionsPrefix, "positions", collections.StringKey, sdk.IntValue),
		Holdings:    collections.NewMap(builder, types.HoldingsPrefix, "holdings", collections.StringKey, sdk.IntValue),
		Pending:     collections.NewItem(builder, types.PendingKey, "pending", collections.StringValue),
		Whitelist:   collections.NewKeySet(builder, types.WhitelistPrefix, "whitelist", collections.StringKey),
	}

	schema, err := builder.Build()
	if err != nil {
		return nil, err
	}
	s.Schema = schema
	return s, nil
}

// GetConfig returns the vault config or ErrNotInstantiated.
func (s *Store) GetConfig(ctx context.Context) (types.VaultConfig, error) {
	cfg, err := s.Config.Get(ctx)
	if errors.Is(err, collections.ErrNotFound) {
		return types.VaultConfig{}, types.ErrNotInstantiated
	}
	return cfg, err
}

// IsInstantiated reports whether a config has been stored.
func (s *Store) IsInstantiated(ctx context.Context) (bool, error) {
	return s.Config.Has(ctx)
}

// GetStatus returns the vault status or ErrNotInstantiated.
func (s *Store) GetStatus(ctx context.Context) (types.VaultStatus, error) {
	status, err := s.Status.Get(ctx)
	if errors.Is(err, collections.ErrNotFound) {
		return types.VaultStatus{}, types.ErrNotInstantiated
	}
	return status, err
}

// GetTotalShares returns the total shares issued, zero before the first mint.
func (s *Store) GetTotalShares(ctx context.Context) (sdkmath.Int, error) {
	total, err := s.TotalShares.Get(ctx)
	if errors.Is(err, collections.ErrNotFound) {
		return sdkmath.ZeroInt(), nil
	}
	return total, err
}

// GetShares returns the share balance of addr.
func (s *Store) GetShares(ctx context.Context, addr string) (sdkmath.Int, error) {
	shares, err := s.Positions.Get(ctx, addr)
	if errors.Is(err, collections.ErrNotFound) {
		return sdkmath.ZeroInt(), nil
	}
	return shares, err
}

// Mint credits shares to addr and to the total supply.
func (s *Store) Mint(ctx context.Context, addr string, shares sdkmath.Int) error {
	if !shares.IsPositive() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "mint of %s shares", shares)
	}
	balance, err := s.GetShares(ctx, addr)
	if err != nil {
		return err
	}
	total, err := s.GetTotalShares(ctx)
	if err != nil {
		return err
	}
	newBalance, err := balance.SafeAdd(shares)
	if err != nil {
		return errorsmod.Wrap(types.ErrOverflow, "share balance")
	}
	newTotal, err := total.SafeAdd(shares)
	if err != nil {
		return errorsmod.Wrap(types.ErrOverflow, "total shares")
	}
	if err := s.Positions.Set(ctx, addr, newBalance); err != nil {
		return err
	}
	return s.TotalShares.Set(ctx, newTotal)
}

// Burn debits shares from addr and from the total supply. Zero balances are removed.
func (s *Store) Burn(ctx context.Context, addr string, shares sdkmath.Int) error {
	if !shares.IsPositive() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "burn of %s shares", shares)
	}
	balance, err := s.GetShares(ctx, addr)
	if err != nil {
		return err
	}
	if balance.LT(shares) {
		return errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s shares, %s requested", addr, balance, shares)
	}
	total, err := s.GetTotalShares(ctx)
	if err != nil {
		return err
	}
	if total.LT(shares) {
		return errorsmod.Wrapf(types.ErrZeroShareSupplyInconsistency, "total shares %s below position %s", total, balance)
	}

	remaining := balance.Sub(shares)
	if remaining.IsZero() {
		err = s.Positions.Remove(ctx, addr)
	} else {
		err = s.Positions.Set(ctx, addr, remaining)
	}
	if err != nil {
		return err
	}
	return s.TotalShares.Set(ctx, total.Sub(shares))
}

// GetHolding returns the recorded holding of denom.
func (s *Store) GetHolding(ctx context.Context, denom string) (sdkmath.Int, error) {
	amount, err := s.Holdings.Get(ctx, denom)
	if errors.Is(err, collections.ErrNotFound) {
		return sdkmath.ZeroInt(), nil
	}
	return amount, err
}

// GetHoldings returns every nonzero holding in ascending denom order.
func (s *Store) GetHoldings(ctx context.Context) (sdk.Coins, error) {
	var holdings sdk.Coins
	err := s.Holdings.Walk(ctx, nil, func(denom string, amount sdkmath.Int) (bool, error) {
		if amount.IsPositive() {
			holdings = append(holdings, sdk.NewCoin(denom, amount))
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// AddHolding records an inflow.
func (s *Store) AddHolding(ctx context.Context, coin sdk.Coin) error {
	if coin.Amount.IsZero() {
		return nil
	}
	current, err := s.GetHolding(ctx, coin.Denom)
	if err != nil {
		return err
	}
	next, err := current.SafeAdd(coin.Amount)
	if err != nil {
		return errorsmod.Wrapf(types.ErrOverflow, "holding of %s", coin.Denom)
	}
	return s.Holdings.Set(ctx, coin.Denom, next)
}

// SubHolding records an outflow. Outflows larger than the holding are rejected.
func (s *Store) SubHolding(ctx context.Context, coin sdk.Coin) error {
	if coin.Amount.IsZero() {
		return nil
	}
	current, err := s.GetHolding(ctx, coin.Denom)
	if err != nil {
		return err
	}
	if current.LT(coin.Amount) {
		return errorsmod.Wrapf(types.ErrInsufficientHoldings, "holding %s%s, outflow %s", current, coin.Denom, coin.Amount)
	}
	next := current.Sub(coin.Amount)
	if next.IsZero() {
		return s.Holdings.Remove(ctx, coin.Denom)
	}
	return s.Holdings.Set(ctx, coin.Denom, next)
}

// IsWhitelisted reports whether addr may deposit past the deposit cap.
func (s *Store) IsWhitelisted(ctx context.Context, addr string) (bool, error) {
	return s.Whitelist.Has(ctx, addr)
}

// GetWhitelist returns the whitelisted depositors in ascending order.
func (s *Store) GetWhitelist(ctx context.Context) ([]string, error) {
	var addrs []string
	err := s.Whitelist.Walk(ctx, nil, func(addr string) (bool, error) {
		addrs = append(addrs, addr)
		return false, nil
	})
	return addrs, err
}

// SumPositions adds up every account position. Used to check positions against TotalShares.
func (s *Store) SumPositions(ctx context.Context) (sdkmath.Int, error) {
	sum := sdkmath.ZeroInt()
	err := s.Positions.Walk(ctx, nil, func(_ string, shares sdkmath.Int) (bool, error) {
		sum = sum.Add(shares)
		return false, nil
	})
	return sum, err
}

// ResolveFeed returns the oracle feed configured for denom.
func (s *Store) ResolveFeed(ctx context.Context, denom string) (string, bool, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return "", false, err
	}
	if denom == cfg.ReferenceDenom {
		return "", true, nil
	}
	asset, ok := cfg.Asset(denom)
	if !ok || asset.FeedID == "" {
		return "", false, errorsmod.Wrapf(types.ErrMissingFeed, "no feed configured for %s", denom)
	}
	return asset.FeedID, false, nil
}
