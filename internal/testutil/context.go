// Package testutil provides in-memory stores and vault fixtures for package tests.
package testutil

import (
	"testing"
	"time"

	corestore "cosmossdk.io/core/store"
	sdkmath "cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/runtime"
	sdktestutil "github.com/cosmos/cosmos-sdk/testutil"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// GenesisTime is the block time of every fresh test context.
var GenesisTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Accounts used across package tests.
const (
	Owner    = "owner"
	Manager  = "manager"
	Alice    = "alice"
	Bob      = "bob"
	VaultAcc = "vault"
)

// Denoms used across package tests.
const (
	RefDenom   = "uusdc"
	AtomDenom  = "uatom"
	OsmoDenom  = "uosmo"
	AtomFeed   = "ATOMUSDC"
	OsmoFeed   = "OSMOUSDC"
	ShareDenom = "bvault/shares"
)

// NewContext returns an sdk.Context over a fresh memdb-backed KV store and the store service for it.
func NewContext(t testing.TB) (sdk.Context, corestore.KVStoreService) {
	t.Helper()
	key := storetypes.NewKVStoreKey(types.StoreKey)
	tkey := storetypes.NewTransientStoreKey("transient_test")
	tc := sdktestutil.DefaultContextWithDB(t, key, tkey)
	ctx := tc.Ctx.WithBlockTime(GenesisTime).WithBlockHeight(1)
	return ctx, runtime.NewKVStoreService(key)
}

// DefaultConfig returns a vault over RefDenom, AtomDenom and OsmoDenom with generous risk bounds.
func DefaultConfig() types.VaultConfig {
	return types.VaultConfig{
		ReferenceDenom: RefDenom,
		ShareDenom:     ShareDenom,
		Assets: []types.Asset{
			{Denom: RefDenom, Decimals: 6, MinDeposit: sdkmath.ZeroInt(), Depositable: true},
			{Denom: AtomDenom, FeedID: AtomFeed, Decimals: 6, MinDeposit: sdkmath.ZeroInt(), Depositable: true},
			{Denom: OsmoDenom, FeedID: OsmoFeed, Decimals: 6, MinDeposit: sdkmath.ZeroInt(), Depositable: true},
		},
		Owner:                Owner,
		Manager:              Manager,
		MaxPriceAge:          time.Minute,
		MaxPriceSkew:         10 * time.Second,
		SlippageToleranceBps: 5_000,
		DepositCap:           sdkmath.ZeroInt(),
		MinRedemption:        sdkmath.ZeroInt(),
		MaxManagerInactivity: 14 * 24 * time.Hour,
	}
}

// Coin is shorthand for sdk.NewInt64Coin.
func Coin(denom string, amount int64) sdk.Coin {
	return sdk.NewInt64Coin(denom, amount)
}

// Int is shorthand for sdkmath.NewInt.
func Int(amount int64) sdkmath.Int {
	return sdkmath.NewInt(amount)
}
