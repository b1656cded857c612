package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"cosmossdk.io/collections"
	corestore "cosmossdk.io/core/store"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/ledger"
	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
)

var ammLogger = logger.GetForComponent("amm_venue")

// AMM is an in-process constant-product venue. Pools live in the same KV store as the vault ledger,
// so a rolled-back instruction also rolls back every pool it touched.
type AMM struct {
	bank Bank

	Schema  collections.Schema
	Pools   collections.Map[uint64, types.Pool]
	PoolSeq collections.Sequence
}

// NewAMM builds the pool collections on top of storeService.
func NewAMM(storeService corestore.KVStoreService, bank Bank) (*AMM, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank cannot be nil")
	}
	builder := collections.NewSchemaBuilder(storeService)
	a := &AMM{
		bank:    bank,
		Pools:   collections.NewMap(builder, types.PoolsPrefix, "pools", collections.Uint64Key, ledger.JSONValue[types.Pool]()),
		PoolSeq: collections.NewSequence(builder, types.PoolSeqKey, "pool_seq"),
	}
	schema, err := builder.Build()
	if err != nil {
		return nil, err
	}
	a.Schema = schema
	return a, nil
}

// PoolAddress is the custody account holding a pool's reserves.
func PoolAddress(id types.PoolID) string {
	return fmt.Sprintf("venue/pool/%d", id)
}

// CreatePool seeds a pool with both legs from creator, who receives sqrt(a*b) LP shares.
func (a *AMM) CreatePool(ctx context.Context, creator string, coinA, coinB sdk.Coin, feeBps uint32) (types.Pool, error) {
	if coinA.Denom == coinB.Denom {
		return types.Pool{}, fmt.Errorf("%w: legs must differ", ErrInvalidPool)
	}
	if !coinA.Amount.IsPositive() || !coinB.Amount.IsPositive() {
		return types.Pool{}, fmt.Errorf("%w: both legs must be positive", ErrInvalidPool)
	}
	if feeBps >= types.BasisPoints {
		return types.Pool{}, fmt.Errorf("%w: fee %d bps", ErrInvalidPool, feeBps)
	}
	if coinB.Denom < coinA.Denom {
		coinA, coinB = coinB, coinA
	}

	seq, err := a.PoolSeq.Next(ctx)
	if err != nil {
		return types.Pool{}, err
	}
	id := types.PoolID(seq + 1)

	product, err := coinA.Amount.SafeMul(coinB.Amount)
	if err != nil {
		return types.Pool{}, fmt.Errorf("%w: reserves too large", ErrInvalidPool)
	}
	shares := sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(product.BigInt()))
	if !shares.IsPositive() {
		return types.Pool{}, fmt.Errorf("%w: initial shares round to zero", ErrInvalidPool)
	}

	pool := types.Pool{
		ID:          id,
		DenomA:      coinA.Denom,
		DenomB:      coinB.Denom,
		ReserveA:    coinA.Amount,
		ReserveB:    coinB.Amount,
		TotalShares: shares,
		FeeBps:      feeBps,
	}
	if err := a.bank.SendCoins(ctx, creator, PoolAddress(id), sdk.NewCoins(coinA, coinB)); err != nil {
		return types.Pool{}, err
	}
	if err := a.bank.MintCoins(ctx, creator, sdk.NewCoins(sdk.NewCoin(pool.LPDenom(), shares))); err != nil {
		return types.Pool{}, err
	}
	if err := a.Pools.Set(ctx, uint64(id), pool); err != nil {
		return types.Pool{}, err
	}

	ammLogger.Info().
		Uint64("pool_id", uint64(id)).
		Str("reserve_a", coinA.String()).
		Str("reserve_b", coinB.String()).
		Uint32("fee_bps", feeBps).
		Msg("Pool created")
	return pool, nil
}

// Pool returns the pool with id.
func (a *AMM) Pool(ctx context.Context, id types.PoolID) (types.Pool, error) {
	pool, err := a.Pools.Get(ctx, uint64(id))
	if errors.Is(err, collections.ErrNotFound) {
		return types.Pool{}, fmt.Errorf("%w: %d", ErrPoolNotFound, id)
	}
	return pool, err
}

// AllPools returns every pool in id order.
func (a *AMM) AllPools(ctx context.Context) ([]types.Pool, error) {
	var pools []types.Pool
	err := a.Pools.Walk(ctx, nil, func(_ uint64, pool types.Pool) (bool, error) {
		pools = append(pools, pool)
		return false, nil
	})
	return pools, err
}

// SimulateSwap quotes a swap without touching state.
func (a *AMM) SimulateSwap(ctx context.Context, id types.PoolID, tokenIn sdk.Coin, denomOut string) (types.SwapEstimation, error) {
	pool, err := a.Pool(ctx, id)
	if err != nil {
		return types.SwapEstimation{}, err
	}
	out, inAfterFee, err := swapOut(pool, tokenIn.Denom, denomOut, tokenIn.Amount)
	if err != nil {
		return types.SwapEstimation{}, err
	}

	// impact = 1 - (out / inAfterFee) / (reserveOut / reserveIn)
	reserveIn, reserveOut := pool.Reserve(tokenIn.Denom), pool.Reserve(denomOut)
	effective, err := safeMul(out, reserveIn)
	if err != nil {
		return types.SwapEstimation{}, err
	}
	spot, err := safeMul(inAfterFee, reserveOut)
	if err != nil {
		return types.SwapEstimation{}, err
	}
	impact := sdkmath.LegacyOneDec().Sub(sdkmath.LegacyNewDecFromInt(effective).Quo(sdkmath.LegacyNewDecFromInt(spot)))

	return types.SwapEstimation{TokenOutAmount: out, PriceImpact: impact}, nil
}

// Execute implements TradeVenue.
func (a *AMM) Execute(ctx context.Context, trader string, route types.Route, amountIn, minAmountOut sdkmath.Int) (types.Settlement, error) {
	pool, err := a.Pool(ctx, route.PoolID)
	if err != nil {
		return types.Settlement{}, err
	}

	var settlement types.Settlement
	switch route.Kind {
	case types.TradeSwap:
		settlement, err = a.swap(ctx, &pool, trader, route, amountIn, minAmountOut)
	case types.TradeJoinPool:
		settlement, err = a.join(ctx, &pool, trader, route, amountIn, minAmountOut)
	case types.TradeExitPool:
		settlement, err = a.exit(ctx, &pool, trader, route, amountIn, minAmountOut)
	default:
		err = fmt.Errorf("unsupported trade kind %q", route.Kind)
	}
	if err != nil {
		return types.Settlement{}, err
	}
	if err := a.Pools.Set(ctx, uint64(pool.ID), pool); err != nil {
		return types.Settlement{}, err
	}

	ammLogger.Debug().
		Uint64("pool_id", uint64(pool.ID)).
		Str("kind", string(route.Kind)).
		Str("spent", settlement.Spent.String()).
		Str("received", settlement.Received.String()).
		Msg("Trade settled")
	return settlement, nil
}

func (a *AMM) swap(ctx context.Context, pool *types.Pool, trader string, route types.Route, amountIn, minOut sdkmath.Int) (types.Settlement, error) {
	out, _, err := swapOut(*pool, route.DenomIn, route.DenomOut, amountIn)
	if err != nil {
		return types.Settlement{}, err
	}
	if out.LT(minOut) {
		return types.Settlement{}, fmt.Errorf("%w: %s%s < %s", ErrMinOutNotMet, out, route.DenomOut, minOut)
	}

	spent := sdk.NewCoin(route.DenomIn, amountIn)
	received := sdk.NewCoin(route.DenomOut, out)
	addr := PoolAddress(pool.ID)
	if err := a.bank.SendCoins(ctx, trader, addr, sdk.NewCoins(spent)); err != nil {
		return types.Settlement{}, err
	}
	if err := a.bank.SendCoins(ctx, addr, trader, sdk.NewCoins(received)); err != nil {
		return types.Settlement{}, err
	}

	reserveIn, err := safeAdd(pool.Reserve(route.DenomIn), amountIn)
	if err != nil {
		return types.Settlement{}, err
	}
	setReserve(pool, route.DenomIn, reserveIn)
	setReserve(pool, route.DenomOut, pool.Reserve(route.DenomOut).Sub(out))
	return types.Settlement{Spent: sdk.NewCoins(spent), Received: sdk.NewCoins(received)}, nil
}

// join pays amountIn of route.DenomIn plus the ceil-proportional amount of the other leg.
func (a *AMM) join(ctx context.Context, pool *types.Pool, trader string, route types.Route, amountIn, minShares sdkmath.Int) (types.Settlement, error) {
	if !pool.Has(route.DenomIn) {
		return types.Settlement{}, fmt.Errorf("%w: %s", ErrDenomNotInPool, route.DenomIn)
	}
	other := pool.Other(route.DenomIn)
	reserveIn, reserveOther := pool.Reserve(route.DenomIn), pool.Reserve(other)
	if !reserveIn.IsPositive() || !pool.TotalShares.IsPositive() {
		return types.Settlement{}, fmt.Errorf("%w: pool %d is empty", ErrInsufficientLiquidity, pool.ID)
	}

	shares, err := mulQuo(amountIn, pool.TotalShares, reserveIn)
	if err != nil {
		return types.Settlement{}, err
	}
	if !shares.IsPositive() {
		return types.Settlement{}, fmt.Errorf("%w: join of %s%s mints no shares", ErrInsufficientLiquidity, amountIn, route.DenomIn)
	}
	if shares.LT(minShares) {
		return types.Settlement{}, fmt.Errorf("%w: %s shares < %s", ErrMinOutNotMet, shares, minShares)
	}
	otherNum, err := safeMul(amountIn, reserveOther)
	if err != nil {
		return types.Settlement{}, err
	}
	otherIn := ceilDiv(otherNum, reserveIn)
	newReserveIn, err := safeAdd(reserveIn, amountIn)
	if err != nil {
		return types.Settlement{}, err
	}
	newReserveOther, err := safeAdd(reserveOther, otherIn)
	if err != nil {
		return types.Settlement{}, err
	}
	newTotalShares, err := safeAdd(pool.TotalShares, shares)
	if err != nil {
		return types.Settlement{}, err
	}

	spent := sdk.NewCoins(sdk.NewCoin(route.DenomIn, amountIn), sdk.NewCoin(other, otherIn))
	minted := sdk.NewCoins(sdk.NewCoin(pool.LPDenom(), shares))
	if err := a.bank.SendCoins(ctx, trader, PoolAddress(pool.ID), spent); err != nil {
		return types.Settlement{}, err
	}
	if err := a.bank.MintCoins(ctx, trader, minted); err != nil {
		return types.Settlement{}, err
	}

	setReserve(pool, route.DenomIn, newReserveIn)
	setReserve(pool, other, newReserveOther)
	pool.TotalShares = newTotalShares
	return types.Settlement{Spent: spent, Received: minted}, nil
}

// exit burns amountIn LP shares for both legs pro rata. minOut bounds the route.DenomOut leg.
func (a *AMM) exit(ctx context.Context, pool *types.Pool, trader string, route types.Route, shares, minOut sdkmath.Int) (types.Settlement, error) {
	if !pool.Has(route.DenomOut) {
		return types.Settlement{}, fmt.Errorf("%w: %s", ErrDenomNotInPool, route.DenomOut)
	}
	if shares.GT(pool.TotalShares) {
		return types.Settlement{}, fmt.Errorf("%w: %s shares exceed pool supply %s", ErrInsufficientLiquidity, shares, pool.TotalShares)
	}

	outA, err := mulQuo(pool.ReserveA, shares, pool.TotalShares)
	if err != nil {
		return types.Settlement{}, err
	}
	outB, err := mulQuo(pool.ReserveB, shares, pool.TotalShares)
	if err != nil {
		return types.Settlement{}, err
	}
	received := sdk.NewCoins(sdk.NewCoin(pool.DenomA, outA), sdk.NewCoin(pool.DenomB, outB))
	if received.AmountOf(route.DenomOut).LT(minOut) {
		return types.Settlement{}, fmt.Errorf("%w: %s%s < %s", ErrMinOutNotMet, received.AmountOf(route.DenomOut), route.DenomOut, minOut)
	}

	burned := sdk.NewCoins(sdk.NewCoin(pool.LPDenom(), shares))
	if err := a.bank.BurnCoins(ctx, trader, burned); err != nil {
		return types.Settlement{}, err
	}
	if !received.IsZero() {
		if err := a.bank.SendCoins(ctx, PoolAddress(pool.ID), trader, received); err != nil {
			return types.Settlement{}, err
		}
	}

	pool.ReserveA = pool.ReserveA.Sub(outA)
	pool.ReserveB = pool.ReserveB.Sub(outB)
	pool.TotalShares = pool.TotalShares.Sub(shares)
	return types.Settlement{Spent: burned, Received: received}, nil
}

// swapOut returns the constant-product output for amountIn and the input left after the fee.
func swapOut(pool types.Pool, denomIn, denomOut string, amountIn sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if !pool.Has(denomIn) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s", ErrDenomNotInPool, denomIn)
	}
	if !pool.Has(denomOut) || denomIn == denomOut {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s", ErrDenomNotInPool, denomOut)
	}
	if !amountIn.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: amount in must be positive", ErrInsufficientLiquidity)
	}
	reserveIn, reserveOut := pool.Reserve(denomIn), pool.Reserve(denomOut)

	inAfterFee, err := mulQuo(amountIn, sdkmath.NewInt(int64(types.BasisPoints-pool.FeeBps)), sdkmath.NewInt(types.BasisPoints))
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if !inAfterFee.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: input consumed by fee", ErrInsufficientLiquidity)
	}
	reserveAfter, err := safeAdd(reserveIn, inAfterFee)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	out, err := mulQuo(reserveOut, inAfterFee, reserveAfter)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if !out.IsPositive() || out.GTE(reserveOut) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: pool %d cannot fill %s%s", ErrInsufficientLiquidity, pool.ID, amountIn, denomIn)
	}
	return out, inAfterFee, nil
}

func setReserve(pool *types.Pool, denom string, amount sdkmath.Int) {
	if denom == pool.DenomA {
		pool.ReserveA = amount
	} else {
		pool.ReserveB = amount
	}
}

// safeMul, safeAdd and mulQuo report 256-bit overflow as ErrInsufficientLiquidity instead of panicking.
func safeMul(x, y sdkmath.Int) (sdkmath.Int, error) {
	product, err := x.SafeMul(y)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s * %s overflows", ErrInsufficientLiquidity, x, y)
	}
	return product, nil
}

func safeAdd(x, y sdkmath.Int) (sdkmath.Int, error) {
	sum, err := x.SafeAdd(y)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s + %s overflows", ErrInsufficientLiquidity, x, y)
	}
	return sum, nil
}

// mulQuo returns floor(x * y / z).
func mulQuo(x, y, z sdkmath.Int) (sdkmath.Int, error) {
	product, err := safeMul(x, y)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return product.Quo(z), nil
}

func ceilDiv(num, den sdkmath.Int) sdkmath.Int {
	q := num.Quo(den)
	if !num.Mod(den).IsZero() {
		q = q.AddRaw(1)
	}
	return q
}
