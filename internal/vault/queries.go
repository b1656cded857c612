package vault

import (
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/accounting"
	"github.com/banana-dao/banana-vaults/internal/types"
)

// Queries run on a discarded branch so they can never write.

// VaultInfo returns the config, status and total shares. It fails with an invariant breach when the
// account positions do not add up to the total.
func (c *Controller) VaultInfo(ctx sdk.Context) (types.VaultInfo, error) {
	ctx, _ = ctx.CacheContext()
	st, err := c.loadState(ctx)
	if err != nil {
		return types.VaultInfo{}, err
	}
	totalShares, err := c.ledger.GetTotalShares(ctx)
	if err != nil {
		return types.VaultInfo{}, err
	}
	positions, err := c.ledger.SumPositions(ctx)
	if err != nil {
		return types.VaultInfo{}, err
	}
	if err := accounting.CheckPositions(positions, totalShares); err != nil {
		return types.VaultInfo{}, err
	}
	return types.VaultInfo{Config: st.cfg, Status: st.status, TotalShares: totalShares}, nil
}

// NAV returns the valuation breakdown and the share price.
func (c *Controller) NAV(ctx sdk.Context) (types.NAVResponse, error) {
	ctx, _ = ctx.CacheContext()
	nav, err := c.engine.ComputeNAV(ctx)
	if err != nil {
		return types.NAVResponse{}, err
	}
	totalShares, err := c.ledger.GetTotalShares(ctx)
	if err != nil {
		return types.NAVResponse{}, err
	}
	return types.NAVResponse{
		NAV:         nav,
		TotalShares: totalShares,
		SharePrice:  accounting.SharePrice(nav.Total, totalShares),
	}, nil
}

// Whitelist returns the accounts exempt from the deposit cap.
func (c *Controller) Whitelist(ctx sdk.Context) ([]string, error) {
	ctx, _ = ctx.CacheContext()
	if _, err := c.loadState(ctx); err != nil {
		return nil, err
	}
	return c.ledger.GetWhitelist(ctx)
}

// AccountShares returns the balance of addr and what it would redeem for at the current NAV.
func (c *Controller) AccountShares(ctx sdk.Context, addr string) (types.AccountShares, error) {
	ctx, _ = ctx.CacheContext()
	shares, err := c.ledger.GetShares(ctx, addr)
	if err != nil {
		return types.AccountShares{}, err
	}
	nav, err := c.engine.ComputeNAV(ctx)
	if err != nil {
		return types.AccountShares{}, err
	}
	totalShares, err := c.ledger.GetTotalShares(ctx)
	if err != nil {
		return types.AccountShares{}, err
	}

	value := sdkmath.ZeroInt()
	if shares.IsPositive() {
		value, err = accounting.ValueForWithdrawal(nav.Total, totalShares, shares)
		if err != nil {
			return types.AccountShares{}, err
		}
	}
	return types.AccountShares{
		Address:         addr,
		Shares:          shares,
		RedeemableValue: value,
		SharePrice:      accounting.SharePrice(nav.Total, totalShares),
	}, nil
}
