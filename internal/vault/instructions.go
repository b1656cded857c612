package vault

import (
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/accounting"
	"github.com/banana-dao/banana-vaults/internal/oracle"
	"github.com/banana-dao/banana-vaults/internal/types"
)

// Instantiate stores the vault config and opens the vault. It can run once.
func (c *Controller) Instantiate(ctx sdk.Context, caller string, cfg types.VaultConfig) (types.VaultInfo, error) {
	return branch(c, ctx, InstrInstantiate, caller, func(ctx sdk.Context) (types.VaultInfo, error) {
		if d := Authorize(AccessView{}, caller, InstrInstantiate); !d.Allowed {
			return types.VaultInfo{}, d.Reason
		}
		exists, err := c.ledger.IsInstantiated(ctx)
		if err != nil {
			return types.VaultInfo{}, err
		}
		if exists {
			return types.VaultInfo{}, types.ErrAlreadyInstantiated
		}

		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return types.VaultInfo{}, err
		}
		if validator, ok := c.engine.Prices().(oracle.FeedValidator); ok {
			for _, a := range cfg.Assets {
				if a.Denom != cfg.ReferenceDenom && !validator.ValidFeed(a.FeedID) {
					return types.VaultInfo{}, errorsmod.Wrapf(types.ErrInvalidFeed, "%s feed %q is not recognised by the price source", a.Denom, a.FeedID)
				}
			}
		}

		status := types.VaultStatus{
			Lifecycle:           types.StatusOpen,
			LastManagerActivity: ctx.BlockTime(),
		}
		if err := c.ledger.Config.Set(ctx, cfg); err != nil {
			return types.VaultInfo{}, err
		}
		if err := c.ledger.Status.Set(ctx, status); err != nil {
			return types.VaultInfo{}, err
		}
		if err := c.ledger.TotalShares.Set(ctx, sdkmath.ZeroInt()); err != nil {
			return types.VaultInfo{}, err
		}
		return types.VaultInfo{Config: cfg, Status: status, TotalShares: sdkmath.ZeroInt()}, nil
	})
}

// Deposit values coin at the current NAV and mints the corresponding shares to caller.
func (c *Controller) Deposit(ctx sdk.Context, caller string, coin sdk.Coin) (types.DepositResult, error) {
	if coin.Amount.IsNil() || !coin.Amount.IsPositive() {
		return types.DepositResult{}, c.reject(ctx, InstrDeposit, caller, errorsmod.Wrapf(types.ErrInvalidAmount, "deposit of %s", coin))
	}
	return execute(c, ctx, InstrDeposit, caller, func(ctx sdk.Context, st vaultState) (types.DepositResult, error) {
		asset, ok := st.cfg.Asset(coin.Denom)
		if !ok || !asset.Depositable {
			return types.DepositResult{}, errorsmod.Wrapf(types.ErrInvalidDenom, "%s is not accepted for deposit", coin.Denom)
		}
		if coin.Amount.LT(asset.MinDeposit) {
			return types.DepositResult{}, errorsmod.Wrapf(types.ErrBelowMinimum, "deposit %s below minimum %s", coin, asset.MinDeposit)
		}

		whitelisted, err := c.ledger.IsWhitelisted(ctx, caller)
		if err != nil {
			return types.DepositResult{}, err
		}
		if st.status.CapReached && !whitelisted {
			return types.DepositResult{}, errorsmod.Wrap(types.ErrCapReached, "deposits are limited to whitelisted accounts")
		}

		nav, err := c.engine.ComputeNAV(ctx)
		if err != nil {
			return types.DepositResult{}, err
		}
		totalShares, err := c.ledger.GetTotalShares(ctx)
		if err != nil {
			return types.DepositResult{}, err
		}
		holdings, err := c.ledger.GetHoldings(ctx)
		if err != nil {
			return types.DepositResult{}, err
		}
		if err := accounting.CheckSupplyConsistency(totalShares, holdings); err != nil {
			return types.DepositResult{}, err
		}

		value, err := c.engine.ValueOf(ctx, st.cfg, coin, ctx.BlockTime())
		if err != nil {
			return types.DepositResult{}, err
		}
		navAfter, err := nav.Total.SafeAdd(value)
		if err != nil {
			return types.DepositResult{}, errorsmod.Wrap(types.ErrOverflow, "NAV after deposit")
		}
		capped := st.cfg.DepositCap.IsPositive()
		if capped && !whitelisted && navAfter.GT(st.cfg.DepositCap) {
			return types.DepositResult{}, errorsmod.Wrapf(types.ErrCapReached, "NAV %s plus deposit %s exceeds cap %s", nav.Total, value, st.cfg.DepositCap)
		}

		shares, err := accounting.SharesForDeposit(nav.Total, totalShares, value)
		if err != nil {
			return types.DepositResult{}, err
		}
		if !shares.IsPositive() {
			return types.DepositResult{}, errorsmod.Wrapf(types.ErrBelowMinimum, "deposit worth %s mints no shares", value)
		}

		if err := c.custody.SendCoins(ctx, caller, c.account, sdk.NewCoins(coin)); err != nil {
			return types.DepositResult{}, err
		}
		if err := c.ledger.AddHolding(ctx, coin); err != nil {
			return types.DepositResult{}, err
		}
		if err := c.ledger.Mint(ctx, caller, shares); err != nil {
			return types.DepositResult{}, err
		}

		if capped && navAfter.GTE(st.cfg.DepositCap) && !st.status.CapReached {
			st.status.CapReached = true
			if err := c.ledger.Status.Set(ctx, st.status); err != nil {
				return types.DepositResult{}, err
			}
		}

		return types.DepositResult{
			SharesMinted: shares,
			DepositValue: value,
			NAVBefore:    nav.Total,
			TotalShares:  totalShares.Add(shares),
		}, nil
	})
}

// Withdraw burns shares of caller and releases the pro-rata slice of every holding.
func (c *Controller) Withdraw(ctx sdk.Context, caller string, shares sdkmath.Int) (types.WithdrawResult, error) {
	if shares.IsNil() || !shares.IsPositive() {
		return types.WithdrawResult{}, c.reject(ctx, InstrWithdraw, caller, errorsmod.Wrapf(types.ErrInvalidAmount, "withdrawal of %v shares", shares))
	}
	return execute(c, ctx, InstrWithdraw, caller, func(ctx sdk.Context, st vaultState) (types.WithdrawResult, error) {
		balance, err := c.ledger.GetShares(ctx, caller)
		if err != nil {
			return types.WithdrawResult{}, err
		}
		if err := accounting.CheckBurn(balance, shares); err != nil {
			return types.WithdrawResult{}, err
		}
		if shares.LT(st.cfg.MinRedemption) && !shares.Equal(balance) {
			return types.WithdrawResult{}, errorsmod.Wrapf(types.ErrBelowMinimum, "redemption of %s shares below minimum %s", shares, st.cfg.MinRedemption)
		}
		return c.redeem(ctx, st, caller, shares)
	})
}

// ForceExit redeems the whole position of account on its behalf. Only the owner may do so, and only once
// the vault is closed.
func (c *Controller) ForceExit(ctx sdk.Context, caller, account string) (types.WithdrawResult, error) {
	return execute(c, ctx, InstrForceExit, caller, func(ctx sdk.Context, st vaultState) (types.WithdrawResult, error) {
		balance, err := c.ledger.GetShares(ctx, account)
		if err != nil {
			return types.WithdrawResult{}, err
		}
		if !balance.IsPositive() {
			return types.WithdrawResult{}, errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds no shares", account)
		}
		return c.redeem(ctx, st, account, balance)
	})
}

func (c *Controller) redeem(ctx sdk.Context, st vaultState, account string, shares sdkmath.Int) (types.WithdrawResult, error) {
	nav, err := c.engine.ComputeNAV(ctx)
	if err != nil {
		return types.WithdrawResult{}, err
	}
	totalShares, err := c.ledger.GetTotalShares(ctx)
	if err != nil {
		return types.WithdrawResult{}, err
	}
	holdings, err := c.ledger.GetHoldings(ctx)
	if err != nil {
		return types.WithdrawResult{}, err
	}

	value, err := accounting.ValueForWithdrawal(nav.Total, totalShares, shares)
	if err != nil {
		return types.WithdrawResult{}, err
	}
	payout, err := accounting.ProRataPayout(holdings, shares, totalShares)
	if err != nil {
		return types.WithdrawResult{}, err
	}

	if err := c.ledger.Burn(ctx, account, shares); err != nil {
		return types.WithdrawResult{}, err
	}
	coins := accounting.PayoutCoins(payout)
	for _, coin := range coins {
		if err := c.ledger.SubHolding(ctx, coin); err != nil {
			return types.WithdrawResult{}, err
		}
	}
	if !coins.IsZero() {
		if err := c.custody.SendCoins(ctx, c.account, account, coins); err != nil {
			return types.WithdrawResult{}, err
		}
	}

	if st.status.CapReached && nav.Total.Sub(value).LT(st.cfg.DepositCap) {
		st.status.CapReached = false
		if err := c.ledger.Status.Set(ctx, st.status); err != nil {
			return types.WithdrawResult{}, err
		}
	}

	return types.WithdrawResult{
		SharesBurned: shares,
		Value:        value,
		Released:     payout,
		NAVBefore:    nav.Total,
		TotalShares:  totalShares.Sub(shares),
	}, nil
}

// ManagerTrade routes a trade through the venue and rejects it if NAV drops by more than the slippage
// tolerance.
func (c *Controller) ManagerTrade(ctx sdk.Context, caller string, route types.Route, amountIn, minAmountOut sdkmath.Int) (types.TradeResult, error) {
	return execute(c, ctx, InstrManagerTrade, caller, func(ctx sdk.Context, st vaultState) (types.TradeResult, error) {
		if minAmountOut.IsNil() {
			minAmountOut = sdkmath.ZeroInt()
		}
		before, err := c.engine.ComputeNAV(ctx)
		if err != nil {
			return types.TradeResult{}, err
		}

		settlement, err := c.adapter.ExecuteTrade(ctx, st.cfg, route, amountIn, minAmountOut)
		if err != nil {
			return types.TradeResult{}, err
		}

		after, err := c.engine.ComputeNAV(ctx)
		if err != nil {
			return types.TradeResult{}, err
		}
		if err := CheckSlippage(before.Total, after.Total, st.cfg.SlippageToleranceBps); err != nil {
			return types.TradeResult{}, err
		}

		st.status.LastManagerActivity = ctx.BlockTime()
		if err := c.ledger.Status.Set(ctx, st.status); err != nil {
			return types.TradeResult{}, err
		}

		return types.TradeResult{
			Route:      route,
			AmountIn:   amountIn,
			Settlement: settlement,
			NAVBefore:  before.Total,
			NAVAfter:   after.Total,
			ExecutedAt: ctx.BlockTime(),
		}, nil
	})
}

// CheckSlippage fails when after < before * (10000 - toleranceBps) / 10000.
func CheckSlippage(before, after sdkmath.Int, toleranceBps uint32) error {
	scaled, err := before.SafeMul(sdkmath.NewInt(int64(types.BasisPoints - toleranceBps)))
	if err != nil {
		return errorsmod.Wrapf(types.ErrOverflow, "slippage floor of NAV %s", before)
	}
	floor := scaled.QuoRaw(types.BasisPoints)
	if after.LT(floor) {
		return errorsmod.Wrapf(types.ErrSlippageExceeded, "NAV %s -> %s, floor %s at %d bps", before, after, floor, toleranceBps)
	}
	return nil
}

// SetStatus moves the lifecycle. Only OPEN -> CLOSED is a valid transition.
func (c *Controller) SetStatus(ctx sdk.Context, caller string, lifecycle types.Lifecycle) (types.VaultStatus, error) {
	return execute(c, ctx, InstrSetStatus, caller, func(ctx sdk.Context, st vaultState) (types.VaultStatus, error) {
		switch {
		case lifecycle != types.StatusOpen && lifecycle != types.StatusClosed:
			return types.VaultStatus{}, errorsmod.Wrapf(types.ErrInvalidTransition, "unknown status %q", lifecycle)
		case lifecycle == st.status.Lifecycle:
			return types.VaultStatus{}, errorsmod.Wrapf(types.ErrInvalidTransition, "vault is already %s", lifecycle)
		case st.status.Lifecycle == types.StatusClosed:
			return types.VaultStatus{}, errorsmod.Wrap(types.ErrInvalidTransition, "a closed vault cannot reopen")
		}
		st.status.Lifecycle = lifecycle
		return st.status, c.ledger.Status.Set(ctx, st.status)
	})
}

// Halt pauses deposits and trades. Withdrawals keep working.
func (c *Controller) Halt(ctx sdk.Context, caller string) (types.VaultStatus, error) {
	return c.setHalted(ctx, InstrHalt, caller, true)
}

// Resume lifts a halt.
func (c *Controller) Resume(ctx sdk.Context, caller string) (types.VaultStatus, error) {
	return c.setHalted(ctx, InstrResume, caller, false)
}

func (c *Controller) setHalted(ctx sdk.Context, instr Instruction, caller string, halted bool) (types.VaultStatus, error) {
	return execute(c, ctx, instr, caller, func(ctx sdk.Context, st vaultState) (types.VaultStatus, error) {
		if st.status.Halted == halted {
			return types.VaultStatus{}, errorsmod.Wrapf(types.ErrInvalidTransition, "halted is already %t", halted)
		}
		st.status.Halted = halted
		return st.status, c.ledger.Status.Set(ctx, st.status)
	})
}

// Unlock closes the vault once the manager has been inactive for MaxManagerInactivity. Anyone may call it.
func (c *Controller) Unlock(ctx sdk.Context, caller string) (types.VaultStatus, error) {
	return execute(c, ctx, InstrUnlock, caller, func(ctx sdk.Context, st vaultState) (types.VaultStatus, error) {
		st.status.Lifecycle = types.StatusClosed
		return st.status, c.ledger.Status.Set(ctx, st.status)
	})
}

// UpdateConfig applies an owner update. The asset set and reference denom cannot change.
func (c *Controller) UpdateConfig(ctx sdk.Context, caller string, update types.ConfigUpdate) (types.VaultConfig, error) {
	return execute(c, ctx, InstrUpdateConfig, caller, func(ctx sdk.Context, st vaultState) (types.VaultConfig, error) {
		next, err := update.Apply(st.cfg)
		if err != nil {
			return types.VaultConfig{}, err
		}
		if err := c.ledger.Config.Set(ctx, next); err != nil {
			return types.VaultConfig{}, err
		}
		// the next deposit re-evaluates the cap against live NAV
		if update.DepositCap != nil && st.status.CapReached {
			st.status.CapReached = false
			if err := c.ledger.Status.Set(ctx, st.status); err != nil {
				return types.VaultConfig{}, err
			}
		}
		return next, nil
	})
}

// UpdateManager hands the trading role to manager and restarts the inactivity window.
func (c *Controller) UpdateManager(ctx sdk.Context, caller, manager string) (types.VaultConfig, error) {
	return execute(c, ctx, InstrUpdateManager, caller, func(ctx sdk.Context, st vaultState) (types.VaultConfig, error) {
		if manager == "" {
			return types.VaultConfig{}, errorsmod.Wrap(types.ErrInvalidAddress, "manager is required")
		}
		st.cfg.Manager = manager
		st.status.LastManagerActivity = ctx.BlockTime()
		if err := c.ledger.Config.Set(ctx, st.cfg); err != nil {
			return types.VaultConfig{}, err
		}
		return st.cfg, c.ledger.Status.Set(ctx, st.status)
	})
}

// UpdateWhitelist adds and removes accounts exempt from the deposit cap and returns the new whitelist.
// Adding a listed account or removing an unlisted one fails the whole update.
func (c *Controller) UpdateWhitelist(ctx sdk.Context, caller string, add, remove []string) ([]string, error) {
	return execute(c, ctx, InstrUpdateWhitelist, caller, func(ctx sdk.Context, _ vaultState) ([]string, error) {
		for _, addr := range add {
			if addr == "" {
				return nil, errorsmod.Wrap(types.ErrInvalidAddress, "empty whitelist entry")
			}
			listed, err := c.ledger.IsWhitelisted(ctx, addr)
			if err != nil {
				return nil, err
			}
			if listed {
				return nil, errorsmod.Wrap(types.ErrAddressInWhitelist, addr)
			}
			if err := c.ledger.Whitelist.Set(ctx, addr); err != nil {
				return nil, err
			}
		}
		for _, addr := range remove {
			listed, err := c.ledger.IsWhitelisted(ctx, addr)
			if err != nil {
				return nil, err
			}
			if !listed {
				return nil, errorsmod.Wrap(types.ErrAddressNotInWhitelist, addr)
			}
			if err := c.ledger.Whitelist.Remove(ctx, addr); err != nil {
				return nil, err
			}
		}
		return c.ledger.GetWhitelist(ctx)
	})
}
