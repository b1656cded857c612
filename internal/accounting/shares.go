/*
Share accounting converts between reference value and vault shares. All divisions floor, which always
rounds in favour of the shares that remain in the pool: a depositor can be minted at most the exact
amount and a redeemer can receive at most the exact value.
*/

package accounting

import (
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// SharesForDeposit returns the shares to mint for a deposit worth depositValue.
//
// The first deposit into an empty vault mints 1:1. Afterwards shares = floor(value * totalShares / nav).
func SharesForDeposit(navBefore, totalSharesBefore, depositValue sdkmath.Int) (sdkmath.Int, error) {
	if err := checkNonNegative(navBefore, totalSharesBefore, depositValue); err != nil {
		return sdkmath.Int{}, err
	}

	if totalSharesBefore.IsZero() {
		if navBefore.IsPositive() {
			return sdkmath.Int{}, errorsmod.Wrapf(types.ErrZeroShareSupplyInconsistency, "no shares issued against NAV %s", navBefore)
		}
		return depositValue, nil
	}
	if navBefore.IsZero() {
		return sdkmath.Int{}, errorsmod.Wrapf(types.ErrWorthlessShares, "%s shares outstanding", totalSharesBefore)
	}

	num, err := depositValue.SafeMul(totalSharesBefore)
	if err != nil {
		return sdkmath.Int{}, errorsmod.Wrap(types.ErrOverflow, "deposit value times total shares")
	}
	return num.Quo(navBefore), nil
}

// ValueForWithdrawal returns the reference value of sharesToBurn: floor(shares * nav / totalShares).
func ValueForWithdrawal(navBefore, totalSharesBefore, sharesToBurn sdkmath.Int) (sdkmath.Int, error) {
	if err := checkNonNegative(navBefore, totalSharesBefore, sharesToBurn); err != nil {
		return sdkmath.Int{}, err
	}
	if sharesToBurn.GT(totalSharesBefore) {
		return sdkmath.Int{}, errorsmod.Wrapf(types.ErrInsufficientShares, "%s shares requested, %s issued", sharesToBurn, totalSharesBefore)
	}
	if sharesToBurn.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	num, err := sharesToBurn.SafeMul(navBefore)
	if err != nil {
		return sdkmath.Int{}, errorsmod.Wrap(types.ErrOverflow, "shares times NAV")
	}
	return num.Quo(totalSharesBefore), nil
}

// CheckBurn fails with ErrInsufficientShares when balance cannot cover sharesToBurn.
func CheckBurn(balance, sharesToBurn sdkmath.Int) error {
	if sharesToBurn.GT(balance) {
		return errorsmod.Wrapf(types.ErrInsufficientShares, "balance %s, requested %s", balance, sharesToBurn)
	}
	return nil
}

// CheckSupplyConsistency fails when no shares are issued but the vault still holds assets.
func CheckSupplyConsistency(totalShares sdkmath.Int, holdings sdk.Coins) error {
	if totalShares.IsZero() && !holdings.IsZero() {
		return errorsmod.Wrapf(types.ErrZeroShareSupplyInconsistency, "holdings %s with zero shares", holdings)
	}
	return nil
}

// CheckPositions fails when the account positions do not add up to the recorded share supply.
func CheckPositions(positions, totalShares sdkmath.Int) error {
	if !positions.Equal(totalShares) {
		return errorsmod.Wrapf(types.ErrPositionsMismatch, "positions sum to %s, total shares %s", positions, totalShares)
	}
	return nil
}

// ProRataPayout returns floor(holding * shares / totalShares) for every holding, dropping zero legs.
func ProRataPayout(holdings sdk.Coins, sharesToBurn, totalShares sdkmath.Int) (map[string]sdkmath.Int, error) {
	if !totalShares.IsPositive() || sharesToBurn.GT(totalShares) {
		return nil, errorsmod.Wrapf(types.ErrInsufficientShares, "%s shares requested, %s issued", sharesToBurn, totalShares)
	}

	payout := make(map[string]sdkmath.Int, len(holdings))
	for _, coin := range holdings {
		num, err := coin.Amount.SafeMul(sharesToBurn)
		if err != nil {
			return nil, errorsmod.Wrapf(types.ErrOverflow, "payout of %s", coin.Denom)
		}
		amount := num.Quo(totalShares)
		if amount.IsPositive() {
			payout[coin.Denom] = amount
		}
	}
	return payout, nil
}

// PayoutCoins converts a payout map into sorted coins.
func PayoutCoins(payout map[string]sdkmath.Int) sdk.Coins {
	coins := sdk.NewCoins()
	for denom, amount := range payout {
		coins = coins.Add(sdk.NewCoin(denom, amount))
	}
	return coins
}

// SharePrice returns nav / totalShares, or 1 for an empty vault.
func SharePrice(nav, totalShares sdkmath.Int) sdkmath.LegacyDec {
	if !totalShares.IsPositive() {
		return sdkmath.LegacyOneDec()
	}
	return sdkmath.LegacyNewDecFromInt(nav).QuoInt(totalShares)
}

func checkNonNegative(values ...sdkmath.Int) error {
	for _, v := range values {
		if v.IsNil() || v.IsNegative() {
			return errorsmod.Wrapf(types.ErrInvalidAmount, "amount %v must be non-negative", v)
		}
	}
	return nil
}
