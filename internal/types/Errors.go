/*

Registered vault errors and their classification. Callers use KindOf to tell retryable conditions
(valuation) from terminal ones (validation, accounting) and from invariant breaches that need an operator.

*/

package types

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

// Codespace of every registered vault error.
const Codespace = ModuleName

var (
	ErrInvalidDenom          = errorsmod.Register(Codespace, 2, "invalid or non-whitelisted denomination")
	ErrInvalidAmount         = errorsmod.Register(Codespace, 3, "invalid amount")
	ErrInvalidRoute          = errorsmod.Register(Codespace, 4, "malformed trade route")
	ErrInvalidConfig         = errorsmod.Register(Codespace, 5, "invalid vault configuration")
	ErrInvalidFeed           = errorsmod.Register(Codespace, 6, "invalid oracle feed identifier")
	ErrInvalidAddress        = errorsmod.Register(Codespace, 7, "invalid address")
	ErrBelowMinimum          = errorsmod.Register(Codespace, 8, "amount below minimum")
	ErrAlreadyInstantiated   = errorsmod.Register(Codespace, 9, "vault already instantiated")
	ErrNotInstantiated       = errorsmod.Register(Codespace, 10, "vault not instantiated")
	ErrAddressInWhitelist    = errorsmod.Register(Codespace, 11, "address already whitelisted")
	ErrAddressNotInWhitelist = errorsmod.Register(Codespace, 12, "address not whitelisted")

	ErrVaultClosed       = errorsmod.Register(Codespace, 20, "vault is closed")
	ErrVaultHalted       = errorsmod.Register(Codespace, 21, "vault is halted")
	ErrCapReached        = errorsmod.Register(Codespace, 22, "vault deposit cap reached")
	ErrInvalidTransition = errorsmod.Register(Codespace, 23, "invalid status transition")
	ErrManagerActive     = errorsmod.Register(Codespace, 24, "manager is still active")

	ErrStalePrice    = errorsmod.Register(Codespace, 30, "stale price")
	ErrMissingFeed   = errorsmod.Register(Codespace, 31, "missing price feed")
	ErrOverflow      = errorsmod.Register(Codespace, 32, "arithmetic overflow")
	ErrLowConfidence = errorsmod.Register(Codespace, 33, "price confidence interval too wide")

	ErrInsufficientShares   = errorsmod.Register(Codespace, 40, "insufficient shares")
	ErrInsufficientHoldings = errorsmod.Register(Codespace, 41, "insufficient vault holdings")
	ErrWorthlessShares      = errorsmod.Register(Codespace, 42, "outstanding shares have zero value")

	ErrZeroShareSupplyInconsistency = errorsmod.Register(Codespace, 50, "zero share supply with nonzero holdings")
	ErrHoldingsMismatch             = errorsmod.Register(Codespace, 51, "recorded holdings exceed custody balance")
	ErrPositionsMismatch            = errorsmod.Register(Codespace, 52, "account positions do not add up to total shares")

	ErrUnauthorized       = errorsmod.Register(Codespace, 60, "unauthorized")
	ErrReentrancyRejected = errorsmod.Register(Codespace, 70, "reentrant instruction rejected")
	ErrVenueRejected      = errorsmod.Register(Codespace, 80, "venue rejected trade")
	ErrSlippageExceeded   = errorsmod.Register(Codespace, 90, "trade NAV drop exceeds slippage tolerance")
)

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindStatus        ErrorKind = "STATUS"
	KindValuation     ErrorKind = "VALUATION"
	KindAccounting    ErrorKind = "ACCOUNTING"
	KindInvariant     ErrorKind = "INVARIANT"
	KindAuthorization ErrorKind = "AUTHORIZATION"
	KindReentrancy    ErrorKind = "REENTRANCY"
	KindVenue         ErrorKind = "VENUE"
	KindSlippage      ErrorKind = "SLIPPAGE"
	KindInternal      ErrorKind = "INTERNAL"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	// invariant breaches are matched first so a wrapped breach is never reported as a plain accounting error
	{ErrZeroShareSupplyInconsistency, KindInvariant},
	{ErrHoldingsMismatch, KindInvariant},
	{ErrPositionsMismatch, KindInvariant},

	{ErrReentrancyRejected, KindReentrancy},
	{ErrUnauthorized, KindAuthorization},
	{ErrSlippageExceeded, KindSlippage},
	{ErrVenueRejected, KindVenue},

	{ErrStalePrice, KindValuation},
	{ErrMissingFeed, KindValuation},
	{ErrOverflow, KindValuation},
	{ErrLowConfidence, KindValuation},

	{ErrInsufficientShares, KindAccounting},
	{ErrInsufficientHoldings, KindAccounting},
	{ErrWorthlessShares, KindAccounting},

	{ErrVaultClosed, KindStatus},
	{ErrVaultHalted, KindStatus},
	{ErrCapReached, KindStatus},
	{ErrInvalidTransition, KindStatus},
	{ErrManagerActive, KindStatus},
	{ErrAlreadyInstantiated, KindStatus},
	{ErrNotInstantiated, KindStatus},

	{ErrInvalidDenom, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidRoute, KindValidation},
	{ErrInvalidConfig, KindValidation},
	{ErrInvalidFeed, KindValidation},
	{ErrInvalidAddress, KindValidation},
	{ErrAddressInWhitelist, KindValidation},
	{ErrAddressNotInWhitelist, KindValidation},
	{ErrBelowMinimum, KindValidation},
	{sdkerrors.ErrInsufficientFunds, KindValidation},
	{sdkerrors.ErrInvalidCoins, KindValidation},
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether the same instruction may succeed later without changes (fresh prices).
func IsRetryable(err error) bool {
	return KindOf(err) == KindValuation && !errors.Is(err, ErrOverflow)
}

// IsInvariantBreach reports whether err signals corrupted state that should halt the vault.
func IsInvariantBreach(err error) bool {
	return KindOf(err) == KindInvariant
}
