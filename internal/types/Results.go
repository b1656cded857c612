package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// AssetValue is one line of a NAV breakdown.
type AssetValue struct {
	Denom  string            `json:"denom"`
	Amount sdkmath.Int       `json:"amount"`
	Price  sdkmath.LegacyDec `json:"price"`
	Value  sdkmath.Int       `json:"value"`
}

// NAV is the vault valuation in reference units, components in ascending denom order.
type NAV struct {
	Total      sdkmath.Int  `json:"total"`
	Components []AssetValue `json:"components"`
	Timestamp  time.Time    `json:"timestamp"`
}

// DepositResult is returned by Deposit.
type DepositResult struct {
	SharesMinted sdkmath.Int `json:"shares_minted"`
	DepositValue sdkmath.Int `json:"deposit_value"`
	NAVBefore    sdkmath.Int `json:"nav_before"`
	TotalShares  sdkmath.Int `json:"total_shares"`
}

// WithdrawResult is returned by Withdraw and ForceExit.
type WithdrawResult struct {
	SharesBurned sdkmath.Int            `json:"shares_burned"`
	Value        sdkmath.Int            `json:"value"` // Reference value of the burned shares
	Released     map[string]sdkmath.Int `json:"released"`
	NAVBefore    sdkmath.Int            `json:"nav_before"`
	TotalShares  sdkmath.Int            `json:"total_shares"`
}

// VaultInfo is the VaultInfo query response.
type VaultInfo struct {
	Config      VaultConfig `json:"config"`
	Status      VaultStatus `json:"status"`
	TotalShares sdkmath.Int `json:"total_shares"`
}

// NAVResponse is the NAV query response.
type NAVResponse struct {
	NAV         NAV               `json:"nav"`
	TotalShares sdkmath.Int       `json:"total_shares"`
	SharePrice  sdkmath.LegacyDec `json:"share_price"`
}

// AccountShares is the AccountShares query response.
type AccountShares struct {
	Address         string            `json:"address"`
	Shares          sdkmath.Int       `json:"shares"`
	RedeemableValue sdkmath.Int       `json:"redeemable_value"`
	SharePrice      sdkmath.LegacyDec `json:"share_price"`
}
