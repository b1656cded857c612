/*

Vault configuration and status records. The configuration is fixed at instantiation except for the
fields an owner may change through UpdateConfig; the asset set and reference denomination never change.

*/

package types

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// BasisPoints is the denominator for every *Bps field.
const BasisPoints = 10_000

type VaultConfig struct {
	ReferenceDenom string  `json:"reference_denom"` // NAV is expressed in this denom
	ShareDenom     string  `json:"share_denom"`     // Label of the vault share token
	Assets         []Asset `json:"assets"`          // Whitelisted deposit/holding denominations

	Owner   string `json:"owner"`   // Admin role
	Manager string `json:"manager"` // Trading role

	MaxPriceAge      time.Duration `json:"max_price_age"`      // Quotes older than this are stale
	MaxPriceSkew     time.Duration `json:"max_price_skew"`     // Quotes published further ahead of block time are stale
	MaxConfidenceBps uint32        `json:"max_confidence_bps"` // 0 disables the confidence check

	SlippageToleranceBps uint32 `json:"slippage_tolerance_bps"` // Max NAV drop per manager trade

	DepositCap           math.Int      `json:"deposit_cap"`            // Reference units, zero means uncapped
	MinRedemption        math.Int      `json:"min_redemption"`         // Shares, waived when redeeming a full balance
	MaxManagerInactivity time.Duration `json:"max_manager_inactivity"` // After this anyone may close the vault
}

// Asset looks up a whitelisted asset.
func (c VaultConfig) Asset(denom string) (Asset, bool) {
	for _, a := range c.Assets {
		if a.Denom == denom {
			return a, true
		}
	}
	return Asset{}, false
}

// Normalize replaces nil integers with zero so the config round-trips through JSON.
func (c *VaultConfig) Normalize() {
	if c.DepositCap.IsNil() {
		c.DepositCap = math.ZeroInt()
	}
	if c.MinRedemption.IsNil() {
		c.MinRedemption = math.ZeroInt()
	}
	for i := range c.Assets {
		if c.Assets[i].MinDeposit.IsNil() {
			c.Assets[i].MinDeposit = math.ZeroInt()
		}
	}
}

// Validate checks the config is self-consistent. Feed ids are checked against the price source by the caller.
func (c VaultConfig) Validate() error {
	if err := sdk.ValidateDenom(c.ReferenceDenom); err != nil {
		return errorsmod.Wrapf(ErrInvalidConfig, "reference denom: %s", err)
	}
	if c.ShareDenom == "" {
		return errorsmod.Wrap(ErrInvalidConfig, "share denom is required")
	}
	if len(c.Assets) == 0 {
		return errorsmod.Wrap(ErrInvalidConfig, "at least one asset is required")
	}

	seen := make(map[string]struct{}, len(c.Assets))
	for _, a := range c.Assets {
		if err := sdk.ValidateDenom(a.Denom); err != nil {
			return errorsmod.Wrapf(ErrInvalidDenom, "asset %q: %s", a.Denom, err)
		}
		if _, dup := seen[a.Denom]; dup {
			return errorsmod.Wrapf(ErrInvalidConfig, "duplicate asset %s", a.Denom)
		}
		seen[a.Denom] = struct{}{}
		if a.Denom != c.ReferenceDenom && a.FeedID == "" {
			return errorsmod.Wrapf(ErrInvalidFeed, "asset %s has no oracle feed", a.Denom)
		}
		if a.Decimals > 18 {
			return errorsmod.Wrapf(ErrInvalidConfig, "asset %s decimals %d exceed 18", a.Denom, a.Decimals)
		}
		if a.MinDeposit.IsNil() || a.MinDeposit.IsNegative() {
			return errorsmod.Wrapf(ErrInvalidConfig, "asset %s min deposit must be non-negative", a.Denom)
		}
	}
	if _, ok := seen[c.ReferenceDenom]; !ok {
		return errorsmod.Wrapf(ErrInvalidConfig, "reference denom %s is not a whitelisted asset", c.ReferenceDenom)
	}

	if c.Owner == "" || c.Manager == "" {
		return errorsmod.Wrap(ErrInvalidAddress, "owner and manager are required")
	}
	if c.MaxPriceAge <= 0 {
		return errorsmod.Wrap(ErrInvalidConfig, "max price age must be positive")
	}
	if c.MaxPriceSkew < 0 {
		return errorsmod.Wrap(ErrInvalidConfig, "max price skew must be non-negative")
	}
	if c.MaxConfidenceBps > BasisPoints || c.SlippageToleranceBps > BasisPoints {
		return errorsmod.Wrapf(ErrInvalidConfig, "basis point values must not exceed %d", BasisPoints)
	}
	if c.DepositCap.IsNil() || c.DepositCap.IsNegative() {
		return errorsmod.Wrap(ErrInvalidConfig, "deposit cap must be non-negative")
	}
	if c.MinRedemption.IsNil() || c.MinRedemption.IsNegative() {
		return errorsmod.Wrap(ErrInvalidConfig, "min redemption must be non-negative")
	}
	if c.MaxManagerInactivity <= 0 {
		return errorsmod.Wrap(ErrInvalidConfig, "max manager inactivity must be positive")
	}
	return nil
}

// ConfigUpdate carries the owner-adjustable fields. Nil fields are left unchanged.
type ConfigUpdate struct {
	MaxPriceAge          *time.Duration      `json:"max_price_age,omitempty"`
	MaxPriceSkew         *time.Duration      `json:"max_price_skew,omitempty"`
	MaxConfidenceBps     *uint32             `json:"max_confidence_bps,omitempty"`
	SlippageToleranceBps *uint32             `json:"slippage_tolerance_bps,omitempty"`
	DepositCap           *math.Int           `json:"deposit_cap,omitempty"`
	MinRedemption        *math.Int           `json:"min_redemption,omitempty"`
	MaxManagerInactivity *time.Duration      `json:"max_manager_inactivity,omitempty"`
	MinDeposits          map[string]math.Int `json:"min_deposits,omitempty"`
}

// Apply returns a copy of c with the update applied.
func (u ConfigUpdate) Apply(c VaultConfig) (VaultConfig, error) {
	next := c
	next.Assets = append([]Asset(nil), c.Assets...)

	if u.MaxPriceAge != nil {
		next.MaxPriceAge = *u.MaxPriceAge
	}
	if u.MaxPriceSkew != nil {
		next.MaxPriceSkew = *u.MaxPriceSkew
	}
	if u.MaxConfidenceBps != nil {
		next.MaxConfidenceBps = *u.MaxConfidenceBps
	}
	if u.SlippageToleranceBps != nil {
		next.SlippageToleranceBps = *u.SlippageToleranceBps
	}
	if u.DepositCap != nil {
		next.DepositCap = *u.DepositCap
	}
	if u.MinRedemption != nil {
		next.MinRedemption = *u.MinRedemption
	}
	if u.MaxManagerInactivity != nil {
		next.MaxManagerInactivity = *u.MaxManagerInactivity
	}
	for denom, minDeposit := range u.MinDeposits {
		found := false
		for i := range next.Assets {
			if next.Assets[i].Denom == denom {
				next.Assets[i].MinDeposit = minDeposit
				found = true
			}
		}
		if !found {
			return VaultConfig{}, errorsmod.Wrapf(ErrInvalidDenom, "%s is not a vault asset", denom)
		}
	}
	return next, next.Validate()
}

// Lifecycle is the one-way open/closed state of the vault.
type Lifecycle string

const (
	StatusOpen   Lifecycle = "OPEN"
	StatusClosed Lifecycle = "CLOSED"
)

// VaultStatus is the mutable status record.
type VaultStatus struct {
	Lifecycle           Lifecycle `json:"lifecycle"`
	Halted              bool      `json:"halted"`      // Owner pause; withdrawals still allowed
	CapReached          bool      `json:"cap_reached"` // Set once NAV reaches DepositCap
	LastManagerActivity time.Time `json:"last_manager_activity"`
}
