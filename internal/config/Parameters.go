/*

This file contains the default risk parameters for a vault.

They apply to any field left unset in the instantiate file. Each value has been chosen for a vault that
takes deposits from many accounts and prices non-reference assets from a remote oracle.

*/

package config

import (
	"time"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// VaultParameters are the tunable risk bounds of a vault.
type VaultParameters struct {
	MaxPriceAge          time.Duration
	MaxPriceSkew         time.Duration
	MaxConfidenceBps     uint32
	SlippageToleranceBps uint32
	MaxManagerInactivity time.Duration
}

// DefaultVaultParameters provides the baseline used when the instantiate file leaves a field unset.
var DefaultVaultParameters = VaultParameters{
	MaxPriceAge: 60 * time.Second, // Reject quotes older than one minute.
	// Rationale: Every share mint and burn is priced from these quotes. A minute is long enough for
	// feeds that publish every few seconds to miss a beat, and short enough that a stale price
	// cannot be arbitraged against depositors.

	MaxPriceSkew: 10 * time.Second, // Tolerate quotes up to 10s ahead of block time.
	// Rationale: Publisher clocks drift. Anything further ahead is treated as a broken feed.

	MaxConfidenceBps: 200, // Reject quotes whose confidence interval exceeds 2% of the price.
	// Rationale: A wide interval means the feed itself is unsure; minting against it moves value
	// between depositors.

	SlippageToleranceBps: 100, // A single manager trade may lower NAV by at most 1%.
	// Rationale: Covers venue fees and price impact on normal sizes while stopping a manager from
	// dumping holdings into a thin pool.

	MaxManagerInactivity: 14 * 24 * time.Hour, // Anyone may close the vault after two weeks of manager silence.
	// Rationale: Depositors must never be locked into a vault whose manager has disappeared.
	// Closing only stops new deposits and trades; withdrawals keep working.
}

// ApplyTo fills every unset risk field of cfg from p.
func (p VaultParameters) ApplyTo(cfg *types.VaultConfig) {
	if cfg.MaxPriceAge == 0 {
		cfg.MaxPriceAge = p.MaxPriceAge
	}
	if cfg.MaxPriceSkew == 0 {
		cfg.MaxPriceSkew = p.MaxPriceSkew
	}
	if cfg.MaxConfidenceBps == 0 {
		cfg.MaxConfidenceBps = p.MaxConfidenceBps
	}
	if cfg.SlippageToleranceBps == 0 {
		cfg.SlippageToleranceBps = p.SlippageToleranceBps
	}
	if cfg.MaxManagerInactivity == 0 {
		cfg.MaxManagerInactivity = p.MaxManagerInactivity
	}
}
