/*

Asset and price types. An Asset is a denomination the vault is allowed to hold; a PriceQuote is the
ephemeral oracle answer used for a single valuation and never persisted.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
)

type Asset struct {
	Denom       string   `json:"denom"`       // e.g., "uatom" or "amm/pool/1"
	FeedID      string   `json:"feed_id"`     // Oracle feed identifier, empty for the reference denom
	Decimals    uint32   `json:"decimals"`    // e.g., 6 means 1 token = 1000000 base units
	MinDeposit  math.Int `json:"min_deposit"` // Smallest accepted deposit, in base units
	Depositable bool     `json:"depositable"` // False for assets the vault may only hold (LP shares)
}

// PriceQuote prices one base unit of Denom in base units of the reference denomination.
type PriceQuote struct {
	Denom       string         `json:"denom"`
	FeedID      string         `json:"feed_id"`
	Price       math.LegacyDec `json:"price"`
	Confidence  math.LegacyDec `json:"confidence"` // Absolute width of the confidence interval, same units as Price
	PublishTime time.Time      `json:"publish_time"`
}

// Age returns how old the quote is at now. Negative ages are quotes from the future.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.PublishTime)
}
