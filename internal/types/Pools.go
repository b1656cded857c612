/*

Constant-product pool state held by the in-process AMM venue.

*/

package types

import (
	"fmt"
	"strconv"
	"strings"

	"cosmossdk.io/math"
)

// LPDenomPrefix prefixes the denom of every pool share token.
const LPDenomPrefix = "amm/pool/"

type PoolID uint64

type Pool struct {
	ID          PoolID   `json:"id"`
	DenomA      string   `json:"denom_a"`      // Denoms are kept in ascending order (DenomA < DenomB)
	DenomB      string   `json:"denom_b"`
	ReserveA    math.Int `json:"reserve_a"`
	ReserveB    math.Int `json:"reserve_b"`
	TotalShares math.Int `json:"total_shares"` // Outstanding LP shares
	FeeBps      uint32   `json:"fee_bps"`      // Swap fee charged on the input leg
}

// LPDenom returns the share token denom of the pool.
func (p Pool) LPDenom() string {
	return LPDenom(p.ID)
}

// Has reports whether denom is one of the two pool legs.
func (p Pool) Has(denom string) bool {
	return denom == p.DenomA || denom == p.DenomB
}

// Reserve returns the reserve held for denom.
func (p Pool) Reserve(denom string) math.Int {
	switch denom {
	case p.DenomA:
		return p.ReserveA
	case p.DenomB:
		return p.ReserveB
	default:
		return math.ZeroInt()
	}
}

// Other returns the opposite leg of denom.
func (p Pool) Other(denom string) string {
	if denom == p.DenomA {
		return p.DenomB
	}
	return p.DenomA
}

// LPDenom returns the share token denom for a pool id.
func LPDenom(id PoolID) string {
	return fmt.Sprintf("%s%d", LPDenomPrefix, id)
}

// ParseLPDenom extracts the pool id from a share token denom.
func ParseLPDenom(denom string) (PoolID, bool) {
	if !strings.HasPrefix(denom, LPDenomPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(denom, LPDenomPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return PoolID(id), true
}
