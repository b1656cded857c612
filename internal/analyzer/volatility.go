/*
Package analyzer derives risk figures from the NAV snapshot history.
*/
package analyzer

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// ErrInsufficientData indicates that not enough snapshots were provided to calculate volatility
// (need at least 2 points for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to calculate volatility")

const year = 365 * 24 * time.Hour

// SharePriceVolatility calculates the annualized volatility of the share price from snapshots, in any
// order. It uses logarithmic returns and the population standard deviation. The annualization factor
// is derived from the mean spacing of the snapshots, so gaps from missed cycles widen the period
// rather than being treated as one step.
func SharePriceVolatility(snapshots []types.NAVSnapshot) (float64, error) {
	if len(snapshots) < 2 {
		return 0, ErrInsufficientData
	}
	sorted := make([]types.NAVSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	logReturns := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1].SharePrice, sorted[i].SharePrice
		// Empty vault snapshots carry no price
		if prev <= 0 || cur <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(cur/prev))
	}
	if len(logReturns) == 0 {
		return 0, ErrInsufficientData
	}

	span := sorted[len(sorted)-1].Timestamp.Sub(sorted[0].Timestamp)
	if span <= 0 {
		return 0, ErrInsufficientData
	}
	periodsPerYear := float64(year) / (float64(span) / float64(len(sorted)-1))

	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(len(logReturns))

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(logReturns)))

	return stdDev * math.Sqrt(periodsPerYear), nil
}

// MaxDrawdown returns the largest peak-to-trough fall of the share price as a fraction of the peak.
func MaxDrawdown(snapshots []types.NAVSnapshot) float64 {
	sorted := make([]types.NAVSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var peak, worst float64
	for _, s := range sorted {
		if s.SharePrice <= 0 {
			continue
		}
		if s.SharePrice > peak {
			peak = s.SharePrice
			continue
		}
		if dd := (peak - s.SharePrice) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
