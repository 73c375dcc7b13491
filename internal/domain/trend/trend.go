// Package trend computes price change, direction and risk from daily series.
// All functions are pure and keep full precision; rounding is left to callers.
package trend

import (
	"github.com/okian/finsight/internal/domain/model"
)

// HighRiskThreshold is the 1-month change (percent) below which an asset is high risk.
const HighRiskThreshold = -10.0

// ChangePct returns (last-first)/first*100 over the series, or nil when the
// series has fewer than two points or starts at zero.
func ChangePct(series []model.PricePoint) *float64 {
	if len(series) < 2 {
		return nil
	}
	first := series[0].Close
	last := series[len(series)-1].Close
	if first == 0 {
		return nil
	}
	v := (last - first) / first * 100
	return &v
}

// Classify maps a 7-day change to a direction. Undefined change is neutral.
func Classify(change7d *float64) model.Trend {
	switch {
	case change7d == nil:
		return model.TrendNeutral
	case *change7d > 0:
		return model.TrendUp
	case *change7d < 0:
		return model.TrendDown
	default:
		return model.TrendNeutral
	}
}

// HighRisk reports whether a 1-month change is defined and below -10%.
func HighRisk(change1m *float64) bool {
	return change1m != nil && *change1m < HighRiskThreshold
}

// LastClose returns the final close of the series.
func LastClose(series []model.PricePoint) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].Close, true
}

// AvgVolume returns the mean daily volume, or nil for an empty series.
func AvgVolume(series []model.PricePoint) *int64 {
	if len(series) == 0 {
		return nil
	}
	var sum float64
	for _, p := range series {
		sum += float64(p.Volume)
	}
	v := int64(sum/float64(len(series)) + 0.5)
	return &v
}
