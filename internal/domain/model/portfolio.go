package model

import (
	"fmt"
	"time"
)

// Asset is a tradable instrument.
type Asset struct {
	Ticker string
	Label  string
}

// Allocation is the portfolio weight of an asset. The sum across assets is not enforced.
type Allocation struct {
	AssetTicker       string
	AllocationPercent float64
}

// Holding is an asset joined with its allocation (zero when unallocated).
type Holding struct {
	Ticker            string
	Label             string
	AllocationPercent float64
}

// Window is a historical lookback period.
type Window string

const (
	Window7D Window = "7d"
	Window1M Window = "1m"
	Window3M Window = "3m"
)

// Span returns the calendar duration covered by the window.
func (w Window) Span() time.Duration {
	switch w {
	case Window1M:
		return 30 * 24 * time.Hour
	case Window3M:
		return 90 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Mode selects which assets and windows a portfolio run covers.
type Mode string

const (
	ModeCurrent  Mode = "current"
	ModeStatus   Mode = "status"
	ModeUniverse Mode = "universe"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCurrent, ModeStatus, ModeUniverse:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown portfolio mode %q", ErrValidation, s)
}

// PricePoint is one daily observation.
type PricePoint struct {
	At     time.Time
	Close  float64
	Volume int64
}

// Fundamentals holds optional per-asset figures; nil means the provider had no value.
type Fundamentals struct {
	MarketCap     *float64
	PERatio       *float64
	DividendYield *float64
	AvgVolume     *int64
}

// Trend is the direction of the short-window price change.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// AssetAnalytics is the per-asset result of a portfolio run.
// Either the metric fields or Error are set, never both.
type AssetAnalytics struct {
	Ticker            string   `json:"ticker"`
	Label             string   `json:"label"`
	AllocationPercent float64  `json:"allocation_percent"`
	LastPrice         *float64 `json:"last_price,omitempty"`
	Change7DPct       *float64 `json:"change_7d_pct,omitempty"`
	Change1MPct       *float64 `json:"change_1m_pct,omitempty"`
	Change3MPct       *float64 `json:"change_3m_pct,omitempty"`
	Trend             Trend    `json:"trend,omitempty"`
	MarketCap         *float64 `json:"market_cap,omitempty"`
	PERatio           *float64 `json:"pe_ratio,omitempty"`
	DividendYield     *float64 `json:"dividend_yield,omitempty"`
	AvgVolume         *int64   `json:"avg_volume,omitempty"`
	HighRisk          *bool    `json:"high_risk,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Failed reports whether the asset carries an error instead of metrics.
func (a AssetAnalytics) Failed() bool { return a.Error != "" }
