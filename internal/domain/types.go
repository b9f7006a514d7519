// Package domain defines the core types shared across the marketdesk
// platform: watchlists, price alerts, quotes, and portfolio holdings.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reserved watchlist names.
const (
	// DefaultList always exists and can never be deleted or renamed.
	DefaultList = "default"

	// PortfolioList is a virtual list. Its members come from the holdings
	// source, never from local persistence, and it cannot be edited.
	PortfolioList = "portfolio"
)

// AlertKind selects the direction of a price threshold.
type AlertKind string

const (
	AlertAbove AlertKind = "above"
	AlertBelow AlertKind = "below"
)

// Valid reports whether k is a known alert kind.
func (k AlertKind) Valid() bool {
	return k == AlertAbove || k == AlertBelow
}

// Alert is a standing rule that a symbol's price has crossed a threshold.
// It fires at most once; Fired is monotonic and only ClearFired removes
// fired alerts.
type Alert struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Kind        AlertKind        `json:"kind"`
	TargetPrice decimal.Decimal  `json:"target_price"`
	Note        string           `json:"note,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Fired       bool             `json:"fired"`
	FiredAt     *time.Time       `json:"fired_at,omitempty"`
	FiredPrice  *decimal.Decimal `json:"fired_price,omitempty"`
}

// Satisfied reports whether the current price meets the alert threshold.
// Both directions are boundary-inclusive: "above" fires at current >= target
// and "below" fires at current <= target.
func (a *Alert) Satisfied(current decimal.Decimal) bool {
	switch a.Kind {
	case AlertAbove:
		return current.GreaterThanOrEqual(a.TargetPrice)
	case AlertBelow:
		return current.LessThanOrEqual(a.TargetPrice)
	}
	return false
}

// Quote is the per-symbol result of a batched price comparison over a
// lookback period.
type Quote struct {
	Symbol       string  `json:"symbol"`
	CurrentPrice float64 `json:"current_price"`
	ReturnPct    float64 `json:"return_pct"`
	Volatility   float64 `json:"volatility"`
	Volume       int64   `json:"volume"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
}

// Holding is a single position reported by the holdings source.
type Holding struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"`
	MarketValue float64 `json:"market_value"`
}

// NormalizeSymbol trims whitespace and uppercases a ticker symbol. All
// stores normalize through this before lookup or insertion.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
