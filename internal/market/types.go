package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Liquidity ratings, tiered by spread.
const (
	LiquidityHigh   = "high"
	LiquidityMedium = "medium"
	LiquidityLow    = "low"
)

// Trend directions and labels.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
	DirectionFlat = "flat"

	LabelBullish = "bullish"
	LabelBearish = "bearish"
	LabelNeutral = "neutral"
)

// Sample is one point of outcome price history.
type Sample struct {
	At  time.Time       `json:"t"`
	Yes decimal.Decimal `json:"yes"`
	No  decimal.Decimal `json:"no"`
}

// Snapshot is the raw book top and tick history for one market.
type Snapshot struct {
	MarketID string           `json:"marketId,omitempty"`
	BestBid  decimal.Decimal  `json:"bestBid"`
	BestAsk  decimal.Decimal  `json:"bestAsk"`
	MidPrice *decimal.Decimal `json:"midPrice,omitempty"` // nil: derived from bid/ask
	History  []Sample         `json:"history"`
	AsOf     time.Time        `json:"asOf"`
	EndsAt   *time.Time       `json:"endsAt,omitempty"`
}

type Trend struct {
	Direction     string          `json:"direction"`
	Label         string          `json:"label"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	StartPrice    decimal.Decimal `json:"startPrice"`
	EndPrice      decimal.Decimal `json:"endPrice"`
	Samples       int             `json:"samples"`
}

// Context is the derived view of a Snapshot.
type Context struct {
	MarketID        string          `json:"marketId,omitempty"`
	Spread          decimal.Decimal `json:"spread"`
	SpreadPercent   decimal.Decimal `json:"spreadPercent"`
	MidPrice        decimal.Decimal `json:"midPrice"`
	LiquidityRating string          `json:"liquidityRating"`
	Trend           Trend           `json:"trend"`
	Volatility      float64         `json:"volatility"`
	Warnings        []string        `json:"warnings"`
}

// Config holds the analyzer thresholds.
type Config struct {
	HighSpread        decimal.Decimal `json:"high_spread" yaml:"high_spread"`
	MediumSpread      decimal.Decimal `json:"medium_spread" yaml:"medium_spread"`
	TrendLookback     int             `json:"trend_lookback" yaml:"trend_lookback"`
	TrendThresholdPct decimal.Decimal `json:"trend_threshold_pct" yaml:"trend_threshold_pct"`
	MaxSamples        int             `json:"max_samples" yaml:"max_samples"`
	ResolveWarning    time.Duration   `json:"resolve_warning" yaml:"resolve_warning"`
	WideSpreadPct     decimal.Decimal `json:"wide_spread_pct" yaml:"wide_spread_pct"`
}

// DefaultConfig: 24h of 5-minute samples for the trend, one week retained.
func DefaultConfig() Config {
	return Config{
		HighSpread:        decimal.RequireFromString("0.02"),
		MediumSpread:      decimal.RequireFromString("0.05"),
		TrendLookback:     288,
		TrendThresholdPct: decimal.NewFromInt(2),
		MaxSamples:        2016,
		ResolveWarning:    2 * time.Hour,
		WideSpreadPct:     decimal.NewFromInt(10),
	}
}
