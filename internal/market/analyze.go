package market

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/polyguard/internal/util"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// percentPlaces is the rounding applied to derived percentages (half away from zero).
const percentPlaces = 4

func (c Config) Validate() error {
	switch {
	case !c.HighSpread.IsPositive():
		return util.Invalid("liquidity_high_spread", "must be positive")
	case c.MediumSpread.LessThanOrEqual(c.HighSpread):
		return util.Invalid("liquidity_medium_spread", "must be greater than the high-liquidity spread")
	case c.TrendLookback < 1:
		return util.Invalid("trend_lookback", "must be at least 1")
	case c.TrendThresholdPct.IsNegative():
		return util.Invalid("trend_threshold_pct", "must not be negative")
	case c.MaxSamples < 0:
		return util.Invalid("max_samples", "must not be negative")
	}
	return nil
}

func inUnit(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(one)
}

// Validate rejects prices outside [0,1], a crossed book and history that is
// not in time order.
func (s Snapshot) Validate() error {
	if !inUnit(s.BestBid) {
		return util.Invalid("bestBid", "must be within [0,1], got %s", s.BestBid)
	}
	if !inUnit(s.BestAsk) {
		return util.Invalid("bestAsk", "must be within [0,1], got %s", s.BestAsk)
	}
	if s.BestBid.GreaterThan(s.BestAsk) {
		return util.Invalid("bestBid", "crossed book: bid %s above ask %s", s.BestBid, s.BestAsk)
	}
	if s.MidPrice != nil && !inUnit(*s.MidPrice) {
		return util.Invalid("midPrice", "must be within [0,1], got %s", *s.MidPrice)
	}
	for i, p := range s.History {
		if !inUnit(p.Yes) {
			return util.Invalid("history", "sample %d yes price %s outside [0,1]", i, p.Yes)
		}
		if i > 0 && p.At.Before(s.History[i-1].At) {
			return util.Invalid("history", "sample %d is older than sample %d", i, i-1)
		}
	}
	return nil
}

// Analyze derives spread, liquidity, trend and volatility from s. It is a pure
// function of its inputs.
func Analyze(s Snapshot, cfg Config) (Context, error) {
	if err := cfg.Validate(); err != nil {
		return Context{}, err
	}
	if err := s.Validate(); err != nil {
		return Context{}, err
	}

	ctx := Context{MarketID: s.MarketID, Warnings: []string{}}
	ctx.Spread = s.BestAsk.Sub(s.BestBid)
	if s.MidPrice != nil {
		ctx.MidPrice = *s.MidPrice
	} else {
		ctx.MidPrice = s.BestBid.Add(s.BestAsk).Div(two)
	}
	if ctx.MidPrice.IsPositive() {
		ctx.SpreadPercent = ctx.Spread.Div(ctx.MidPrice).Mul(hundred).Round(percentPlaces)
	}
	ctx.LiquidityRating = Liquidity(ctx.Spread, cfg)

	hist := s.History
	if cfg.MaxSamples > 0 && len(hist) > cfg.MaxSamples {
		hist = hist[len(hist)-cfg.MaxSamples:]
	}
	prices := yesPrices(hist)
	if len(prices) > cfg.TrendLookback+1 {
		prices = prices[len(prices)-cfg.TrendLookback-1:]
	}
	ctx.Trend = TrendOf(prices, cfg.TrendThresholdPct)
	ctx.Volatility = Volatility(prices)

	ctx.Warnings = warnings(s, hist, ctx, cfg)
	return ctx, nil
}

// Liquidity rates a spread against the configured tiers.
func Liquidity(spread decimal.Decimal, cfg Config) string {
	switch {
	case spread.LessThan(cfg.HighSpread):
		return LiquidityHigh
	case spread.LessThan(cfg.MediumSpread):
		return LiquidityMedium
	default:
		return LiquidityLow
	}
}

func yesPrices(hist []Sample) []decimal.Decimal {
	out := make([]decimal.Decimal, len(hist))
	for i, p := range hist {
		out[i] = p.Yes
	}
	return out
}

// TrendOf compares the last price with the first. Fewer than two prices is flat.
func TrendOf(prices []decimal.Decimal, thresholdPct decimal.Decimal) Trend {
	t := Trend{Direction: DirectionFlat, Label: LabelNeutral, Samples: len(prices)}
	if len(prices) < 2 {
		return t
	}
	start, end := prices[0], prices[len(prices)-1]
	t.StartPrice, t.EndPrice = start, end
	t.Change = end.Sub(start)
	if !start.IsZero() {
		t.ChangePercent = t.Change.Div(start).Mul(hundred).Round(percentPlaces)
	}

	switch t.Change.Sign() {
	case 1:
		t.Direction = DirectionUp
	case -1:
		t.Direction = DirectionDown
	}
	switch {
	case t.ChangePercent.GreaterThan(thresholdPct):
		t.Label = LabelBullish
	case t.ChangePercent.LessThan(thresholdPct.Neg()):
		t.Label = LabelBearish
	}
	return t
}

// Volatility is the population standard deviation of consecutive price deltas.
func Volatility(prices []decimal.Decimal) float64 {
	n := len(prices) - 1
	if n < 1 {
		return 0
	}
	deltas := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i := 1; i < len(prices); i++ {
		deltas[i-1] = prices[i].Sub(prices[i-1])
		sum = sum.Add(deltas[i-1])
	}
	count := decimal.NewFromInt(int64(n))
	mean := sum.Div(count)

	varsum := decimal.Zero
	for _, d := range deltas {
		dev := d.Sub(mean)
		varsum = varsum.Add(dev.Mul(dev))
	}
	if varsum.IsZero() {
		return 0
	}
	variance, _ := varsum.Div(count).Float64()
	return math.Sqrt(variance)
}

func warnings(s Snapshot, hist []Sample, ctx Context, cfg Config) []string {
	out := []string{}
	if s.EndsAt != nil && cfg.ResolveWarning > 0 {
		asOf := s.AsOf
		if asOf.IsZero() && len(hist) > 0 {
			asOf = hist[len(hist)-1].At
		}
		if !asOf.IsZero() {
			left := s.EndsAt.Sub(asOf)
			if left < cfg.ResolveWarning {
				out = append(out, fmt.Sprintf("Market resolves in %.1f hours", left.Hours()))
			}
		}
	}
	if cfg.WideSpreadPct.IsPositive() && ctx.SpreadPercent.GreaterThan(cfg.WideSpreadPct) {
		out = append(out, fmt.Sprintf("Wide spread: %s%% of mid", ctx.SpreadPercent.StringFixed(2)))
	}
	return out
}
