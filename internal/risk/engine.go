package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/polyguard/internal/util"
)

// DefaultConfig mirrors the venue defaults: $5 minimum, $100 per trade,
// $500 per day, no trade-count or position cap.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MinOrderSize:   DefaultMinOrderSize,
		MaxPerTrade:    decimal.NewFromInt(100),
		MaxDailyVolume: decimal.NewFromInt(500),
	}
}

// Validate rejects configurations no trade could ever satisfy consistently.
func (c Config) Validate() error {
	switch {
	case c.MinOrderSize.IsNegative():
		return util.Invalid("min_order_usd", "must not be negative")
	case c.MaxPerTrade.IsNegative():
		return util.Invalid("max_trade_usd", "must not be negative")
	case c.MaxDailyVolume.IsNegative():
		return util.Invalid("max_daily_usd", "must not be negative")
	case c.MaxPositionPerMarket.IsNegative():
		return util.Invalid("max_position_usd", "must not be negative")
	}
	return nil
}

// Validate checks the proposal shape. Amounts below the minimum are a
// decision (TooSmall), not a validation failure.
func (p Proposal) Validate() error {
	if err := util.ValidateStruct(p); err != nil {
		return err
	}
	if p.AmountUSD.IsNegative() {
		return util.Invalid("amountUsd", "must not be negative")
	}
	return nil
}

// Evaluate decides whether p may be placed given today's window and the
// market's existing signed exposure. Checks run in a fixed order and the
// first failure wins. It never mutates w.
func Evaluate(p Proposal, cfg Config, w Window, existingExposure decimal.Decimal) Decision {
	if !cfg.Enabled {
		return Decision{Allowed: true, Reason: ReasonLimitsDisabled}
	}
	amt := p.AmountUSD

	if amt.LessThan(cfg.MinOrderSize) {
		return deny(ReasonTooSmall, "Trade amount $%s is below the minimum of $%s",
			amt.StringFixed(2), cfg.MinOrderSize.StringFixed(2))
	}
	if amt.GreaterThan(cfg.MaxPerTrade) {
		return deny(ReasonExceedsPerTradeLimit, "Trade amount $%s exceeds limit of $%s",
			amt.StringFixed(2), cfg.MaxPerTrade.StringFixed(2))
	}
	if w.VolumeUSD.Add(amt).GreaterThan(cfg.MaxDailyVolume) {
		remaining := decimal.Max(decimal.Zero, cfg.MaxDailyVolume.Sub(w.VolumeUSD))
		return deny(ReasonExceedsDailyVolumeLimit, "Daily limit exceeded. Remaining: $%s",
			remaining.StringFixed(2))
	}
	if cfg.MaxDailyTrades > 0 && w.TradeCount+1 > cfg.MaxDailyTrades {
		return deny(ReasonExceedsDailyTradeCountLimit, "Daily trade limit reached: %d trades",
			cfg.MaxDailyTrades)
	}
	if cfg.MaxPositionPerMarket.IsPositive() {
		resulting := existingExposure.Add(amt.Mul(p.Side.Sign())).Abs()
		if resulting.GreaterThan(cfg.MaxPositionPerMarket) {
			return deny(ReasonExceedsPositionLimit, "Position size $%s exceeds limit of $%s",
				resulting.StringFixed(2), cfg.MaxPositionPerMarket.StringFixed(2))
		}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func deny(r Reason, format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: r, Message: fmt.Sprintf(format, args...)}
}

// Remaining reports configured limits and today's remaining headroom.
func Remaining(cfg Config, w Window) Limits {
	l := Limits{
		Date:                 w.Date,
		Enabled:              cfg.Enabled,
		MaxTradeUSD:          cfg.MaxPerTrade,
		MaxDailyUSD:          cfg.MaxDailyVolume,
		DailyVolumeUsed:      w.VolumeUSD,
		DailyVolumeRemaining: decimal.Max(decimal.Zero, cfg.MaxDailyVolume.Sub(w.VolumeUSD)),
		DailyTradesUsed:      w.TradeCount,
	}
	if day, err := time.Parse(util.DayLayout, w.Date); err == nil {
		l.ResetsAt = util.NextOpen(day)
	}
	if cfg.MaxDailyTrades > 0 {
		n := cfg.MaxDailyTrades
		l.DailyTradesLimit = &n
	}
	if cfg.MaxPositionPerMarket.IsPositive() {
		p := cfg.MaxPositionPerMarket
		l.PositionLimitUSD = &p
	}
	return l
}
