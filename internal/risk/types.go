package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() decimal.Decimal {
	if s == Sell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Reason explains an admission decision.
type Reason string

const (
	ReasonAllowed                     Reason = "Allowed"
	ReasonLimitsDisabled              Reason = "LimitsDisabled"
	ReasonTooSmall                    Reason = "TooSmall"
	ReasonExceedsPerTradeLimit        Reason = "ExceedsPerTradeLimit"
	ReasonExceedsDailyVolumeLimit     Reason = "ExceedsDailyVolumeLimit"
	ReasonExceedsDailyTradeCountLimit Reason = "ExceedsDailyTradeCountLimit"
	ReasonExceedsPositionLimit        Reason = "ExceedsPositionLimit"
)

// DefaultMinOrderSize is the venue's minimum order in USD.
var DefaultMinOrderSize = decimal.NewFromInt(5)

// Config defines static configuration for risk controls. It is never mutated
// in place; callers swap a whole new value. MaxDailyTrades <= 0 and a zero
// MaxPositionPerMarket mean unlimited.
type Config struct {
	Enabled              bool            `json:"enabled" yaml:"enabled"`
	MinOrderSize         decimal.Decimal `json:"min_order_usd" yaml:"min_order_usd"`
	MaxPerTrade          decimal.Decimal `json:"max_trade_usd" yaml:"max_trade_usd"`
	MaxDailyVolume       decimal.Decimal `json:"max_daily_usd" yaml:"max_daily_usd"`
	MaxDailyTrades       int             `json:"max_daily_trades" yaml:"max_daily_trades"`
	MaxPositionPerMarket decimal.Decimal `json:"max_position_usd" yaml:"max_position_usd"`
}

// Proposal is a trade the caller wants to place.
type Proposal struct {
	MarketID  string          `json:"marketId" validate:"required"`
	Side      Side            `json:"side" validate:"required,oneof=BUY SELL"`
	AmountUSD decimal.Decimal `json:"amountUsd"`
}

// Decision is returned when evaluating a trade against limits.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
	Message string `json:"message,omitempty"`
}

// Trade is a confirmed fill fed to the accountant. It is accounted to the day
// current when Record runs, so it carries no timestamp of its own.
type Trade struct {
	MarketID  string
	Side      Side
	AmountUSD decimal.Decimal
}

// Window is the usage for one UTC calendar day.
type Window struct {
	Date          string                     `json:"date"`
	TradeCount    int                        `json:"total_trades"`
	VolumeUSD     decimal.Decimal            `json:"total_volume_usd"`
	BuyVolumeUSD  decimal.Decimal            `json:"buy_volume_usd"`
	SellVolumeUSD decimal.Decimal            `json:"sell_volume_usd"`
	Positions     map[string]decimal.Decimal `json:"positions"`
}

func newWindow(date string) Window {
	return Window{Date: date, Positions: make(map[string]decimal.Decimal)}
}

// Position returns the signed net USD delta for a market.
func (w Window) Position(marketID string) decimal.Decimal {
	return w.Positions[marketID]
}

func (w Window) clone() Window {
	out := w
	out.Positions = make(map[string]decimal.Decimal, len(w.Positions))
	for k, v := range w.Positions {
		out.Positions[k] = v
	}
	return out
}

// Limits summarizes configured limits and what is left of them today.
type Limits struct {
	Date                 string           `json:"date"`
	Enabled              bool             `json:"enabled"`
	MaxTradeUSD          decimal.Decimal  `json:"max_trade_usd"`
	MaxDailyUSD          decimal.Decimal  `json:"max_daily_usd"`
	DailyVolumeUsed      decimal.Decimal  `json:"daily_volume_used"`
	DailyVolumeRemaining decimal.Decimal  `json:"daily_volume_remaining"`
	DailyTradesUsed      int              `json:"daily_trades_used"`
	DailyTradesLimit     *int             `json:"daily_trades_limit"` // nil = unlimited
	PositionLimitUSD     *decimal.Decimal `json:"position_limit_usd"` // nil = unlimited
	ResetsAt             time.Time        `json:"resets_at"`
}
