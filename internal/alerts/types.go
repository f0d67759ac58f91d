package alerts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAlertNotFound = errors.New("alert not found")

// Condition is what an alert watches for.
type Condition string

const (
	Above        Condition = "above"
	Below        Condition = "below"
	CrossesAbove Condition = "crosses_above"
	CrossesBelow Condition = "crosses_below"
)

// Edge reports whether the condition fires on a transition rather than a level.
func (c Condition) Edge() bool { return c == CrossesAbove || c == CrossesBelow }

// Watched outcome sides.
const (
	SideYes = "yes"
	SideNo  = "no"
)

// Alert is a registered price condition on one outcome of a market.
type Alert struct {
	ID        string          `json:"id"`
	MarketID  string          `json:"marketId"`
	Side      string          `json:"side"`
	Condition Condition       `json:"condition"`
	Threshold decimal.Decimal `json:"threshold"`
	OneShot   bool            `json:"oneShot"`
	Active    bool            `json:"active"`
	Triggered bool            `json:"triggered"`
	// LastKnownPrice is nil until the first evaluation.
	LastKnownPrice *decimal.Decimal `json:"lastKnownPrice,omitempty"`
	TriggerCount   int              `json:"triggerCount"`
	TriggerPrice   *decimal.Decimal `json:"triggerPrice,omitempty"`
	TriggeredAt    *time.Time       `json:"triggeredAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Spent reports a one-shot alert that already fired and waits for Reset.
func (a Alert) Spent() bool { return a.OneShot && a.Triggered }

// Registration is the request to create an alert.
type Registration struct {
	ID        string          `json:"id,omitempty"`
	MarketID  string          `json:"marketId" validate:"required"`
	Side      string          `json:"side" validate:"required,oneof=yes no"`
	Condition Condition       `json:"condition" validate:"required,oneof=above below crosses_above crosses_below"`
	Threshold decimal.Decimal `json:"threshold"`
	OneShot   bool            `json:"oneShot"`
}

type TriggerResult struct {
	AlertID   string          `json:"alertId"`
	Triggered bool            `json:"triggered"`
	Price     decimal.Decimal `json:"price"`
}

// Quote is the latest outcome prices of a market.
type Quote struct {
	Yes decimal.Decimal `json:"yes"`
	No  decimal.Decimal `json:"no"`
}

// Price returns the quote for the watched side. A missing no-price is
// derived from the yes-price.
func (q Quote) Price(side string) decimal.Decimal {
	if side == SideNo {
		if q.No.IsZero() && !q.Yes.IsZero() {
			return decimal.NewFromInt(1).Sub(q.Yes)
		}
		return q.No
	}
	return q.Yes
}
