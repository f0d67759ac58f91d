package alerts

import (
	"github.com/shopspring/decimal"
)

// Evaluate applies price to a and returns the updated alert. It is pure:
// the caller owns storing the result.
//
// Inactive alerts and spent one-shot alerts come back unchanged, including
// LastKnownPrice. Edge conditions need a previous price, so the first
// evaluation of a crosses_* alert only records the baseline.
func Evaluate(a Alert, price decimal.Decimal) (Alert, TriggerResult) {
	res := TriggerResult{AlertID: a.ID, Price: price}
	if !a.Active || a.Spent() {
		return a, res
	}

	if a.Condition.Edge() && a.LastKnownPrice == nil {
		p := price
		a.LastKnownPrice = &p
		return a, res
	}

	th := a.Threshold
	var fire bool
	switch a.Condition {
	case Above:
		fire = price.GreaterThan(th)
	case Below:
		fire = price.LessThan(th)
	case CrossesAbove:
		fire = a.LastKnownPrice.LessThanOrEqual(th) && price.GreaterThan(th)
	case CrossesBelow:
		fire = a.LastKnownPrice.GreaterThanOrEqual(th) && price.LessThan(th)
	}

	p := price
	a.LastKnownPrice = &p
	if fire {
		tp := price
		a.Triggered = true
		a.TriggerCount++
		a.TriggerPrice = &tp
		res.Triggered = true
	}
	return a, res
}
