package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/polyguard/internal/risk"
)

// Status represents the lifecycle state of an order
type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusSubmitted       Status = "SUBMITTED"
	StatusLive            Status = "LIVE"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusFailed          Status = "FAILED"
)

// transitions lists every edge of the lifecycle. Terminal states have none.
var transitions = map[Status][]Status{
	StatusCreated:         {StatusSubmitted},
	StatusSubmitted:       {StatusLive, StatusRejected},
	StatusLive:            {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusFailed},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusFailed},
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusSubmitted, StatusLive, StatusPartiallyFilled,
		StatusFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// carriesFills reports whether a venue update in this status may report fills.
func (s Status) carriesFills() bool {
	switch s {
	case StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Type is the venue order-type tag.
type Type string

const (
	TypeGTC    Type = "GTC" // Good Till Cancel
	TypeFOK    Type = "FOK" // Fill Or Kill
	TypeIOC    Type = "IOC" // Immediate Or Cancel
	TypeMarket Type = "MARKET"
)

// Venue price bounds for an outcome token.
const (
	MinPrice = 0.01
	MaxPrice = 0.99
)

// Order is the tracker's view of an order, independent of the venue's books.
type Order struct {
	ID           string          `json:"id"`
	MarketID     string          `json:"marketId"`
	Side         risk.Side       `json:"side"`
	AmountUSD    decimal.Decimal `json:"amountUsd"`
	LimitPrice   *float64        `json:"limitPrice,omitempty"`
	Type         Type            `json:"orderType"`
	Status       Status          `json:"status"`
	FilledSize   decimal.Decimal `json:"filledSize"`
	OriginalSize decimal.Decimal `json:"originalSize"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	// Recorded is set once the filled amount has been fed to the accountant.
	Recorded bool `json:"recorded"`
}

// Remaining is the unfilled part of the order.
func (o Order) Remaining() decimal.Decimal {
	return o.OriginalSize.Sub(o.FilledSize)
}

// NewOrder is a registration request for an admitted order. ID is optional;
// pass the venue's id when it assigned one.
type NewOrder struct {
	ID         string          `json:"id,omitempty"`
	MarketID   string          `json:"marketId" validate:"required"`
	Side       risk.Side       `json:"side" validate:"required,oneof=BUY SELL"`
	AmountUSD  decimal.Decimal `json:"amountUsd"`
	LimitPrice *float64        `json:"price,omitempty" validate:"omitempty,gte=0.01,lte=0.99"`
	Type       Type            `json:"orderType,omitempty" validate:"omitempty,oneof=GTC FOK IOC MARKET"`
}

// StatusUpdate is an externally reported status change.
type StatusUpdate struct {
	OrderID     string          `json:"orderId" validate:"required"`
	Status      Status          `json:"reportedStatus" validate:"required"`
	FilledDelta decimal.Decimal `json:"filledDelta"`
}

// Result describes what Apply did.
type Result struct {
	Order    Order  `json:"order"`
	Previous Status `json:"previousStatus"`
	// Applied is false for accepted duplicates.
	Applied   bool `json:"applied"`
	Duplicate bool `json:"duplicate"`
	// Recorded is true when this update fed the fill to the accountant.
	Recorded bool `json:"recorded"`
}

// Filter narrows List.
type Filter struct {
	MarketID string
	Status   Status
	OpenOnly bool
}
