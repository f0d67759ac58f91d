package api

import (
	"github.com/shopspring/decimal"

	"github.com/chidi150c/polyguard/internal/alerts"
	"github.com/chidi150c/polyguard/internal/orders"
	"github.com/chidi150c/polyguard/internal/risk"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PlaceOrderResponse carries the admission decision and, when admitted, the
// tracked order.
type PlaceOrderResponse struct {
	Decision risk.Decision `json:"decision"`
	Order    *orders.Order `json:"order,omitempty"`
}

// StatusRequest reports a venue status change for the order in the path.
type StatusRequest struct {
	Status      orders.Status   `json:"reportedStatus"`
	FilledDelta decimal.Decimal `json:"filledDelta"`
}

type EvaluateRequest struct {
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

type EvaluateResponse struct {
	Triggered bool         `json:"triggered"`
	Alert     alerts.Alert `json:"alert"`
}

type ActiveRequest struct {
	Active bool `json:"active"`
}

type QuoteResponse struct {
	MarketID  string         `json:"marketId"`
	Triggered []alerts.Alert `json:"triggered"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Date   string `json:"date"`
}

// WSMessage is pushed to websocket subscribers.
type WSMessage struct {
	Type string `json:"type"` // "order" or "alert"
	Data any    `json:"data"`
}

// WSSubscribeRequest is sent by a client to manage its channels, e.g.
// ["orders", "alerts:<marketId>"].
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
