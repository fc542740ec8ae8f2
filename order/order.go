package order

import "time"

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Type of an order. The engine only ever submits limit orders.
type Type string

const (
	TypeLimit  Type = "LIMIT"
	TypeMarket Type = "MARKET"
)

// TimeInForce instructs the venue how long an order rests.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
)

// Status represents the venue-side order lifecycle.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether no further fills can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Active reports whether the order can still trade.
func (s Status) Active() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// Request is the submission payload handed to the exchange collaborator.
type Request struct {
	Symbol      string
	Side        Side
	Type        Type
	Quantity    float64
	Price       float64
	TimeInForce TimeInForce
}

// Order is the collaborator's view of a placed order.
type Order struct {
	ID               string
	Symbol           string
	Side             Side
	Type             Type
	Price            float64
	Quantity         float64
	ExecutedQuantity float64
	Status           Status
	Created          time.Time
	Updated          time.Time
}
