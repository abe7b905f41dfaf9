package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() decimal.Decimal {
	if s == SideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// OrderState is a stage in the order lifecycle.
//
//	CREATED → SUBMITTED → {ACKNOWLEDGED | REJECTED}
//	        → PARTIALLY_FILLED* → {FILLED | CANCELLED | EXPIRED}
type OrderState string

const (
	OrderCreated         OrderState = "CREATED"
	OrderSubmitted       OrderState = "SUBMITTED"
	OrderAcknowledged    OrderState = "ACKNOWLEDGED"
	OrderPartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderFilled          OrderState = "FILLED"
	OrderRejected        OrderState = "REJECTED"
	OrderCancelled       OrderState = "CANCELLED"
	OrderExpired         OrderState = "EXPIRED"
)

// Terminal reports whether no further transition is possible out of the state.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderFilled, OrderRejected, OrderCancelled, OrderExpired:
		return true
	}
	return false
}

// Order is one local order driven through the lifecycle by the execution
// engine. The engine owns it exclusively until it reaches a terminal state.
type Order struct {
	ID           string // local identifier, assigned at creation
	RemoteID     string // exchange identifier, assigned on acknowledgment
	Symbol       string
	Side         Side
	Size         decimal.Decimal
	Limit        decimal.Decimal // zero means market
	State        OrderState
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.Decimal
	Attempts     int
	Reason       string // set on rejection
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining is the quantity not yet filled.
func (o *Order) Remaining() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// Fill is a confirmation from the exchange that all or part of an order
// executed. FillID is the exchange-assigned identifier used for deduplication.
type Fill struct {
	FillID    string
	OrderID   string // local order ID
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// Delta is the signed position change the fill produces.
func (f Fill) Delta() decimal.Decimal {
	return f.Quantity.Mul(f.Side.Sign())
}
