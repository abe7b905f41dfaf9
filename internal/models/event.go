package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind classifies a structured outcome event.
type EventKind string

const (
	EventOrderSubmitAttempt EventKind = "ORDER_SUBMIT_ATTEMPT"
	EventOrderSubmitted     EventKind = "ORDER_SUBMITTED"
	EventOrderAcknowledged  EventKind = "ORDER_ACKNOWLEDGED"
	EventOrderPartialFill   EventKind = "ORDER_PARTIALLY_FILLED"
	EventOrderFilled        EventKind = "ORDER_FILLED"
	EventOrderRejected      EventKind = "ORDER_REJECTED"
	EventOrderCancelled     EventKind = "ORDER_CANCELLED"
	EventOrderExpired       EventKind = "ORDER_EXPIRED"
	EventSignalRejected     EventKind = "SIGNAL_REJECTED"
	EventRiskBreach         EventKind = "RISK_BREACH"
	EventReconcileDrift     EventKind = "RECONCILE_DRIFT"
	EventStrategyError      EventKind = "STRATEGY_ERROR"
	EventFeedInterrupted    EventKind = "FEED_INTERRUPTED"
)

// Event is an immutable record of a state transition or failure, handed
// one-way to the event reporter.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Symbol   string
	OrderID  string
	FillID   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Message  string
	Err      string
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind EventKind, symbol string) Event {
	return Event{Kind: kind, Time: time.Now().UTC(), Symbol: symbol}
}
