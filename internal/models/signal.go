package models

import "github.com/shopspring/decimal"

// Action is the recommendation a strategy makes for one instrument on one tick.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Side returns the order side an action maps to. HOLD has no side.
func (a Action) Side() Side {
	switch a {
	case ActionBuy:
		return SideBuy
	case ActionSell:
		return SideSell
	}
	return ""
}

// Signal is a strategy's recommended action for one instrument on one tick.
// Signals are ephemeral: produced once per tick and consumed immediately by
// the risk tracker.
type Signal struct {
	Symbol     string
	Action     Action
	Size       decimal.Decimal
	Limit      decimal.Decimal // zero means market
	Confidence float64
	Reason     string
}

// Hold builds a HOLD signal for the given instrument.
func Hold(symbol, reason string) Signal {
	return Signal{Symbol: symbol, Action: ActionHold, Reason: reason}
}
