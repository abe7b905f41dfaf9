package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument describes a tradable instrument. Immutable after load.
type Instrument struct {
	Symbol       string
	BaseAsset    string
	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal
	FeeRate      decimal.Decimal
}

// Snapshot is a normalized point-in-time view of the market for one
// instrument. Produced by the market data adapter, consumed read-only
// by strategies. Never persisted.
type Snapshot struct {
	Symbol    string
	Timestamp time.Time
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	LastPrice decimal.Decimal
}

// Mid returns the bid/ask midpoint, falling back to the last trade price
// when one side of the book is missing.
func (s Snapshot) Mid() decimal.Decimal {
	if s.BestBid.IsPositive() && s.BestAsk.IsPositive() {
		return s.BestBid.Add(s.BestAsk).Div(decimal.NewFromInt(2))
	}
	return s.LastPrice
}

// Age reports how old the snapshot is relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
