package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the authoritative holding for one instrument. Exactly one
// Position exists per instrument; it is created on first fill and updated
// atomically on every fill, never deleted (quantity may return to zero).
type Position struct {
	Symbol        string
	Quantity      decimal.Decimal // signed: positive long, negative short
	AvgEntryPrice decimal.Decimal
	UpdatedAt     time.Time
}

// Apply folds a fill into the position and returns the updated value.
// Increasing the position re-weights the average entry price; reducing it
// keeps the entry; crossing through zero restarts the entry at the fill price.
func (p Position) Apply(f Fill) Position {
	delta := f.Delta()
	newQty := p.Quantity.Add(delta)

	switch {
	case p.Quantity.IsZero():
		p.AvgEntryPrice = f.Price
	case p.Quantity.Sign() == delta.Sign():
		// Scaling in: volume-weighted entry.
		oldNotional := p.Quantity.Abs().Mul(p.AvgEntryPrice)
		addNotional := delta.Abs().Mul(f.Price)
		p.AvgEntryPrice = oldNotional.Add(addNotional).Div(p.Quantity.Abs().Add(delta.Abs()))
	case newQty.IsZero():
		p.AvgEntryPrice = decimal.Zero
	case newQty.Sign() != p.Quantity.Sign():
		// Flipped through zero: the residual was opened at the fill price.
		p.AvgEntryPrice = f.Price
	}
	// A plain reduction keeps the existing entry price.

	p.Quantity = newQty
	p.UpdatedAt = f.Timestamp
	return p
}

// UnrealizedPnL returns the profit fraction of the open position at the given
// mark price, signed by direction. Zero when flat or entry is unknown.
func (p Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.Quantity.IsZero() || !p.AvgEntryPrice.IsPositive() || !mark.IsPositive() {
		return decimal.Zero
	}
	move := mark.Sub(p.AvgEntryPrice).Div(p.AvgEntryPrice)
	if p.Quantity.IsNegative() {
		return move.Neg()
	}
	return move
}
