package models

import "github.com/shopspring/decimal"

// RiskLimits bounds exposure for one instrument. Loaded once at startup and
// immutable during a run.
type RiskLimits struct {
	MaxPositionSize decimal.Decimal
	MaxOrderSize    decimal.Decimal // zero disables the per-order cap
	MaxOpenOrders   int             // 0 means the default of one in-flight order per direction
	StopLossPct     decimal.Decimal // zero disables the stop-loss
	TrailingStopPct decimal.Decimal // retrace from the best mark since entry, zero disables
}

// AccountLimits bounds exposure across the whole account.
type AccountLimits struct {
	MaxNotional decimal.Decimal // gross notional across instruments, zero disables
}
