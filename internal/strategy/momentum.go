package strategy

import (
	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
)

const (
	momentumShortWindow = 5
	momentumLongWindow  = 20
)

func init() {
	Register("momentum", func(symbol string, orderSize decimal.Decimal) Strategy {
		return &Momentum{symbol: symbol, orderSize: orderSize}
	})
}

// Momentum is a moving-average crossover strategy: it opens a long when the
// short average crosses above the long average and closes it on the cross
// back down. Long-only, one position at a time.
type Momentum struct {
	symbol    string
	orderSize decimal.Decimal
	window    []decimal.Decimal
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Evaluate(snap models.Snapshot, pos models.Position) (models.Signal, error) {
	// The mid price is less jumpy than the last trade when both book sides
	// are known.
	m.window = append(m.window, snap.Mid())
	if len(m.window) > momentumLongWindow {
		m.window = m.window[len(m.window)-momentumLongWindow:]
	}
	if len(m.window) < momentumLongWindow {
		return models.Hold(m.symbol, "warming up"), nil
	}

	short := mean(m.window[len(m.window)-momentumShortWindow:])
	long := mean(m.window)

	switch {
	case pos.Quantity.IsZero() && short.GreaterThan(long):
		return models.Signal{
			Symbol:     m.symbol,
			Action:     models.ActionBuy,
			Size:       m.orderSize,
			Confidence: confidence(short, long),
			Reason:     "short MA crossed above long MA",
		}, nil
	case pos.Quantity.IsPositive() && short.LessThan(long):
		return models.Signal{
			Symbol:     m.symbol,
			Action:     models.ActionSell,
			Size:       pos.Quantity,
			Confidence: confidence(long, short),
			Reason:     "short MA crossed below long MA",
		}, nil
	}
	return models.Hold(m.symbol, "no crossover"), nil
}

func mean(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.NewFromInt(int64(len(xs))))
}

// confidence maps the relative spread of the two averages to (0, 1].
func confidence(a, b decimal.Decimal) float64 {
	if !b.IsPositive() {
		return 0
	}
	spread, _ := a.Sub(b).Div(b).Abs().Float64()
	if spread > 0.01 {
		return 1
	}
	return spread * 100
}
