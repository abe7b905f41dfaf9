package strategy

import (
	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
)

const meanRevWindow = 30

// meanRevThreshold is the deviation from the rolling mean that triggers an
// entry, as a fraction of the mean.
var meanRevThreshold = decimal.NewFromFloat(0.005)

func init() {
	Register("mean_reversion", func(symbol string, orderSize decimal.Decimal) Strategy {
		return &MeanReversion{symbol: symbol, orderSize: orderSize}
	})
}

// MeanReversion buys dips below the rolling mean and exits once price
// recovers to it. Long-only, one position at a time.
type MeanReversion struct {
	symbol    string
	orderSize decimal.Decimal
	window    []decimal.Decimal
}

func (m *MeanReversion) Name() string { return "mean_reversion" }

func (m *MeanReversion) Evaluate(snap models.Snapshot, pos models.Position) (models.Signal, error) {
	price := snap.Mid()
	m.window = append(m.window, price)
	if len(m.window) > meanRevWindow {
		m.window = m.window[len(m.window)-meanRevWindow:]
	}
	if len(m.window) < meanRevWindow {
		return models.Hold(m.symbol, "warming up"), nil
	}

	avg := mean(m.window)
	if !avg.IsPositive() {
		return models.Hold(m.symbol, "no usable mean"), nil
	}
	deviation := price.Sub(avg).Div(avg)

	switch {
	case pos.Quantity.IsZero() && deviation.LessThan(meanRevThreshold.Neg()):
		return models.Signal{
			Symbol:     m.symbol,
			Action:     models.ActionBuy,
			Size:       m.orderSize,
			Confidence: confidence(avg, snap.LastPrice),
			Reason:     "price below rolling mean",
		}, nil
	case pos.Quantity.IsPositive() && !deviation.IsNegative():
		return models.Signal{
			Symbol:     m.symbol,
			Action:     models.ActionSell,
			Size:       pos.Quantity,
			Confidence: confidence(snap.LastPrice, avg),
			Reason:     "price recovered to rolling mean",
		}, nil
	}
	return models.Hold(m.symbol, "within band"), nil
}
