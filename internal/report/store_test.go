package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	assert.NoError(t, err)
	return s
}

func filledEvent(fillID string) models.Event {
	return models.Event{
		Kind:     models.EventOrderFilled,
		Time:     time.Now().UTC(),
		Symbol:   "BTCUSDT",
		OrderID:  "o1",
		FillID:   fillID,
		Side:     models.SideBuy,
		Quantity: decimal.NewFromFloat(0.5),
		Price:    decimal.NewFromInt(65000),
	}
}

func TestDeliver_RecordsEventAndTrade(t *testing.T) {
	s := newTestStore(t)

	err := s.Deliver(context.Background(), filledEvent("f1"))
	assert.NoError(t, err)

	var events int64
	assert.NoError(t, s.db.Model(&models.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	var trade models.TradeRecord
	assert.NoError(t, s.db.First(&trade, "fill_id = ?", "f1").Error)
	assert.Equal(t, "BTCUSDT", trade.Symbol)
	assert.Equal(t, 0.5, trade.Quantity)
	assert.Equal(t, float64(65000), trade.Price)
}

func TestDeliver_DuplicateFillKeepsOneTrade(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.Deliver(context.Background(), filledEvent("f1")))
	// Re-delivery must not fail and must not duplicate the trade row.
	assert.NoError(t, s.Deliver(context.Background(), filledEvent("f1")))

	var trades int64
	assert.NoError(t, s.db.Model(&models.TradeRecord{}).Count(&trades).Error)
	assert.Equal(t, int64(1), trades)

	var events int64
	assert.NoError(t, s.db.Model(&models.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestDeliver_NonFillEventHasNoTrade(t *testing.T) {
	s := newTestStore(t)

	ev := models.NewEvent(models.EventOrderRejected, "BTCUSDT")
	ev.OrderID = "o1"
	ev.Message = "insufficient balance"
	assert.NoError(t, s.Deliver(context.Background(), ev))

	var trades int64
	assert.NoError(t, s.db.Model(&models.TradeRecord{}).Count(&trades).Error)
	assert.Equal(t, int64(0), trades)
}
