package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fixedTickerClient serves a constant ticker; private endpoints are unused.
type fixedTickerClient struct {
	Client
	price decimal.Decimal
}

func (f *fixedTickerClient) GetTicker(_ context.Context, symbol string) (*Ticker, error) {
	return &Ticker{
		Symbol:    symbol,
		LastPrice: f.price,
		Timestamp: time.Now(),
	}, nil
}

func TestSimClient_MarketOrderFillsAtLastPrice(t *testing.T) {
	public := &fixedTickerClient{price: decimal.NewFromInt(65000)}
	sim := NewSimClient(public, zap.NewNop())

	// Seed the last seen price through the public path.
	_, err := sim.GetTicker(context.Background(), "BTCUSDT")
	assert.NoError(t, err)

	ack, err := sim.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:    "BTCUSDT",
		Side:      OrderSideBuy,
		OrderType: OrderTypeMarket,
		Size:      decimal.NewFromFloat(0.5),
		ClientOID: "local-1",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, ack.OrderID)

	status, err := sim.GetOrderStatus(context.Background(), "BTCUSDT", ack.OrderID)
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, status.Status)
	assert.True(t, status.AvgFillPrice.Equal(decimal.NewFromInt(65000)))
	assert.Len(t, status.Fills, 1)
	assert.True(t, status.Fills[0].Quantity.Equal(decimal.NewFromFloat(0.5)))
}

func TestSimClient_BalanceTracksNetFills(t *testing.T) {
	public := &fixedTickerClient{price: decimal.NewFromInt(100)}
	sim := NewSimClient(public, zap.NewNop())

	_, err := sim.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "BTCUSDT", Side: OrderSideBuy, OrderType: OrderTypeMarket,
		Size: decimal.NewFromInt(2),
	})
	assert.NoError(t, err)
	_, err = sim.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "BTCUSDT", Side: OrderSideSell, OrderType: OrderTypeMarket,
		Size: decimal.NewFromFloat(0.5),
	})
	assert.NoError(t, err)

	balances, err := sim.GetAccountBalance(context.Background())
	assert.NoError(t, err)
	assert.Len(t, balances, 1)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.True(t, balances[0].Total().Equal(decimal.NewFromFloat(1.5)))
}

func TestSimClient_CancelFilledOrderRejected(t *testing.T) {
	public := &fixedTickerClient{price: decimal.NewFromInt(100)}
	sim := NewSimClient(public, zap.NewNop())

	ack, err := sim.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "BTCUSDT", Side: OrderSideBuy, OrderType: OrderTypeMarket,
		Size: decimal.NewFromInt(1),
	})
	assert.NoError(t, err)

	err = sim.CancelOrder(context.Background(), "BTCUSDT", ack.OrderID)
	var rej *RejectedError
	assert.ErrorAs(t, err, &rej)

	err = sim.CancelOrder(context.Background(), "BTCUSDT", "missing")
	assert.ErrorAs(t, err, &rej)
}
