package engine

import (
	"context"
	"time"

	"bitget-trade-bot-go/internal/exchange"
	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockClient is a mock implementation of the exchange.Client interface.
type MockClient struct {
	mock.Mock
}

var _ exchange.Client = (*MockClient)(nil)

func (m *MockClient) GetServerTime(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockClient) GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	args := m.Called(ctx, symbol)
	var t *exchange.Ticker
	if v := args.Get(0); v != nil {
		t = v.(*exchange.Ticker)
	}
	return t, args.Error(1)
}

func (m *MockClient) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (*exchange.OrderAck, error) {
	args := m.Called(ctx, req)
	var ack *exchange.OrderAck
	if v := args.Get(0); v != nil {
		ack = v.(*exchange.OrderAck)
	}
	return ack, args.Error(1)
}

func (m *MockClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	args := m.Called(ctx, symbol, orderID)
	return args.Error(0)
}

func (m *MockClient) GetOrderStatus(ctx context.Context, symbol, orderID string) (*exchange.OrderStatus, error) {
	args := m.Called(ctx, symbol, orderID)
	var st *exchange.OrderStatus
	if v := args.Get(0); v != nil {
		st = v.(*exchange.OrderStatus)
	}
	return st, args.Error(1)
}

func (m *MockClient) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderStatus, error) {
	args := m.Called(ctx, symbol)
	var st []exchange.OrderStatus
	if v := args.Get(0); v != nil {
		st = v.([]exchange.OrderStatus)
	}
	return st, args.Error(1)
}

func (m *MockClient) GetAccountBalance(ctx context.Context) ([]exchange.Balance, error) {
	args := m.Called(ctx)
	var b []exchange.Balance
	if v := args.Get(0); v != nil {
		b = v.([]exchange.Balance)
	}
	return b, args.Error(1)
}

// newTestReporter builds a reporter that is never run; tests drain its
// channel synchronously with drainEvents.
func newTestReporter() *Reporter {
	return NewReporter(zap.NewNop(), 1024)
}

// drainEvents collects every queued event without blocking.
func drainEvents(r *Reporter) []models.Event {
	var out []models.Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func countKind(events []models.Event, kind models.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func btcInstrument() models.Instrument {
	return models.Instrument{
		Symbol:       "BTCUSDT",
		BaseAsset:    "BTC",
		TickSize:     decimal.NewFromFloat(0.01),
		MinOrderSize: decimal.NewFromFloat(0.0001),
		FeeRate:      decimal.NewFromFloat(0.001),
	}
}

func btcLimits() models.RiskLimits {
	return models.RiskLimits{
		MaxPositionSize: decimal.NewFromInt(2),
		MaxOrderSize:    decimal.NewFromInt(1),
		MaxOpenOrders:   1,
	}
}

// newTestTracker builds a tracker with the BTC instrument registered.
func newTestTracker(rep *Reporter, limits models.RiskLimits) *Tracker {
	tr := NewTracker(zap.NewNop(), rep, models.AccountLimits{})
	tr.AddInstrument(btcInstrument(), limits)
	return tr
}

func buySignal(size float64) models.Signal {
	return models.Signal{
		Symbol: "BTCUSDT",
		Action: models.ActionBuy,
		Size:   decimal.NewFromFloat(size),
	}
}

func registeredOrder(t *Tracker, id string, side models.Side, size float64) models.Order {
	o := models.Order{
		ID:        id,
		Symbol:    "BTCUSDT",
		Side:      side,
		Size:      decimal.NewFromFloat(size),
		State:     models.OrderCreated,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := t.Register(o); err != nil {
		panic(err)
	}
	if _, err := t.Transition(o.Symbol, o.ID, models.OrderSubmitted, ""); err != nil {
		panic(err)
	}
	return o
}

func fillFor(o models.Order, fillID string, qty, price float64) models.Fill {
	return models.Fill{
		FillID:    fillID,
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  decimal.NewFromFloat(qty),
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Now(),
	}
}
