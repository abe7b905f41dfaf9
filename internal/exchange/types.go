package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Remote order statuses as reported by the exchange.
const (
	StatusLive            = "live"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
	StatusExpired         = "expired"
)

// PlaceOrderRequest is a new-order request addressed to the exchange.
type PlaceOrderRequest struct {
	Symbol    string
	Side      string // OrderSideBuy / OrderSideSell
	OrderType string // OrderTypeMarket / OrderTypeLimit
	Size      decimal.Decimal
	Price     decimal.Decimal // ignored for market orders
	ClientOID string          // caller-supplied idempotency key
}

// OrderAck is the exchange's acknowledgment of a placed order.
type OrderAck struct {
	OrderID   string
	ClientOID string
}

// Fill is one execution reported by the exchange.
type Fill struct {
	FillID    string
	OrderID   string
	Symbol    string
	Side      string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp time.Time
}

// OrderStatus is the remote view of one order.
type OrderStatus struct {
	OrderID      string
	ClientOID    string
	Symbol       string
	Side         string
	Status       string
	Size         decimal.Decimal
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.Decimal
	Fills        []Fill
}

// Ticker is a best bid/ask and last trade price snapshot.
type Ticker struct {
	Symbol    string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	LastPrice decimal.Decimal
	Timestamp time.Time
}

// Balance is the account holding for one asset.
type Balance struct {
	Asset     string
	Available decimal.Decimal
	Frozen    decimal.Decimal
}

// Total is the full holding, available plus frozen.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Frozen)
}

// Client is the narrow surface of the exchange REST API the engine consumes.
// Implementations must be safe for concurrent use and must not retry
// internally: they surface typed failures (ErrTimeout, ErrRateLimited,
// ErrUnavailable, *RejectedError) and leave retry policy to the caller.
type Client interface {
	GetServerTime(ctx context.Context) (time.Time, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderStatus, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OrderStatus, error)
	GetAccountBalance(ctx context.Context) ([]Balance, error)
}
