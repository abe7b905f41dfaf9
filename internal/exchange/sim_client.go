package exchange

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimClient is a dry-run client: public market data is delegated to a real
// client while private endpoints (orders, balances) are simulated in memory.
// Orders fill immediately at the last ticker price.
type SimClient struct {
	public Client
	logger *zap.Logger

	mu       sync.Mutex
	orders   map[string]*OrderStatus
	balances map[string]decimal.Decimal
	lastSeen map[string]decimal.Decimal
	fillSeq  int64
}

var _ Client = (*SimClient)(nil)

// NewSimClient wraps a real client for public endpoints and simulates the rest.
func NewSimClient(public Client, logger *zap.Logger) *SimClient {
	logger.Warn("Dry run enabled. Orders are simulated, no real trades will be executed.")
	return &SimClient{
		public:   public,
		logger:   logger,
		orders:   make(map[string]*OrderStatus),
		balances: make(map[string]decimal.Decimal),
		lastSeen: make(map[string]decimal.Decimal),
	}
}

func (s *SimClient) GetServerTime(ctx context.Context) (time.Time, error) {
	return s.public.GetServerTime(ctx)
}

func (s *SimClient) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	t, err := s.public.GetTicker(ctx, symbol)
	if err == nil {
		s.mu.Lock()
		s.lastSeen[symbol] = t.LastPrice
		s.mu.Unlock()
	}
	return t, err
}

func (s *SimClient) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderAck, error) {
	price := req.Price
	if req.OrderType == OrderTypeMarket || !price.IsPositive() {
		s.mu.Lock()
		price = s.lastSeen[req.Symbol]
		s.mu.Unlock()
		if !price.IsPositive() {
			t, err := s.public.GetTicker(ctx, req.Symbol)
			if err != nil {
				return nil, err
			}
			price = t.LastPrice
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	orderID := uuid.NewString()
	s.fillSeq++
	now := time.Now()
	s.orders[orderID] = &OrderStatus{
		OrderID:      orderID,
		ClientOID:    req.ClientOID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Status:       StatusFilled,
		Size:         req.Size,
		FilledSize:   req.Size,
		AvgFillPrice: price,
		Fills: []Fill{{
			FillID:    "sim-" + uuid.NewString(),
			OrderID:   orderID,
			Symbol:    req.Symbol,
			Side:      req.Side,
			Price:     price,
			Quantity:  req.Size,
			Timestamp: now,
		}},
	}

	base := baseAsset(req.Symbol)
	delta := req.Size
	if req.Side == OrderSideSell {
		delta = delta.Neg()
	}
	s.balances[base] = s.balances[base].Add(delta)

	s.logger.Info("Simulated order filled",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("size", req.Size.String()),
		zap.String("price", price.String()),
	)
	return &OrderAck{OrderID: orderID, ClientOID: req.ClientOID}, nil
}

func (s *SimClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return &RejectedError{Code: "43001", Reason: "order not found"}
	}
	if o.Status == StatusFilled {
		return &RejectedError{Code: "43011", Reason: "order already filled"}
	}
	o.Status = StatusCancelled
	return nil
}

func (s *SimClient) GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, &RejectedError{Code: "43001", Reason: "order not found"}
	}
	cp := *o
	return &cp, nil
}

func (s *SimClient) GetOpenOrders(ctx context.Context, symbol string) ([]OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []OrderStatus
	for _, o := range s.orders {
		if o.Symbol == symbol && o.Status != StatusFilled && o.Status != StatusCancelled {
			open = append(open, *o)
		}
	}
	return open, nil
}

func (s *SimClient) GetAccountBalance(ctx context.Context) ([]Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make([]Balance, 0, len(s.balances))
	for asset, qty := range s.balances {
		balances = append(balances, Balance{Asset: asset, Available: qty})
	}
	return balances, nil
}

// baseAsset strips the USDT quote suffix. Simulated accounting only.
func baseAsset(symbol string) string {
	return strings.TrimSuffix(symbol, "USDT")
}
