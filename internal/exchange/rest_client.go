package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitget-trade-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	pathServerTime    = "/api/v2/public/time"
	pathTickers       = "/api/v2/spot/market/tickers"
	pathPlaceOrder    = "/api/v2/spot/trade/place-order"
	pathCancelOrder   = "/api/v2/spot/trade/cancel-order"
	pathOrderInfo     = "/api/v2/spot/trade/orderInfo"
	pathOrderFills    = "/api/v2/spot/trade/fills"
	pathOpenOrders    = "/api/v2/spot/trade/unfilled-orders"
	pathAccountAssets = "/api/v2/spot/account/assets"

	codeOK = "00000"
)

// RestClient is a client for the Bitget v2 REST API.
// It implements the Client interface.
type RestClient struct {
	client     *resty.Client
	apiKey     string
	secretKey  string
	passphrase string
	timeout    time.Duration
	logger     *zap.Logger
	limiter    *rate.Limiter
}

// ensure RestClient implements the interface
var _ Client = (*RestClient)(nil)

// NewRestClient creates a new Bitget REST API client.
func NewRestClient(cfg *config.Exchange, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Client-side rate limiter; the engine's retry policy assumes the
	// client spaces its own calls.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:     client,
		apiKey:     cfg.ApiKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
		timeout:    time.Duration(cfg.TimeoutMs) * time.Millisecond,
		logger:     logger,
		limiter:    limiter,
	}
}

// apiResponse is the envelope every Bitget endpoint answers with.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign creates the ACCESS-SIGN header value: base64(HMAC-SHA256(ts+method+path+body)).
func (c *RestClient) sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// doRequest executes one request with rate limiting, a bounded timeout and
// failure classification. No retries happen here.
func (c *RestClient) doRequest(ctx context.Context, method, path string, query map[string]string, body any) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fullPath := path
	req := c.client.R().SetContext(cctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
		fullPath += "?" + req.QueryParam.Encode()
	}

	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
		req.SetBody(raw).SetHeader("Content-Type", "application/json")
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.SetHeader("ACCESS-KEY", c.apiKey).
		SetHeader("ACCESS-SIGN", c.sign(timestamp, method, fullPath, bodyStr)).
		SetHeader("ACCESS-TIMESTAMP", timestamp).
		SetHeader("ACCESS-PASSPHRASE", c.passphrase)

	c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, classifyNetErr(err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() == 418:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode())
	case resp.StatusCode() >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode(), resp.String())
	}

	var envelope apiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.IsError() || envelope.Code != codeOK {
		return nil, &RejectedError{Code: envelope.Code, Reason: envelope.Msg}
	}
	return &envelope, nil
}

// GetServerTime fetches the current server time.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (time.Time, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pathServerTime, nil, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get server time: %w", err)
	}
	var data struct {
		ServerTime string `json:"serverTime"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return time.Time{}, fmt.Errorf("decode server time: %w", err)
	}
	ms, err := strconv.ParseInt(data.ServerTime, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse server time %q: %w", data.ServerTime, err)
	}
	return time.UnixMilli(ms), nil
}

// tickerPayload is one entry of the tickers endpoint.
type tickerPayload struct {
	Symbol string `json:"symbol"`
	LastPr string `json:"lastPr"`
	BidPr  string `json:"bidPr"`
	AskPr  string `json:"askPr"`
	Ts     string `json:"ts"`
}

// GetTicker fetches the latest best bid/ask and last price for a symbol.
func (c *RestClient) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pathTickers, map[string]string{"symbol": symbol}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker for %s: %w", symbol, err)
	}
	var data []tickerPayload
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	if len(data) == 0 {
		return nil, &RejectedError{Code: "40034", Reason: fmt.Sprintf("symbol %s not found", symbol)}
	}
	t := data[0]
	ms, _ := strconv.ParseInt(t.Ts, 10, 64)
	return &Ticker{
		Symbol:    t.Symbol,
		BestBid:   dec(t.BidPr),
		BestAsk:   dec(t.AskPr),
		LastPrice: dec(t.LastPr),
		Timestamp: time.UnixMilli(ms),
	}, nil
}

// PlaceOrder places a new order.
func (c *RestClient) PlaceOrder(ctx context.Context, r PlaceOrderRequest) (*OrderAck, error) {
	body := map[string]string{
		"symbol":    r.Symbol,
		"side":      r.Side,
		"orderType": r.OrderType,
		"force":     "gtc",
		"size":      r.Size.String(),
	}
	if r.OrderType == OrderTypeLimit {
		body["price"] = r.Price.String()
	}
	if r.ClientOID != "" {
		body["clientOid"] = r.ClientOID
	}

	resp, err := c.doRequest(ctx, http.MethodPost, pathPlaceOrder, nil, body)
	if err != nil {
		c.logger.Warn("Failed to place order",
			zap.String("symbol", r.Symbol),
			zap.String("side", r.Side),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	var data struct {
		OrderID   string `json:"orderId"`
		ClientOID string `json:"clientOid"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode order ack: %w", err)
	}
	c.logger.Info("Order placed",
		zap.String("symbol", r.Symbol),
		zap.String("side", r.Side),
		zap.String("order_id", data.OrderID),
	)
	return &OrderAck{OrderID: data.OrderID, ClientOID: data.ClientOID}, nil
}

// CancelOrder cancels an open order by its exchange identifier.
func (c *RestClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]string{"symbol": symbol, "orderId": orderID}
	if _, err := c.doRequest(ctx, http.MethodPost, pathCancelOrder, nil, body); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// orderPayload is the remote order shape shared by orderInfo and unfilled-orders.
type orderPayload struct {
	OrderID    string `json:"orderId"`
	ClientOID  string `json:"clientOid"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Status     string `json:"status"`
	Size       string `json:"size"`
	BaseVolume string `json:"baseVolume"`
	PriceAvg   string `json:"priceAvg"`
}

func (p orderPayload) toStatus() OrderStatus {
	return OrderStatus{
		OrderID:      p.OrderID,
		ClientOID:    p.ClientOID,
		Symbol:       p.Symbol,
		Side:         p.Side,
		Status:       p.Status,
		Size:         dec(p.Size),
		FilledSize:   dec(p.BaseVolume),
		AvgFillPrice: dec(p.PriceAvg),
	}
}

// GetOrderStatus fetches the remote view of one order including its fills.
func (c *RestClient) GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pathOrderInfo, map[string]string{"orderId": orderID}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get order status %s: %w", orderID, err)
	}
	var data []orderPayload
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode order status: %w", err)
	}
	if len(data) == 0 {
		return nil, &RejectedError{Code: "43001", Reason: fmt.Sprintf("order %s not found", orderID)}
	}
	status := data[0].toStatus()

	// Fills carry the exchange fill identifiers the engine deduplicates on.
	if status.FilledSize.IsPositive() {
		fills, err := c.getOrderFills(ctx, symbol, orderID)
		if err != nil {
			return nil, err
		}
		status.Fills = fills
	}
	return &status, nil
}

type fillPayload struct {
	TradeID string `json:"tradeId"`
	OrderID string `json:"orderId"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Price   string `json:"priceAvg"`
	Size    string `json:"size"`
	CTime   string `json:"cTime"`
}

func (c *RestClient) getOrderFills(ctx context.Context, symbol, orderID string) ([]Fill, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pathOrderFills,
		map[string]string{"symbol": symbol, "orderId": orderID}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get fills for order %s: %w", orderID, err)
	}
	var data []fillPayload
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode fills: %w", err)
	}
	fills := make([]Fill, 0, len(data))
	for _, f := range data {
		ms, _ := strconv.ParseInt(f.CTime, 10, 64)
		fills = append(fills, Fill{
			FillID:    f.TradeID,
			OrderID:   f.OrderID,
			Symbol:    f.Symbol,
			Side:      f.Side,
			Price:     dec(f.Price),
			Quantity:  dec(f.Size),
			Timestamp: time.UnixMilli(ms),
		})
	}
	return fills, nil
}

// GetOpenOrders fetches all non-terminal orders for a symbol.
func (c *RestClient) GetOpenOrders(ctx context.Context, symbol string) ([]OrderStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pathOpenOrders, map[string]string{"symbol": symbol}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders for %s: %w", symbol, err)
	}
	var data []orderPayload
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	statuses := make([]OrderStatus, 0, len(data))
	for _, p := range data {
		statuses = append(statuses, p.toStatus())
	}
	return statuses, nil
}

type assetPayload struct {
	Coin      string `json:"coin"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
}

// GetAccountBalance fetches the spot account balances.
func (c *RestClient) GetAccountBalance(ctx context.Context) ([]Balance, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pathAccountAssets, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}
	var data []assetPayload
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode balances: %w", err)
	}
	balances := make([]Balance, 0, len(data))
	for _, a := range data {
		balances = append(balances, Balance{
			Asset:     a.Coin,
			Available: dec(a.Available),
			Frozen:    dec(a.Frozen),
		})
	}
	return balances, nil
}

// dec parses a decimal string, treating the empty string and garbage as zero.
// Exchange payloads leave numeric fields empty rather than null.
func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
