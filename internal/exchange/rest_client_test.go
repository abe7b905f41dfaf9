package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	rc := &RestClient{
		client:     resty.New().SetBaseURL(server.URL),
		apiKey:     "test_api_key",
		secretKey:  "test_secret_key",
		passphrase: "test_passphrase",
		timeout:    time.Second,
		logger:     zap.NewNop(), // Use a no-op logger for tests
		limiter:    rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, pathServerTime, r.URL.Path)
			assert.NotEmpty(t, r.Header.Get("ACCESS-KEY"))
			assert.NotEmpty(t, r.Header.Get("ACCESS-SIGN"))
			assert.NotEmpty(t, r.Header.Get("ACCESS-TIMESTAMP"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":{"serverTime":"1756700000000"}}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := rc.GetServerTime(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, int64(1756700000000), serverTime.UnixMilli())
	})

	t.Run("ServerError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`upstream unavailable`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetServerTime(context.Background())

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("RateLimited", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetServerTime(context.Background())

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.True(t, IsTransient(err))
	})

	t.Run("Timeout", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()
		rc.timeout = 20 * time.Millisecond

		_, err := rc.GetServerTime(context.Background())

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.True(t, IsTransient(err))
	})
}

func TestGetTicker(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, pathTickers, r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":[
				{"symbol":"BTCUSDT","lastPr":"65000.5","bidPr":"64999.9","askPr":"65001.1","ts":"1756700000000"}
			]}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		ticker, err := rc.GetTicker(context.Background(), "BTCUSDT")

		assert.NoError(t, err)
		assert.Equal(t, "BTCUSDT", ticker.Symbol)
		assert.True(t, ticker.LastPrice.Equal(decimal.NewFromFloat(65000.5)))
		assert.True(t, ticker.BestBid.Equal(decimal.NewFromFloat(64999.9)))
		assert.True(t, ticker.BestAsk.Equal(decimal.NewFromFloat(65001.1)))
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":[]}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetTicker(context.Background(), "NOPEUSDT")

		var rej *RejectedError
		assert.ErrorAs(t, err, &rej)
		assert.False(t, IsTransient(err))
	})
}

func TestPlaceOrder(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, pathPlaceOrder, r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":{"orderId":"121211212122","clientOid":"local-1"}}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		ack, err := rc.PlaceOrder(context.Background(), PlaceOrderRequest{
			Symbol:    "BTCUSDT",
			Side:      OrderSideBuy,
			OrderType: OrderTypeMarket,
			Size:      decimal.NewFromFloat(0.01),
			ClientOID: "local-1",
		})

		assert.NoError(t, err)
		assert.Equal(t, "121211212122", ack.OrderID)
		assert.Equal(t, "local-1", ack.ClientOID)
	})

	t.Run("Rejected", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"43012","msg":"Insufficient balance","data":null}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.PlaceOrder(context.Background(), PlaceOrderRequest{
			Symbol:    "BTCUSDT",
			Side:      OrderSideBuy,
			OrderType: OrderTypeMarket,
			Size:      decimal.NewFromInt(100),
		})

		var rej *RejectedError
		assert.ErrorAs(t, err, &rej)
		assert.Equal(t, "43012", rej.Code)
		assert.Equal(t, "Insufficient balance", rej.Reason)
		assert.False(t, IsTransient(err))
	})
}

func TestGetOrderStatus(t *testing.T) {
	t.Run("FilledWithFills", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case pathOrderInfo:
				assert.Equal(t, "121211212122", r.URL.Query().Get("orderId"))
				_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":[
					{"orderId":"121211212122","clientOid":"local-1","symbol":"BTCUSDT","side":"buy",
					 "status":"filled","size":"0.01","baseVolume":"0.01","priceAvg":"65000"}
				]}`))
			case pathOrderFills:
				_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":[
					{"tradeId":"t1","orderId":"121211212122","symbol":"BTCUSDT","side":"buy",
					 "priceAvg":"65000","size":"0.01","cTime":"1756700000000"}
				]}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		status, err := rc.GetOrderStatus(context.Background(), "BTCUSDT", "121211212122")

		assert.NoError(t, err)
		assert.Equal(t, StatusFilled, status.Status)
		assert.True(t, status.FilledSize.Equal(decimal.NewFromFloat(0.01)))
		assert.Len(t, status.Fills, 1)
		assert.Equal(t, "t1", status.Fills[0].FillID)
		assert.True(t, status.Fills[0].Price.Equal(decimal.NewFromInt(65000)))
	})

	t.Run("NotFound", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":[]}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetOrderStatus(context.Background(), "BTCUSDT", "missing")

		var rej *RejectedError
		assert.ErrorAs(t, err, &rej)
	})
}

func TestGetAccountBalance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathAccountAssets, r.URL.Path)
		_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"coin":"BTC","available":"0.5","frozen":"0.1"},
			{"coin":"USDT","available":"1000","frozen":""}
		]}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	balances, err := rc.GetAccountBalance(context.Background())

	assert.NoError(t, err)
	assert.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.True(t, balances[0].Total().Equal(decimal.NewFromFloat(0.6)))
	assert.True(t, balances[1].Total().Equal(decimal.NewFromInt(1000)))
}

func TestSign(t *testing.T) {
	rc := &RestClient{secretKey: "secret"}
	// Deterministic for fixed inputs; the exchange recomputes the same value.
	s1 := rc.sign("1756700000000", http.MethodGet, "/api/v2/public/time", "")
	s2 := rc.sign("1756700000000", http.MethodGet, "/api/v2/public/time", "")
	s3 := rc.sign("1756700000001", http.MethodGet, "/api/v2/public/time", "")
	assert.Equal(t, s1, s2)
	assert.NotEqual(t, s1, s3)
	assert.NotEmpty(t, s1)
}
