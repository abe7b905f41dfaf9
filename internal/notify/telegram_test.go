package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitget-trade-bot-go/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestTelegram(server *httptest.Server) *Telegram {
	return &Telegram{
		client: resty.New().SetBaseURL(server.URL),
		chatID: "424242",
		logger: zap.NewNop(),
	}
}

func TestDeliver_SendsFormattedMessage(t *testing.T) {
	var gotPath, gotChat, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotChat = r.URL.Query().Get("chat_id")
		gotText = r.URL.Query().Get("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tg := newTestTelegram(server)
	ev := models.NewEvent(models.EventOrderFilled, "BTCUSDT")
	ev.OrderID = "o1"
	ev.Side = models.SideBuy
	ev.Quantity = decimal.NewFromFloat(0.5)
	ev.Price = decimal.NewFromInt(65000)

	err := tg.Deliver(context.Background(), ev)

	assert.NoError(t, err)
	assert.Equal(t, "/sendMessage", gotPath)
	assert.Equal(t, "424242", gotChat)
	assert.Contains(t, gotText, "BTCUSDT")
	assert.Contains(t, gotText, "0.5")
	assert.Contains(t, gotText, "65000")
}

func TestDeliver_SkipsLowSignalKinds(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	tg := newTestTelegram(server)
	for _, kind := range []models.EventKind{
		models.EventOrderSubmitAttempt,
		models.EventOrderSubmitted,
		models.EventOrderAcknowledged,
		models.EventOrderPartialFill,
		models.EventSignalRejected,
	} {
		assert.NoError(t, tg.Deliver(context.Background(), models.NewEvent(kind, "BTCUSDT")))
	}
	assert.False(t, called)
}

func TestDeliver_SurfacesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bot was blocked"}`))
	}))
	defer server.Close()

	tg := newTestTelegram(server)
	err := tg.Deliver(context.Background(), models.NewEvent(models.EventRiskBreach, "BTCUSDT"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFormatEvent(t *testing.T) {
	ev := models.NewEvent(models.EventReconcileDrift, "ETHUSDT")
	ev.Message = "balance mismatch"
	assert.Contains(t, formatEvent(ev), "balance mismatch")

	breach := models.NewEvent(models.EventRiskBreach, "BTCUSDT")
	breach.Message = "stop-loss"
	assert.Contains(t, formatEvent(breach), "stop-loss")

	assert.Empty(t, formatEvent(models.NewEvent(models.EventOrderSubmitAttempt, "BTCUSDT")))
}
