// Package marketdata normalizes the exchange ticker feed into snapshots the
// strategy runners consume.
package marketdata

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"bitget-trade-bot-go/internal/exchange"
	"bitget-trade-bot-go/internal/models"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	pingInterval     = 25 * time.Second
	readDeadline     = 40 * time.Second
	reconnectBase    = time.Second
	reconnectMax     = 30 * time.Second
	pollInterval     = 5 * time.Second
	handshakeTimeout = 10 * time.Second
)

// EventSink receives feed lifecycle events (interruptions). Satisfied by the
// engine's event reporter.
type EventSink interface {
	Emit(e models.Event)
}

// Adapter owns the websocket ticker feed and republishes normalized snapshots
// per instrument. When the socket is down it falls back to REST polling so
// the runners keep receiving (slower) data.
type Adapter struct {
	logger *zap.Logger
	wsURL  string
	client exchange.Client
	sink   EventSink

	mu    sync.Mutex
	feeds map[string]*feed
}

// feed is the per-instrument fan-out point. The channel has capacity one and
// is written latest-wins: a slow consumer observes the newest snapshot, never
// an unbounded backlog.
type feed struct {
	out    chan models.Snapshot
	lastTS time.Time
}

// NewAdapter creates a market data adapter. client is used for REST polling
// when the websocket is unavailable.
func NewAdapter(wsURL string, client exchange.Client, sink EventSink, logger *zap.Logger) *Adapter {
	return &Adapter{
		logger: logger.Named("marketdata"),
		wsURL:  wsURL,
		client: client,
		sink:   sink,
		feeds:  make(map[string]*feed),
	}
}

// Subscribe registers an instrument and returns its snapshot channel.
// The sequence is lazy, infinite and non-restartable; timestamps are
// monotonically non-decreasing per instrument.
func (a *Adapter) Subscribe(symbol string) <-chan models.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f, ok := a.feeds[symbol]; ok {
		return f.out
	}
	f := &feed{out: make(chan models.Snapshot, 1)}
	a.feeds[symbol] = f
	return f.out
}

// Publish pushes a snapshot into the instrument's feed. Out-of-order
// snapshots are dropped; if the consumer has not drained the previous
// snapshot it is replaced. The lock is held through the send so concurrent
// publishers (websocket handler, REST poll) cannot reorder the stream; none
// of the channel operations block.
func (a *Adapter) Publish(snap models.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.feeds[snap.Symbol]
	if !ok {
		return
	}
	if snap.Timestamp.Before(f.lastTS) {
		return
	}
	f.lastTS = snap.Timestamp

	select {
	case f.out <- snap:
	default:
		// Consumer is behind: drop the stale snapshot, keep the new one.
		select {
		case <-f.out:
		default:
		}
		select {
		case f.out <- snap:
		default:
		}
	}
}

func (a *Adapter) symbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.feeds))
	for s := range a.feeds {
		out = append(out, s)
	}
	return out
}

// Run drives the websocket connection until ctx is cancelled, reconnecting
// with capped exponential backoff. Each disconnect surfaces a
// FEED_INTERRUPTED event; runners treat the instrument as stale, not fatal.
func (a *Adapter) Run(ctx context.Context) {
	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()
	go a.pollLoop(pollCtx)

	backoff := reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}
		err := a.runConn(ctx)
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("Feed disconnected, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		for _, symbol := range a.symbols() {
			ev := models.NewEvent(models.EventFeedInterrupted, symbol)
			if err != nil {
				ev.Err = err.Error()
			}
			a.sink.Emit(ev)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// subscribeMsg is the Bitget v2 public subscription request.
type subscribeMsg struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

// tickerMsg is a ticker channel push.
type tickerMsg struct {
	Action string       `json:"action"`
	Arg    subscribeArg `json:"arg"`
	Data   []struct {
		InstID string `json:"instId"`
		LastPr string `json:"lastPr"`
		BidPr  string `json:"bidPr"`
		AskPr  string `json:"askPr"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

// runConn runs one websocket session: connect, subscribe, read until failure.
func (a *Adapter) runConn(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	a.logger.Info("Feed connected", zap.String("url", a.wsURL))

	args := make([]subscribeArg, 0)
	for _, symbol := range a.symbols() {
		args = append(args, subscribeArg{InstType: "SPOT", Channel: "ticker", InstID: symbol})
	}
	if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Args: args}); err != nil {
		return err
	}

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go a.pingLoop(ctx, conn, done)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(raw) == "pong" {
			continue
		}
		a.handleMessage(raw)
	}
}

func (a *Adapter) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (a *Adapter) handleMessage(raw []byte) {
	var msg tickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.logger.Debug("Unparseable feed message", zap.ByteString("raw", raw))
		return
	}
	if msg.Arg.Channel != "ticker" || len(msg.Data) == 0 {
		return
	}
	for _, d := range msg.Data {
		ms, err := strconv.ParseInt(d.Ts, 10, 64)
		if err != nil {
			continue
		}
		a.Publish(models.Snapshot{
			Symbol:    d.InstID,
			Timestamp: time.UnixMilli(ms),
			BestBid:   dec(d.BidPr),
			BestAsk:   dec(d.AskPr),
			LastPrice: dec(d.LastPr),
		})
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// pollLoop fetches tickers over REST on a fixed interval. The monotonic
// timestamp guard in Publish keeps polled data from regressing the stream
// when the websocket is healthy.
func (a *Adapter) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range a.symbols() {
				t, err := a.client.GetTicker(ctx, symbol)
				if err != nil {
					a.logger.Debug("Ticker poll failed", zap.String("symbol", symbol), zap.Error(err))
					continue
				}
				a.Publish(models.Snapshot{
					Symbol:    t.Symbol,
					Timestamp: t.Timestamp,
					BestBid:   t.BestBid,
					BestAsk:   t.BestAsk,
					LastPrice: t.LastPrice,
				})
			}
		}
	}
}
