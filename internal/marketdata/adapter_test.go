package marketdata

import (
	"sync"
	"testing"
	"time"

	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type nopSink struct{}

func (nopSink) Emit(models.Event) {}

func newTestAdapter() *Adapter {
	return NewAdapter("ws://unused", nil, nopSink{}, zap.NewNop())
}

func snapAt(ts time.Time, price float64) models.Snapshot {
	return models.Snapshot{
		Symbol:    "BTCUSDT",
		Timestamp: ts,
		LastPrice: decimal.NewFromFloat(price),
	}
}

func TestPublish_DropsOutOfOrderSnapshots(t *testing.T) {
	a := newTestAdapter()
	out := a.Subscribe("BTCUSDT")

	now := time.Now()
	a.Publish(snapAt(now, 100))

	got := <-out
	assert.True(t, got.LastPrice.Equal(decimal.NewFromInt(100)))

	// An older snapshot must never regress the stream.
	a.Publish(snapAt(now.Add(-time.Second), 90))
	select {
	case snap := <-out:
		t.Errorf("stale snapshot delivered: %v", snap)
	default:
	}

	a.Publish(snapAt(now.Add(time.Second), 110))
	got = <-out
	assert.True(t, got.LastPrice.Equal(decimal.NewFromInt(110)))
}

func TestPublish_LatestWinsForSlowConsumer(t *testing.T) {
	a := newTestAdapter()
	out := a.Subscribe("BTCUSDT")

	now := time.Now()
	a.Publish(snapAt(now, 100))
	a.Publish(snapAt(now.Add(time.Second), 101))
	a.Publish(snapAt(now.Add(2*time.Second), 102))

	// The consumer never blocks the feed and observes only the newest value.
	got := <-out
	assert.True(t, got.LastPrice.Equal(decimal.NewFromInt(102)), "got %s", got.LastPrice)
	select {
	case snap := <-out:
		t.Errorf("unexpected backlog: %v", snap)
	default:
	}
}

func TestPublish_ConcurrentPublishersNeverRegress(t *testing.T) {
	a := newTestAdapter()
	out := a.Subscribe("BTCUSDT")
	base := time.Now()

	// Two publishers racing over the same timeline, as the websocket handler
	// and the REST poll loop do. The consumer must only ever observe
	// non-decreasing timestamps.
	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				a.Publish(snapAt(base.Add(time.Duration(i)*time.Millisecond), float64(100+i)))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var last time.Time
	for {
		select {
		case snap := <-out:
			assert.False(t, snap.Timestamp.Before(last),
				"timestamp regressed: %v after %v", snap.Timestamp, last)
			last = snap.Timestamp
		case <-done:
			for {
				select {
				case snap := <-out:
					assert.False(t, snap.Timestamp.Before(last))
					last = snap.Timestamp
					continue
				default:
				}
				return
			}
		}
	}
}

func TestPublish_UnknownSymbolIgnored(t *testing.T) {
	a := newTestAdapter()
	assert.NotPanics(t, func() {
		a.Publish(snapAt(time.Now(), 100))
	})
}

func TestSubscribe_SameChannelPerSymbol(t *testing.T) {
	a := newTestAdapter()
	first := a.Subscribe("BTCUSDT")
	second := a.Subscribe("BTCUSDT")
	assert.Equal(t, first, second)
}

func TestHandleMessage_ParsesTickerPush(t *testing.T) {
	a := newTestAdapter()
	out := a.Subscribe("BTCUSDT")

	raw := []byte(`{"action":"snapshot","arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"},
		"data":[{"instId":"BTCUSDT","lastPr":"65000.5","bidPr":"64999.9","askPr":"65001.1","ts":"1756700000000"}]}`)
	a.handleMessage(raw)

	select {
	case snap := <-out:
		assert.Equal(t, "BTCUSDT", snap.Symbol)
		assert.True(t, snap.LastPrice.Equal(decimal.NewFromFloat(65000.5)))
		assert.True(t, snap.BestBid.Equal(decimal.NewFromFloat(64999.9)))
		assert.True(t, snap.BestAsk.Equal(decimal.NewFromFloat(65001.1)))
		assert.Equal(t, int64(1756700000000), snap.Timestamp.UnixMilli())
	default:
		t.Fatal("no snapshot published")
	}
}

func TestHandleMessage_IgnoresNoise(t *testing.T) {
	a := newTestAdapter()
	out := a.Subscribe("BTCUSDT")

	a.handleMessage([]byte(`{"event":"subscribe","arg":{"channel":"ticker","instId":"BTCUSDT"}}`))
	a.handleMessage([]byte(`not json`))
	a.handleMessage([]byte(`{"action":"snapshot","arg":{"channel":"candle1m","instId":"BTCUSDT"},"data":[{}]}`))

	select {
	case snap := <-out:
		t.Errorf("noise produced a snapshot: %v", snap)
	default:
	}
}
