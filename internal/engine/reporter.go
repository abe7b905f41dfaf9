package engine

import (
	"context"
	"sync/atomic"
	"time"

	"bitget-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

const deliverTimeout = 5 * time.Second

// Sink receives events for delivery. Implementations are external
// collaborators (Telegram, the report store); a failing sink never affects
// trading state.
type Sink interface {
	Deliver(ctx context.Context, e models.Event) error
}

// Reporter fans events out to the configured sinks. Emit is non-blocking:
// when the buffer is full the event is dropped and counted, never stalling
// a producer on the trading path.
type Reporter struct {
	logger  *zap.Logger
	ch      chan models.Event
	sinks   []Sink
	dropped atomic.Int64
}

// NewReporter creates a reporter with the given buffer size and sinks.
func NewReporter(logger *zap.Logger, buffer int, sinks ...Sink) *Reporter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Reporter{
		logger: logger.Named("reporter"),
		ch:     make(chan models.Event, buffer),
		sinks:  sinks,
	}
}

// Emit hands an event to the reporter. Best effort, never blocks.
func (r *Reporter) Emit(e models.Event) {
	select {
	case r.ch <- e:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("Event buffer full, dropping event",
			zap.String("kind", string(e.Kind)),
			zap.Int64("dropped_total", n),
		)
	}
}

// Dropped returns the number of events discarded due to a full buffer.
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

// Run delivers queued events until ctx is cancelled. Sink failures are
// logged locally and never raised back into the trading path.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.ch:
			r.logger.Debug("Event",
				zap.String("kind", string(e.Kind)),
				zap.String("symbol", e.Symbol),
				zap.String("order_id", e.OrderID),
				zap.String("message", e.Message),
			)
			for _, s := range r.sinks {
				dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
				if err := s.Deliver(dctx, e); err != nil {
					r.logger.Warn("Sink delivery failed",
						zap.String("kind", string(e.Kind)),
						zap.Error(err),
					)
				}
				cancel()
			}
		}
	}
}
