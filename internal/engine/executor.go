package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitget-trade-bot-go/internal/exchange"
	"bitget-trade-bot-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExecutorConfig bounds the executor's retry and expiry policy.
type ExecutorConfig struct {
	MaxAttempts int           // total placeOrder attempts per order
	BackoffBase time.Duration // first retry delay, doubled per attempt
	OrderTTL    time.Duration // max time in SUBMITTED/ACKNOWLEDGED before a cancel is issued
}

// Executor turns approved signals into exchange orders and drives each order
// through its state machine until terminal. An approved signal is never
// silently dropped: failure paths always end in a REJECTED transition and an
// event.
type Executor struct {
	logger   *zap.Logger
	client   exchange.Client
	tracker  *Tracker
	reporter *Reporter
	cfg      ExecutorConfig
}

// NewExecutor creates an order executor.
func NewExecutor(logger *zap.Logger, client exchange.Client, tracker *Tracker, reporter *Reporter, cfg ExecutorConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = 2 * time.Minute
	}
	return &Executor{
		logger:   logger.Named("executor"),
		client:   client,
		tracker:  tracker,
		reporter: reporter,
		cfg:      cfg,
	}
}

// Execute creates and submits one order for an approved signal. size is the
// tracker-adjusted size. Blocks until the order is acknowledged or rejected;
// fills arrive later through reconciliation.
func (e *Executor) Execute(ctx context.Context, sig models.Signal, size decimal.Decimal) error {
	now := time.Now()
	order := models.Order{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Side:      sig.Action.Side(),
		Size:      size,
		Limit:     sig.Limit,
		State:     models.OrderCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.tracker.Register(order); err != nil {
		return fmt.Errorf("register order: %w", err)
	}
	if _, err := e.tracker.Transition(order.Symbol, order.ID, models.OrderSubmitted, ""); err != nil {
		return err
	}
	return e.submit(ctx, order)
}

// submit drives the placeOrder call with bounded exponential backoff on
// transient failure. Exactly one ORDER_SUBMIT_ATTEMPT event is emitted per
// attempt, plus one ORDER_SUBMITTED event on success.
func (e *Executor) submit(ctx context.Context, order models.Order) error {
	req := exchange.PlaceOrderRequest{
		Symbol:    order.Symbol,
		Side:      sideToRequest(order.Side),
		OrderType: exchange.OrderTypeMarket,
		Size:      order.Size,
		ClientOID: order.ID,
	}
	if order.Limit.IsPositive() {
		req.OrderType = exchange.OrderTypeLimit
		req.Price = order.Limit
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := e.cfg.BackoffBase << (attempt - 2)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				e.reject(order, fmt.Sprintf("submission aborted: %v", ctx.Err()))
				return ctx.Err()
			}
		}

		n := e.tracker.NoteAttempt(order.Symbol, order.ID)
		ev := models.NewEvent(models.EventOrderSubmitAttempt, order.Symbol)
		ev.OrderID = order.ID
		ev.Side = order.Side
		ev.Quantity = order.Size
		ev.Message = fmt.Sprintf("attempt %d/%d", n, e.cfg.MaxAttempts)
		e.reporter.Emit(ev)

		ack, err := e.client.PlaceOrder(ctx, req)
		if err == nil {
			e.tracker.SetRemoteID(order.Symbol, order.ID, ack.OrderID)

			ok := models.NewEvent(models.EventOrderSubmitted, order.Symbol)
			ok.OrderID = order.ID
			ok.Side = order.Side
			ok.Quantity = order.Size
			ok.Message = fmt.Sprintf("acknowledged as %s after %d attempt(s)", ack.OrderID, n)
			e.reporter.Emit(ok)

			_, terr := e.tracker.Transition(order.Symbol, order.ID, models.OrderAcknowledged, "")
			return terr
		}

		var rej *exchange.RejectedError
		if errors.As(err, &rej) {
			e.reject(order, rej.Reason)
			return err
		}
		if !exchange.IsTransient(err) {
			e.reject(order, err.Error())
			return err
		}

		lastErr = err
		e.logger.Warn("Order submission failed, will retry",
			zap.String("order_id", order.ID),
			zap.Int("attempt", n),
			zap.Error(err),
		)
	}

	e.reject(order, fmt.Sprintf("retries exhausted after %d attempts: %v", e.cfg.MaxAttempts, lastErr))
	return fmt.Errorf("order %s: retries exhausted: %w", order.ID, lastErr)
}

func (e *Executor) reject(order models.Order, reason string) {
	if _, err := e.tracker.Transition(order.Symbol, order.ID, models.OrderRejected, reason); err != nil {
		e.logger.Error("Failed to mark order rejected", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// Cancel issues a cancelOrder for a non-terminal order. On transient failure
// the order stays non-terminal and the next reconciliation or expiry pass
// retries.
func (e *Executor) Cancel(ctx context.Context, symbol, orderID, reason string) error {
	o, ok := e.tracker.Order(symbol, orderID)
	if !ok {
		return fmt.Errorf("order %s not found or already terminal", orderID)
	}
	if o.RemoteID == "" {
		// Never acknowledged: nothing to cancel remotely.
		_, err := e.tracker.Transition(symbol, orderID, models.OrderExpired, reason)
		return err
	}
	if err := e.client.CancelOrder(ctx, symbol, o.RemoteID); err != nil {
		var rej *exchange.RejectedError
		if errors.As(err, &rej) {
			// Typically already filled or already cancelled; reconciliation
			// resolves the true terminal state.
			e.logger.Info("Cancel rejected by exchange, deferring to reconciliation",
				zap.String("order_id", orderID),
				zap.String("reason", rej.Reason),
			)
			return nil
		}
		return err
	}
	_, err := e.tracker.Transition(symbol, orderID, models.OrderCancelled, reason)
	return err
}

// Run drives timeout-based order expiry until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	interval := e.cfg.OrderTTL / 4
	if interval > 10*time.Second {
		interval = 10 * time.Second
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.expireStale(ctx)
		}
	}
}

// expireStale cancels orders that sat in SUBMITTED or ACKNOWLEDGED past the
// configured TTL without reaching a terminal state.
func (e *Executor) expireStale(ctx context.Context) {
	cutoff := time.Now().Add(-e.cfg.OrderTTL)
	for _, symbol := range e.tracker.Symbols() {
		for _, o := range e.tracker.OpenOrders(symbol) {
			if o.State != models.OrderSubmitted && o.State != models.OrderAcknowledged {
				continue
			}
			if o.UpdatedAt.After(cutoff) {
				continue
			}
			e.logger.Warn("Order exceeded TTL, cancelling",
				zap.String("symbol", symbol),
				zap.String("order_id", o.ID),
				zap.Duration("ttl", e.cfg.OrderTTL),
			)
			if err := e.Cancel(ctx, symbol, o.ID, "order TTL exceeded"); err != nil {
				e.logger.Warn("TTL cancel failed, will retry",
					zap.String("order_id", o.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func sideToRequest(s models.Side) string {
	if s == models.SideSell {
		return exchange.OrderSideSell
	}
	return exchange.OrderSideBuy
}
