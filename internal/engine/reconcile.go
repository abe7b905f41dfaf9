package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitget-trade-bot-go/internal/exchange"
	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciler periodically cross-checks local order and balance state against
// the exchange and corrects drift through the tracker. Irreconcilable drift
// is flagged (RECONCILE_DRIFT + quarantine), never silently overwritten.
type Reconciler struct {
	logger     *zap.Logger
	client     exchange.Client
	tracker    *Tracker
	reporter   *Reporter
	interval   time.Duration
	balanceTol decimal.Decimal
}

// NewReconciler creates a reconciliation loop.
func NewReconciler(logger *zap.Logger, client exchange.Client, tracker *Tracker, reporter *Reporter,
	interval time.Duration, balanceTol decimal.Decimal) *Reconciler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reconciler{
		logger:     logger.Named("reconciler"),
		client:     client,
		tracker:    tracker,
		reporter:   reporter,
		interval:   interval,
		balanceTol: balanceTol,
	}
}

// Run executes reconciliation passes on a fixed interval until ctx is
// cancelled. The cadence is independent of order submission.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Pass(ctx)
		}
	}
}

// Pass runs one reconciliation sweep: every local non-terminal order is
// compared to its remote state, then balances are checked per instrument.
func (r *Reconciler) Pass(ctx context.Context) {
	for _, symbol := range r.tracker.Symbols() {
		for _, o := range r.tracker.OpenOrders(symbol) {
			r.reconcileOrder(ctx, o)
		}
	}
	r.reconcileBalances(ctx)
}

func (r *Reconciler) reconcileOrder(ctx context.Context, o models.Order) {
	if o.RemoteID == "" {
		// Not acknowledged yet; the executor's retry/expiry path owns it.
		return
	}

	status, err := r.client.GetOrderStatus(ctx, o.Symbol, o.RemoteID)
	if err != nil {
		var rej *exchange.RejectedError
		if errors.As(err, &rej) {
			// The exchange does not know the order: irreconcilable.
			r.flagDrift(o.Symbol, o.ID, fmt.Sprintf("remote order %s unknown: %s", o.RemoteID, rej.Reason))
			return
		}
		r.logger.Debug("Order status fetch failed, retrying next pass",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}

	r.applyRemote(o, status)
}

// applyRemote folds the remote view into local state. Fill application is
// idempotent, so observing the same remote state across many passes changes
// local state exactly once.
func (r *Reconciler) applyRemote(o models.Order, status *exchange.OrderStatus) {
	fills := status.Fills
	if len(fills) == 0 && status.FilledSize.GreaterThan(o.FilledSize) {
		// Remote reports executed volume without fill detail. Synthesize the
		// missing delta, keyed by the cumulative size so re-observing the
		// same volume deduplicates while a grown volume produces a new fill.
		fills = []exchange.Fill{{
			FillID:    "reconciled-" + status.OrderID + "@" + status.FilledSize.String(),
			OrderID:   status.OrderID,
			Symbol:    o.Symbol,
			Price:     status.AvgFillPrice,
			Quantity:  status.FilledSize.Sub(o.FilledSize),
			Timestamp: time.Now(),
		}}
	}

	for _, f := range fills {
		applied, err := r.tracker.ApplyFill(models.Fill{
			FillID:    f.FillID,
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Quantity:  f.Quantity,
			Price:     f.Price,
			Timestamp: f.Timestamp,
		})
		if err != nil {
			r.logger.Warn("Reconciled fill not applicable",
				zap.String("order_id", o.ID),
				zap.String("fill_id", f.FillID),
				zap.Error(err),
			)
			continue
		}
		if applied {
			r.logger.Info("Reconciliation applied missed fill",
				zap.String("symbol", o.Symbol),
				zap.String("order_id", o.ID),
				zap.String("fill_id", f.FillID),
			)
		}
	}

	// Terminal remote states the fills did not already produce locally.
	var target models.OrderState
	switch status.Status {
	case exchange.StatusCancelled:
		target = models.OrderCancelled
	case exchange.StatusExpired:
		target = models.OrderExpired
	case exchange.StatusRejected:
		target = models.OrderRejected
	case exchange.StatusLive:
		if o.State == models.OrderSubmitted {
			target = models.OrderAcknowledged
		}
	}
	if target == "" {
		return
	}
	if _, ok := r.tracker.Order(o.Symbol, o.ID); !ok {
		return // already terminal
	}
	if _, err := r.tracker.Transition(o.Symbol, o.ID, target, "reconciled from remote state"); err != nil {
		r.logger.Warn("Reconciliation transition failed",
			zap.String("order_id", o.ID),
			zap.String("target", string(target)),
			zap.Error(err),
		)
	}
}

// reconcileBalances compares each instrument's base-asset balance against the
// local position. A mismatch beyond tolerance is drift: the instrument is
// quarantined for review, the position is never silently overwritten.
func (r *Reconciler) reconcileBalances(ctx context.Context) {
	balances, err := r.client.GetAccountBalance(ctx)
	if err != nil {
		r.logger.Debug("Balance fetch failed, retrying next pass", zap.Error(err))
		return
	}
	byAsset := make(map[string]exchange.Balance, len(balances))
	for _, b := range balances {
		byAsset[b.Asset] = b
	}

	for _, symbol := range r.tracker.Symbols() {
		inst, ok := r.tracker.Instrument(symbol)
		if !ok {
			continue
		}
		pos := r.tracker.Position(symbol)
		held := byAsset[inst.BaseAsset].Total()
		diff := held.Sub(pos.Quantity).Abs()
		if diff.GreaterThan(r.balanceTol) {
			r.flagDrift(symbol, "", fmt.Sprintf(
				"balance mismatch for %s: exchange holds %s, local position %s",
				inst.BaseAsset, held.String(), pos.Quantity.String()))
		}
	}
}

func (r *Reconciler) flagDrift(symbol, orderID, msg string) {
	ev := models.NewEvent(models.EventReconcileDrift, symbol)
	ev.OrderID = orderID
	ev.Message = msg
	r.reporter.Emit(ev)
	r.tracker.Quarantine(symbol, msg)
}
