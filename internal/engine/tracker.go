package engine

import (
	"fmt"
	"sync"
	"time"

	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Decision is the tracker's answer to a signal.
type Decision struct {
	Approved bool
	Size     decimal.Decimal // adjusted size, never larger than requested
	Reason   string          // set on rejection
}

func rejected(reason string) Decision {
	return Decision{Reason: reason}
}

// Tracker is the authoritative in-memory ledger of positions, non-terminal
// orders and risk limits. All mutations for one instrument are serialized
// behind that instrument's lock; instruments proceed independently.
type Tracker struct {
	logger   *zap.Logger
	reporter *Reporter
	account  models.AccountLimits

	mu    sync.RWMutex
	books map[string]*instrumentBook

	exposure *exposureIndex
}

// instrumentBook is the single-writer state for one instrument.
type instrumentBook struct {
	mu          sync.Mutex
	instrument  models.Instrument
	limits      models.RiskLimits
	position    models.Position
	open        map[string]*models.Order // non-terminal orders by local ID
	fills       map[string]struct{}      // applied exchange fill IDs
	quarantined bool
	stopPending bool
	watermark   decimal.Decimal // best mark since entry: high for longs, low for shorts
}

// exposureIndex caches per-instrument gross notional so account-wide checks
// never need to take more than one book lock at a time.
type exposureIndex struct {
	mu       sync.Mutex
	notional map[string]decimal.Decimal
}

func (x *exposureIndex) set(symbol string, n decimal.Decimal) {
	x.mu.Lock()
	x.notional[symbol] = n
	x.mu.Unlock()
}

func (x *exposureIndex) grossExcept(symbol string) decimal.Decimal {
	x.mu.Lock()
	defer x.mu.Unlock()
	total := decimal.Zero
	for s, n := range x.notional {
		if s != symbol {
			total = total.Add(n)
		}
	}
	return total
}

// NewTracker creates a tracker with the given account-wide limits.
func NewTracker(logger *zap.Logger, reporter *Reporter, account models.AccountLimits) *Tracker {
	return &Tracker{
		logger:   logger.Named("tracker"),
		reporter: reporter,
		account:  account,
		books:    make(map[string]*instrumentBook),
		exposure: &exposureIndex{notional: make(map[string]decimal.Decimal)},
	}
}

// AddInstrument registers an instrument and its limits. Called once at
// startup, before any concurrent use.
func (t *Tracker) AddInstrument(inst models.Instrument, limits models.RiskLimits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.books[inst.Symbol] = &instrumentBook{
		instrument: inst,
		limits:     limits,
		position:   models.Position{Symbol: inst.Symbol},
		open:       make(map[string]*models.Order),
		fills:      make(map[string]struct{}),
	}
}

func (t *Tracker) book(symbol string) (*instrumentBook, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.books[symbol]
	return b, ok
}

// Symbols lists the registered instruments.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.books))
	for s := range t.books {
		out = append(out, s)
	}
	return out
}

// Instrument returns the immutable instrument definition.
func (t *Tracker) Instrument(symbol string) (models.Instrument, bool) {
	b, ok := t.book(symbol)
	if !ok {
		return models.Instrument{}, false
	}
	return b.instrument, true
}

// Position returns a copy of the instrument's current position.
func (t *Tracker) Position(symbol string) models.Position {
	b, ok := t.book(symbol)
	if !ok {
		return models.Position{Symbol: symbol}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// OpenOrders returns copies of the non-terminal orders for an instrument.
func (t *Tracker) OpenOrders(symbol string) []models.Order {
	b, ok := t.book(symbol)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Order, 0, len(b.open))
	for _, o := range b.open {
		out = append(out, *o)
	}
	return out
}

// Order returns a copy of one non-terminal order.
func (t *Tracker) Order(symbol, orderID string) (models.Order, bool) {
	b, ok := t.book(symbol)
	if !ok {
		return models.Order{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.open[orderID]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// Approve runs the risk gate for one signal. The returned size is the
// largest value that keeps hypothetical post-trade exposure within the
// instrument's and account's limits; it is clamped down, never up.
// mark is the current mark price, used for notional checks.
func (t *Tracker) Approve(sig models.Signal, mark decimal.Decimal) Decision {
	if sig.Action == models.ActionHold {
		return rejected("hold signal")
	}
	b, ok := t.book(sig.Symbol)
	if !ok {
		return rejected(fmt.Sprintf("unknown instrument %s", sig.Symbol))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.quarantined {
		return rejected("instrument quarantined pending drift review")
	}
	if !sig.Size.IsPositive() {
		return rejected("non-positive size")
	}

	side := sig.Action.Side()

	// In-flight discipline: one order per direction unless the limits
	// explicitly allow more.
	allowed := b.limits.MaxOpenOrders
	if allowed <= 0 {
		allowed = 1
	}
	sameDir := 0
	pending := decimal.Zero // signed exposure committed by open same-direction orders
	for _, o := range b.open {
		if o.Side == side {
			sameDir++
			pending = pending.Add(o.Remaining().Mul(o.Side.Sign()))
		}
	}
	if sameDir >= allowed {
		return rejected(fmt.Sprintf("max open orders reached (%d)", allowed))
	}

	size := sig.Size
	if b.limits.MaxOrderSize.IsPositive() && size.GreaterThan(b.limits.MaxOrderSize) {
		size = b.limits.MaxOrderSize
	}

	// Position limit: largest s with |position + pending + sign*s| <= max.
	base := b.position.Quantity.Add(pending)
	var headroom decimal.Decimal
	if side == models.SideBuy {
		headroom = b.limits.MaxPositionSize.Sub(base)
	} else {
		headroom = b.limits.MaxPositionSize.Add(base)
	}
	if !headroom.IsPositive() {
		return rejected("position limit reached")
	}
	if size.GreaterThan(headroom) {
		size = headroom
	}

	// Account-wide gross notional, only constrains trades that grow exposure.
	grows := base.IsZero() || base.Sign() == side.Sign().Sign()
	if grows && t.account.MaxNotional.IsPositive() && mark.IsPositive() {
		used := t.exposure.grossExcept(sig.Symbol).Add(base.Abs().Mul(mark))
		free := t.account.MaxNotional.Sub(used)
		if !free.IsPositive() {
			return rejected("account notional limit reached")
		}
		if byNotional := free.Div(mark); size.GreaterThan(byNotional) {
			size = byNotional
		}
	}

	if b.instrument.MinOrderSize.IsPositive() && size.LessThan(b.instrument.MinOrderSize) {
		return rejected("adjusted size below minimum order size")
	}
	if !size.IsPositive() {
		return rejected("adjusted size is zero")
	}

	return Decision{Approved: true, Size: size}
}

// Register adds a freshly created order to the instrument's non-terminal set.
func (t *Tracker) Register(o models.Order) error {
	b, ok := t.book(o.Symbol)
	if !ok {
		return fmt.Errorf("unknown instrument %s", o.Symbol)
	}
	if o.State != models.OrderCreated {
		return fmt.Errorf("order %s registered in state %s", o.ID, o.State)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.open[o.ID]; exists {
		return fmt.Errorf("order %s already registered", o.ID)
	}
	cp := o
	b.open[o.ID] = &cp
	return nil
}

// SetRemoteID records the exchange identifier for a local order.
func (t *Tracker) SetRemoteID(symbol, orderID, remoteID string) {
	b, ok := t.book(symbol)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.open[orderID]; ok {
		o.RemoteID = remoteID
		o.UpdatedAt = time.Now()
	}
}

// NoteAttempt increments the order's submission attempt counter and returns
// the new count.
func (t *Tracker) NoteAttempt(symbol, orderID string) int {
	b, ok := t.book(symbol)
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.open[orderID]
	if !ok {
		return 0
	}
	o.Attempts++
	o.UpdatedAt = time.Now()
	return o.Attempts
}

// validNext encodes the order state machine.
var validNext = map[models.OrderState]map[models.OrderState]bool{
	models.OrderCreated: {
		models.OrderSubmitted: true,
	},
	models.OrderSubmitted: {
		models.OrderAcknowledged:    true,
		models.OrderRejected:        true,
		models.OrderPartiallyFilled: true,
		models.OrderFilled:          true,
		models.OrderCancelled:       true,
		models.OrderExpired:         true,
	},
	models.OrderAcknowledged: {
		models.OrderPartiallyFilled: true,
		models.OrderFilled:          true,
		models.OrderRejected:        true,
		models.OrderCancelled:       true,
		models.OrderExpired:         true,
	},
	models.OrderPartiallyFilled: {
		models.OrderPartiallyFilled: true,
		models.OrderFilled:          true,
		models.OrderCancelled:       true,
		models.OrderExpired:         true,
	},
}

var stateEvents = map[models.OrderState]models.EventKind{
	models.OrderAcknowledged:    models.EventOrderAcknowledged,
	models.OrderPartiallyFilled: models.EventOrderPartialFill,
	models.OrderFilled:          models.EventOrderFilled,
	models.OrderRejected:        models.EventOrderRejected,
	models.OrderCancelled:       models.EventOrderCancelled,
	models.OrderExpired:         models.EventOrderExpired,
}

// Transition moves an order to a new state, enforcing that terminal states
// are never exited. Terminal orders leave the non-terminal set. Every
// transition (except CREATED→SUBMITTED, reported by the executor per
// attempt) emits an event.
func (t *Tracker) Transition(symbol, orderID string, to models.OrderState, reason string) (models.Order, error) {
	b, ok := t.book(symbol)
	if !ok {
		return models.Order{}, fmt.Errorf("unknown instrument %s", symbol)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.open[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s not found or already terminal", orderID)
	}
	return t.transitionLocked(b, o, to, reason, nil)
}

// transitionLocked performs the transition with b.mu held. When the
// transition was produced by a fill, f decorates the emitted event.
func (t *Tracker) transitionLocked(b *instrumentBook, o *models.Order, to models.OrderState, reason string, f *models.Fill) (models.Order, error) {
	if o.State.Terminal() {
		return *o, fmt.Errorf("order %s is terminal (%s), cannot move to %s", o.ID, o.State, to)
	}
	if o.State == to && to != models.OrderPartiallyFilled {
		return *o, nil
	}
	if !validNext[o.State][to] {
		return *o, fmt.Errorf("invalid transition %s → %s for order %s", o.State, to, o.ID)
	}

	o.State = to
	o.UpdatedAt = time.Now()
	if reason != "" {
		o.Reason = reason
	}
	if to.Terminal() {
		delete(b.open, o.ID)
	}

	if kind, ok := stateEvents[to]; ok {
		ev := models.NewEvent(kind, o.Symbol)
		ev.OrderID = o.ID
		ev.Side = o.Side
		ev.Quantity = o.FilledSize
		ev.Price = o.AvgFillPrice
		ev.Message = reason
		if f != nil {
			ev.FillID = f.FillID
			ev.Quantity = f.Quantity
			ev.Price = f.Price
		}
		t.reporter.Emit(ev)
	}

	t.logger.Info("Order transition",
		zap.String("symbol", o.Symbol),
		zap.String("order_id", o.ID),
		zap.String("state", string(to)),
	)
	return *o, nil
}

// ApplyFill folds one fill into the order and position. Deduplicated by the
// exchange fill identifier: applying the same fill twice changes state
// exactly once. Returns true if the fill was applied.
func (t *Tracker) ApplyFill(f models.Fill) (bool, error) {
	b, ok := t.book(f.Symbol)
	if !ok {
		return false, fmt.Errorf("unknown instrument %s", f.Symbol)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.fills[f.FillID]; seen {
		return false, nil
	}
	o, ok := b.open[f.OrderID]
	if !ok {
		return false, fmt.Errorf("fill %s references unknown or terminal order %s", f.FillID, f.OrderID)
	}

	b.fills[f.FillID] = struct{}{}

	// Volume-weighted running fill price on the order.
	prevNotional := o.FilledSize.Mul(o.AvgFillPrice)
	o.FilledSize = o.FilledSize.Add(f.Quantity)
	if o.FilledSize.IsPositive() {
		o.AvgFillPrice = prevNotional.Add(f.Quantity.Mul(f.Price)).Div(o.FilledSize)
	}

	b.position = b.position.Apply(f)
	t.exposure.set(f.Symbol, b.position.Quantity.Abs().Mul(f.Price))
	if b.position.Quantity.IsZero() {
		b.stopPending = false
		b.watermark = decimal.Zero
	}

	next := models.OrderPartiallyFilled
	if !o.FilledSize.LessThan(o.Size) {
		next = models.OrderFilled
	}
	if _, err := t.transitionLocked(b, o, next, "", &f); err != nil {
		return true, err
	}

	t.logger.Info("Fill applied",
		zap.String("symbol", f.Symbol),
		zap.String("order_id", f.OrderID),
		zap.String("fill_id", f.FillID),
		zap.String("quantity", f.Quantity.String()),
		zap.String("price", f.Price.String()),
		zap.String("position", b.position.Quantity.String()),
	)
	return true, nil
}

// Quarantine flags an instrument for manual review. While quarantined the
// instrument is treated as at its risk limit: every new signal is rejected.
// Existing orders continue to terminal states.
func (t *Tracker) Quarantine(symbol, reason string) {
	b, ok := t.book(symbol)
	if !ok {
		return
	}
	b.mu.Lock()
	already := b.quarantined
	b.quarantined = true
	b.mu.Unlock()
	if !already {
		t.logger.Warn("Instrument quarantined", zap.String("symbol", symbol), zap.String("reason", reason))
	}
}

// Quarantined reports whether the instrument is flagged.
func (t *Tracker) Quarantined(symbol string) bool {
	b, ok := t.book(symbol)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quarantined
}

// CheckStopLoss evaluates the position against its fixed stop-loss and
// trailing-stop thresholds at the given mark price. On a breach it emits a
// RISK_BREACH event and returns a forced closing signal that bypasses the
// strategy; at most one forced close is pending at a time.
func (t *Tracker) CheckStopLoss(symbol string, mark decimal.Decimal) *models.Signal {
	b, ok := t.book(symbol)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if mark.IsPositive() {
		t.exposure.set(symbol, b.position.Quantity.Abs().Mul(mark))
	}
	if b.stopPending || b.position.Quantity.IsZero() || !mark.IsPositive() {
		return nil
	}

	long := b.position.Quantity.IsPositive()
	if long {
		if b.watermark.LessThan(mark) {
			b.watermark = mark
		}
	} else if b.watermark.IsZero() || b.watermark.GreaterThan(mark) {
		b.watermark = mark
	}

	var reason string
	pnl := b.position.UnrealizedPnL(mark)
	if b.limits.StopLossPct.IsPositive() && !pnl.GreaterThan(b.limits.StopLossPct.Neg()) {
		reason = fmt.Sprintf("stop-loss: unrealized pnl %s breached -%s", pnl.StringFixed(6), b.limits.StopLossPct.String())
	}
	if reason == "" && b.limits.TrailingStopPct.IsPositive() && b.watermark.IsPositive() {
		retrace := b.watermark.Sub(mark).Div(b.watermark)
		if !long {
			retrace = retrace.Neg()
		}
		if !retrace.LessThan(b.limits.TrailingStopPct) {
			reason = fmt.Sprintf("trailing stop: retraced %s from %s, limit %s",
				retrace.StringFixed(6), b.watermark.String(), b.limits.TrailingStopPct.String())
		}
	}
	if reason == "" {
		return nil
	}

	b.stopPending = true

	action := models.ActionSell
	if !long {
		action = models.ActionBuy
	}
	sig := models.Signal{
		Symbol: symbol,
		Action: action,
		Size:   b.position.Quantity.Abs(),
		Reason: reason,
	}

	ev := models.NewEvent(models.EventRiskBreach, symbol)
	ev.Side = action.Side()
	ev.Quantity = sig.Size
	ev.Price = mark
	ev.Message = sig.Reason
	t.reporter.Emit(ev)

	t.logger.Warn("Protective stop breached, forcing close",
		zap.String("symbol", symbol),
		zap.String("pnl", pnl.StringFixed(6)),
		zap.String("size", sig.Size.String()),
		zap.String("reason", reason),
	)
	return &sig
}
