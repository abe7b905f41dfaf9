package engine

import (
	"context"
	"fmt"
	"time"

	"bitget-trade-bot-go/internal/models"
	"bitget-trade-bot-go/internal/strategy"
	"go.uber.org/zap"
)

// Runner owns one strategy instance for one instrument and drives its
// evaluation cadence. A faulty strategy degrades to HOLD and never halts the
// other runners.
type Runner struct {
	logger     *zap.Logger
	instrument models.Instrument
	cadence    time.Duration
	staleAfter time.Duration
	strat      strategy.Strategy
	feed       <-chan models.Snapshot
	tracker    *Tracker
	executor   *Executor
	reporter   *Reporter

	latest    models.Snapshot
	haveSnap  bool
	wasStale  bool
}

// NewRunner creates a strategy runner for one instrument.
func NewRunner(logger *zap.Logger, inst models.Instrument, cadence, staleAfter time.Duration,
	strat strategy.Strategy, feed <-chan models.Snapshot,
	tracker *Tracker, executor *Executor, reporter *Reporter) *Runner {
	return &Runner{
		logger:     logger.Named("runner").With(zap.String("symbol", inst.Symbol)),
		instrument: inst,
		cadence:    cadence,
		staleAfter: staleAfter,
		strat:      strat,
		feed:       feed,
		tracker:    tracker,
		executor:   executor,
		reporter:   reporter,
	}
}

// Run evaluates the strategy on its own cadence until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("Starting strategy runner",
		zap.String("strategy", r.strat.Name()),
		zap.Duration("cadence", r.cadence),
	)
	ticker := time.NewTicker(r.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping strategy runner")
			return
		case snap := <-r.feed:
			r.latest = snap
			r.haveSnap = true
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	// Drain the feed so the tick sees the newest snapshot.
	for {
		select {
		case snap := <-r.feed:
			r.latest = snap
			r.haveSnap = true
			continue
		default:
		}
		break
	}

	if !r.haveSnap || r.latest.Age(time.Now()) > r.staleAfter {
		if !r.wasStale {
			r.wasStale = true
			r.logger.Warn("Market data stale, skipping ticks until the feed recovers")
			ev := models.NewEvent(models.EventFeedInterrupted, r.instrument.Symbol)
			ev.Message = "no fresh snapshot, instrument treated as stale"
			r.reporter.Emit(ev)
		}
		return
	}
	r.wasStale = false

	mark := r.latest.LastPrice

	// The stop-loss check runs before the strategy and bypasses it entirely.
	if forced := r.tracker.CheckStopLoss(r.instrument.Symbol, mark); forced != nil {
		if err := r.executor.Execute(ctx, *forced, forced.Size); err != nil {
			r.logger.Error("Forced close failed", zap.Error(err))
		}
		return
	}

	pos := r.tracker.Position(r.instrument.Symbol)
	sig := r.evaluate(r.latest, pos)
	if sig.Action == models.ActionHold {
		return
	}
	sig.Symbol = r.instrument.Symbol

	decision := r.tracker.Approve(sig, mark)
	if !decision.Approved {
		r.logger.Info("Signal rejected",
			zap.String("action", string(sig.Action)),
			zap.String("size", sig.Size.String()),
			zap.String("reason", decision.Reason),
		)
		ev := models.NewEvent(models.EventSignalRejected, r.instrument.Symbol)
		ev.Side = sig.Action.Side()
		ev.Quantity = sig.Size
		ev.Message = decision.Reason
		r.reporter.Emit(ev)
		return
	}

	if err := r.executor.Execute(ctx, sig, decision.Size); err != nil {
		// The executor has already emitted the terminal event.
		r.logger.Error("Order execution failed", zap.Error(err))
	}
}

// evaluate runs the strategy, converting errors and panics into HOLD so one
// faulty strategy cannot take down the process.
func (r *Runner) evaluate(snap models.Snapshot, pos models.Position) (sig models.Signal) {
	defer func() {
		if rec := recover(); rec != nil {
			r.emitStrategyError(fmt.Sprintf("panic: %v", rec))
			sig = models.Hold(r.instrument.Symbol, "strategy panic")
		}
	}()

	sig, err := r.strat.Evaluate(snap, pos)
	if err != nil {
		r.emitStrategyError(err.Error())
		return models.Hold(r.instrument.Symbol, "strategy error")
	}
	return sig
}

func (r *Runner) emitStrategyError(msg string) {
	r.logger.Error("Strategy evaluation failed", zap.String("error", msg))
	ev := models.NewEvent(models.EventStrategyError, r.instrument.Symbol)
	ev.Err = msg
	ev.Message = r.strat.Name()
	r.reporter.Emit(ev)
}
