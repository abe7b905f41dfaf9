// Package engine contains the strategy scheduling and order execution core:
// the risk/position tracker, the order executor, the per-instrument strategy
// runners, the reconciliation loop and the event reporter.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitget-trade-bot-go/internal/config"
	"bitget-trade-bot-go/internal/exchange"
	"bitget-trade-bot-go/internal/marketdata"
	"bitget-trade-bot-go/internal/models"
	"bitget-trade-bot-go/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine wires the trading core together and owns its lifecycle.
type Engine struct {
	logger     *zap.Logger
	reporter   *Reporter
	adapter    *marketdata.Adapter
	tracker    *Tracker
	executor   *Executor
	reconciler *Reconciler
	runners    []*Runner
}

// NewEngine builds the trading core from configuration. The exchange client,
// market data adapter and reporter are shared external collaborators wired
// up by the caller.
func NewEngine(logger *zap.Logger, cfg *config.Config, client exchange.Client,
	adapter *marketdata.Adapter, reporter *Reporter) (*Engine, error) {

	tracker := NewTracker(logger, reporter, models.AccountLimits{
		MaxNotional: decimal.NewFromFloat(cfg.Trading.MaxAccountNotional),
	})
	executor := NewExecutor(logger, client, tracker, reporter, ExecutorConfig{
		MaxAttempts: cfg.Trading.MaxRetries,
		BackoffBase: time.Duration(cfg.Trading.BackoffBaseMs) * time.Millisecond,
		OrderTTL:    time.Duration(cfg.Trading.OrderTTLSeconds) * time.Second,
	})
	reconciler := NewReconciler(logger, client, tracker, reporter,
		time.Duration(cfg.Trading.ReconcileSeconds)*time.Second,
		decimal.NewFromFloat(cfg.Trading.BalanceTolerance),
	)

	staleAfter := time.Duration(cfg.Trading.StaleAfterSeconds) * time.Second
	runners := make([]*Runner, 0, len(cfg.Trading.Instruments))
	for _, ic := range cfg.Trading.Instruments {
		inst := models.Instrument{
			Symbol:       ic.Symbol,
			BaseAsset:    ic.BaseAsset,
			TickSize:     decimal.NewFromFloat(ic.TickSize),
			MinOrderSize: decimal.NewFromFloat(ic.MinOrderSize),
			FeeRate:      decimal.NewFromFloat(ic.FeeRate),
		}
		limits := models.RiskLimits{
			MaxPositionSize: decimal.NewFromFloat(ic.Risk.MaxPositionSize),
			MaxOrderSize:    decimal.NewFromFloat(ic.Risk.MaxOrderSize),
			MaxOpenOrders:   ic.Risk.MaxOpenOrders,
			StopLossPct:     decimal.NewFromFloat(ic.Risk.StopLossPct),
			TrailingStopPct: decimal.NewFromFloat(ic.Risk.TrailingStopPct),
		}
		tracker.AddInstrument(inst, limits)

		strat, err := strategy.New(ic.Strategy, ic.Symbol, decimal.NewFromFloat(ic.OrderSize))
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", ic.Symbol, err)
		}

		feed := adapter.Subscribe(ic.Symbol)
		runners = append(runners, NewRunner(logger, inst,
			time.Duration(ic.CadenceSeconds)*time.Second, staleAfter,
			strat, feed, tracker, executor, reporter))
	}

	return &Engine{
		logger:     logger.Named("engine"),
		reporter:   reporter,
		adapter:    adapter,
		tracker:    tracker,
		executor:   executor,
		reconciler: reconciler,
		runners:    runners,
	}, nil
}

// Run starts every loop and blocks until ctx is cancelled and all loops
// have stopped.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Starting trading engine", zap.Int("instruments", len(e.runners)))

	var wg sync.WaitGroup
	start := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	start(e.reporter.Run)
	start(e.adapter.Run)
	start(e.executor.Run)
	start(e.reconciler.Run)
	for _, r := range e.runners {
		start(r.Run)
	}

	<-ctx.Done()
	e.logger.Info("Stopping trading engine...")
	wg.Wait()
	e.logger.Info("Trading engine stopped.")
}
