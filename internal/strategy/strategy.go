// Package strategy defines the pluggable signal-producing capability and the
// reference strategies shipped with the bot. Strategy math is interchangeable;
// the engine only depends on the Evaluate contract.
package strategy

import (
	"fmt"
	"sort"

	"bitget-trade-bot-go/internal/models"
	"github.com/shopspring/decimal"
)

// Strategy produces a signal for one instrument on one tick. Evaluate may
// read the snapshot and position but must not mutate external state; an
// error degrades the tick to HOLD in the runner.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate computes the recommendation for the current tick.
	Evaluate(snap models.Snapshot, pos models.Position) (models.Signal, error)
}

// Factory builds a strategy instance bound to one instrument.
type Factory func(symbol string, orderSize decimal.Decimal) Strategy

var registry = make(map[string]Factory)

// Register makes a strategy constructor available by name.
func Register(name string, f Factory) {
	registry[name] = f
}

// New builds the named strategy for an instrument.
func New(name, symbol string, orderSize decimal.Decimal) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return f(symbol, orderSize), nil
}

// Names lists the registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
