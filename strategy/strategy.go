// Package strategy defines the trading strategy contract and the three
// rule-based strategies the selector chooses between: trend following,
// mean reversion and volatility breakout.
package strategy

import (
	"sort"

	"github.com/kiwiquant/kiwitrader/types"
)

// Type identifies a strategy variant. The set is closed: the selector only
// ever dispatches over these three.
type Type string

const (
	TypeTrendFollowing     Type = "trend_following"
	TypeMeanReversion      Type = "mean_reversion"
	TypeVolatilityBreakout Type = "volatility_breakout"
)

// Config carries strategy parameters. Params uses the same numeric
// parameter-bag convention as the engine's HTTP API: unknown keys are
// rejected by Configure, out-of-range values return an error.
type Config struct {
	Params map[string]float64 `json:"params,omitempty"`
}

// Strategy is the contract every trading strategy implements. Strategies are
// stateless with respect to market history: everything they need beyond
// construction-time parameters arrives in the Frame.
type Strategy interface {
	// Name returns the display name of the strategy.
	Name() string

	// Type returns the strategy variant identifier.
	Type() Type

	// Description returns a brief description of the strategy.
	Description() string

	// Configure applies parameter overrides, validating ranges.
	Configure(config Config) error

	// Lookback returns the slowest indicator window the strategy needs.
	// Signals are all zero until this many bars exist.
	Lookback() int

	// CalculateIndicators adds the indicator columns the strategy needs to
	// the frame. It is idempotent: calling it twice recomputes the same
	// columns.
	CalculateIndicators(frame *Frame)

	// GenerateSignals produces one signal per bar, zero until the lookback
	// is satisfied. It calculates indicators itself if the frame is missing
	// any column it needs.
	GenerateSignals(frame *Frame) []types.Signal

	// RegimeSuitability returns a static score in [0,1] for how well the
	// strategy fits the given regime. It does not depend on market data.
	RegimeSuitability(regime types.Regime) float64
}

// FactoryFunc creates a new strategy with default parameters.
type FactoryFunc func() Strategy

var registry = make(map[Type]FactoryFunc)

// Register registers a strategy factory. Called from init in each
// strategy file.
func Register(t Type, factory FactoryFunc) {
	registry[t] = factory
}

// New creates a strategy of the given type, or nil if unknown.
func New(t Type) Strategy {
	factory, ok := registry[t]
	if !ok {
		return nil
	}
	return factory()
}

// All returns one instance of every registered strategy, sorted by name.
// The deterministic order makes suitability argmax ties resolve to the
// lexically first strategy.
func All() []Strategy {
	out := make([]Strategy, 0, len(registry))
	for _, factory := range registry {
		out = append(out, factory())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// suitabilityFor looks up the regime in a static table, defaulting to a
// neutral 0.5 for unknown labels.
func suitabilityFor(table map[types.Regime]float64, regime types.Regime) float64 {
	if score, ok := table[regime]; ok {
		return score
	}
	return 0.5
}
