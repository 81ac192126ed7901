// Package selector implements the meta-strategy decision loop: given the
// detected regime and recent performance, it decides each cycle whether to
// keep the active strategy or switch to a better-suited one.
package selector

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiwiquant/kiwitrader/monitor"
	"github.com/kiwiquant/kiwitrader/regime"
	"github.com/kiwiquant/kiwitrader/strategy"
	"github.com/kiwiquant/kiwitrader/types"
)

// Defaults for the switching thresholds.
const (
	DefaultMinSharpe           = 0.5
	DefaultMaxDrawdown         = -15.0
	DefaultMinBarsBeforeSwitch = 20
	degradationLookback        = 20
)

// SelectionRecord is one entry in the append-only selection history.
type SelectionRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	Strategy    string          `json:"strategy"`
	Regime      types.Regime    `json:"regime"`
	Reason      string          `json:"reason"`
	Performance monitor.Summary `json:"performance"`
}

// Evaluation summarizes one strategy's fit for the current conditions.
type Evaluation struct {
	Strategy    string  `json:"strategy"`
	Signals     int     `json:"signals_generated"`
	Suitability float64 `json:"regime_suitability"`
	IsCurrent   bool    `json:"is_current"`
}

// Recommendation is a full selection report for the operator API.
type Recommendation struct {
	Regime           types.Regime           `json:"regime"`
	RegimeConfidence types.RegimeConfidence `json:"regime_confidence"`
	Recommended      string                 `json:"recommended_strategy"`
	Current          string                 `json:"current_strategy,omitempty"`
	ShouldSwitch     bool                   `json:"should_switch"`
	Evaluations      []Evaluation           `json:"strategy_evaluations"`
	Performance      monitor.Summary        `json:"current_performance"`
}

// Selector owns the strategy-selection state machine. One trading loop
// drives Select; the mutex makes the read-side accessors and Recommend
// safe to call from other goroutines, such as HTTP handlers.
type Selector struct {
	strategies []strategy.Strategy
	detector   *regime.Detector
	perf       *monitor.PerformanceMonitor
	log        zerolog.Logger

	// Switching thresholds. Set before the first Select call.
	MinSharpe           float64
	MaxDrawdown         float64
	MinBarsBeforeSwitch int

	mu              sync.RWMutex
	current         strategy.Strategy
	currentRegime   types.Regime
	barsWithCurrent int
	history         []SelectionRecord
}

// New creates a selector over the given strategy set. The strategy slice
// is expected to be in deterministic (name) order; strategy.All provides
// that, and suitability ties resolve to the first entry.
func New(strategies []strategy.Strategy, detector *regime.Detector, perf *monitor.PerformanceMonitor, logger zerolog.Logger) *Selector {
	return &Selector{
		strategies:          strategies,
		detector:            detector,
		perf:                perf,
		log:                 logger.With().Str("component", "selector").Logger(),
		MinSharpe:           DefaultMinSharpe,
		MaxDrawdown:         DefaultMaxDrawdown,
		MinBarsBeforeSwitch: DefaultMinBarsBeforeSwitch,
	}
}

// Select runs one evaluation of the state machine and returns the active
// strategy with the reason for the decision. force bypasses the dwell-time
// guard.
func (s *Selector) Select(bars []types.Bar, force bool) (strategy.Strategy, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRegime = s.detector.PredictRegime(bars, 0)
	s.log.Debug().Str("regime", string(s.currentRegime)).Msg("regime detected")

	// Initial selection goes purely by regime suitability.
	if s.current == nil {
		best := s.selectByRegime(s.currentRegime)
		reason := fmt.Sprintf("Initial selection for %s regime", s.currentRegime)
		s.switchTo(best, reason)
		return best, reason
	}

	s.barsWithCurrent++

	// Let a freshly selected strategy stabilize before reconsidering.
	if !force && s.barsWithCurrent < s.MinBarsBeforeSwitch {
		return s.current, "Maintaining current strategy (evaluation period)"
	}

	if s.perf.IsPerformanceDegrading(s.MinSharpe, s.MaxDrawdown, degradationLookback) {
		s.log.Warn().Str("strategy", s.current.Name()).Msg("active strategy performance degrading")
		best := s.selectByRegime(s.currentRegime)
		if best.Name() != s.current.Name() {
			reason := "Performance degradation detected"
			s.switchTo(best, reason)
			return best, reason
		}
	}

	if s.regimeChanged() {
		best := s.selectByRegime(s.currentRegime)
		if best.Name() != s.current.Name() {
			reason := fmt.Sprintf("Regime changed to %s", s.currentRegime)
			s.switchTo(best, reason)
			return best, reason
		}
	}

	return s.current, "Maintaining current strategy (performing well)"
}

// selectByRegime is the suitability argmax. The strategy slice is in name
// order, and only a strictly greater score displaces the leader, so equal
// scores resolve to the lexically first strategy.
func (s *Selector) selectByRegime(r types.Regime) strategy.Strategy {
	best := s.strategies[0]
	bestScore := best.RegimeSuitability(r)
	for _, cand := range s.strategies[1:] {
		if score := cand.RegimeSuitability(r); score > bestScore {
			best, bestScore = cand, score
		}
	}
	s.log.Info().
		Str("regime", string(r)).
		Str("strategy", best.Name()).
		Float64("score", bestScore).
		Msg("strategy ranked by regime suitability")
	return best
}

func (s *Selector) switchTo(next strategy.Strategy, reason string) {
	s.current = next
	s.barsWithCurrent = 0
	record := SelectionRecord{
		Timestamp:   time.Now(),
		Strategy:    next.Name(),
		Regime:      s.currentRegime,
		Reason:      reason,
		Performance: s.perf.GetSummary(0),
	}
	s.history = append(s.history, record)
	s.log.Info().Str("strategy", next.Name()).Str("reason", reason).Msg("strategy selected")
}

// regimeChanged compares the current regime against the regime recorded at
// the last selection decision.
func (s *Selector) regimeChanged() bool {
	if len(s.history) == 0 {
		return true
	}
	return s.history[len(s.history)-1].Regime != s.currentRegime
}

// Current returns the active strategy, or nil before the first selection.
func (s *Selector) Current() strategy.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentRegime returns the regime from the most recent evaluation.
func (s *Selector) CurrentRegime() types.Regime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRegime
}

// History returns a copy of the selection history.
func (s *Selector) History() []SelectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SelectionRecord, len(s.history))
	copy(out, s.history)
	return out
}

// EvaluateAll runs every strategy over the series and reports signal counts
// and suitability for the current regime.
func (s *Selector) EvaluateAll(bars []types.Bar) []Evaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluateAll(bars)
}

func (s *Selector) evaluateAll(bars []types.Bar) []Evaluation {
	evals := make([]Evaluation, 0, len(s.strategies))
	for _, strat := range s.strategies {
		frame := strategy.NewFrame(bars)
		strat.CalculateIndicators(frame)
		signals := strat.GenerateSignals(frame)
		count := 0
		for _, sig := range signals {
			if sig != types.SignalNone {
				count++
			}
		}
		evals = append(evals, Evaluation{
			Strategy:    strat.Name(),
			Signals:     count,
			Suitability: strat.RegimeSuitability(s.currentRegime),
			IsCurrent:   s.current != nil && strat.Name() == s.current.Name(),
		})
	}
	return evals
}

// Recommend produces a full selection report without mutating selector
// state beyond the regime refresh.
func (s *Selector) Recommend(bars []types.Bar) Recommendation {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.detector.PredictRegime(bars, 0)
	s.currentRegime = r
	best := s.selectByRegime(r)
	rec := Recommendation{
		Regime:           r,
		RegimeConfidence: s.detector.Confidence(bars, 0),
		Recommended:      best.Name(),
		Evaluations:      s.evaluateAll(bars),
		Performance:      s.perf.GetSummary(0),
	}
	if s.current != nil {
		rec.Current = s.current.Name()
	}
	rec.ShouldSwitch = rec.Current != best.Name()
	return rec
}
