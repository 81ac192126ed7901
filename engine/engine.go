// Package engine runs the trading loop: fetch bars, detect the regime,
// select a strategy, generate a signal, and route risk-checked orders to
// the broker.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiwiquant/kiwitrader/broker"
	"github.com/kiwiquant/kiwitrader/config"
	"github.com/kiwiquant/kiwitrader/data"
	"github.com/kiwiquant/kiwitrader/monitor"
	"github.com/kiwiquant/kiwitrader/regime"
	"github.com/kiwiquant/kiwitrader/risk"
	"github.com/kiwiquant/kiwitrader/selector"
	"github.com/kiwiquant/kiwitrader/strategy"
	"github.com/kiwiquant/kiwitrader/types"
)

const (
	atrStopMultiple  = 2.0
	fallbackStopPct  = 0.05
	trainHistoryDays = 730
)

// Status is a point-in-time snapshot of the engine for the operator API.
type Status struct {
	Running        bool            `json:"running"`
	Paused         bool            `json:"paused"`
	Symbol         string          `json:"symbol"`
	Timeframe      string          `json:"timeframe"`
	Cycles         int             `json:"cycles"`
	LastCycle      time.Time       `json:"last_cycle,omitempty"`
	LastSignal     string          `json:"last_signal"`
	Strategy       string          `json:"strategy,omitempty"`
	Regime         types.Regime    `json:"regime,omitempty"`
	DetectorModel  bool            `json:"detector_trained"`
	Equity         float64         `json:"equity"`
	Performance    monitor.Summary `json:"performance"`
}

// Engine wires the full pipeline and owns the cycle scheduler.
type Engine struct {
	cfg      config.Config
	source   data.DataSource
	broker   broker.Broker
	detector *regime.Detector
	selector *selector.Selector
	perf     *monitor.PerformanceMonitor
	riskMgr  *risk.Manager
	events   *EventLog
	log      zerolog.Logger

	mu         sync.RWMutex
	running    bool
	paused     bool
	cycles     int
	lastCycle  time.Time
	lastSignal types.Signal
	lastEquity float64
	peakEquity float64
}

// New assembles an engine from its collaborators.
func New(cfg config.Config, source data.DataSource, brk broker.Broker, det *regime.Detector,
	sel *selector.Selector, perf *monitor.PerformanceMonitor, riskMgr *risk.Manager,
	events *EventLog, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		source:   source,
		broker:   brk,
		detector: det,
		selector: sel,
		perf:     perf,
		riskMgr:  riskMgr,
		events:   events,
		log:      logger.With().Str("component", "engine").Logger(),
	}
}

// Run drives trading cycles until ctx is canceled. Each iteration sleeps
// for the configured interval less the time the cycle itself took, never
// negative. Cycle errors are logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.events.Record(EventSystem, SeverityInfo, "engine started for %s (%s)", e.cfg.Symbol, e.cfg.Timeframe)

	for {
		started := time.Now()
		if err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			e.log.Error().Err(err).Msg("cycle failed")
			e.events.Record(EventSystem, SeverityError, "cycle failed: %v", err)
		}

		sleep := e.cfg.CycleInterval - time.Since(started)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return e.shutdown()
		case <-time.After(sleep):
		}
	}
	return e.shutdown()
}

// shutdown optionally liquidates all positions. It uses a fresh context
// because the run context is already canceled.
func (e *Engine) shutdown() error {
	e.events.Record(EventSystem, SeverityInfo, "engine stopping")
	if !e.cfg.CloseOnShutdown {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.broker.CloseAllPositions(ctx); err != nil {
		e.events.Record(EventSystem, SeverityError, "failed to close positions on shutdown: %v", err)
		return fmt.Errorf("closing positions on shutdown: %w", err)
	}
	e.events.Record(EventOrder, SeverityInfo, "all positions closed on shutdown")
	return nil
}

// RunCycle executes one full trading cycle.
func (e *Engine) RunCycle(ctx context.Context) error {
	bars, err := e.source.GetBars(ctx, e.cfg.Symbol, e.cfg.Timeframe, e.cfg.BarLimit)
	if err != nil {
		return fmt.Errorf("fetching bars: %w", err)
	}

	prevStrategy := e.selector.Current()
	prevRegime := e.selector.CurrentRegime()

	strat, reason := e.selector.Select(bars, false)
	if prevStrategy != nil && strat.Name() != prevStrategy.Name() {
		e.events.Record(EventStrategySwitch, SeverityWarning, "switched to %s: %s", strat.Name(), reason)
	}
	if r := e.selector.CurrentRegime(); prevRegime != "" && r != prevRegime {
		e.events.Record(EventRegimeChange, SeverityInfo, "regime changed from %s to %s", prevRegime, r)
	}

	if len(bars) < strat.Lookback() {
		return fmt.Errorf("need %d bars for %s, have %d", strat.Lookback(), strat.Name(), len(bars))
	}

	frame := strategy.NewFrame(bars)
	strat.CalculateIndicators(frame)
	signals := strat.GenerateSignals(frame)
	signal := signals[len(signals)-1]

	if signal != types.SignalNone {
		e.events.Record(EventSignal, SeverityInfo, "%s signal from %s at %.2f",
			signal, strat.Name(), bars[len(bars)-1].Close)
	}

	if e.isPaused() {
		e.log.Debug().Msg("trading paused, signal not executed")
	} else if err := e.execute(ctx, signal, bars); err != nil {
		// Order failures do not retry within the cycle.
		e.log.Error().Err(err).Msg("order execution failed")
		e.events.Record(EventOrder, SeverityError, "execution failed: %v", err)
	}

	if err := e.updatePerformance(ctx); err != nil {
		e.log.Warn().Err(err).Msg("performance update failed")
	}

	e.mu.Lock()
	e.cycles++
	e.lastCycle = time.Now()
	e.lastSignal = signal
	e.mu.Unlock()

	e.events.Record(EventCycle, SeverityInfo, "cycle %d: %s regime, %s, signal %s",
		e.Cycles(), e.selector.CurrentRegime(), strat.Name(), signal)
	return nil
}

// execute reconciles the latest signal against the open position. A long
// signal closes any short before opening a long, and symmetrically for
// shorts. SignalNone holds.
func (e *Engine) execute(ctx context.Context, signal types.Signal, bars []types.Bar) error {
	if signal == types.SignalNone {
		return nil
	}

	positions, err := e.broker.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetching positions: %w", err)
	}
	var current *types.Position
	for i := range positions {
		if positions[i].Symbol == e.cfg.Symbol {
			current = &positions[i]
			break
		}
	}

	// Close an opposing position first and book the trade.
	if current != nil {
		sameDirection := (signal == types.SignalLong && current.Quantity > 0) ||
			(signal == types.SignalShort && current.Quantity < 0)
		if sameDirection {
			return nil
		}
		result, err := e.broker.ClosePosition(ctx, e.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("closing position: %w", err)
		}
		direction := types.SignalLong
		if current.Quantity < 0 {
			direction = types.SignalShort
		}
		exit := result.FilledPrice
		if exit == 0 {
			exit = current.CurrentPrice
		}
		e.perf.AddTrade(current.AvgEntryPrice, exit, int(direction))
		e.events.Record(EventOrder, SeverityInfo, "closed %s position at %.2f", direction, exit)

		// The position book changed; refresh before sizing the new entry.
		positions, err = e.broker.GetOpenPositions(ctx)
		if err != nil {
			return fmt.Errorf("refreshing positions: %w", err)
		}
	}

	return e.openPosition(ctx, signal, bars, positions)
}

func (e *Engine) openPosition(ctx context.Context, signal types.Signal, bars []types.Bar, positions []types.Position) error {
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("fetching account: %w", err)
	}
	entry := bars[len(bars)-1].Close

	stop, err := e.riskMgr.CalculateStopLoss(entry, signal, risk.StopATR, atrStopMultiple, bars)
	if err != nil {
		stop, err = e.riskMgr.CalculateStopLoss(entry, signal, risk.StopPercentage, fallbackStopPct, bars)
		if err != nil {
			return fmt.Errorf("calculating stop: %w", err)
		}
	}

	qty, err := e.riskMgr.CalculatePositionSize(entry, stop, account.Equity)
	if err != nil {
		return fmt.Errorf("sizing position: %w", err)
	}

	side := types.OrderSideBuy
	if signal == types.SignalShort {
		side = types.OrderSideSell
	}
	order := types.OrderRequest{
		Symbol:   e.cfg.Symbol,
		Quantity: qty,
		Side:     side,
		Type:     types.OrderTypeMarket,
	}
	if err := e.riskMgr.ValidateTrade(order, entry, account.Equity, positions); err != nil {
		e.events.Record(EventRiskAlert, SeverityWarning, "trade rejected: %v", err)
		return nil
	}
	peak := e.trackEquity(account.Equity)
	if warn, err := e.riskMgr.CheckPortfolioRisk(account.Equity, peak); err != nil {
		e.events.Record(EventRiskAlert, SeverityWarning, "trade rejected: %v", err)
		return nil
	} else if warn != "" {
		e.events.Record(EventRiskAlert, SeverityWarning, "%s", warn)
	}

	result, err := e.broker.PlaceOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("placing order: %w", err)
	}
	e.log.Info().
		Str("order_id", result.OrderID).
		Str("side", result.Side).
		Int("qty", result.Quantity).
		Float64("stop", stop).
		Msg("order placed")
	e.events.Record(EventOrder, SeverityInfo, "%s %d %s at %.2f (stop %.2f)",
		result.Side, result.Quantity, result.Symbol, entry, stop)
	return nil
}

// trackEquity records an equity observation and returns the running peak.
func (e *Engine) trackEquity(equity float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	return e.peakEquity
}

// updatePerformance records the current equity and derived return.
func (e *Engine) updatePerformance(ctx context.Context) error {
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	prev := e.lastEquity
	e.lastEquity = account.Equity
	if account.Equity > e.peakEquity {
		e.peakEquity = account.Equity
	}
	e.mu.Unlock()

	ret := math.NaN()
	if prev > 0 {
		ret = (account.Equity - prev) / prev
	}
	e.perf.Update(account.Equity, ret)
	return nil
}

// TrainDetector fetches a long history and fits the regime model, saving
// it to the configured model path.
func (e *Engine) TrainDetector(ctx context.Context) error {
	end := time.Now()
	start := end.AddDate(0, 0, -trainHistoryDays)
	bars, err := e.source.GetBarsRange(ctx, e.cfg.Symbol, e.cfg.Timeframe, start, end)
	if err != nil {
		return fmt.Errorf("fetching training history: %w", err)
	}
	if err := e.detector.Train(bars); err != nil {
		return fmt.Errorf("training detector: %w", err)
	}
	e.events.Record(EventSystem, SeverityInfo, "regime model trained on %d bars", len(bars))
	return nil
}

// Pause suspends order execution. The pipeline keeps running so status
// and regime stay current, but signals are not acted on.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.events.Record(EventSystem, SeverityWarning, "trading paused")
}

// Resume re-enables order execution.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.events.Record(EventSystem, SeverityInfo, "trading resumed")
}

func (e *Engine) isPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Cycles returns the number of completed cycles.
func (e *Engine) Cycles() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycles
}

// GetStatus builds a snapshot for the operator API.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := Status{
		Running:       e.running,
		Paused:        e.paused,
		Symbol:        e.cfg.Symbol,
		Timeframe:     e.cfg.Timeframe,
		Cycles:        e.cycles,
		LastCycle:     e.lastCycle,
		LastSignal:    e.lastSignal.String(),
		Regime:        e.selector.CurrentRegime(),
		DetectorModel: e.detector.IsTrained(),
		Equity:        e.lastEquity,
		Performance:   e.perf.GetSummary(0),
	}
	if cur := e.selector.Current(); cur != nil {
		st.Strategy = cur.Name()
	}
	return st
}

// Events exposes the operator event log.
func (e *Engine) Events() *EventLog {
	return e.events
}

// RiskSummary builds the account risk report served over the operator API.
func (e *Engine) RiskSummary(ctx context.Context) (risk.Summary, error) {
	positions, err := e.broker.GetOpenPositions(ctx)
	if err != nil {
		return risk.Summary{}, fmt.Errorf("fetching positions: %w", err)
	}
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return risk.Summary{}, fmt.Errorf("fetching account: %w", err)
	}
	peak := e.trackEquity(account.Equity)
	return e.riskMgr.GetSummary(account, positions, peak), nil
}

// Recommend produces a selection report from fresh data.
func (e *Engine) Recommend(ctx context.Context) (selector.Recommendation, error) {
	bars, err := e.source.GetBars(ctx, e.cfg.Symbol, e.cfg.Timeframe, e.cfg.BarLimit)
	if err != nil {
		return selector.Recommendation{}, fmt.Errorf("fetching bars: %w", err)
	}
	return e.selector.Recommend(bars), nil
}
