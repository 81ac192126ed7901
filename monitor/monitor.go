// Package monitor tracks rolling strategy performance: equity, returns,
// closed trades, and the derived Sharpe, drawdown and win-rate metrics the
// selector uses to detect degradation.
package monitor

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kiwiquant/kiwitrader/indicator"
)

const minSharpeSamples = 10

// Trade records a completed round trip.
type Trade struct {
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Direction  int     `json:"direction"` // 1 long, -1 short
	PnL        float64 `json:"pnl"`
	PnLPct     float64 `json:"pnl_pct"`
	Win        bool    `json:"win"`
}

// Summary is a snapshot of all derived performance metrics.
type Summary struct {
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	TotalTrades   int     `json:"total_trades"`
	CurrentEquity float64 `json:"current_equity"`
	TotalReturn   float64 `json:"total_return"`
	AvgReturn     float64 `json:"avg_return"`
	Volatility    float64 `json:"volatility"`
}

// PerformanceMonitor keeps bounded FIFO windows of equity and per-period
// returns plus an unbounded closed-trade history. It is owned by a single
// trading loop and is not safe for concurrent use.
type PerformanceMonitor struct {
	lookbackWindow int
	riskFreeRate   float64

	equity  []float64
	returns []float64
	trades  []Trade
}

// New creates a monitor with the given rolling window capacity and annual
// risk-free rate.
func New(lookbackWindow int, riskFreeRate float64) *PerformanceMonitor {
	if lookbackWindow <= 0 {
		lookbackWindow = 50
	}
	return &PerformanceMonitor{
		lookbackWindow: lookbackWindow,
		riskFreeRate:   riskFreeRate,
	}
}

// Update appends an equity sample. When ret is NaN the period return is
// derived from the previous equity value; the first sample yields no
// return. Oldest samples are evicted once the window is full.
func (m *PerformanceMonitor) Update(equity float64, ret float64) {
	if math.IsNaN(ret) && len(m.equity) > 0 {
		prev := m.equity[len(m.equity)-1]
		if prev != 0 {
			ret = (equity - prev) / prev
		}
	}
	m.equity = pushBounded(m.equity, equity, m.lookbackWindow)
	if !math.IsNaN(ret) {
		m.returns = pushBounded(m.returns, ret, m.lookbackWindow)
	}
}

// AddTrade records a completed trade. Direction is 1 for long, -1 for
// short; pnl is (exit-entry)*direction.
func (m *PerformanceMonitor) AddTrade(entryPrice, exitPrice float64, direction int) {
	pnl := (exitPrice - entryPrice) * float64(direction)
	pnlPct := 0.0
	if entryPrice != 0 {
		pnlPct = pnl / entryPrice
	}
	m.trades = append(m.trades, Trade{
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Direction:  direction,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Win:        pnl > 0,
	})
}

// RollingSharpe computes the annualized Sharpe ratio of the last window
// returns against the daily risk-free rate. It returns 0 with fewer than 10
// samples or zero variance.
func (m *PerformanceMonitor) RollingSharpe(window int) float64 {
	if len(m.returns) < minSharpeSamples {
		return 0
	}
	if window <= 0 || window > len(m.returns) {
		window = len(m.returns)
	}
	recent := m.returns[len(m.returns)-window:]

	dailyRF := m.riskFreeRate / indicator.TradingDaysPerYear
	excess := make([]float64, len(recent))
	for i, r := range recent {
		excess[i] = r - dailyRF
	}
	sd := stat.StdDev(excess, nil)
	if sd == 0 {
		return 0
	}
	return stat.Mean(excess, nil) / sd * math.Sqrt(indicator.TradingDaysPerYear)
}

// MaxDrawdown returns the most negative peak-to-trough decline over the
// equity window, as a non-positive percentage.
func (m *PerformanceMonitor) MaxDrawdown() float64 {
	if len(m.equity) < 2 {
		return 0
	}
	runningMax := m.equity[0]
	worst := 0.0
	for _, eq := range m.equity {
		if eq > runningMax {
			runningMax = eq
		}
		if runningMax > 0 {
			dd := (eq - runningMax) / runningMax
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst * 100
}

// WinRate returns the winning percentage over the last recentN trades, or
// all trades when recentN <= 0.
func (m *PerformanceMonitor) WinRate(recentN int) float64 {
	trades := m.recentTrades(recentN)
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.Win {
			wins++
		}
	}
	return float64(wins) / float64(len(trades)) * 100
}

// ProfitFactor returns gross profit divided by gross loss over the last
// recentN trades. With winners and no losers it returns +Inf; with no
// trades it returns 0.
func (m *PerformanceMonitor) ProfitFactor(recentN int) float64 {
	trades := m.recentTrades(recentN)
	if len(trades) == 0 {
		return 0
	}
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.PnL > 0 {
			grossProfit += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// IsPerformanceDegrading reports whether recent performance breached the
// Sharpe or drawdown thresholds. Fewer than lookback return samples is
// never treated as degradation: thin history must not trigger a strategy
// switch.
func (m *PerformanceMonitor) IsPerformanceDegrading(sharpeThreshold, drawdownThreshold float64, lookback int) bool {
	if len(m.returns) < lookback {
		return false
	}
	return m.RollingSharpe(lookback) < sharpeThreshold || m.MaxDrawdown() < drawdownThreshold
}

// GetSummary returns a full metric snapshot over the given window.
func (m *PerformanceMonitor) GetSummary(window int) Summary {
	if window <= 0 {
		window = m.lookbackWindow
	}
	s := Summary{
		SharpeRatio:  m.RollingSharpe(window),
		MaxDrawdown:  m.MaxDrawdown(),
		WinRate:      m.WinRate(window),
		ProfitFactor: m.ProfitFactor(window),
		TotalTrades:  len(m.trades),
	}
	if len(m.equity) > 0 {
		s.CurrentEquity = m.equity[len(m.equity)-1]
		if first := m.equity[0]; first != 0 {
			s.TotalReturn = (s.CurrentEquity - first) / first * 100
		}
	}
	if len(m.returns) > 0 {
		recent := m.returns
		if window < len(recent) {
			recent = recent[len(recent)-window:]
		}
		s.AvgReturn = stat.Mean(recent, nil) * 100
		if len(recent) >= 2 {
			s.Volatility = stat.StdDev(recent, nil) * math.Sqrt(indicator.TradingDaysPerYear) * 100
		}
	}
	return s
}

// ReturnCount returns the number of buffered return samples.
func (m *PerformanceMonitor) ReturnCount() int {
	return len(m.returns)
}

// Trades returns a copy of the closed-trade history.
func (m *PerformanceMonitor) Trades() []Trade {
	out := make([]Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Reset clears all performance state.
func (m *PerformanceMonitor) Reset() {
	m.equity = nil
	m.returns = nil
	m.trades = nil
}

func (m *PerformanceMonitor) recentTrades(recentN int) []Trade {
	if recentN <= 0 || recentN >= len(m.trades) {
		return m.trades
	}
	return m.trades[len(m.trades)-recentN:]
}

func pushBounded(buf []float64, v float64, capacity int) []float64 {
	buf = append(buf, v)
	if len(buf) > capacity {
		buf = buf[1:]
	}
	return buf
}
