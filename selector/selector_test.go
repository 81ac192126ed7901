package selector

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwiquant/kiwitrader/monitor"
	"github.com/kiwiquant/kiwitrader/regime"
	"github.com/kiwiquant/kiwitrader/strategy"
	"github.com/kiwiquant/kiwitrader/types"
)

func newTestSelector() (*Selector, *monitor.PerformanceMonitor) {
	perf := monitor.New(50, 0)
	det := regime.NewDetector("", zerolog.Nop())
	sel := New(strategy.All(), det, perf, zerolog.Nop())
	return sel, perf
}

// sidewaysBars is flat, trendBars rises steadily; both drive the untrained
// detector's rule-based classifier deterministically.
func sidewaysBars() []types.Bar {
	bars := make([]types.Bar, 60)
	for i := range bars {
		bars[i] = types.Bar{Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000}
	}
	return bars
}

func trendBars() []types.Bar {
	bars := make([]types.Bar, 60)
	for i := range bars {
		c := 100 + 2*float64(i)
		bars[i] = types.Bar{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

func TestSelect_InitialSelectionByRegime(t *testing.T) {
	sel, _ := newTestSelector()

	strat, reason := sel.Select(sidewaysBars(), false)
	require.NotNil(t, strat)
	assert.Equal(t, "Mean Reversion", strat.Name())
	assert.Equal(t, "Initial selection for SIDEWAYS regime", reason)
	assert.Equal(t, types.RegimeSideways, sel.CurrentRegime())

	history := sel.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Mean Reversion", history[0].Strategy)
}

func TestSelect_InitialTrendPicksTrendFollowing(t *testing.T) {
	sel, _ := newTestSelector()

	strat, reason := sel.Select(trendBars(), false)
	assert.Equal(t, "Trend Following", strat.Name())
	assert.Equal(t, "Initial selection for TREND regime", reason)
}

func TestSelect_DwellPeriodBlocksSwitch(t *testing.T) {
	sel, _ := newTestSelector()
	sel.Select(sidewaysBars(), false)

	// The regime flips immediately, but the dwell guard holds the current
	// strategy for MinBarsBeforeSwitch evaluations.
	for i := 0; i < sel.MinBarsBeforeSwitch-1; i++ {
		strat, reason := sel.Select(trendBars(), false)
		assert.Equal(t, "Mean Reversion", strat.Name(), "evaluation %d", i)
		assert.Equal(t, "Maintaining current strategy (evaluation period)", reason)
	}

	strat, reason := sel.Select(trendBars(), false)
	assert.Equal(t, "Trend Following", strat.Name())
	assert.Equal(t, "Regime changed to TREND", reason)
	require.Len(t, sel.History(), 2)
}

func TestSelect_ForceBypassesDwell(t *testing.T) {
	sel, _ := newTestSelector()
	sel.Select(sidewaysBars(), false)

	strat, reason := sel.Select(trendBars(), true)
	assert.Equal(t, "Trend Following", strat.Name())
	assert.Equal(t, "Regime changed to TREND", reason)
}

func TestSelect_PerformanceDegradationSwitches(t *testing.T) {
	sel, perf := newTestSelector()
	sel.Select(sidewaysBars(), false)

	equity := 100.0
	for i := 0; i < 25; i++ {
		equity *= 0.98
		perf.Update(equity, -0.02)
	}

	strat, reason := sel.Select(trendBars(), true)
	assert.Equal(t, "Trend Following", strat.Name())
	assert.Equal(t, "Performance degradation detected", reason)
}

func TestSelect_StableConditionsMaintain(t *testing.T) {
	sel, _ := newTestSelector()
	sel.Select(sidewaysBars(), false)

	strat, reason := sel.Select(sidewaysBars(), true)
	assert.Equal(t, "Mean Reversion", strat.Name())
	assert.Equal(t, "Maintaining current strategy (performing well)", reason)
	assert.Len(t, sel.History(), 1, "maintenance must not append history")
}

func TestSelectByRegime_TieResolvesLexically(t *testing.T) {
	sel, _ := newTestSelector()

	// An unknown regime scores every strategy 0.5; the tie goes to the
	// first name in sorted order.
	best := sel.selectByRegime(types.Regime("UNKNOWN"))
	assert.Equal(t, "Mean Reversion", best.Name())
}

func TestEvaluateAll(t *testing.T) {
	sel, _ := newTestSelector()
	sel.Select(sidewaysBars(), false)

	evals := sel.EvaluateAll(sidewaysBars())
	require.Len(t, evals, 3)

	currents := 0
	for _, ev := range evals {
		if ev.IsCurrent {
			currents++
			assert.Equal(t, "Mean Reversion", ev.Strategy)
		}
		assert.GreaterOrEqual(t, ev.Suitability, 0.0)
		assert.LessOrEqual(t, ev.Suitability, 1.0)
	}
	assert.Equal(t, 1, currents)
}

func TestRecommend(t *testing.T) {
	sel, _ := newTestSelector()
	sel.Select(sidewaysBars(), false)

	rec := sel.Recommend(trendBars())
	assert.Equal(t, types.RegimeTrend, rec.Regime)
	assert.Equal(t, "Trend Following", rec.Recommended)
	assert.Equal(t, "Mean Reversion", rec.Current)
	assert.True(t, rec.ShouldSwitch)
	require.Len(t, rec.Evaluations, 3)

	sum := 0.0
	for _, p := range rec.RegimeConfidence {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

// The trading loop drives Select while HTTP handlers call Recommend and
// the read accessors concurrently; the selector must tolerate that.
func TestSelector_ConcurrentSelectAndRecommend(t *testing.T) {
	sel, _ := newTestSelector()
	bars := trendBars()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			sel.Select(bars, false)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			rec := sel.Recommend(bars)
			assert.Equal(t, "Trend Following", rec.Recommended)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			sel.CurrentRegime()
			sel.Current()
			sel.History()
		}
	}()
	wg.Wait()

	assert.Equal(t, types.RegimeTrend, sel.CurrentRegime())
	require.NotNil(t, sel.Current())
}
