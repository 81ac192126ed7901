package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/kiwiquant/kiwitrader/indicator"
	"github.com/kiwiquant/kiwitrader/types"
)

// Column names shared by the strategies.
const (
	colMAFast     = "ma_fast"
	colMASlow     = "ma_slow"
	colVolatility = "volatility"
)

func init() {
	Register(TypeTrendFollowing, func() Strategy {
		return &TrendFollowing{
			fastPeriod: 20,
			slowPeriod: 50,
			volWindow:  20,
			useEMA:     false,
		}
	})
}

// TrendFollowing trades moving-average crossovers. Crossovers that occur
// while rolling volatility sits below half its own median are suppressed to
// cut whipsaw in flat markets.
type TrendFollowing struct {
	fastPeriod int
	slowPeriod int
	volWindow  int
	useEMA     bool
}

func (s *TrendFollowing) Name() string { return "Trend Following" }

func (s *TrendFollowing) Type() Type { return TypeTrendFollowing }

func (s *TrendFollowing) Description() string {
	return "Moving average crossover with a low-volatility signal filter, for trending markets"
}

func (s *TrendFollowing) Configure(config Config) error {
	for key, val := range config.Params {
		switch key {
		case "fast_period":
			if val < 2 {
				return errors.New("fast_period must be at least 2")
			}
			s.fastPeriod = int(val)
		case "slow_period":
			if val < 2 {
				return errors.New("slow_period must be at least 2")
			}
			s.slowPeriod = int(val)
		case "vol_window":
			if val < 2 {
				return errors.New("vol_window must be at least 2")
			}
			s.volWindow = int(val)
		case "use_ema":
			s.useEMA = val > 0.5
		default:
			return fmt.Errorf("unknown parameter: %s", key)
		}
	}
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("fast_period (%d) must be shorter than slow_period (%d)", s.fastPeriod, s.slowPeriod)
	}
	return nil
}

func (s *TrendFollowing) Lookback() int {
	if s.slowPeriod > s.volWindow {
		return s.slowPeriod
	}
	return s.volWindow
}

func (s *TrendFollowing) CalculateIndicators(frame *Frame) {
	closes := frame.Closes()
	if s.useEMA {
		frame.Set(colMAFast, indicator.EMA(closes, s.fastPeriod))
		frame.Set(colMASlow, indicator.EMA(closes, s.slowPeriod))
	} else {
		frame.Set(colMAFast, indicator.SMA(closes, s.fastPeriod))
		frame.Set(colMASlow, indicator.SMA(closes, s.slowPeriod))
	}
	frame.Set(colVolatility, indicator.RollingVolatility(closes, s.volWindow, false))
}

func (s *TrendFollowing) GenerateSignals(frame *Frame) []types.Signal {
	signals := make([]types.Signal, frame.Len())
	if frame.Len() < s.Lookback() {
		return signals
	}
	if !frame.Has(colMAFast, colMASlow, colVolatility) {
		s.CalculateIndicators(frame)
	}

	fast, _ := frame.Col(colMAFast)
	slow, _ := frame.Col(colMASlow)
	vol, _ := frame.Col(colVolatility)
	volMedian := indicator.Median(vol)

	for i := 1; i < frame.Len(); i++ {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) || math.IsNaN(fast[i-1]) || math.IsNaN(slow[i-1]) {
			continue
		}
		crossUp := fast[i] > slow[i] && fast[i-1] <= slow[i-1]
		crossDown := fast[i] < slow[i] && fast[i-1] >= slow[i-1]
		if !crossUp && !crossDown {
			continue
		}
		// Crossovers inside a volatility trough are noise in flat markets.
		if !math.IsNaN(volMedian) && !math.IsNaN(vol[i]) && vol[i] < volMedian*0.5 {
			continue
		}
		if crossUp {
			signals[i] = types.SignalLong
		} else {
			signals[i] = types.SignalShort
		}
	}
	return signals
}

func (s *TrendFollowing) RegimeSuitability(regime types.Regime) float64 {
	return suitabilityFor(map[types.Regime]float64{
		types.RegimeTrend:    0.9,
		types.RegimeSideways: 0.3,
		types.RegimeVolatile: 0.5,
	}, regime)
}
