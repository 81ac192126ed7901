package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/kiwiquant/kiwitrader/indicator"
	"github.com/kiwiquant/kiwitrader/types"
)

const (
	colRSI      = "rsi"
	colBBMiddle = "bb_middle"
	colBBUpper  = "bb_upper"
	colBBLower  = "bb_lower"
)

func init() {
	Register(TypeMeanReversion, func() Strategy {
		return &MeanReversion{
			rsiPeriod:     14,
			rsiOversold:   30,
			rsiOverbought: 70,
			bbPeriod:      20,
			bbStd:         2.0,
		}
	})
}

// MeanReversion fades extremes: it buys oversold prints near the lower
// Bollinger band and sells overbought prints near the upper band. Crossings
// back through the middle band force an exit, and those exit rules win over
// a coincident entry on the same bar.
type MeanReversion struct {
	rsiPeriod     int
	rsiOversold   float64
	rsiOverbought float64
	bbPeriod      int
	bbStd         float64
}

func (s *MeanReversion) Name() string { return "Mean Reversion" }

func (s *MeanReversion) Type() Type { return TypeMeanReversion }

func (s *MeanReversion) Description() string {
	return "RSI plus Bollinger band reversion with middle-band exits, for range-bound markets"
}

func (s *MeanReversion) Configure(config Config) error {
	for key, val := range config.Params {
		switch key {
		case "rsi_period":
			if val < 2 {
				return errors.New("rsi_period must be at least 2")
			}
			s.rsiPeriod = int(val)
		case "rsi_oversold":
			if val <= 0 || val >= 100 {
				return errors.New("rsi_oversold must be between 0 and 100")
			}
			s.rsiOversold = val
		case "rsi_overbought":
			if val <= 0 || val >= 100 {
				return errors.New("rsi_overbought must be between 0 and 100")
			}
			s.rsiOverbought = val
		case "bb_period":
			if val < 2 {
				return errors.New("bb_period must be at least 2")
			}
			s.bbPeriod = int(val)
		case "bb_std":
			if val <= 0 {
				return errors.New("bb_std must be positive")
			}
			s.bbStd = val
		default:
			return fmt.Errorf("unknown parameter: %s", key)
		}
	}
	if s.rsiOversold >= s.rsiOverbought {
		return fmt.Errorf("rsi_oversold (%.0f) must be below rsi_overbought (%.0f)", s.rsiOversold, s.rsiOverbought)
	}
	return nil
}

func (s *MeanReversion) Lookback() int {
	if s.rsiPeriod > s.bbPeriod {
		return s.rsiPeriod
	}
	return s.bbPeriod
}

func (s *MeanReversion) CalculateIndicators(frame *Frame) {
	closes := frame.Closes()
	frame.Set(colRSI, indicator.RSI(closes, s.rsiPeriod))
	middle, upper, lower := indicator.BollingerBands(closes, s.bbPeriod, s.bbStd)
	frame.Set(colBBMiddle, middle)
	frame.Set(colBBUpper, upper)
	frame.Set(colBBLower, lower)
}

func (s *MeanReversion) GenerateSignals(frame *Frame) []types.Signal {
	signals := make([]types.Signal, frame.Len())
	if frame.Len() < s.Lookback() {
		return signals
	}
	if !frame.Has(colRSI, colBBMiddle, colBBUpper, colBBLower) {
		s.CalculateIndicators(frame)
	}

	rsi, _ := frame.Col(colRSI)
	middle, _ := frame.Col(colBBMiddle)
	upper, _ := frame.Col(colBBUpper)
	lower, _ := frame.Col(colBBLower)
	closes := frame.Closes()

	// Entries first, exits last: the exit assignments deliberately
	// overwrite a coincident entry on the same bar.
	for i := range signals {
		if math.IsNaN(rsi[i]) || math.IsNaN(lower[i]) {
			continue
		}
		if rsi[i] < s.rsiOversold && closes[i] <= lower[i]*1.02 {
			signals[i] = types.SignalLong
		}
		if rsi[i] > s.rsiOverbought && closes[i] >= upper[i]*0.98 {
			signals[i] = types.SignalShort
		}
	}
	for i := 1; i < len(signals); i++ {
		if math.IsNaN(middle[i]) || math.IsNaN(middle[i-1]) {
			continue
		}
		if closes[i] > middle[i] && closes[i-1] <= middle[i-1] {
			signals[i] = types.SignalShort // exit long on upward middle-band cross
		}
		if closes[i] < middle[i] && closes[i-1] >= middle[i-1] {
			signals[i] = types.SignalLong // exit short on downward middle-band cross
		}
	}
	return signals
}

func (s *MeanReversion) RegimeSuitability(regime types.Regime) float64 {
	return suitabilityFor(map[types.Regime]float64{
		types.RegimeTrend:    0.3,
		types.RegimeSideways: 0.9,
		types.RegimeVolatile: 0.6,
	}, regime)
}
