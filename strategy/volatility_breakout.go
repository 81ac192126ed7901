package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/kiwiquant/kiwitrader/indicator"
	"github.com/kiwiquant/kiwitrader/types"
)

const (
	colATR          = "atr"
	colDonchianHigh = "donchian_high"
	colDonchianLow  = "donchian_low"
	colDonchianMid  = "donchian_mid"
	colChannelWidth = "channel_width"

	squeezeLookback = 10
	widthAvgWindow  = 50
)

func init() {
	Register(TypeVolatilityBreakout, func() Strategy {
		return &VolatilityBreakout{
			atrPeriod:       14,
			donchianPeriod:  20,
			confirmationLag: 2,
			requireSqueeze:  false,
		}
	})
}

// VolatilityBreakout buys closes through the prior Donchian high and sells
// closes through the prior Donchian low, but only while ATR is expanding
// versus its value confirmationLag bars back. The optional squeeze mode
// restricts signals to breakouts following a recent channel-width
// contraction below 80% of its 50-bar average.
type VolatilityBreakout struct {
	atrPeriod       int
	donchianPeriod  int
	confirmationLag int
	requireSqueeze  bool
}

func (s *VolatilityBreakout) Name() string { return "Volatility Breakout" }

func (s *VolatilityBreakout) Type() Type { return TypeVolatilityBreakout }

func (s *VolatilityBreakout) Description() string {
	return "Donchian channel breakout confirmed by expanding ATR, for volatile markets"
}

func (s *VolatilityBreakout) Configure(config Config) error {
	for key, val := range config.Params {
		switch key {
		case "atr_period":
			if val < 2 {
				return errors.New("atr_period must be at least 2")
			}
			s.atrPeriod = int(val)
		case "donchian_period":
			if val < 2 {
				return errors.New("donchian_period must be at least 2")
			}
			s.donchianPeriod = int(val)
		case "confirmation_lag":
			if val < 1 {
				return errors.New("confirmation_lag must be at least 1")
			}
			s.confirmationLag = int(val)
		case "require_squeeze":
			s.requireSqueeze = val > 0.5
		default:
			return fmt.Errorf("unknown parameter: %s", key)
		}
	}
	return nil
}

func (s *VolatilityBreakout) Lookback() int {
	lb := s.donchianPeriod
	if s.atrPeriod+s.confirmationLag > lb {
		lb = s.atrPeriod + s.confirmationLag
	}
	return lb
}

func (s *VolatilityBreakout) CalculateIndicators(frame *Frame) {
	frame.Set(colATR, indicator.ATR(frame.Bars, s.atrPeriod))
	high, low, mid := indicator.Donchian(frame.Bars, s.donchianPeriod)
	frame.Set(colDonchianHigh, high)
	frame.Set(colDonchianLow, low)
	frame.Set(colDonchianMid, mid)

	width := make([]float64, frame.Len())
	for i := range width {
		width[i] = high[i] - low[i]
	}
	frame.Set(colChannelWidth, width)
}

func (s *VolatilityBreakout) GenerateSignals(frame *Frame) []types.Signal {
	signals := make([]types.Signal, frame.Len())
	if frame.Len() < s.Lookback() {
		return signals
	}
	if !frame.Has(colATR, colDonchianHigh, colDonchianLow, colChannelWidth) {
		s.CalculateIndicators(frame)
	}

	atr, _ := frame.Col(colATR)
	dHigh, _ := frame.Col(colDonchianHigh)
	dLow, _ := frame.Col(colDonchianLow)
	width, _ := frame.Col(colChannelWidth)
	avgWidth := indicator.SMA(width, widthAvgWindow)
	closes := frame.Closes()

	for i := 1; i < frame.Len(); i++ {
		prev := i - 1
		back := i - s.confirmationLag
		if back < 0 || math.IsNaN(atr[i]) || math.IsNaN(atr[back]) ||
			math.IsNaN(dHigh[prev]) || math.IsNaN(dLow[prev]) {
			continue
		}
		atrExpanding := atr[i] > atr[back]
		breakoutUp := closes[i] > dHigh[prev] && atrExpanding
		breakoutDown := closes[i] < dLow[prev] && atrExpanding
		if !breakoutUp && !breakoutDown {
			continue
		}
		if s.requireSqueeze && !s.recentSqueeze(width, avgWidth, i) {
			continue
		}
		if breakoutUp {
			signals[i] = types.SignalLong
		} else {
			signals[i] = types.SignalShort
		}
	}
	return signals
}

// recentSqueeze reports whether the channel width contracted below 80% of
// its rolling average at any point in the last squeezeLookback bars.
func (s *VolatilityBreakout) recentSqueeze(width, avgWidth []float64, i int) bool {
	start := i - squeezeLookback + 1
	if start < 0 {
		start = 0
	}
	for j := start; j <= i; j++ {
		if math.IsNaN(width[j]) || math.IsNaN(avgWidth[j]) {
			continue
		}
		if width[j] < avgWidth[j]*0.8 {
			return true
		}
	}
	return false
}

func (s *VolatilityBreakout) RegimeSuitability(regime types.Regime) float64 {
	return suitabilityFor(map[types.Regime]float64{
		types.RegimeTrend:    0.6,
		types.RegimeSideways: 0.4,
		types.RegimeVolatile: 0.9,
	}, regime)
}
