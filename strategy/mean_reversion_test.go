package strategy

import (
	"testing"

	"github.com/kiwiquant/kiwitrader/types"
)

func meanRevStrategy(t *testing.T) Strategy {
	t.Helper()
	s := New(TypeMeanReversion)
	err := s.Configure(Config{Params: map[string]float64{
		"rsi_period": 3,
		"bb_period":  3,
		"bb_std":     1,
	}})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	return s
}

func TestMeanReversion_Configure(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]float64
		wantErr bool
	}{
		{"valid override", map[string]float64{"rsi_oversold": 25, "rsi_overbought": 75}, false},
		{"oversold above overbought", map[string]float64{"rsi_oversold": 80, "rsi_overbought": 20}, true},
		{"oversold out of range", map[string]float64{"rsi_oversold": 120}, true},
		{"non-positive band width", map[string]float64{"bb_std": 0}, true},
		{"unknown parameter", map[string]float64{"bogus": 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(TypeMeanReversion)
			err := s.Configure(Config{Params: tt.params})
			if (err != nil) != tt.wantErr {
				t.Errorf("Configure() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMeanReversion_OversoldEntry(t *testing.T) {
	s := meanRevStrategy(t)

	// Accelerating decline drives RSI to 0 and the close onto the lower
	// band.
	closes := []float64{100, 100, 100, 99, 90}
	frame := NewFrame(trendBars(closes))
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalLong {
		t.Errorf("signal[4] = %v, want long entry on oversold print", signals[4])
	}
}

func TestMeanReversion_OverboughtEntry(t *testing.T) {
	s := meanRevStrategy(t)

	closes := []float64{100, 100, 100, 101, 110}
	frame := NewFrame(trendBars(closes))
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalShort {
		t.Errorf("signal[4] = %v, want short entry on overbought print", signals[4])
	}
}

func TestMeanReversion_MiddleBandExit(t *testing.T) {
	s := meanRevStrategy(t)

	// Oversold entry followed by a recovery through the middle band. The
	// recovery bar must emit the long-exit signal even though no entry
	// condition holds there.
	closes := []float64{100, 100, 100, 99, 90, 97}
	frame := NewFrame(trendBars(closes))
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalLong {
		t.Errorf("signal[4] = %v, want long entry", signals[4])
	}
	if signals[5] != types.SignalShort {
		t.Errorf("signal[5] = %v, want exit signal on upward middle-band cross", signals[5])
	}
}

func TestMeanReversion_FlatSeriesNoSignals(t *testing.T) {
	s := meanRevStrategy(t)

	closes := []float64{100, 100, 100, 100, 100, 100, 100}
	frame := NewFrame(trendBars(closes))
	signals := s.GenerateSignals(frame)

	for i, sig := range signals {
		if sig != types.SignalNone {
			t.Errorf("signal[%d] = %v, want none on a flat series", i, sig)
		}
	}
}
