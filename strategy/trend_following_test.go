package strategy

import (
	"testing"

	"github.com/kiwiquant/kiwitrader/types"
)

func trendBars(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000}
	}
	return bars
}

func TestTrendFollowing_Configure(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]float64
		wantErr bool
	}{
		{"valid override", map[string]float64{"fast_period": 10, "slow_period": 30}, false},
		{"fast not below slow", map[string]float64{"fast_period": 50, "slow_period": 20}, true},
		{"fast too small", map[string]float64{"fast_period": 1}, true},
		{"unknown parameter", map[string]float64{"bogus": 1}, true},
		{"ema switch", map[string]float64{"use_ema": 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(TypeTrendFollowing)
			err := s.Configure(Config{Params: tt.params})
			if (err != nil) != tt.wantErr {
				t.Errorf("Configure() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrendFollowing_CrossoverSignal(t *testing.T) {
	s := New(TypeTrendFollowing)
	err := s.Configure(Config{Params: map[string]float64{
		"fast_period": 2,
		"slow_period": 3,
		"vol_window":  3,
	}})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	// Decline into a sharp recovery: the 2-bar average crosses above the
	// 3-bar average on the first strong up bar.
	closes := []float64{10, 9, 8, 7, 12, 14}
	frame := NewFrame(trendBars(closes))
	s.CalculateIndicators(frame)
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalLong {
		t.Errorf("signal[4] = %v, want long on crossover", signals[4])
	}
	for _, i := range []int{0, 1, 2, 3, 5} {
		if signals[i] != types.SignalNone {
			t.Errorf("signal[%d] = %v, want none", i, signals[i])
		}
	}
}

func TestTrendFollowing_DownCross(t *testing.T) {
	s := New(TypeTrendFollowing)
	if err := s.Configure(Config{Params: map[string]float64{
		"fast_period": 2,
		"slow_period": 3,
		"vol_window":  3,
	}}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	closes := []float64{10, 11, 12, 13, 8, 6}
	frame := NewFrame(trendBars(closes))
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalShort {
		t.Errorf("signal[4] = %v, want short on downward crossover", signals[4])
	}
}

func TestTrendFollowing_SuitabilityOrdering(t *testing.T) {
	s := New(TypeTrendFollowing)
	trend := s.RegimeSuitability(types.RegimeTrend)
	sideways := s.RegimeSuitability(types.RegimeSideways)
	volatile := s.RegimeSuitability(types.RegimeVolatile)
	if trend <= sideways || trend <= volatile {
		t.Errorf("trend suitability %v should dominate sideways %v and volatile %v", trend, sideways, volatile)
	}
}
