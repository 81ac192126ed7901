package strategy

import (
	"testing"

	"github.com/kiwiquant/kiwitrader/types"
)

func TestVolatilityBreakout_Configure(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]float64
		wantErr bool
	}{
		{"valid override", map[string]float64{"atr_period": 10, "donchian_period": 15}, false},
		{"atr too small", map[string]float64{"atr_period": 1}, true},
		{"zero lag", map[string]float64{"confirmation_lag": 0}, true},
		{"unknown parameter", map[string]float64{"bogus": 1}, true},
		{"squeeze switch", map[string]float64{"require_squeeze": 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(TypeVolatilityBreakout)
			err := s.Configure(Config{Params: tt.params})
			if (err != nil) != tt.wantErr {
				t.Errorf("Configure() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVolatilityBreakout_Lookback(t *testing.T) {
	s := New(TypeVolatilityBreakout)
	if err := s.Configure(Config{Params: map[string]float64{
		"atr_period":       14,
		"donchian_period":  10,
		"confirmation_lag": 2,
	}}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	// ATR period plus lag dominates the shorter channel window.
	if got := s.Lookback(); got != 16 {
		t.Errorf("Lookback() = %d, want 16", got)
	}
}

func TestVolatilityBreakout_UpwardBreakout(t *testing.T) {
	s := New(TypeVolatilityBreakout)
	if err := s.Configure(Config{Params: map[string]float64{
		"atr_period":       2,
		"donchian_period":  3,
		"confirmation_lag": 1,
	}}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	// A quiet range then a wide-range bar closing above the prior channel
	// high with expanding ATR.
	bars := []types.Bar{
		{High: 10, Low: 9, Close: 9.5},
		{High: 10, Low: 9, Close: 9.5},
		{High: 10, Low: 9, Close: 9.5},
		{High: 10, Low: 9, Close: 9.5},
		{High: 13, Low: 9.5, Close: 12.8},
	}
	frame := NewFrame(bars)
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalLong {
		t.Errorf("signal[4] = %v, want long on upward breakout", signals[4])
	}
	for i := 0; i < 4; i++ {
		if signals[i] != types.SignalNone {
			t.Errorf("signal[%d] = %v, want none", i, signals[i])
		}
	}
}

func TestVolatilityBreakout_ContractingATRSuppressed(t *testing.T) {
	s := New(TypeVolatilityBreakout)
	if err := s.Configure(Config{Params: map[string]float64{
		"atr_period":       2,
		"donchian_period":  3,
		"confirmation_lag": 1,
	}}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	// The final close pokes above the prior channel high but ranges are
	// shrinking, so ATR is contracting and the breakout is unconfirmed.
	bars := []types.Bar{
		{High: 12, Low: 6, Close: 9},
		{High: 12, Low: 6, Close: 9},
		{High: 11, Low: 7, Close: 9},
		{High: 10.5, Low: 8.5, Close: 9},
		{High: 12.3, Low: 11.9, Close: 12.1},
	}
	frame := NewFrame(bars)
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalNone {
		t.Errorf("signal[4] = %v, want none while ATR contracts", signals[4])
	}
}

func TestVolatilityBreakout_DownwardBreakout(t *testing.T) {
	s := New(TypeVolatilityBreakout)
	if err := s.Configure(Config{Params: map[string]float64{
		"atr_period":       2,
		"donchian_period":  3,
		"confirmation_lag": 1,
	}}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	bars := []types.Bar{
		{High: 10, Low: 9, Close: 9.5},
		{High: 10, Low: 9, Close: 9.5},
		{High: 10, Low: 9, Close: 9.5},
		{High: 10, Low: 9, Close: 9.5},
		{High: 9.6, Low: 6, Close: 6.2},
	}
	frame := NewFrame(bars)
	signals := s.GenerateSignals(frame)

	if signals[4] != types.SignalShort {
		t.Errorf("signal[4] = %v, want short on downward breakout", signals[4])
	}
}
