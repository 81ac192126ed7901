package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwiquant/kiwitrader/types"
)

func barAt(ts time.Time, close float64) types.Bar {
	return types.Bar{Timestamp: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 100}
}

func TestValidateSeries_SortsAscending(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		barAt(base.Add(2*time.Hour), 102),
		barAt(base, 100),
		barAt(base.Add(time.Hour), 101),
	}

	got, err := ValidateSeries(bars)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp), "series must be ascending at %d", i)
	}
	assert.InDelta(t, 100, got[0].Close, 1e-9)
}

func TestValidateSeries_DropsDuplicateTimestamps(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		barAt(base, 100),
		barAt(base, 999), // duplicate timestamp, first wins
		barAt(base.Add(time.Hour), 101),
	}

	got, err := ValidateSeries(bars)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 100, got[0].Close, 1e-9)
}

func TestValidateSeries_Errors(t *testing.T) {
	_, err := ValidateSeries(nil)
	require.Error(t, err)

	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err = ValidateSeries([]types.Bar{{Timestamp: base, Open: 1, High: 1, Low: 1, Close: 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive price")
}

func TestParseTimeFrame(t *testing.T) {
	tests := []struct {
		input   string
		wantDur time.Duration
		wantErr bool
	}{
		{"1Min", time.Minute, false},
		{"5min", 5 * time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"1Hour", time.Hour, false},
		{"1Day", 24 * time.Hour, false},
		{"", 24 * time.Hour, false},
		{"7weeks", 24 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, dur, err := ParseTimeFrame(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDur, dur)
		})
	}
}
