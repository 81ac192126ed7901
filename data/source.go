// Package data provides historical bar series to the trading engine.
package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kiwiquant/kiwitrader/types"
)

// DataSource supplies OHLCV history for a symbol.
type DataSource interface {
	// GetBars returns up to limit bars for symbol at the given timeframe,
	// ending at the most recent completed bar, in ascending time order.
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error)

	// GetBarsRange returns bars between start and end in ascending order.
	GetBarsRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Bar, error)
}

// ValidateSeries normalizes a bar series in place: sorts ascending by
// timestamp and drops duplicate timestamps, keeping the first occurrence.
// It errors on an empty series or a bar with non-positive prices.
func ValidateSeries(bars []types.Bar) ([]types.Bar, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("empty bar series")
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	out := bars[:0]
	var last time.Time
	for _, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return nil, fmt.Errorf("bar at %s has non-positive price", b.Timestamp.Format(time.RFC3339))
		}
		if !last.IsZero() && b.Timestamp.Equal(last) {
			continue
		}
		out = append(out, b)
		last = b.Timestamp
	}
	return out, nil
}
