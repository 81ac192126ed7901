// Package indicator provides pure, stateless indicator math over OHLCV bar
// series. Every function returns a slice the same length as its input with
// NaN filling the leading region where not enough history exists.
package indicator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kiwiquant/kiwitrader/types"
)

// TradingDaysPerYear is used to annualize daily return statistics.
const TradingDaysPerYear = 252

// SMA computes a simple moving average over the given period.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average with smoothing 2/(period+1).
// The first defined value is the SMA of the first period samples.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	alpha := 2.0 / float64(period+1)
	var seed float64
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	out[period-1] = seed / float64(period)
	for i := period; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes the Relative Strength Index from rolling average gains and
// losses over the period. The result is bounded in [0,100]; when the average
// loss is exactly 0 and the average gain is positive the value is 100, and
// 50 when both are 0.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			avgGain := gainSum / float64(period)
			avgLoss := lossSum / float64(period)
			switch {
			case avgLoss == 0 && avgGain == 0:
				out[i] = 50
			case avgLoss == 0:
				out[i] = 100
			default:
				rs := avgGain / avgLoss
				out[i] = 100 - 100/(1+rs)
			}
		}
	}
	return out
}

// ATR computes the Average True Range: the rolling mean of
// max(high-low, |high-prevClose|, |low-prevClose|).
func ATR(bars []types.Bar, period int) []float64 {
	out := nanSlice(len(bars))
	if period <= 0 || len(bars) < period+1 {
		return out
	}
	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	var sum float64
	for i := 1; i < len(bars); i++ {
		sum += tr[i]
		if i > period {
			sum -= tr[i-period]
		}
		if i >= period {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// BollingerBands computes the middle (SMA), upper and lower bands at
// k standard deviations around the middle.
func BollingerBands(closes []float64, period int, k float64) (middle, upper, lower []float64) {
	middle = SMA(closes, period)
	sd := RollingStdDev(closes, period)
	upper = nanSlice(len(closes))
	lower = nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(middle[i]) && !math.IsNaN(sd[i]) {
			upper[i] = middle[i] + k*sd[i]
			lower[i] = middle[i] - k*sd[i]
		}
	}
	return middle, upper, lower
}

// Donchian computes the rolling highest high, lowest low and their midline
// over the given period.
func Donchian(bars []types.Bar, period int) (high, low, mid []float64) {
	high = nanSlice(len(bars))
	low = nanSlice(len(bars))
	mid = nanSlice(len(bars))
	if period <= 0 || len(bars) < period {
		return high, low, mid
	}
	for i := period - 1; i < len(bars); i++ {
		hi := bars[i-period+1].High
		lo := bars[i-period+1].Low
		for j := i - period + 2; j <= i; j++ {
			if bars[j].High > hi {
				hi = bars[j].High
			}
			if bars[j].Low < lo {
				lo = bars[j].Low
			}
		}
		high[i] = hi
		low[i] = lo
		mid[i] = (hi + lo) / 2
	}
	return high, low, mid
}

// Returns computes simple one-period returns; the first element is NaN.
func Returns(closes []float64) []float64 {
	out := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			out[i] = (closes[i] - closes[i-1]) / closes[i-1]
		}
	}
	return out
}

// RollingVolatility computes the rolling standard deviation of simple
// returns over the window. When annualize is set the result is scaled by
// sqrt(252).
func RollingVolatility(closes []float64, window int, annualize bool) []float64 {
	rets := Returns(closes)
	out := RollingStdDev(rets, window)
	if annualize {
		scale := math.Sqrt(TradingDaysPerYear)
		for i := range out {
			out[i] *= scale
		}
	}
	return out
}

// RollingStdDev computes the rolling sample standard deviation over the
// window, skipping NaN inputs; windows containing any NaN are NaN.
func RollingStdDev(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 1 || len(values) < window {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		win := values[i-window+1 : i+1]
		if hasNaN(win) {
			continue
		}
		out[i] = stat.StdDev(win, nil)
	}
	return out
}

// SlopePerBar fits a least-squares line through the last window values and
// returns the slope normalized by the final value (fractional change per
// bar). Returns NaN when there is not enough history or the final value is 0.
func SlopePerBar(values []float64, window int) float64 {
	if window < 2 || len(values) < window {
		return math.NaN()
	}
	tail := values[len(values)-window:]
	last := tail[len(tail)-1]
	if last == 0 || hasNaN(tail) {
		return math.NaN()
	}
	xs := make([]float64, window)
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, tail, nil, false)
	return slope / last
}

// Median returns the median of the non-NaN values, or NaN if none exist.
func Median(values []float64) float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return math.NaN()
	}
	sort.Float64s(clean)
	n := len(clean)
	if n%2 == 1 {
		return clean[n/2]
	}
	return (clean[n/2-1] + clean[n/2]) / 2
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
