package strategy

import (
	"math"

	"github.com/kiwiquant/kiwitrader/types"
)

// Frame is a bar series enriched with named indicator columns. Columns are
// always the same length as the bar slice; recomputing a column overwrites
// the previous values, which keeps CalculateIndicators idempotent.
type Frame struct {
	Bars []types.Bar
	cols map[string][]float64
}

// NewFrame wraps a bar series in an empty frame.
func NewFrame(bars []types.Bar) *Frame {
	return &Frame{Bars: bars, cols: make(map[string][]float64)}
}

// Len returns the number of bars in the frame.
func (f *Frame) Len() int {
	return len(f.Bars)
}

// Set stores an indicator column. Columns shorter or longer than the bar
// series are ignored so a stale column can never desynchronize the frame.
func (f *Frame) Set(name string, values []float64) {
	if len(values) != len(f.Bars) {
		return
	}
	f.cols[name] = values
}

// Col returns the named column and whether it exists.
func (f *Frame) Col(name string) ([]float64, bool) {
	vals, ok := f.cols[name]
	return vals, ok
}

// Has reports whether all named columns exist.
func (f *Frame) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := f.cols[n]; !ok {
			return false
		}
	}
	return true
}

// At returns the named column's value at index i, or NaN when the column is
// missing or the index is out of range.
func (f *Frame) At(name string, i int) float64 {
	vals, ok := f.cols[name]
	if !ok || i < 0 || i >= len(vals) {
		return math.NaN()
	}
	return vals[i]
}

// Closes returns the close prices of the underlying bars.
func (f *Frame) Closes() []float64 {
	return types.Closes(f.Bars)
}
