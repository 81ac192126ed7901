package regime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwiquant/kiwitrader/types"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func barsWithCloses(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{Open: c, High: c * 1.005, Low: c * 0.995, Close: c, Volume: 1000}
	}
	return bars
}

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

// trainingCloses produces a series with distinct calm, trending and
// volatile segments so the mixture model has three real clusters to find.
func trainingCloses() []float64 {
	var closes []float64
	price := 100.0
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			closes = append(closes, price*1.002)
		} else {
			closes = append(closes, price)
		}
	}
	for i := 0; i < 40; i++ {
		price += 1
		closes = append(closes, price)
	}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			price *= 1.05
		} else {
			price /= 1.05
		}
		closes = append(closes, price)
	}
	return closes
}

func TestPredictRegime_ShortHistoryIsSideways(t *testing.T) {
	d := NewDetector("", testLogger())
	got := d.PredictRegime(barsWithCloses(flatCloses(10, 100)), 0)
	assert.Equal(t, types.RegimeSideways, got)
}

func TestPredictRegime_FlatSeriesIsSideways(t *testing.T) {
	d := NewDetector("", testLogger())
	got := d.PredictRegime(barsWithCloses(flatCloses(60, 100)), 0)
	assert.Equal(t, types.RegimeSideways, got)
}

func TestPredictRegime_SteadyTrend(t *testing.T) {
	d := NewDetector("", testLogger())
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 2*float64(i)
	}
	got := d.PredictRegime(barsWithCloses(closes), 0)
	assert.Equal(t, types.RegimeTrend, got)
}

func TestPredictRegime_VolatilitySpike(t *testing.T) {
	d := NewDetector("", testLogger())
	closes := flatCloses(79, 100)
	price := 100.0
	for i := 0; i < 21; i++ {
		if i%2 == 0 {
			price *= 1.2
		} else {
			price /= 1.2
		}
		closes = append(closes, price)
	}
	got := d.PredictRegime(barsWithCloses(closes), 100)
	assert.Equal(t, types.RegimeVolatile, got)
}

func TestPredictRegime_NeverFails(t *testing.T) {
	d := NewDetector("", testLogger())
	for n := 0; n <= 100; n++ {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 100 + float64((i*7)%13) - float64((i*3)%5)
		}
		got := d.PredictRegime(barsWithCloses(closes), 0)
		assert.Contains(t, types.Regimes, got, "n=%d", n)
	}
}

func TestConfidence_FallbackSkew(t *testing.T) {
	d := NewDetector("", testLogger())
	conf := d.Confidence(barsWithCloses(flatCloses(60, 100)), 0)

	require.Len(t, conf, 3)
	assert.InDelta(t, 0.8, conf[types.RegimeSideways], 1e-9)
	assert.InDelta(t, 0.1, conf[types.RegimeTrend], 1e-9)
	assert.InDelta(t, 0.1, conf[types.RegimeVolatile], 1e-9)
}

func TestTrain_FailureLatches(t *testing.T) {
	d := NewDetector("", testLogger())

	err := d.Train(barsWithCloses(flatCloses(10, 100)))
	require.Error(t, err)
	assert.False(t, d.IsTrained())

	// A later call with plenty of data must not retrain.
	err = d.Train(barsWithCloses(trainingCloses()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "previously failed")
	assert.False(t, d.IsTrained())
}

func TestTrain_FitsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regime.json")
	d := NewDetector(path, testLogger())
	bars := barsWithCloses(trainingCloses())

	require.NoError(t, d.Train(bars))
	assert.True(t, d.IsTrained())

	_, err := os.Stat(path)
	require.NoError(t, err, "model file should be persisted")

	// A fresh detector picks the persisted model back up.
	d2 := NewDetector(path, testLogger())
	assert.True(t, d2.IsTrained())

	got := d2.PredictRegime(bars, 0)
	assert.Contains(t, types.Regimes, got)

	conf := d2.Confidence(bars, 0)
	sum := 0.0
	for _, p := range conf {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestNewDetector_CorruptModelStaysUntrained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regime.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	d := NewDetector(path, testLogger())
	assert.False(t, d.IsTrained())
}

func TestPrepareFeatures_DropsUndefinedRows(t *testing.T) {
	d := NewDetector("", testLogger())

	assert.Empty(t, d.PrepareFeatures(barsWithCloses(flatCloses(5, 100))))

	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	features := d.PrepareFeatures(barsWithCloses(closes))
	require.NotEmpty(t, features)
	for _, row := range features {
		require.Len(t, row, 3)
	}
	// Rows start only after the 20-bar indicator warmup.
	assert.LessOrEqual(t, len(features), 20)
}
