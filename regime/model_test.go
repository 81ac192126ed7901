package regime

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwiquant/kiwitrader/types"
)

// syntheticFeatures builds three well-separated clusters: calm range-bound
// rows, steadily trending rows and high-volatility rows.
func syntheticFeatures() [][]float64 {
	var rows [][]float64
	for i := 0; i < 15; i++ {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		rows = append(rows, []float64{sign * 0.0005, 0.008, sign * 0.002})
	}
	for i := 0; i < 15; i++ {
		rows = append(rows, []float64{0.01, 0.012, 0.08 + 0.001*float64(i%3)})
	}
	for i := 0; i < 15; i++ {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		rows = append(rows, []float64{sign * 0.04, 0.2, sign * 0.01})
	}
	return rows
}

func TestFitModel_InsufficientRows(t *testing.T) {
	_, err := FitModel(syntheticFeatures()[:10])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient training data")
}

func TestFitModel_LabelsClusters(t *testing.T) {
	model, err := FitModel(syntheticFeatures())
	require.NoError(t, err)
	require.Len(t, model.States, 3)
	require.Len(t, model.Labels, 3)

	seen := map[types.Regime]bool{}
	for _, label := range model.Labels {
		seen[label] = true
	}
	for _, r := range types.Regimes {
		assert.True(t, seen[r], "label %s missing from fitted model", r)
	}
}

func TestFitModel_PredictsClusterMembers(t *testing.T) {
	model, err := FitModel(syntheticFeatures())
	require.NoError(t, err)

	tests := []struct {
		name string
		row  []float64
		want types.Regime
	}{
		{"calm row", []float64{0.0, 0.008, 0.0}, types.RegimeSideways},
		{"trending row", []float64{0.01, 0.012, 0.08}, types.RegimeTrend},
		{"volatile row", []float64{0.04, 0.2, 0.01}, types.RegimeVolatile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := model.PredictState(tt.row)
			assert.Equal(t, tt.want, model.Labels[state])
		})
	}
}

func TestPosteriors_Normalized(t *testing.T) {
	model, err := FitModel(syntheticFeatures())
	require.NoError(t, err)

	for _, row := range [][]float64{
		{0.0, 0.008, 0.0},
		{0.01, 0.012, 0.08},
		{1e6, 1e6, 1e6}, // forces the underflow fallback to weights
	} {
		post := model.Posteriors(row)
		require.Len(t, post, 3)
		sum := 0.0
		for _, p := range post {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestModel_SaveLoadRoundTrip(t *testing.T) {
	model, err := FitModel(syntheticFeatures())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "models", "regime.json")
	require.NoError(t, model.Save(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, model.Labels, loaded.Labels)
	assert.Equal(t, model.States, loaded.States)
}

func TestLoadModel_Missing(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
