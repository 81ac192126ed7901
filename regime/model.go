package regime

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/kiwiquant/kiwitrader/types"
)

// Feature column indices for model state labeling.
const (
	featReturn = iota
	featVolatility
	featMomentum
)

const (
	numStates      = 3
	minTrainRows   = 30
	kmeansMaxIters = 100
	varianceFloor  = 1e-10
)

// StateParams holds the diagonal Gaussian parameters for one hidden state.
type StateParams struct {
	Weight   float64   `json:"weight"`
	Mean     []float64 `json:"mean"`
	Variance []float64 `json:"variance"`
}

// GaussianModel is a 3-state diagonal Gaussian mixture over regime feature
// rows. Labels maps each state index to its regime name; the mapping is
// fixed at fit time.
type GaussianModel struct {
	States []StateParams  `json:"states"`
	Labels []types.Regime `json:"labels"`
}

// FitModel fits a 3-state mixture to the feature matrix. Clusters are
// seeded deterministically from the volatility quantiles of the data, so
// repeated fits on the same series produce the same model.
func FitModel(features [][]float64) (*GaussianModel, error) {
	if len(features) < minTrainRows {
		return nil, fmt.Errorf("insufficient training data: got %d feature rows, need at least %d", len(features), minTrainRows)
	}
	dims := len(features[0])
	assignments := kmeans(features, numStates)

	model := &GaussianModel{States: make([]StateParams, numStates)}
	for state := 0; state < numStates; state++ {
		mean := make([]float64, dims)
		variance := make([]float64, dims)
		count := 0
		for i, a := range assignments {
			if a != state {
				continue
			}
			count++
			for d := 0; d < dims; d++ {
				mean[d] += features[i][d]
			}
		}
		if count == 0 {
			return nil, fmt.Errorf("degenerate clustering: state %d received no samples", state)
		}
		for d := 0; d < dims; d++ {
			mean[d] /= float64(count)
		}
		for i, a := range assignments {
			if a != state {
				continue
			}
			for d := 0; d < dims; d++ {
				diff := features[i][d] - mean[d]
				variance[d] += diff * diff
			}
		}
		for d := 0; d < dims; d++ {
			variance[d] = variance[d]/float64(count) + varianceFloor
		}
		model.States[state] = StateParams{
			Weight:   float64(count) / float64(len(features)),
			Mean:     mean,
			Variance: variance,
		}
	}
	model.Labels = labelStates(model.States)
	return model, nil
}

// labelStates assigns regime names to fitted states: the state with the
// highest mean volatility becomes VOLATILE, the larger |mean momentum| of
// the remaining two becomes TREND, and the last is SIDEWAYS.
func labelStates(states []StateParams) []types.Regime {
	labels := make([]types.Regime, len(states))
	order := make([]int, len(states))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return states[order[a]].Mean[featVolatility] > states[order[b]].Mean[featVolatility]
	})
	labels[order[0]] = types.RegimeVolatile

	rest := order[1:]
	if math.Abs(states[rest[0]].Mean[featMomentum]) >= math.Abs(states[rest[1]].Mean[featMomentum]) {
		labels[rest[0]] = types.RegimeTrend
		labels[rest[1]] = types.RegimeSideways
	} else {
		labels[rest[0]] = types.RegimeSideways
		labels[rest[1]] = types.RegimeTrend
	}
	return labels
}

// PredictState returns the max-posterior state index for one feature row.
func (m *GaussianModel) PredictState(row []float64) int {
	post := m.Posteriors(row)
	best := 0
	for i, p := range post {
		if p > post[best] {
			best = i
		}
	}
	return best
}

// Posteriors returns normalized per-state posterior probabilities for one
// feature row.
func (m *GaussianModel) Posteriors(row []float64) []float64 {
	post := make([]float64, len(m.States))
	var total float64
	for i, state := range m.States {
		post[i] = state.Weight * diagGaussianDensity(row, state.Mean, state.Variance)
		total += post[i]
	}
	if total <= 0 || math.IsNaN(total) {
		// All densities underflowed; fall back to the mixture weights.
		for i, state := range m.States {
			post[i] = state.Weight
		}
		return post
	}
	for i := range post {
		post[i] /= total
	}
	return post
}

func diagGaussianDensity(row, mean, variance []float64) float64 {
	logDensity := 0.0
	for d := range row {
		diff := row[d] - mean[d]
		logDensity += -0.5*math.Log(2*math.Pi*variance[d]) - diff*diff/(2*variance[d])
	}
	return math.Exp(logDensity)
}

// kmeans runs Lloyd's algorithm with quantile seeding on the volatility
// feature. Ties and empty clusters are handled by reseeding from the point
// furthest from its centroid.
func kmeans(features [][]float64, k int) []int {
	n := len(features)
	dims := len(features[0])

	// Seed centroids at the 1/6, 3/6, 5/6 volatility quantiles.
	byVol := make([]int, n)
	for i := range byVol {
		byVol[i] = i
	}
	sort.Slice(byVol, func(a, b int) bool {
		return features[byVol[a]][featVolatility] < features[byVol[b]][featVolatility]
	})
	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		idx := byVol[(2*c+1)*n/(2*k)]
		centroids[c] = append([]float64(nil), features[idx]...)
	}

	assignments := make([]int, n)
	for iter := 0; iter < kmeansMaxIters; iter++ {
		changed := false
		for i, row := range features {
			best, bestDist := 0, math.Inf(1)
			for c, cent := range centroids {
				dist := sqDist(row, cent)
				if dist < bestDist {
					best, bestDist = c, dist
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, row := range features {
			c := assignments[i]
			counts[c]++
			for d := 0; d < dims; d++ {
				sums[c][d] += row[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Reseed an empty cluster from the point furthest from
				// its current centroid.
				far, farDist := 0, -1.0
				for i, row := range features {
					dist := sqDist(row, centroids[assignments[i]])
					if dist > farDist {
						far, farDist = i, dist
					}
				}
				centroids[c] = append([]float64(nil), features[far]...)
				assignments[far] = c
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	return assignments
}

func sqDist(a, b []float64) float64 {
	var total float64
	for i := range a {
		diff := a[i] - b[i]
		total += diff * diff
	}
	return total
}

// Save writes the model to path as JSON, creating parent directories.
func (m *GaussianModel) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// LoadModel reads a model from path, validating its shape.
func LoadModel(path string) (*GaussianModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var model GaussianModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if len(model.States) != numStates || len(model.Labels) != numStates {
		return nil, fmt.Errorf("model file %s has %d states, expected %d", path, len(model.States), numStates)
	}
	return &model, nil
}
