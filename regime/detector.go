// Package regime classifies the trailing window of a bar series into one of
// the market regimes TREND, SIDEWAYS or VOLATILE. A trained Gaussian
// mixture model handles classification when available; a deterministic
// rule-based classifier covers the untrained path and never fails.
package regime

import (
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/kiwiquant/kiwitrader/indicator"
	"github.com/kiwiquant/kiwitrader/types"
)

const (
	featureLookback = 20
	defaultWindow   = 50
	minModelRows    = 10
	confidenceRows  = 10

	// Rule-based classification thresholds.
	volatileStdMultiple = 1.5
	trendSlopeThreshold = 0.001 // 0.1% per bar
)

// Detector classifies market regimes. It has exactly two modes: trained
// (model != nil) and untrained. A failed training attempt latches the
// detector into untrained mode for its lifetime; it never retries on its
// own.
type Detector struct {
	modelPath string
	model     *GaussianModel
	trainErr  error
	log       zerolog.Logger
}

// NewDetector creates a detector. When modelPath names an existing file the
// model is loaded from it; a load failure degrades to untrained mode rather
// than surfacing an error.
func NewDetector(modelPath string, logger zerolog.Logger) *Detector {
	d := &Detector{
		modelPath: modelPath,
		log:       logger.With().Str("component", "regime").Logger(),
	}
	if modelPath == "" {
		return d
	}
	if _, err := os.Stat(modelPath); err != nil {
		return d
	}
	model, err := LoadModel(modelPath)
	if err != nil {
		d.log.Warn().Err(err).Str("path", modelPath).Msg("could not load regime model, staying untrained")
		return d
	}
	d.model = model
	d.log.Info().Str("path", modelPath).Msg("loaded regime model")
	return d
}

// IsTrained reports whether the detector has a usable model.
func (d *Detector) IsTrained() bool {
	return d.model != nil
}

// PrepareFeatures builds the per-bar feature matrix: one-bar return,
// rolling volatility and price-vs-SMA momentum, dropping rows where any
// feature is undefined.
func (d *Detector) PrepareFeatures(bars []types.Bar) [][]float64 {
	closes := types.Closes(bars)
	rets := indicator.Returns(closes)
	vol := indicator.RollingVolatility(closes, featureLookback, false)
	sma := indicator.SMA(closes, featureLookback)

	features := make([][]float64, 0, len(bars))
	for i := range bars {
		if math.IsNaN(rets[i]) || math.IsNaN(vol[i]) || math.IsNaN(sma[i]) || sma[i] == 0 {
			continue
		}
		momentum := (closes[i] - sma[i]) / sma[i]
		features = append(features, []float64{rets[i], vol[i], momentum})
	}
	return features
}

// Train fits the 3-state model on the full series. A failed fit is
// permanent: subsequent calls return the original error without refitting,
// and the detector keeps using the rule-based fallback.
func (d *Detector) Train(bars []types.Bar) error {
	if d.trainErr != nil {
		return fmt.Errorf("regime model training previously failed: %w", d.trainErr)
	}
	features := d.PrepareFeatures(bars)
	model, err := FitModel(features)
	if err != nil {
		d.trainErr = err
		d.log.Warn().Err(err).Msg("regime model training failed, using rule-based fallback")
		return err
	}
	d.model = model
	d.log.Info().Int("samples", len(features)).Msg("regime model trained")
	if d.modelPath != "" {
		if err := model.Save(d.modelPath); err != nil {
			d.log.Warn().Err(err).Str("path", d.modelPath).Msg("could not persist regime model")
		}
	}
	return nil
}

// PredictRegime classifies the trailing window bars of the series. The
// trained path requires at least 10 valid feature rows; anything short of
// that, or an untrained detector, uses the rule-based classifier. It always
// returns one of the three regimes and never fails.
func (d *Detector) PredictRegime(bars []types.Bar, window int) types.Regime {
	recent := tail(bars, windowOrDefault(window))
	if d.model != nil {
		features := d.PrepareFeatures(recent)
		if len(features) >= minModelRows {
			state := d.model.PredictState(features[len(features)-1])
			return d.model.Labels[state]
		}
	}
	return d.classifyByRule(recent)
}

// Confidence returns probability-like scores per regime. The trained path
// averages model posteriors over the last 10 feature rows; the fallback
// returns a fixed skew of 0.8 for the detected regime and 0.1 for the rest.
func (d *Detector) Confidence(bars []types.Bar, window int) types.RegimeConfidence {
	recent := tail(bars, windowOrDefault(window))
	if d.model != nil {
		features := d.PrepareFeatures(recent)
		if len(features) >= minModelRows {
			return d.modelConfidence(features)
		}
	}
	detected := d.classifyByRule(recent)
	conf := make(types.RegimeConfidence, len(types.Regimes))
	for _, r := range types.Regimes {
		if r == detected {
			conf[r] = 0.8
		} else {
			conf[r] = 0.1
		}
	}
	return conf
}

func (d *Detector) modelConfidence(features [][]float64) types.RegimeConfidence {
	start := len(features) - confidenceRows
	if start < 0 {
		start = 0
	}
	avg := make([]float64, numStates)
	count := 0
	for _, row := range features[start:] {
		post := d.model.Posteriors(row)
		for i, p := range post {
			avg[i] += p
		}
		count++
	}
	conf := make(types.RegimeConfidence, numStates)
	for i, label := range d.model.Labels {
		conf[label] = avg[i] / float64(count)
	}
	return conf
}

// classifyByRule is the deterministic fallback: VOLATILE when trailing
// volatility exceeds 1.5x the series' own return stddev, TREND when the
// normalized 20-bar linear-fit slope exceeds 0.1% per bar, else SIDEWAYS.
// Short histories default to SIDEWAYS.
func (d *Detector) classifyByRule(bars []types.Bar) types.Regime {
	if len(bars) < featureLookback {
		return types.RegimeSideways
	}
	closes := types.Closes(bars)
	rets := indicator.Returns(closes)

	valid := make([]float64, 0, len(rets))
	for _, r := range rets {
		if !math.IsNaN(r) {
			valid = append(valid, r)
		}
	}
	if len(valid) >= 2 {
		fullStd := stat.StdDev(valid, nil)
		vol := indicator.RollingVolatility(closes, featureLookback, false)
		lastVol := vol[len(vol)-1]
		if !math.IsNaN(lastVol) && fullStd > 0 && lastVol > fullStd*volatileStdMultiple {
			return types.RegimeVolatile
		}
	}

	slope := indicator.SlopePerBar(closes, featureLookback)
	if !math.IsNaN(slope) && math.Abs(slope) > trendSlopeThreshold {
		return types.RegimeTrend
	}
	return types.RegimeSideways
}

func windowOrDefault(window int) int {
	if window <= 0 {
		return defaultWindow
	}
	return window
}

func tail(bars []types.Bar, n int) []types.Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
