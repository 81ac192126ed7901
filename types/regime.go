package types

// Regime is a coarse market-condition label.
type Regime string

const (
	RegimeTrend    Regime = "TREND"
	RegimeSideways Regime = "SIDEWAYS"
	RegimeVolatile Regime = "VOLATILE"
)

// Regimes lists all regime labels in a fixed order.
var Regimes = []Regime{RegimeTrend, RegimeSideways, RegimeVolatile}

// RegimeConfidence maps each regime to a probability-like score in [0,1].
// Scores need not sum to 1 on the rule-based fallback path.
type RegimeConfidence map[Regime]float64
