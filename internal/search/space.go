package search

import (
	"math/rand"

	"stock-signal-lab/internal/domain"
)

// Params is one candidate hyperparameter configuration. Estimators maps
// to boosting rounds for the boost family and to epochs for logreg, so
// both families share one budget axis.
type Params struct {
	Family       string  `json:"family"`
	Estimators   int     `json:"estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	Subsample    float64 `json:"subsample"`
	ColSample    float64 `json:"colsample"`
}

type dimension struct {
	name     string
	min, max float64
	integer  bool
}

// The numeric search box, matching the tuned ranges used throughout the
// research scripts.
var numericDims = []dimension{
	{name: "estimators", min: 100, max: 600, integer: true},
	{name: "max_depth", min: 3, max: 12, integer: true},
	{name: "learning_rate", min: 0.01, max: 0.3},
	{name: "subsample", min: 0.5, max: 1.0},
	{name: "colsample", min: 0.5, max: 1.0},
}

var families = []string{domain.ModelFamilyBoost, domain.ModelFamilyLogReg}

func (p Params) vector() []float64 {
	return []float64{
		float64(p.Estimators),
		float64(p.MaxDepth),
		p.LearningRate,
		p.Subsample,
		p.ColSample,
	}
}

func paramsFromVector(v []float64, family string) Params {
	return Params{
		Family:       family,
		Estimators:   int(clampDim(v[0], numericDims[0])),
		MaxDepth:     int(clampDim(v[1], numericDims[1])),
		LearningRate: clampDim(v[2], numericDims[2]),
		Subsample:    clampDim(v[3], numericDims[3]),
		ColSample:    clampDim(v[4], numericDims[4]),
	}
}

func clampDim(v float64, d dimension) float64 {
	if v < d.min {
		v = d.min
	}
	if v > d.max {
		v = d.max
	}
	if d.integer {
		v = float64(int(v + 0.5))
	}
	return v
}

func randomParams(rng *rand.Rand) Params {
	v := make([]float64, len(numericDims))
	for i, d := range numericDims {
		v[i] = d.min + rng.Float64()*(d.max-d.min)
	}
	return paramsFromVector(v, families[rng.Intn(len(families))])
}
