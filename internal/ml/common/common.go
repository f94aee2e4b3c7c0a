package common

import "math"

// Classifier is the capability the core expects from any binary
// estimator: probability prediction for the positive class plus the
// trained schema and per-feature importances, both ordered identically.
type Classifier interface {
	PredictProb(sample []float64) float64
	PredictBatch(samples [][]float64) []float64
	FeatureNames() []string
	FeatureImportances() []float64
}

// TrainFunc fits a fresh classifier on the given dataset. The backtester
// calls one per walk-forward window; the searcher one per fold.
type TrainFunc func(samples [][]float64, labels []float64, featureNames []string) (Classifier, error)

func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PredictLabels maps probabilities to binary labels at the given threshold.
func PredictLabels(probs []float64, threshold float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		if Clamp01(p) >= threshold {
			out[i] = 1
		}
	}
	return out
}

// ClassCount returns the number of distinct classes in a binary label
// vector. Values >= 0.5 count as the positive class.
func ClassCount(labels []float64) int {
	var hasPos, hasNeg bool
	for _, y := range labels {
		if y >= 0.5 {
			hasPos = true
		} else {
			hasNeg = true
		}
	}
	n := 0
	if hasPos {
		n++
	}
	if hasNeg {
		n++
	}
	return n
}
