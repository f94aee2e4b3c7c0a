package eval

import (
	"fmt"

	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/ml/common"
)

// DefaultThresholdPoints is the default grid resolution over [0,1].
const DefaultThresholdPoints = 101

const (
	MetricF1        = "f1"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
)

// TuneThreshold scans an evenly spaced probability-cutoff grid over
// [0,1] and returns the first threshold (ascending) maximizing the
// chosen metric, together with the metric value achieved.
func TuneThreshold(labels, probs []float64, metric string, points int) (float64, float64, error) {
	score, err := metricFunc(metric)
	if err != nil {
		return 0, 0, err
	}
	if points < 2 {
		points = DefaultThresholdPoints
	}

	best := 0.0
	bestScore := -1.0
	for i := 0; i < points; i++ {
		t := float64(i) / float64(points-1)
		c := Confuse(labels, common.PredictLabels(probs, t))
		if s := score(c); s > bestScore {
			bestScore = s
			best = t
		}
	}
	return best, bestScore, nil
}

func metricFunc(metric string) (func(Confusion) float64, error) {
	switch metric {
	case MetricF1:
		return Confusion.F1, nil
	case MetricPrecision:
		return Confusion.Precision, nil
	case MetricRecall:
		return Confusion.Recall, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMetric, metric)
	}
}
