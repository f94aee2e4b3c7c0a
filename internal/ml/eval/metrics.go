package eval

import (
	"math"
	"sort"

	"stock-signal-lab/internal/ml/common"
)

// Confusion holds binary classification counts.
type Confusion struct {
	TP, FP, TN, FN float64
}

func Confuse(labels, preds []float64) Confusion {
	var c Confusion
	for i := range labels {
		pos := labels[i] >= 0.5
		pred := preds[i] >= 0.5
		switch {
		case pred && pos:
			c.TP++
		case pred && !pos:
			c.FP++
		case !pred && !pos:
			c.TN++
		default:
			c.FN++
		}
	}
	return c
}

func (c Confusion) Accuracy() float64 {
	total := c.TP + c.FP + c.TN + c.FN
	if total == 0 {
		return 0
	}
	return (c.TP + c.TN) / total
}

func (c Confusion) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return c.TP / (c.TP + c.FP)
}

func (c Confusion) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return c.TP / (c.TP + c.FN)
}

func (c Confusion) F1() float64 {
	p := c.Precision()
	r := c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Report computes the evaluation metrics persisted alongside a model:
// threshold-0.5 accuracy/precision/recall/f1, rank AUC, and Brier score.
func Report(labels, probs []float64) map[string]float64 {
	n := len(labels)
	if n == 0 || len(probs) != n {
		return map[string]float64{"auc": 0.5, "accuracy": 0, "precision": 0, "recall": 0, "f1": 0, "brier": 0, "n_test": 0}
	}
	preds := common.PredictLabels(probs, 0.5)
	c := Confuse(labels, preds)
	brier := 0.0
	for i := 0; i < n; i++ {
		d := common.Clamp01(probs[i]) - labels[i]
		brier += d * d
	}
	return map[string]float64{
		"auc":       AUC(labels, probs),
		"accuracy":  c.Accuracy(),
		"precision": c.Precision(),
		"recall":    c.Recall(),
		"f1":        c.F1(),
		"brier":     brier / float64(n),
		"n_test":    float64(n),
	}
}

// AUC computes the rank-based area under the ROC curve with average
// ranks for tied probabilities. Degenerate single-class inputs score 0.5.
func AUC(labels, probs []float64) float64 {
	type pair struct {
		p float64
		y float64
	}
	pairs := make([]pair, len(labels))
	pos := 0.0
	neg := 0.0
	for i := range labels {
		pairs[i] = pair{p: common.Clamp01(probs[i]), y: labels[i]}
		if labels[i] >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	sumRankPos := 0.0
	rank := 1.0
	for i := 0; i < len(pairs); {
		j := i + 1
		for j < len(pairs) && math.Abs(pairs[j].p-pairs[i].p) < 1e-12 {
			j++
		}
		avgRank := (rank + float64(j)) / 2
		for k := i; k < j; k++ {
			if pairs[k].y >= 0.5 {
				sumRankPos += avgRank
			}
		}
		rank = float64(j + 1)
		i = j
	}
	auc := (sumRankPos - (pos*(pos+1))/2) / (pos * neg)
	if math.IsNaN(auc) || math.IsInf(auc, 0) {
		return 0.5
	}
	return auc
}

// PermutationImportance scores each feature by the accuracy a classifier
// loses when that feature's column is cyclically shifted, breaking its
// relation to the labels. Scores are clipped at zero and normalized to
// sum to 1 when any feature matters.
func PermutationImportance(model common.Classifier, samples [][]float64, labels []float64) []float64 {
	if len(samples) == 0 {
		return nil
	}
	dim := len(samples[0])
	base := Confuse(labels, common.PredictLabels(model.PredictBatch(samples), 0.5)).Accuracy()

	shift := len(samples)/3 + 1
	scratch := make([][]float64, len(samples))
	for i := range samples {
		scratch[i] = append([]float64(nil), samples[i]...)
	}

	out := make([]float64, dim)
	var total float64
	for j := 0; j < dim; j++ {
		for i := range scratch {
			scratch[i][j] = samples[(i+shift)%len(samples)][j]
		}
		shuffled := Confuse(labels, common.PredictLabels(model.PredictBatch(scratch), 0.5)).Accuracy()
		drop := base - shuffled
		if drop > 0 {
			out[j] = drop
			total += drop
		}
		for i := range scratch {
			scratch[i][j] = samples[i][j]
		}
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}
