package search

import (
	"fmt"

	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/ml/common"
	"stock-signal-lab/internal/ml/eval"
	"stock-signal-lab/internal/ml/models/boost"
	"stock-signal-lab/internal/ml/models/logreg"
)

const (
	cvFolds          = 5
	minFoldTrainRows = 50

	// features whose share of total importance falls below this are
	// dropped and the fold refit once
	pruneImportanceShare = 0.01
)

type split struct {
	trainEnd int
	valEnd   int
}

// forwardChainingSplits produces k folds where every fold's training
// prefix strictly precedes its validation slice, all folds sharing one
// validation-slice size.
func forwardChainingSplits(n, k int) ([]split, error) {
	valSize := n / (k + 1)
	if valSize < 1 {
		return nil, fmt.Errorf("%d rows cannot produce %d folds: %w", n, k, domain.ErrInsufficientData)
	}
	out := make([]split, 0, k)
	for start := n - k*valSize; start < n; start += valSize {
		out = append(out, split{trainEnd: start, valEnd: start + valSize})
	}
	return out, nil
}

func fitFamily(p Params, rows [][]float64, labels []float64, names []string, seed int64) (common.Classifier, error) {
	switch p.Family {
	case domain.ModelFamilyLogReg:
		return logreg.Train(rows, labels, names, logreg.TrainOptions{
			LearningRate: p.LearningRate,
			Epochs:       p.Estimators,
		})
	default:
		return boost.Train(rows, labels, names, boost.TrainOptions{
			Rounds:       p.Estimators,
			LearningRate: p.LearningRate,
			MaxDepth:     p.MaxDepth,
			Subsample:    p.Subsample,
			ColSample:    p.ColSample,
			Seed:         seed,
		})
	}
}

// pruneColumns returns the column subset worth keeping given normalized
// importances, or nil when pruning should not happen (nothing to drop,
// or everything would be dropped).
func pruneColumns(names []string, importances []float64) []string {
	if len(importances) != len(names) {
		return nil
	}
	kept := make([]string, 0, len(names))
	for i, name := range names {
		if importances[i] >= pruneImportanceShare {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 || len(kept) == len(names) {
		return nil
	}
	return kept
}

// objective scores one configuration by forward-chaining cross
// validation: per fold fit, prune-and-refit, tune the probability
// threshold on the validation slice, then average fold F1. A fold whose
// training prefix is single-class is excluded from the average; a
// training prefix under minFoldTrainRows aborts the whole trial.
func objective(m *domain.FeatureMatrix, targets []float64, p Params, seed int64) (float64, float64, error) {
	folds, err := forwardChainingSplits(m.Len(), cvFolds)
	if err != nil {
		return 0, 0, err
	}

	var scoreSum, thresholdSum float64
	scored := 0
	for _, f := range folds {
		if f.trainEnd < minFoldTrainRows {
			return 0, 0, fmt.Errorf("fold train slice has %d rows, need %d: %w",
				f.trainEnd, minFoldTrainRows, domain.ErrInsufficientData)
		}
		trainLabels := targets[:f.trainEnd]
		if common.ClassCount(trainLabels) < 2 {
			continue
		}

		model, err := fitFamily(p, m.Rows[:f.trainEnd], trainLabels, m.Columns, seed)
		if err != nil {
			return 0, 0, err
		}

		valMatrix := m
		if kept := pruneColumns(m.Columns, model.FeatureImportances()); kept != nil {
			pruned, err := m.Select(kept)
			if err != nil {
				return 0, 0, err
			}
			model, err = fitFamily(p, pruned.Rows[:f.trainEnd], trainLabels, kept, seed)
			if err != nil {
				return 0, 0, err
			}
			valMatrix = pruned
		}

		probs := model.PredictBatch(valMatrix.Rows[f.trainEnd:f.valEnd])
		th, f1, err := eval.TuneThreshold(targets[f.trainEnd:f.valEnd], probs, eval.MetricF1, eval.DefaultThresholdPoints)
		if err != nil {
			return 0, 0, err
		}
		scoreSum += f1
		thresholdSum += th
		scored++
	}

	if scored == 0 {
		return 0, 0, fmt.Errorf("no usable cross-validation fold: %w", domain.ErrInsufficientData)
	}
	return scoreSum / float64(scored), thresholdSum / float64(scored), nil
}
