package search

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log"

	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/ml/common"
	"stock-signal-lab/internal/ml/eval"
)

const (
	DefaultTrialBudget = 50

	holdoutFraction = 0.2
)

type TrialState string

const (
	TrialComplete TrialState = "complete"
	TrialFailed   TrialState = "failed"
)

// Trial is one evaluated configuration.
type Trial struct {
	Number    int        `json:"number"`
	Params    Params     `json:"params"`
	Score     float64    `json:"score"`
	Threshold float64    `json:"threshold"`
	State     TrialState `json:"state"`
	Reason    string     `json:"reason,omitempty"`
}

// Study is the full search session: every trial in the order it ran
// plus the best completed one.
type Study struct {
	Trials []Trial `json:"trials"`
	Failed int     `json:"failed"`
	Best   *Trial  `json:"best,omitempty"`
}

// TrainedModel is the immutable handle produced by the final refit: the
// fitted classifier, the configuration that won, the tuned probability
// threshold and the held-out evaluation metrics.
type TrainedModel struct {
	Family    string
	Model     common.Classifier
	Params    Params
	Threshold float64
	Metrics   map[string]float64
}

// Artifact serializes the underlying model for registry storage.
func (t *TrainedModel) Artifact() ([]byte, error) {
	bm, ok := t.Model.(encoding.BinaryMarshaler)
	if !ok {
		return nil, errors.New("model is not serializable")
	}
	return bm.MarshalBinary()
}

type Result struct {
	Model *TrainedModel
	Study *Study
}

// Searcher runs TPE-style hyperparameter optimization over the
// family/estimators/depth/rate/subsample/colsample box.
type Searcher struct {
	seed int64
}

func NewSearcher(seed int64) *Searcher {
	if seed == 0 {
		seed = 1
	}
	return &Searcher{seed: seed}
}

// Run evaluates up to trialBudget configurations and refits the best one
// on a chronological 80/20 split. Failed trials stay in the study but
// are excluded from the sampler's history and from best-trial selection.
func (s *Searcher) Run(ctx context.Context, m *domain.FeatureMatrix, targets []float64, trialBudget int) (*Result, error) {
	if m == nil || m.Len() == 0 {
		return nil, fmt.Errorf("search: %w", domain.ErrNoData)
	}
	if m.Len() != len(targets) {
		return nil, fmt.Errorf("search: %d rows vs %d targets", m.Len(), len(targets))
	}
	if m.Len() < minFoldTrainRows {
		return nil, fmt.Errorf("search needs at least %d rows, have %d: %w",
			minFoldTrainRows, m.Len(), domain.ErrInsufficientData)
	}
	if trialBudget <= 0 {
		trialBudget = DefaultTrialBudget
	}

	sampler := newSampler(s.seed)
	study := &Study{}
	for i := 0; i < trialBudget; i++ {
		if err := ctx.Err(); err != nil {
			// partial study results stay valid; stop proposing
			break
		}
		p := sampler.propose(study.Trials)
		trial := Trial{Number: i, Params: p}

		score, threshold, err := objective(m, targets, p, s.seed+int64(i))
		if err != nil {
			trial.State = TrialFailed
			trial.Reason = err.Error()
			study.Failed++
			log.Printf("search: trial %d failed: %v", i, err)
		} else {
			trial.State = TrialComplete
			trial.Score = score
			trial.Threshold = threshold
		}
		study.Trials = append(study.Trials, trial)
		if trial.State == TrialComplete && (study.Best == nil || trial.Score > study.Best.Score) {
			best := trial
			study.Best = &best
		}
	}

	if study.Best == nil {
		return nil, fmt.Errorf("search produced no successful trial: %w", domain.ErrInsufficientData)
	}

	model, err := s.finalRefit(m, targets, study.Best.Params)
	if err != nil {
		return nil, err
	}
	return &Result{Model: model, Study: study}, nil
}

// finalRefit fits the winning configuration on the chronological
// training prefix and evaluates on the held-out tail, tuning the serving
// threshold there.
func (s *Searcher) finalRefit(m *domain.FeatureMatrix, targets []float64, p Params) (*TrainedModel, error) {
	n := m.Len()
	splitAt := n - int(float64(n)*holdoutFraction)
	if splitAt <= 0 || splitAt >= n {
		return nil, fmt.Errorf("cannot hold out %d of %d rows: %w", n-splitAt, n, domain.ErrInsufficientData)
	}
	trainLabels := targets[:splitAt]
	if common.ClassCount(trainLabels) < 2 {
		return nil, fmt.Errorf("final training slice is single-class: %w", domain.ErrInsufficientData)
	}

	model, err := fitFamily(p, m.Rows[:splitAt], trainLabels, m.Columns, s.seed)
	if err != nil {
		return nil, err
	}

	valLabels := targets[splitAt:]
	probs := model.PredictBatch(m.Rows[splitAt:])
	threshold, f1, err := eval.TuneThreshold(valLabels, probs, eval.MetricF1, eval.DefaultThresholdPoints)
	if err != nil {
		return nil, err
	}

	metrics := eval.Report(valLabels, probs)
	metrics["threshold"] = threshold
	metrics["f1_at_threshold"] = f1

	return &TrainedModel{
		Family:    p.Family,
		Model:     model,
		Params:    p,
		Threshold: threshold,
		Metrics:   metrics,
	}, nil
}
