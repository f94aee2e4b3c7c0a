package search

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"stock-signal-lab/internal/domain"
)

func syntheticMatrix(n int, seed int64) (*domain.FeatureMatrix, []float64) {
	rng := rand.New(rand.NewSource(seed))
	m := &domain.FeatureMatrix{
		Columns: []string{"x1", "x2", "x3"},
		Rows:    make([][]float64, n),
	}
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		x1 := rng.NormFloat64()
		m.Rows[i] = []float64{x1, rng.NormFloat64(), rng.NormFloat64() * 0.1}
		if x1+rng.NormFloat64()*0.2 > 0 {
			targets[i] = 1
		}
	}
	return m, targets
}

func TestForwardChainingSplits(t *testing.T) {
	folds, err := forwardChainingSplits(120, 5)
	if err != nil {
		t.Fatalf("splits failed: %v", err)
	}
	if len(folds) != 5 {
		t.Fatalf("expected 5 folds, got %d", len(folds))
	}
	prevEnd := 0
	for _, f := range folds {
		if f.trainEnd <= prevEnd && prevEnd != 0 {
			t.Fatalf("folds must advance: %+v", folds)
		}
		if f.valEnd-f.trainEnd != 20 {
			t.Fatalf("validation slice size = %d, want 20", f.valEnd-f.trainEnd)
		}
		prevEnd = f.trainEnd
	}
	if folds[len(folds)-1].valEnd != 120 {
		t.Fatalf("last fold must end at the matrix tail, got %d", folds[len(folds)-1].valEnd)
	}
}

func TestForwardChainingSplitsTooSmall(t *testing.T) {
	if _, err := forwardChainingSplits(4, 5); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestObjectiveSingleClassFoldExcluded(t *testing.T) {
	m, targets := syntheticMatrix(300, 11)
	// first fold trains on rows [0,50); force it single-class and leave
	// the later, longer prefixes mixed
	for i := 0; i < 50; i++ {
		targets[i] = 1
	}
	p := Params{Family: domain.ModelFamilyLogReg, Estimators: 200, LearningRate: 0.05}
	score, threshold, err := objective(m, targets, p, 1)
	if err != nil {
		t.Fatalf("objective should average the remaining folds, got %v", err)
	}
	if score < 0 || score > 1 {
		t.Fatalf("score out of range: %v", score)
	}
	if threshold < 0 || threshold > 1 {
		t.Fatalf("threshold out of range: %v", threshold)
	}
}

func TestObjectiveShortTrainSliceAbortsTrial(t *testing.T) {
	m, targets := syntheticMatrix(120, 3)
	p := Params{Family: domain.ModelFamilyLogReg, Estimators: 100, LearningRate: 0.05}
	if _, _, err := objective(m, targets, p, 1); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for a 20-row training prefix, got %v", err)
	}
}

func TestPruneColumns(t *testing.T) {
	names := []string{"a", "b", "c"}
	if kept := pruneColumns(names, []float64{0.5, 0.495, 0.005}); len(kept) != 2 || kept[0] != "a" || kept[1] != "b" {
		t.Fatalf("kept = %v", kept)
	}
	if kept := pruneColumns(names, []float64{0.4, 0.3, 0.3}); kept != nil {
		t.Fatalf("nothing to prune should return nil, got %v", kept)
	}
	if kept := pruneColumns(names, []float64{0, 0, 0}); kept != nil {
		t.Fatalf("pruning everything should return nil, got %v", kept)
	}
	if kept := pruneColumns(names, []float64{0.5}); kept != nil {
		t.Fatalf("length mismatch should return nil, got %v", kept)
	}
}

func TestSearcherRun(t *testing.T) {
	m, targets := syntheticMatrix(300, 7)
	s := NewSearcher(42)
	res, err := s.Run(context.Background(), m, targets, 4)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if res.Model == nil || res.Study == nil || res.Study.Best == nil {
		t.Fatal("search must return a model and a best trial")
	}
	if len(res.Study.Trials) != 4 {
		t.Fatalf("expected 4 trials, got %d", len(res.Study.Trials))
	}
	if res.Model.Threshold < 0 || res.Model.Threshold > 1 {
		t.Fatalf("threshold out of bounds: %v", res.Model.Threshold)
	}
	if math.IsNaN(res.Model.Metrics["f1_at_threshold"]) {
		t.Fatal("missing held-out metrics")
	}
	if _, err := res.Model.Artifact(); err != nil {
		t.Fatalf("artifact serialization failed: %v", err)
	}
	names := res.Model.Model.FeatureNames()
	if len(names) != 3 {
		t.Fatalf("trained schema = %v", names)
	}
}

func TestSearcherRunInsufficientData(t *testing.T) {
	m, targets := syntheticMatrix(30, 5)
	s := NewSearcher(1)
	if _, err := s.Run(context.Background(), m, targets, 3); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSearcherRespectsCancelledContext(t *testing.T) {
	m, targets := syntheticMatrix(300, 9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSearcher(3)
	if _, err := s.Run(ctx, m, targets, 3); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("cancelled search has no successful trial, expected ErrInsufficientData, got %v", err)
	}
}
