package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/features"
	"stock-signal-lab/internal/ml/common"
)

type stubModel struct {
	prob float64
}

func (s stubModel) PredictProb(sample []float64) float64 { return s.prob }
func (s stubModel) PredictBatch(samples [][]float64) []float64 {
	out := make([]float64, len(samples))
	for i := range out {
		out[i] = s.prob
	}
	return out
}
func (s stubModel) FeatureNames() []string        { return nil }
func (s stubModel) FeatureImportances() []float64 { return nil }

func constantTrainer(prob float64) common.TrainFunc {
	return func(samples [][]float64, labels []float64, names []string) (common.Classifier, error) {
		return stubModel{prob: prob}, nil
	}
}

func risingMatrix(n int) (*domain.FeatureMatrix, []float64) {
	m := &domain.FeatureMatrix{
		Columns: []string{features.ColClose, features.ColReturn},
		Rows:    make([][]float64, n),
		Dates:   make([]time.Time, n),
	}
	targets := make([]float64, n)
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		m.Rows[i] = []float64{price, 0.01}
		m.Dates[i] = base.AddDate(0, 0, i)
		targets[i] = float64(i % 2)
		price *= 1.01
	}
	return m, targets
}

func TestWalkForwardRisingSeriesProfitable(t *testing.T) {
	m, targets := risingMatrix(200)
	report, err := WalkForward(m, targets, constantTrainer(0.9), DefaultParams())
	if err != nil {
		t.Fatalf("walk-forward failed: %v", err)
	}
	if report.Empty || len(report.Steps) == 0 {
		t.Fatal("expected recorded steps")
	}
	for _, s := range report.Steps {
		if s.Signal != domain.SignalBuy {
			t.Fatalf("expected all-Buy signals on a rising series, got %s at %d", s.Signal, s.Index)
		}
		if math.Abs(s.Return-(0.01-0.0005)) > 1e-9 {
			t.Fatalf("step return = %v, want 0.0095", s.Return)
		}
	}
	if report.StepStats.CumulativeReturn <= 0 {
		t.Fatalf("cumulative return should be positive, got %v", report.StepStats.CumulativeReturn)
	}
	if report.StepStats.WinRate != 1 {
		t.Fatalf("win rate = %v, want 1", report.StepStats.WinRate)
	}
	if report.StepStats.Sharpe < 0 {
		t.Fatalf("sharpe should not be negative here, got %v", report.StepStats.Sharpe)
	}
	if report.Portfolio.ReturnPct <= 0 {
		t.Fatalf("portfolio return should be positive, got %v", report.Portfolio.ReturnPct)
	}
}

func TestWalkForwardDefaultTrainWindow(t *testing.T) {
	m, targets := risingMatrix(200)
	report, err := WalkForward(m, targets, constantTrainer(0.9), DefaultParams())
	if err != nil {
		t.Fatalf("walk-forward failed: %v", err)
	}
	if report.TrainWindow != 50 {
		t.Fatalf("train window = %d, want n/4 = 50", report.TrainWindow)
	}
}

func TestWalkForwardInsufficientData(t *testing.T) {
	m, targets := risingMatrix(30)
	p := DefaultParams()
	p.TrainWindow = 40
	_, err := WalkForward(m, targets, constantTrainer(0.9), p)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestWalkForwardSkipsSingleClassWindows(t *testing.T) {
	m, targets := risingMatrix(100)
	for i := range targets {
		targets[i] = 1
	}
	report, err := WalkForward(m, targets, constantTrainer(0.9), DefaultParams())
	if err != nil {
		t.Fatalf("walk-forward failed: %v", err)
	}
	if !report.Empty {
		t.Fatal("expected empty report when every window is single-class")
	}
	if report.Windows != 0 || report.SkippedWindows == 0 {
		t.Fatalf("windows=%d skipped=%d", report.Windows, report.SkippedWindows)
	}
}

func TestWalkForwardMissingCloseColumn(t *testing.T) {
	m := &domain.FeatureMatrix{
		Columns: []string{features.ColReturn},
		Rows:    [][]float64{{0.1}, {0.2}},
	}
	if _, err := WalkForward(m, []float64{0, 1}, constantTrainer(0.5), DefaultParams()); err == nil {
		t.Fatal("expected error for matrix without a Close column")
	}
}

func TestCumulativeReturnIdentity(t *testing.T) {
	steps := []Step{
		{Index: 20, Signal: domain.SignalBuy, Return: 0.01},
		{Index: 21, Signal: domain.SignalBuy, Return: -0.02},
		{Index: 22, Signal: domain.SignalHoldSell, Return: 0.03},
	}
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	p := DefaultParams()
	p.TrainWindow = 20

	stats := aggregateSteps(steps, prices, p)
	want := 1.01*0.98*1.03 - 1
	if math.Abs(stats.CumulativeReturn-want) > 1e-12 {
		t.Fatalf("cumulative return = %v, want %v", stats.CumulativeReturn, want)
	}
	if math.Abs(stats.WinRate-2.0/3.0) > 1e-12 {
		t.Fatalf("win rate = %v", stats.WinRate)
	}
	wantBH := (prices[29]-prices[20])/prices[20] - p.CostPct
	if math.Abs(stats.BuyAndHold-wantBH) > 1e-12 {
		t.Fatalf("buy-and-hold = %v, want %v", stats.BuyAndHold, wantBH)
	}
}
