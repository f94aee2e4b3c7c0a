package backtest

import (
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/features"
	"stock-signal-lab/internal/ml/common"
)

const tradingDaysPerYear = 252

type Params struct {
	TrainWindow int
	TestWindow  int
	Step        int
	CostPct     float64
	Threshold   float64
	InitialCash float64
}

func DefaultParams() Params {
	return Params{
		TestWindow:  5,
		Step:        5,
		CostPct:     0.0005,
		Threshold:   0.5,
		InitialCash: 10000,
	}
}

// Step is one realized test-window observation: the signal emitted for
// that bar and the one-step-ahead return it earned, net of cost on an
// active trade day.
type Step struct {
	Index  int                `json:"index"`
	Date   time.Time          `json:"date"`
	Signal domain.SignalLabel `json:"signal"`
	Return float64            `json:"return"`
}

// StepStats aggregates the per-step return series.
type StepStats struct {
	Steps            int     `json:"steps"`
	WinRate          float64 `json:"win_rate"`
	AvgReturn        float64 `json:"avg_return"`
	CumulativeReturn float64 `json:"cumulative_return"`
	Sharpe           float64 `json:"sharpe"`
	BuyAndHold       float64 `json:"buy_and_hold"`
}

// Portfolio is the cash/position equity sweep over the same signal
// sequence. Its return definition is independent of StepStats and the
// two are never mixed.
type Portfolio struct {
	InitialCash float64   `json:"initial_cash"`
	FinalValue  float64   `json:"final_value"`
	ReturnPct   float64   `json:"return_pct"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Equity      []float64 `json:"equity"`
}

type Report struct {
	Windows        int       `json:"windows"`
	SkippedWindows int       `json:"skipped_windows"`
	TrainWindow    int       `json:"train_window"`
	Empty          bool      `json:"empty"`
	Steps          []Step    `json:"steps"`
	StepStats      StepStats `json:"step_stats"`
	Portfolio      Portfolio `json:"portfolio"`
}

// WalkForward slides a train/test window over the matrix, refits a fresh
// classifier per window and simulates the resulting signals. The matrix
// must carry a Close column; targets align with matrix rows by position.
func WalkForward(m *domain.FeatureMatrix, targets []float64, train common.TrainFunc, p Params) (*Report, error) {
	if m == nil || m.Len() == 0 {
		return nil, fmt.Errorf("walk-forward: %w", domain.ErrNoData)
	}
	if m.Len() != len(targets) {
		return nil, fmt.Errorf("walk-forward: %d rows vs %d targets", m.Len(), len(targets))
	}
	prices, err := m.Column(features.ColClose)
	if err != nil {
		return nil, fmt.Errorf("walk-forward: %w", err)
	}

	n := m.Len()
	def := DefaultParams()
	if p.TestWindow <= 0 {
		p.TestWindow = def.TestWindow
	}
	if p.Step <= 0 {
		p.Step = def.Step
	}
	if p.CostPct <= 0 {
		p.CostPct = def.CostPct
	}
	if p.Threshold <= 0 || p.Threshold >= 1 {
		p.Threshold = def.Threshold
	}
	if p.InitialCash <= 0 {
		p.InitialCash = def.InitialCash
	}
	if p.TrainWindow <= 0 {
		p.TrainWindow = n / 4
		if p.TrainWindow < 20 {
			p.TrainWindow = 20
		}
	}
	if n < p.TrainWindow+p.TestWindow+1 {
		return nil, fmt.Errorf("walk-forward needs %d rows, have %d: %w",
			p.TrainWindow+p.TestWindow+1, n, domain.ErrInsufficientData)
	}

	report := &Report{TrainWindow: p.TrainWindow}
	for start := 0; start+p.TrainWindow+p.TestWindow <= n; start += p.Step {
		endTrain := start + p.TrainWindow
		endTest := endTrain + p.TestWindow

		trainLabels := targets[start:endTrain]
		if common.ClassCount(trainLabels) < 2 {
			report.SkippedWindows++
			continue
		}

		model, err := train(m.Rows[start:endTrain], trainLabels, m.Columns)
		if err != nil {
			log.Printf("walk-forward: window at %d failed to train: %v", start, err)
			report.SkippedWindows++
			continue
		}
		report.Windows++

		for t := endTrain; t < endTest && t+1 < n; t++ {
			signal := domain.SignalHoldSell
			rtn := (prices[t+1] - prices[t]) / prices[t]
			if common.Clamp01(model.PredictProb(m.Rows[t])) >= p.Threshold {
				signal = domain.SignalBuy
				rtn -= p.CostPct
			}
			step := Step{Index: t, Signal: signal, Return: rtn}
			if t < len(m.Dates) {
				step.Date = m.Dates[t]
			}
			report.Steps = append(report.Steps, step)
		}
	}

	if len(report.Steps) == 0 {
		report.Empty = true
		report.Portfolio = Portfolio{InitialCash: p.InitialCash, FinalValue: p.InitialCash}
		return report, nil
	}

	report.StepStats = aggregateSteps(report.Steps, prices, p)
	report.Portfolio = simulatePortfolio(report.Steps, prices, p)
	return report, nil
}

func aggregateSteps(steps []Step, prices []float64, p Params) StepStats {
	returns := make([]float64, len(steps))
	wins := 0
	cum := 1.0
	for i, s := range steps {
		returns[i] = s.Return
		if s.Return > 0 {
			wins++
		}
		cum *= 1 + s.Return
	}

	mean, std := stat.MeanStdDev(returns, nil)
	sharpe := 0.0
	if len(returns) > 1 && std > 0 && !math.IsNaN(std) {
		sharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	// hold from the first window's entry bar to the end, one entry cost.
	entry := prices[p.TrainWindow]
	exit := prices[len(prices)-1]
	buyHold := (exit-entry)/entry - p.CostPct

	return StepStats{
		Steps:            len(steps),
		WinRate:          float64(wins) / float64(len(steps)),
		AvgReturn:        mean,
		CumulativeReturn: cum - 1,
		Sharpe:           sharpe,
		BuyAndHold:       buyHold,
	}
}
