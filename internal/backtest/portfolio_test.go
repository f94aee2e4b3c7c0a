package backtest

import (
	"math"
	"testing"

	"stock-signal-lab/internal/domain"
)

func TestSimulatePortfolioConservation(t *testing.T) {
	prices := []float64{0, 0, 10, 12, 9, 11}
	steps := []Step{
		{Index: 2, Signal: domain.SignalBuy},
		{Index: 3, Signal: domain.SignalHoldSell},
		{Index: 4, Signal: domain.SignalBuy},
		{Index: 5, Signal: domain.SignalHoldSell},
	}
	p := DefaultParams()
	p.InitialCash = 1000
	p.CostPct = 0 // exact arithmetic

	pf := simulatePortfolio(steps, prices, p)
	// buy 100 @ 10, sell @ 12 -> 1200; buy 133 @ 9 (cash 1200), sell @ 11
	wantEquity := []float64{1000, 1200, 1200, 1200 + 133*2}
	if len(pf.Equity) != len(wantEquity) {
		t.Fatalf("equity length = %d, want %d", len(pf.Equity), len(wantEquity))
	}
	for i, want := range wantEquity {
		if math.Abs(pf.Equity[i]-want) > 1e-9 {
			t.Fatalf("equity[%d] = %v, want %v", i, pf.Equity[i], want)
		}
	}
	if math.Abs(pf.FinalValue-1466) > 1e-9 {
		t.Fatalf("final value = %v, want 1466", pf.FinalValue)
	}
	if math.Abs(pf.ReturnPct-46.6) > 1e-9 {
		t.Fatalf("return pct = %v, want 46.6", pf.ReturnPct)
	}
}

func TestSimulatePortfolioMaxDrawdown(t *testing.T) {
	prices := []float64{0, 10, 20, 10, 15}
	steps := []Step{
		{Index: 1, Signal: domain.SignalBuy},
		{Index: 2, Signal: domain.SignalBuy},
		{Index: 3, Signal: domain.SignalBuy},
		{Index: 4, Signal: domain.SignalHoldSell},
	}
	p := DefaultParams()
	p.InitialCash = 100
	p.CostPct = 0

	pf := simulatePortfolio(steps, prices, p)
	// 10 shares @ 10: equity 100 -> 200 -> 100 -> 150; peak 200, trough 100.
	if math.Abs(pf.MaxDrawdown-0.5) > 1e-9 {
		t.Fatalf("max drawdown = %v, want 0.5", pf.MaxDrawdown)
	}
}

func TestSimulatePortfolioNeverGoesNegative(t *testing.T) {
	prices := []float64{7, 7, 7, 7}
	steps := []Step{
		{Index: 0, Signal: domain.SignalBuy},
		{Index: 1, Signal: domain.SignalBuy},
		{Index: 2, Signal: domain.SignalBuy},
		{Index: 3, Signal: domain.SignalHoldSell},
	}
	p := DefaultParams()
	p.InitialCash = 50

	pf := simulatePortfolio(steps, prices, p)
	for i, e := range pf.Equity {
		if e < 0 {
			t.Fatalf("equity[%d] negative: %v", i, e)
		}
	}
	if pf.FinalValue < 0 {
		t.Fatalf("final value negative: %v", pf.FinalValue)
	}
}
