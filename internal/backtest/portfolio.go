package backtest

import (
	"math"

	"stock-signal-lab/internal/domain"
)

// simulatePortfolio replays the recorded signal sequence with integer
// lot sizing. Buys spend floor(cash/price) shares plus a proportional
// cost; any non-Buy signal liquidates. Equity is marked to the step's
// price whether or not a trade happened.
func simulatePortfolio(steps []Step, prices []float64, p Params) Portfolio {
	cash := p.InitialCash
	position := 0.0
	equity := make([]float64, 0, len(steps))

	lastPrice := 0.0
	for _, s := range steps {
		price := prices[s.Index]
		lastPrice = price
		if s.Signal == domain.SignalBuy {
			if cash >= price {
				// size the lot so cost never pushes cash negative
				shares := math.Floor(cash / (price * (1 + p.CostPct)))
				if shares > 0 {
					notional := shares * price
					cash -= notional + notional*p.CostPct
					position += shares
				}
			}
		} else if position > 0 {
			cash += position * price
			position = 0
		}
		equity = append(equity, cash+position*price)
	}

	final := cash + position*lastPrice
	maxDD := 0.0
	runningMax := math.Inf(-1)
	for _, e := range equity {
		if e > runningMax {
			runningMax = e
		}
		if runningMax > 0 {
			if dd := (runningMax - e) / runningMax; dd > maxDD {
				maxDD = dd
			}
		}
	}

	return Portfolio{
		InitialCash: p.InitialCash,
		FinalValue:  final,
		ReturnPct:   (final/p.InitialCash - 1) * 100,
		MaxDrawdown: maxDD,
		Equity:      equity,
	}
}
