package domain

import (
	"sort"
	"time"
)

// Bar represents a single OHLCV observation for a ticker at a daily interval.
type Bar struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether the bar satisfies the data model constraints:
// positive prices, non-negative volume.
func (b Bar) Valid() bool {
	return b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0 && b.Volume >= 0
}

// BarSeries is an ordered-by-date sequence of bars with unique dates.
type BarSeries struct {
	Ticker string
	Bars   []Bar
}

// NewBarSeries sorts bars ascending by date and collapses duplicate dates
// to the first occurrence. The input slice is not modified.
func NewBarSeries(ticker string, bars []Bar) *BarSeries {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	deduped := out[:0]
	for _, b := range out {
		if len(deduped) > 0 && deduped[len(deduped)-1].Date.Equal(b.Date) {
			continue
		}
		deduped = append(deduped, b)
	}
	return &BarSeries{Ticker: ticker, Bars: deduped}
}

func (s *BarSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

func (s *BarSeries) Opens() []float64   { return s.field(func(b Bar) float64 { return b.Open }) }
func (s *BarSeries) Highs() []float64   { return s.field(func(b Bar) float64 { return b.High }) }
func (s *BarSeries) Lows() []float64    { return s.field(func(b Bar) float64 { return b.Low }) }
func (s *BarSeries) Closes() []float64  { return s.field(func(b Bar) float64 { return b.Close }) }
func (s *BarSeries) Volumes() []float64 { return s.field(func(b Bar) float64 { return b.Volume }) }

func (s *BarSeries) Dates() []time.Time {
	if s == nil {
		return nil
	}
	out := make([]time.Time, len(s.Bars))
	for i := range s.Bars {
		out[i] = s.Bars[i].Date
	}
	return out
}

func (s *BarSeries) field(get func(Bar) float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Bars))
	for i := range s.Bars {
		out[i] = get(s.Bars[i])
	}
	return out
}
