package features

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/ta"
)

// MinUsableRows is the row count below which a build still succeeds but
// logs a warning; callers decide whether the result is sufficient.
const MinUsableRows = 10

// SentimentSource provides a sparse date→score mapping for a ticker or
// query, keyed by YYYY-MM-DD. An empty result is a valid response.
type SentimentSource interface {
	DailyScores(ctx context.Context, query string, days int) (map[string]float64, error)
}

// Builder assembles the canonical feature matrix and target vector from
// a bar series, honoring the feature-flag configuration. Sentiment
// sources are optional collaborators; their absence or failure degrades
// to all-zero columns and never fails the build.
type Builder struct {
	cfg    Config
	social SentimentSource
	news   SentimentSource
}

func NewBuilder(cfg Config, social, news SentimentSource) *Builder {
	return &Builder{cfg: cfg, social: social, news: news}
}

func (b *Builder) Config() Config {
	return b.cfg
}

// Build computes enabled indicators, the RETURN column, sentiment
// columns, and the 3-bar-forward binary target, then applies the single
// row-dropping step: every row containing an undefined value in any
// column (warm-up head, 3-bar tail, ±Inf) is removed from both outputs.
func (b *Builder) Build(ctx context.Context, bars *domain.BarSeries) (*domain.FeatureMatrix, []float64, error) {
	if bars.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: empty bar series", domain.ErrNoData)
	}
	for i, bar := range bars.Bars {
		if !bar.Valid() {
			return nil, nil, fmt.Errorf("%w: bar %d has non-positive price or negative volume", domain.ErrSchema, i)
		}
	}

	opens := bars.Opens()
	highs := bars.Highs()
	lows := bars.Lows()
	closes := bars.Closes()
	volumes := bars.Volumes()
	dates := bars.Dates()
	n := bars.Len()

	columns := b.cfg.Columns()
	series := make(map[string][]float64, len(columns))
	series[ColOpen] = opens
	series[ColHigh] = highs
	series[ColLow] = lows
	series[ColClose] = closes
	series[ColVolume] = volumes
	series[ColReturn] = ta.PctChangeSeries(closes)

	if b.cfg.RSI || b.cfg.RSIMomentum {
		rsi := ta.RSISeries(closes, b.cfg.rsiWindow())
		if b.cfg.RSI {
			series[ColRSI] = rsi
		}
		if b.cfg.RSIMomentum {
			series[ColRSIMomentum] = ta.DiffSeries(rsi)
		}
	}
	if b.cfg.MACD {
		series[ColMACD] = ta.MACDDiffSeries(closes, macdFast, macdSlow, macdSignal)
	}
	if b.cfg.SMA20 {
		series[ColSMA20] = ta.SMASeries(closes, smaPeriod)
	}
	if b.cfg.EMA10 {
		series[ColEMA10] = ta.EMASeries(closes, emaShortPeriod)
	}
	if b.cfg.EMA50 {
		series[ColEMA50] = ta.EMASeries(closes, emaLongPeriod)
	}
	if b.cfg.ATR || b.cfg.VolRegime {
		atr := ta.ATRSeries(highs, lows, closes, atrPeriod)
		series[ColATR14] = atr
		if b.cfg.VolRegime {
			series[ColVolRegime] = ta.VolRegimeSeries(atr, volRegimeMedian)
		}
	}
	if b.cfg.Bollinger {
		mid, upper, lower := ta.BollingerSeries(closes, bbPeriod, bbStdDevs)
		series[ColBBMid] = mid
		series[ColBBUpper] = upper
		series[ColBBLower] = lower
	}
	if b.cfg.OBV {
		series[ColOBV] = ta.OBVSeries(closes, volumes)
	}
	if b.cfg.MFI {
		series[ColMFI] = ta.MFISeries(highs, lows, closes, volumes, b.cfg.mfiWindow())
	}
	if b.cfg.SocialSentiment {
		series[ColSocial] = b.sentimentColumn(ctx, b.social, bars.Ticker, dates)
	}
	if b.cfg.NewsSentiment {
		series[ColNews] = b.sentimentColumn(ctx, b.news, bars.Ticker, dates)
	}

	// 3-bar-forward binary target; NaN marks the tail where the forward
	// close is unavailable.
	target := make([]float64, n)
	for i := 0; i < n; i++ {
		if i+TargetHorizon >= n {
			target[i] = math.NaN()
			continue
		}
		if closes[i+TargetHorizon] > closes[i] {
			target[i] = 1
		}
	}

	matrix := &domain.FeatureMatrix{Columns: columns}
	targets := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if !defined(target[i]) {
			continue
		}
		row := make([]float64, len(columns))
		ok := true
		for c, name := range columns {
			v := series[name][i]
			if !defined(v) {
				ok = false
				break
			}
			row[c] = v
		}
		if !ok {
			continue
		}
		matrix.Rows = append(matrix.Rows, row)
		matrix.Dates = append(matrix.Dates, dates[i])
		targets = append(targets, target[i])
	}

	if len(matrix.Rows) < MinUsableRows {
		log.Printf("feature build for %s produced only %d usable rows", bars.Ticker, len(matrix.Rows))
	}
	return matrix, targets, nil
}

// sentimentColumn reindexes a sparse daily score series onto the bar
// dates with forward- then back-filling. A nil source, fetch error, or
// empty series yields an all-zero column.
func (b *Builder) sentimentColumn(ctx context.Context, src SentimentSource, ticker string, dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	if src == nil {
		return out
	}
	scores, err := src.DailyScores(ctx, ticker, sentimentLookbackDays)
	if err != nil {
		log.Printf("sentiment fetch for %s failed, defaulting to zeros: %v", ticker, err)
		return out
	}
	if len(scores) == 0 {
		return out
	}

	missing := make([]bool, len(dates))
	have := false
	var last float64
	for i, d := range dates {
		if v, ok := scores[d.UTC().Format("2006-01-02")]; ok {
			last = v
			have = true
		}
		if have {
			out[i] = last
		} else {
			missing[i] = true
		}
	}
	if !have {
		return out
	}
	// Back-fill the leading gap with the first known value.
	first := 0
	for first < len(missing) && missing[first] {
		first++
	}
	for i := 0; i < first; i++ {
		out[i] = out[first]
	}
	return out
}

func defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
