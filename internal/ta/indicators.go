package ta

import "math"

// All series functions are pure: one output value per input index, with
// NaN marking warm-up positions where the indicator is undefined. Rolling
// and EWM computations use only past and current data. Callers drop
// undefined rows; nothing here ever shortens a series.

func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMASeries computes a simple moving average over a fixed window.
func SMASeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMASeries computes a recursive exponential moving average seeded on the
// first value, alpha = 2/(period+1). Defined from index 0.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period <= 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSISeries computes a rolling-mean RSI: average gain over average loss
// across a window of one-step deltas, mapped to 0-100. When the loss
// average is zero and gains exist the value saturates at 100; a flat
// window (no gains, no losses) is undefined.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gains[i] = math.Max(delta, 0)
		losses[i] = math.Max(-delta, 0)
	}
	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}
		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		switch {
		case avgLoss == 0 && avgGain == 0:
			// flat window, stays NaN
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - (100 / (1 + rs))
		}
	}
	return out
}

// DiffSeries computes one-step differences; index 0 is undefined.
func DiffSeries(values []float64) []float64 {
	out := nanSeries(len(values))
	for i := 1; i < len(values); i++ {
		if math.IsNaN(values[i]) || math.IsNaN(values[i-1]) {
			continue
		}
		out[i] = values[i] - values[i-1]
	}
	return out
}

// PctChangeSeries computes value-over-value percent change; index 0 is
// undefined, as is any step off a zero base.
func PctChangeSeries(values []float64) []float64 {
	out := nanSeries(len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out[i] = values[i]/values[i-1] - 1
	}
	return out
}

// MACDDiffSeries computes (EMA_fast - EMA_slow) minus its own EMA_signal.
func MACDDiffSeries(values []float64, fast, slow, signal int) []float64 {
	if len(values) == 0 {
		return nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	macd := make([]float64, len(values))
	for i := range values {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalEMA := EMASeries(macd, signal)
	out := make([]float64, len(values))
	for i := range values {
		out[i] = macd[i] - signalEMA[i]
	}
	return out
}

// TrueRangeSeries computes max(high-low, |high-prevClose|, |low-prevClose|).
// Index 0 has no previous close and falls back to high-low.
func TrueRangeSeries(highs, lows, closes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		tr := highs[i] - lows[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		}
		out[i] = tr
	}
	return out
}

// ATRSeries is the rolling mean of the true range.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	return SMASeries(TrueRangeSeries(highs, lows, closes), period)
}

func BollingerSeries(values []float64, period int, stdDevs float64) (middle, upper, lower []float64) {
	middle = nanSeries(len(values))
	upper = nanSeries(len(values))
	lower = nanSeries(len(values))
	if period <= 0 {
		return middle, upper, lower
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean, std := MeanStd(window)
		middle[i] = mean
		upper[i] = mean + stdDevs*std
		lower[i] = mean - stdDevs*std
	}
	return middle, upper, lower
}

// RollingMedianSeries computes the rolling median over a fixed window.
// Any NaN inside the window leaves the output undefined at that index.
func RollingMedianSeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	buf := make([]float64, period)
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		hasNaN := false
		for _, v := range window {
			if math.IsNaN(v) {
				hasNaN = true
				break
			}
		}
		if hasNaN {
			continue
		}
		copy(buf, window)
		out[i] = median(buf)
	}
	return out
}

// VolRegimeSeries flags bars whose ATR exceeds the rolling median of ATR:
// 1 for a high-volatility regime, 0 otherwise. Undefined until the median
// window is fully populated with defined ATR values.
func VolRegimeSeries(atr []float64, medianPeriod int) []float64 {
	out := nanSeries(len(atr))
	med := RollingMedianSeries(atr, medianPeriod)
	for i := range atr {
		if math.IsNaN(atr[i]) || math.IsNaN(med[i]) {
			continue
		}
		if atr[i] > med[i] {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}

// OBVSeries accumulates signed volume: volume added on up closes,
// subtracted on down closes, unchanged on flat closes. Defined everywhere.
func OBVSeries(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	var cum float64
	for i := range closes {
		if i > 0 {
			switch {
			case closes[i] > closes[i-1]:
				cum += volumes[i]
			case closes[i] < closes[i-1]:
				cum -= volumes[i]
			}
		}
		out[i] = cum
	}
	return out
}

// MFISeries computes the Money Flow Index: typical-price money flow
// bucketed by typical-price direction, rolled over the window, mapped to
// 0-100. Saturates at 100 when there is no negative flow; undefined when
// both buckets are empty.
func MFISeries(highs, lows, closes, volumes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}
	pos := make([]float64, n)
	neg := make([]float64, n)
	for i := 1; i < n; i++ {
		tp := (highs[i] + lows[i] + closes[i]) / 3
		prev := (highs[i-1] + lows[i-1] + closes[i-1]) / 3
		mf := tp * volumes[i]
		if tp > prev {
			pos[i] = mf
		} else if tp < prev {
			neg[i] = mf
		}
	}
	var posSum, negSum float64
	for i := 0; i < n; i++ {
		posSum += pos[i]
		negSum += neg[i]
		if i >= period {
			posSum -= pos[i-period]
			negSum -= neg[i-period]
		}
		if i < period-1 {
			continue
		}
		switch {
		case negSum == 0 && posSum == 0:
			// no directional flow in window, stays NaN
		case negSum == 0:
			out[i] = 100
		default:
			ratio := posSum / negSum
			out[i] = 100 - 100/(1+ratio)
		}
	}
	return out
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	insertionSort(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func insertionSort(values []float64) {
	for i := 1; i < len(values); i++ {
		v := values[i]
		j := i - 1
		for j >= 0 && values[j] > v {
			values[j+1] = values[j]
			j--
		}
		values[j+1] = v
	}
}
