package dataset

import (
	"math"
)

// ATR computes a Wilder-smoothed average true range series over the full
// handle. Values before index period are zero. Pure function of the
// handle; safe to call concurrently.
func ATR(h *Handle, period int) []float64 {
	n := h.NumBars()
	out := make([]float64, n)
	if n == 0 || period < 1 {
		return out
	}

	trueRange := func(i int) float64 {
		if i == 0 {
			return h.High[0] - h.Low[0]
		}
		hl := h.High[i] - h.Low[i]
		hc := math.Abs(h.High[i] - h.Close[i-1])
		lc := math.Abs(h.Low[i] - h.Close[i-1])
		return math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 0; i < n; i++ {
		tr := trueRange(i)
		if i < period {
			sum += tr
			if i == period-1 {
				out[i] = sum / float64(period)
			}
			continue
		}
		out[i] = (out[i-1]*float64(period-1) + tr) / float64(period)
	}
	return out
}

// RollingVolatility computes a rolling standard deviation of simple
// close-to-close returns. Used for regime stratification when the data
// engine did not supply a volatility indicator column.
func RollingVolatility(h *Handle, period int) []float64 {
	n := h.NumBars()
	out := make([]float64, n)
	if n < 2 || period < 2 {
		return out
	}

	rets := make([]float64, n)
	for i := 1; i < n; i++ {
		if h.Close[i-1] > 0 {
			rets[i] = h.Close[i]/h.Close[i-1] - 1
		}
	}

	var sum, sumSq float64
	for i := 1; i < n; i++ {
		sum += rets[i]
		sumSq += rets[i] * rets[i]
		if i > period {
			old := rets[i-period]
			sum -= old
			sumSq -= old * old
		}
		window := period
		if i < period {
			window = i
		}
		if window < 2 {
			continue
		}
		mean := sum / float64(window)
		variance := sumSq/float64(window) - mean*mean
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}

// VolatilityRank converts a volatility series into a rolling percentile
// rank in [0, 1] over the given lookback.
func VolatilityRank(vol []float64, lookback int) []float64 {
	out := make([]float64, len(vol))
	for i := range vol {
		start := i - lookback
		if start < 0 {
			start = 0
		}
		if i == start {
			out[i] = 0.5
			continue
		}
		below := 0
		for j := start; j < i; j++ {
			if vol[j] <= vol[i] {
				below++
			}
		}
		out[i] = float64(below) / float64(i-start)
	}
	return out
}
