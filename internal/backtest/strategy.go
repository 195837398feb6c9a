/*

This file contains the parametrized strategy definition. A candidate
vector from the search stages is bound to named dimensions of the
parameter space to produce a concrete Params value; dimensions the space
does not declare fall back to conservative defaults.

*/

package backtest

import (
	"math"

	"github.com/stratforge/optimizer/internal/types"
)

// Params is the concrete strategy parametrization evaluated by the
// engine: a volatility-filtered breakout with ATR stops, an R-multiple
// target and a time stop.
type Params struct {
	Lookback     int     // breakout channel length, bars
	ATRLen       int     // ATR smoothing length
	StopATRMult  float64 // stop distance in ATR multiples
	TargetR      float64 // target distance in multiples of the stop distance
	TimeStopBars int     // force exit after this many bars in a trade
	MinVolRank   float64 // minimum volatility percentile rank to take entries
}

// DefaultParams are the fallbacks for dimensions a space omits.
var DefaultParams = Params{
	Lookback:     20,
	ATRLen:       14,
	StopATRMult:  2.0,
	TargetR:      2.0,
	TimeStopBars: 48,
	MinVolRank:   0.0,
}

// ParamsFromVector binds a candidate vector to the named dimensions of
// the space. Integer dimensions are rounded; all values are clamped to
// sane lower bounds so a pathological vector cannot produce a divide by
// zero inside the engine.
func ParamsFromVector(space types.ParameterSpace, vec []float64) Params {
	p := DefaultParams
	for i, d := range space.Dimensions {
		if i >= len(vec) {
			break
		}
		v := vec[i]
		switch d.Name {
		case "lookback":
			p.Lookback = clampInt(v, 2, 5000)
		case "atr_len":
			p.ATRLen = clampInt(v, 2, 5000)
		case "stop_atr_mult":
			p.StopATRMult = clampFloat(v, 0.05, 50)
		case "target_r":
			p.TargetR = clampFloat(v, 0.1, 50)
		case "time_stop_bars":
			p.TimeStopBars = clampInt(v, 1, 100000)
		case "min_volatility_rank":
			p.MinVolRank = clampFloat(v, 0, 1)
		}
	}
	return p
}

// Jitter returns a copy of the vector with every component perturbed by
// up to +-fraction of its value, used by the Monte Carlo parameter
// sensitivity mode. Bounds of the space are respected.
func Jitter(space types.ParameterSpace, vec []float64, fraction float64, unit func() float64) []float64 {
	out := make([]float64, len(vec))
	for i := range vec {
		delta := vec[i] * fraction * (2*unit() - 1)
		v := vec[i] + delta
		if i < len(space.Dimensions) {
			d := space.Dimensions[i]
			switch d.Kind {
			case types.ParamContinuous, types.ParamInteger:
				v = clampFloat(v, d.Low, d.High)
				if d.Kind == types.ParamInteger {
					v = math.Round(v)
				}
			case types.ParamCategorical:
				// Categorical values are not jittered.
				v = vec[i]
			}
		}
		out[i] = v
	}
	return out
}

func clampInt(v, lo, hi float64) int {
	return int(clampFloat(math.Round(v), lo, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
