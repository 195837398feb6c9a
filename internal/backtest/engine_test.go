package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/types"
)

// flatThenBreakout builds a history that grinds sideways, breaks out
// once, runs far enough to hit an R-multiple target, then flattens.
func flatThenBreakout(t *testing.T) *dataset.Handle {
	t.Helper()
	const n = 400
	times := make([]int64, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	volRank := make([]float64, n)

	price := 100.0
	for i := 0; i < n; i++ {
		times[i] = int64(i+1) * 60000
		switch {
		case i < 200:
			// Sideways chop in a 1-point band.
			if i%2 == 0 {
				price = 100.0
			} else {
				price = 100.5
			}
		case i < 260:
			// Breakout leg: steady climb.
			price += 0.6
		default:
			// Hold the level.
		}
		open[i] = price
		closes[i] = price
		high[i] = price + 0.4
		low[i] = price - 0.4
		volume[i] = 1000
		volRank[i] = 0.9
	}

	h, err := dataset.New(times, open, high, low, closes, volume, map[string][]float64{"vol_rank": volRank})
	require.NoError(t, err)
	return h
}

func testParams() Params {
	return Params{
		Lookback:     20,
		ATRLen:       14,
		StopATRMult:  2.0,
		TargetR:      2.0,
		TimeStopBars: 100,
		MinVolRank:   0.5,
	}
}

// TestEvaluate_BreakoutTriggersTrade verifies the sideways phase stays
// flat and the breakout leg produces at least one winning trade.
func TestEvaluate_BreakoutTriggersTrade(t *testing.T) {
	h := flatThenBreakout(t)

	res, err := Evaluate(h, dataset.Full(h, 0), testParams(), ExecModel{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	first := res.Trades[0]
	assert.GreaterOrEqual(t, first.EntryIdx, 200, "no entries during the sideways phase")
	assert.Greater(t, first.Return, 0.0)
	assert.Equal(t, ExitTarget, first.Reason)
}

// TestEvaluate_EntryOnNextBarOpen verifies the fill lands on the bar
// after the signal, at that bar's open.
func TestEvaluate_EntryOnNextBarOpen(t *testing.T) {
	h := flatThenBreakout(t)

	res, err := Evaluate(h, dataset.Full(h, 0), testParams(), ExecModel{})
	require.NotEmpty(t, res.Trades)
	require.NoError(t, err)

	first := res.Trades[0]
	assert.Equal(t, h.Open[first.EntryIdx], first.EntryPrice, "zero-cost fill must equal next bar open")
}

// TestEvaluate_VolRankGateBlocksEntries verifies the regime filter: the
// same history with a filter above the supplied rank trades nothing.
func TestEvaluate_VolRankGateBlocksEntries(t *testing.T) {
	h := flatThenBreakout(t)
	p := testParams()
	p.MinVolRank = 0.95 // column is pinned at 0.9

	res, err := Evaluate(h, dataset.Full(h, 0), p, ExecModel{})
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
}

// TestEvaluate_CostsShiftFills verifies fees and slippage move entries
// up and exits down.
func TestEvaluate_CostsShiftFills(t *testing.T) {
	h := flatThenBreakout(t)

	free, err := Evaluate(h, dataset.Full(h, 0), testParams(), ExecModel{})
	require.NoError(t, err)
	costly, err := Evaluate(h, dataset.Full(h, 0), testParams(), DefaultExec)
	require.NoError(t, err)
	require.NotEmpty(t, free.Trades)
	require.NotEmpty(t, costly.Trades)

	assert.Greater(t, costly.Trades[0].EntryPrice, free.Trades[0].EntryPrice)
}

// TestEvaluate_WindowTooSmall verifies the warmup guard.
func TestEvaluate_WindowTooSmall(t *testing.T) {
	h := flatThenBreakout(t)

	_, err := Evaluate(h, dataset.Window{Start: 0, End: 10}, testParams(), ExecModel{})
	assert.ErrorIs(t, err, ErrWindowTooSmall)
}

// TestMaxDrawdown_KnownCurve checks the peak-to-trough arithmetic.
func TestMaxDrawdown_KnownCurve(t *testing.T) {
	equity := []float64{1.0, 1.2, 0.9, 1.1, 1.3, 1.04}
	assert.InDelta(t, 0.25, MaxDrawdown(equity), 1e-12) // 1.2 -> 0.9
	assert.Zero(t, MaxDrawdown(nil))
	assert.Zero(t, MaxDrawdown([]float64{1, 2, 3}))
}

// TestBreakdown_KnownReturns checks profit factor and trade counting on
// a hand-computed series.
func TestBreakdown_KnownReturns(t *testing.T) {
	res := Result{
		Returns: []float64{0.02, -0.01, 0.03, -0.01, 0.01},
		Equity:  []float64{1.0, 1.02, 1.0098, 1.0401, 1.0297, 1.0400},
	}
	sb := Breakdown(res, 0.75)

	assert.Equal(t, 5, sb.Trades)
	assert.InDelta(t, 3.0, sb.ProfitFactor, 1e-9) // 0.06 gross profit / 0.02 gross loss
	assert.Greater(t, sb.Sortino, 0.0)
	assert.Equal(t, types.CompositeScore(sb, 0.75), sb.Composite)
}

// TestBreakdown_EmptyResultRanksLowest verifies a no-trade evaluation
// scores below any traded one.
func TestBreakdown_EmptyResultRanksLowest(t *testing.T) {
	empty := Breakdown(Result{}, 0.75)
	traded := Breakdown(Result{
		Returns: []float64{-0.01},
		Equity:  []float64{1.0, 0.99},
	}, 0.75)

	assert.Less(t, empty.Composite, traded.Composite)
}

// TestBenchmarkReturns_HoldingWindows verifies the buy-and-hold series
// aligns with the trade log and uses close-to-close pricing.
func TestBenchmarkReturns_HoldingWindows(t *testing.T) {
	h := flatThenBreakout(t)

	res, err := Evaluate(h, dataset.Full(h, 0), testParams(), ExecModel{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	bench := BenchmarkReturns(h, res)
	require.Len(t, bench, len(res.Trades))
	first := res.Trades[0]
	want := h.Close[first.ExitIdx]/h.Close[first.EntryIdx] - 1
	assert.InDelta(t, want, bench[0], 1e-12)
	assert.Greater(t, bench[0], 0.0, "the breakout leg rises, so holding it gains")
}

// TestStats_WinLossSplit checks the sizer inputs on a known series.
func TestStats_WinLossSplit(t *testing.T) {
	res := Result{Returns: []float64{0.02, -0.01, 0.04, -0.03, 0.03}}
	ts := Stats(res)

	assert.Equal(t, 5, ts.Trades)
	assert.InDelta(t, 0.6, ts.WinRate, 1e-12)
	assert.InDelta(t, 0.03, ts.AvgWin, 1e-12)
	assert.InDelta(t, 0.02, ts.AvgLoss, 1e-12)
	assert.InDelta(t, 1.5, ts.PayoffRatio(), 1e-12)
	assert.InDelta(t, 0.01, ts.Expectancy, 1e-12)
}

// TestParamsFromVector_BindsAndClamps verifies named binding and the
// pathological-value clamps.
func TestParamsFromVector_BindsAndClamps(t *testing.T) {
	space := types.ParameterSpace{Dimensions: []types.ParamRange{
		{Name: "lookback", Kind: types.ParamInteger, Low: 5, High: 100},
		{Name: "stop_atr_mult", Kind: types.ParamContinuous, Low: 0.5, High: 5},
		{Name: "min_volatility_rank", Kind: types.ParamContinuous, Low: 0, High: 1},
	}}

	p := ParamsFromVector(space, []float64{30, 2.5, 0.4})
	assert.Equal(t, 30, p.Lookback)
	assert.InDelta(t, 2.5, p.StopATRMult, 1e-12)
	assert.InDelta(t, 0.4, p.MinVolRank, 1e-12)
	assert.Equal(t, DefaultParams.ATRLen, p.ATRLen, "unbound dimensions keep defaults")

	p = ParamsFromVector(space, []float64{0, -3, 9})
	assert.Equal(t, 2, p.Lookback)
	assert.InDelta(t, 0.05, p.StopATRMult, 1e-12)
	assert.InDelta(t, 1.0, p.MinVolRank, 1e-12)
}

// TestJitter_StaysInBounds verifies the Monte Carlo perturbation
// respects the space.
func TestJitter_StaysInBounds(t *testing.T) {
	space := types.ParameterSpace{Dimensions: []types.ParamRange{
		{Name: "a", Kind: types.ParamContinuous, Low: 10, High: 12},
		{Name: "b", Kind: types.ParamCategorical, Choices: []float64{1, 2}},
	}}
	vec := []float64{11.9, 2}

	unitHigh := func() float64 { return 1.0 } // +10% push
	out := Jitter(space, vec, 0.10, unitHigh)
	assert.LessOrEqual(t, out[0], 12.0)
	assert.Equal(t, 2.0, out[1], "categorical values are never jittered")
}
