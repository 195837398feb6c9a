/*

This file contains the metric computations over one evaluation's trade
returns: Sortino, Calmar, Profit Factor, SQN, max drawdown and the
composite score. Ratios are per-trade, matching how the acceptance
thresholds were calibrated; nothing is annualized.

*/

package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/types"
)

// metricCap bounds the ratio metrics so a handful of lucky trades with
// near-zero downside cannot dominate the composite score.
const metricCap = 100.0

// Breakdown computes the full metric set for an evaluation. Lambda is
// the run's drawdown penalty coefficient.
func Breakdown(res Result, lambda float64) types.ScoreBreakdown {
	sb := types.ScoreBreakdown{Trades: len(res.Returns)}
	if len(res.Returns) == 0 {
		sb.MaxDrawdown = 0
		sb.Composite = types.CompositeScore(sb, lambda) - 1 // empty evaluations rank below any traded one
		return sb
	}

	sb.MaxDrawdown = MaxDrawdown(res.Equity)
	sb.ProfitFactor = profitFactor(res.Returns)
	sb.Sortino = sortino(res.Returns)
	sb.Calmar = calmar(res.Equity, sb.MaxDrawdown)
	sb.SQN = sqn(res.Returns)
	sb.Composite = types.CompositeScore(sb, lambda)
	return sb
}

// MaxDrawdown returns the largest peak-to-trough decline of an equity
// curve as a positive fraction.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, eq := range equity {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if dd := (peak - eq) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// BenchmarkReturns computes the buy-and-hold close-to-close return over
// each trade's holding window. The statistical validator tests the
// strategy's per-trade returns against this series rather than against
// zero, so an edge that merely rides the underlying drift does not pass.
func BenchmarkReturns(h *dataset.Handle, res Result) []float64 {
	out := make([]float64, len(res.Trades))
	for i, tr := range res.Trades {
		entry := h.Close[tr.EntryIdx]
		if entry > 0 {
			out[i] = h.Close[tr.ExitIdx]/entry - 1
		}
	}
	return out
}

// Stats extracts the empirical trade statistics the Kelly sizer consumes.
func Stats(res Result) types.TradeStats {
	ts := types.TradeStats{Trades: len(res.Returns)}
	if ts.Trades == 0 {
		return ts
	}
	var winSum, lossSum float64
	var wins, losses int
	for _, r := range res.Returns {
		if r > 0 {
			winSum += r
			wins++
		} else if r < 0 {
			lossSum += -r
			losses++
		}
	}
	ts.WinRate = float64(wins) / float64(ts.Trades)
	if wins > 0 {
		ts.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		ts.AvgLoss = lossSum / float64(losses)
	}
	ts.Expectancy = stat.Mean(res.Returns, nil)
	return ts
}

func profitFactor(returns []float64) float64 {
	var grossProfit, grossLoss float64
	for _, r := range returns {
		if r > 0 {
			grossProfit += r
		} else {
			grossLoss += -r
		}
	}
	if grossLoss == 0 {
		if grossProfit == 0 {
			return 0
		}
		return metricCap
	}
	return capMetric(grossProfit / grossLoss)
}

func sortino(returns []float64) float64 {
	mean := stat.Mean(returns, nil)
	var sumSq float64
	var n int
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		if mean <= 0 {
			return 0
		}
		return metricCap
	}
	downside := math.Sqrt(sumSq / float64(n))
	if downside == 0 {
		return metricCap
	}
	return capMetric(mean / downside)
}

func calmar(equity []float64, maxDD float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	totalReturn := equity[len(equity)-1] - 1
	if maxDD == 0 {
		if totalReturn <= 0 {
			return 0
		}
		return metricCap
	}
	return capMetric(totalReturn / maxDD)
}

func sqn(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	sd := stat.StdDev(returns, nil)
	if sd == 0 {
		return 0
	}
	return capMetric(mean / sd * math.Sqrt(float64(len(returns))))
}

func capMetric(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > metricCap {
		return metricCap
	}
	if v < -metricCap {
		return -metricCap
	}
	return v
}
