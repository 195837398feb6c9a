/*

This file contains the Monte Carlo robustness stage. Each simulated path
composes the perturbation modes: the candidate's parameters are jittered
within +-10%, the backtest is re-run under randomized execution costs,
and the resulting per-trade returns are resampled (block bootstrap with
a block length tied to the series' autocorrelation half-life on even
paths, plain trade resampling on odd paths). The acceptance checks are
on the tails of the resulting metric distributions, not their means.

*/

package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/stratforge/optimizer/internal/backtest"
	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/search"
	"github.com/stratforge/optimizer/internal/types"
	"github.com/stratforge/optimizer/internal/worker"
)

const (
	paramJitterFraction = 0.10
	slippageStdBps      = 3.0
	spreadEventProb     = 0.02
	spreadEventBps      = 10.0
)

// Run simulates cfg.MonteCarloPaths perturbed paths for one candidate
// and applies the tail-percentile acceptance checks. Paths that fail to
// evaluate are skipped; the stage errors only if fewer than half the
// requested paths complete.
func Run(ctx context.Context, h *dataset.Handle, space types.ParameterSpace, cfg types.RunConfig, cand types.Candidate, pool *worker.Pool, guard *worker.Guard) (types.MonteCarloResult, error) {
	log := logger.GetForComponent("montecarlo")
	out := types.MonteCarloResult{}

	type pathScore struct {
		pf, sortino, calmar, sqn, maxDD float64
	}
	scores := make([]*pathScore, cfg.MonteCarloPaths)

	pool.ForEach(ctx, cfg.MonteCarloPaths, guard, func(i int) {
		rng := rand.New(rand.NewSource(search.DeriveSeed(cand.Seed, int64(i)+5000)))
		returns, err := simulatePath(h, space, cand.Vector, i, rng)
		if err != nil {
			return
		}
		sb := backtest.Breakdown(resultFromReturns(returns), cfg.LambdaDrawdown)
		scores[i] = &pathScore{
			pf: sb.ProfitFactor, sortino: sb.Sortino, calmar: sb.Calmar,
			sqn: sb.SQN, maxDD: sb.MaxDrawdown,
		}
	})

	var pfs, sortinos, calmars, sqns, dds []float64
	for _, s := range scores {
		if s == nil {
			continue
		}
		pfs = append(pfs, s.pf)
		sortinos = append(sortinos, s.sortino)
		calmars = append(calmars, s.calmar)
		sqns = append(sqns, s.sqn)
		dds = append(dds, s.maxDD)
	}
	out.Paths = len(pfs)
	if out.Paths < cfg.MonteCarloPaths/2 {
		return out, fmt.Errorf("%w: only %d of %d monte carlo paths completed",
			types.ErrResourceExhausted, out.Paths, cfg.MonteCarloPaths)
	}

	out.ProfitFactor = percentiles(pfs)
	out.Sortino = percentiles(sortinos)
	out.Calmar = percentiles(calmars)
	out.SQN = percentiles(sqns)
	out.MaxDrawdown = percentiles(dds)
	out.Robust, out.RejectNote = accept(out, cfg)

	log.Info().
		Int("paths", out.Paths).
		Bool("robust", out.Robust).
		Str("reject_note", out.RejectNote).
		Float64("pf_p5", out.ProfitFactor.P5).
		Float64("max_dd_p95", out.MaxDrawdown.P95).
		Msg("Monte Carlo robustness complete")
	return out, nil
}

// simulatePath composes the perturbation modes for one path and returns
// the resampled per-trade return series.
func simulatePath(h *dataset.Handle, space types.ParameterSpace, vec []float64, path int, rng *rand.Rand) ([]float64, error) {
	jittered := backtest.Jitter(space, vec, paramJitterFraction, rng.Float64)
	params := backtest.ParamsFromVector(space, jittered)
	exec := backtest.DefaultExec
	exec.Noise = &backtest.ExecNoise{
		SlippageStdBps:  slippageStdBps,
		SpreadEventProb: spreadEventProb,
		SpreadEventBps:  spreadEventBps,
		Rng:             rng,
	}
	res, err := backtest.Evaluate(h, dataset.Full(h, 0), params, exec)
	if err != nil {
		return nil, err
	}
	if len(res.Returns) < 3 {
		return nil, fmt.Errorf("path produced %d trades", len(res.Returns))
	}
	if path%2 == 0 {
		return blockBootstrap(res.Returns, rng), nil
	}
	return tradeResample(res.Returns, rng), nil
}

// blockBootstrap resamples contiguous blocks so serial dependence in the
// trade sequence survives the shuffle. The block length follows the
// lag-1 autocorrelation half-life of the series.
func blockBootstrap(returns []float64, rng *rand.Rand) []float64 {
	n := len(returns)
	block := blockLength(returns)
	out := make([]float64, 0, n)
	for len(out) < n {
		start := rng.Intn(n)
		for j := 0; j < block && len(out) < n; j++ {
			out = append(out, returns[(start+j)%n])
		}
	}
	return out
}

// tradeResample draws trades independently with replacement.
func tradeResample(returns []float64, rng *rand.Rand) []float64 {
	n := len(returns)
	out := make([]float64, n)
	for i := range out {
		out[i] = returns[rng.Intn(n)]
	}
	return out
}

// blockLength is the autocorrelation half-life in trades, clamped to
// [2, n/4].
func blockLength(returns []float64) int {
	n := len(returns)
	mean := stat.Mean(returns, nil)
	var num, den float64
	for i := 0; i < n; i++ {
		d := returns[i] - mean
		den += d * d
		if i > 0 {
			num += d * (returns[i-1] - mean)
		}
	}
	rho := 0.0
	if den > 0 {
		rho = num / den
	}
	block := 5
	if rho > 0 && rho < 1 {
		block = int(math.Ceil(math.Log(0.5) / math.Log(rho)))
	}
	if block < 2 {
		block = 2
	}
	if block > n/4 && n/4 >= 2 {
		block = n / 4
	}
	return block
}

// resultFromReturns rebuilds a compounded equity curve over a resampled
// return series so the drawdown and ratio metrics apply unchanged.
func resultFromReturns(returns []float64) backtest.Result {
	res := backtest.Result{Returns: returns}
	res.Equity = make([]float64, len(returns)+1)
	res.Equity[0] = 1.0
	for i, r := range returns {
		res.Equity[i+1] = res.Equity[i] * (1 + r)
	}
	return res
}

// accept applies the tail thresholds: 5th percentiles of the reward
// metrics, 95th percentile of drawdown, median SQN.
func accept(mc types.MonteCarloResult, cfg types.RunConfig) (bool, string) {
	switch {
	case mc.ProfitFactor.P5 < cfg.MCMinPFP5:
		return false, fmt.Sprintf("profit factor p5 %.2f below %.2f", mc.ProfitFactor.P5, cfg.MCMinPFP5)
	case mc.Sortino.P5 < cfg.MCMinSortinoP5:
		return false, fmt.Sprintf("sortino p5 %.2f below %.2f", mc.Sortino.P5, cfg.MCMinSortinoP5)
	case mc.Calmar.P5 < cfg.MCMinCalmarP5:
		return false, fmt.Sprintf("calmar p5 %.2f below %.2f", mc.Calmar.P5, cfg.MCMinCalmarP5)
	case mc.MaxDrawdown.P95 > cfg.MCMaxDDP95:
		return false, fmt.Sprintf("max drawdown p95 %.1f%% above %.1f%%", mc.MaxDrawdown.P95*100, cfg.MCMaxDDP95*100)
	case mc.SQN.P50 < cfg.MCMinMedianSQN:
		return false, fmt.Sprintf("median SQN %.2f below %.2f", mc.SQN.P50, cfg.MCMinMedianSQN)
	}
	return true, ""
}

func percentiles(xs []float64) types.Percentiles {
	if len(xs) == 0 {
		return types.Percentiles{}
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return types.Percentiles{
		P5:  stat.Quantile(0.05, stat.Empirical, s, nil),
		P25: stat.Quantile(0.25, stat.Empirical, s, nil),
		P50: stat.Quantile(0.50, stat.Empirical, s, nil),
		P75: stat.Quantile(0.75, stat.Empirical, s, nil),
		P95: stat.Quantile(0.95, stat.Empirical, s, nil),
	}
}
