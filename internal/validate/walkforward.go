/*

This file contains the walk-forward validator: a rolling train/test
sweep over the most recent history. Each slice re-refines the candidate
on its training window only (reduced step budget) and scores the
refined vector strictly on the untouched test window. Acceptance is on
the medians across slices plus the total out-of-sample trade count.

*/

package validate

import (
	"context"
	"fmt"

	"github.com/stratforge/optimizer/internal/backtest"
	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/search"
	"github.com/stratforge/optimizer/internal/types"
	"github.com/stratforge/optimizer/internal/worker"
)

// WalkForward runs the rolling sweep for one candidate. It returns the
// per-slice record and the accept/reject verdict; an error means the
// history cannot hold the configured slice layout at all.
func WalkForward(ctx context.Context, h *dataset.Handle, space types.ParameterSpace, cfg types.RunConfig, cand types.Candidate, guard *worker.Guard) (types.WalkForwardSummary, error) {
	log := logger.GetForComponent("validate.walkforward")
	summary := types.WalkForwardSummary{}

	layout, err := SliceBounds(h.NumBars(), cfg.TrainWindowBars, cfg.TestWindowBars, cfg.SliceCount)
	if err != nil {
		return summary, err
	}

	var composites []float64
	var sortinos, calmars, pfs, sqns, dds []float64
	for _, sl := range layout {
		trainWin := dataset.Window{Start: sl.TrainStart, End: sl.TrainEnd}
		trainEval := windowEval(h, space, trainWin, cfg.LambdaDrawdown)

		anchorSeed := search.DeriveSeed(cand.Seed, int64(sl.Slice)+101)
		anchor := cand
		if sb, err := trainEval(cand.Vector, 0, anchorSeed); err == nil {
			anchor = cand.WithScore(sb, 0)
		}
		neighborhood := search.RefineNeighborhood(ctx, space, anchor, cfg.SliceRefineSteps, 0, anchorSeed, trainEval, guard)
		best := bestOf(neighborhood, anchor)

		testWin := dataset.Window{Start: sl.TestStart, End: sl.TestEnd}
		params := backtest.ParamsFromVector(space, best.Vector)
		res, err := backtest.Evaluate(h, testWin, params, backtest.DefaultExec)
		if err != nil {
			return summary, fmt.Errorf("slice %d test evaluation: %w", sl.Slice, err)
		}
		sl.SliceParams = append([]float64(nil), best.Vector...)
		sl.OOS = backtest.Breakdown(res, cfg.LambdaDrawdown)
		summary.Slices = append(summary.Slices, sl)
		summary.TotalTrades += sl.OOS.Trades

		composites = append(composites, sl.OOS.Composite)
		sortinos = append(sortinos, sl.OOS.Sortino)
		calmars = append(calmars, sl.OOS.Calmar)
		pfs = append(pfs, sl.OOS.ProfitFactor)
		sqns = append(sqns, sl.OOS.SQN)
		dds = append(dds, sl.OOS.MaxDrawdown)

		log.Debug().
			Int("slice", sl.Slice).
			Float64("oos_composite", sl.OOS.Composite).
			Int("oos_trades", sl.OOS.Trades).
			Msg("Walk-forward slice scored")
	}

	summary.MedianScore = types.ScoreBreakdown{
		Sortino:      types.Median(sortinos),
		Calmar:       types.Median(calmars),
		ProfitFactor: types.Median(pfs),
		SQN:          types.Median(sqns),
		MaxDrawdown:  types.Median(dds),
		Composite:    types.Median(composites),
		Trades:       summary.TotalTrades,
	}
	summary.ScoreIQR = types.IQR(composites)
	summary.Accepted, summary.RejectNote = acceptWalkForward(summary, cfg)

	log.Info().
		Bool("accepted", summary.Accepted).
		Str("reject_note", summary.RejectNote).
		Float64("median_composite", summary.MedianScore.Composite).
		Int("total_oos_trades", summary.TotalTrades).
		Msg("Walk-forward complete")
	return summary, nil
}

// acceptWalkForward applies the out-of-sample acceptance thresholds to
// the slice medians. The first failed threshold names the rejection.
func acceptWalkForward(s types.WalkForwardSummary, cfg types.RunConfig) (bool, string) {
	m := s.MedianScore
	switch {
	case m.ProfitFactor < cfg.WFMinProfitFactor:
		return false, fmt.Sprintf("median OOS profit factor %.2f below %.2f", m.ProfitFactor, cfg.WFMinProfitFactor)
	case m.Sortino < cfg.WFMinSortino:
		return false, fmt.Sprintf("median OOS sortino %.2f below %.2f", m.Sortino, cfg.WFMinSortino)
	case m.Calmar < cfg.WFMinCalmar:
		return false, fmt.Sprintf("median OOS calmar %.2f below %.2f", m.Calmar, cfg.WFMinCalmar)
	case m.MaxDrawdown > cfg.WFMaxDrawdown:
		return false, fmt.Sprintf("median OOS max drawdown %.1f%% above %.1f%%", m.MaxDrawdown*100, cfg.WFMaxDrawdown*100)
	case s.TotalTrades < cfg.WFMinTrades:
		return false, fmt.Sprintf("total OOS trades %d below %d", s.TotalTrades, cfg.WFMinTrades)
	}
	return true, ""
}

// SliceBounds lays the most recent `count` slices over n bars, stepping
// back one test window at a time. Train and test windows within a slice
// are adjacent and non-overlapping; test windows never overlap each
// other.
func SliceBounds(n, trainBars, testBars, count int) ([]types.WalkForwardSlice, error) {
	need := trainBars + count*testBars
	if n < need {
		return nil, fmt.Errorf("%w: walk-forward needs %d bars (train %d + %d x test %d), have %d",
			types.ErrDataInsufficient, need, trainBars, count, testBars, n)
	}
	out := make([]types.WalkForwardSlice, 0, count)
	for i := 0; i < count; i++ {
		testEnd := n - (count-1-i)*testBars
		testStart := testEnd - testBars
		trainEnd := testStart
		trainStart := trainEnd - trainBars
		out = append(out, types.WalkForwardSlice{
			Slice:      i,
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  testStart,
			TestEnd:    testEnd,
		})
	}
	return out, nil
}

// windowEval builds an EvalFunc restricted to one window. The fidelity
// argument is ignored: slice refinement always sees its whole training
// window and nothing else.
func windowEval(h *dataset.Handle, space types.ParameterSpace, win dataset.Window, lambda float64) search.EvalFunc {
	return func(vec []float64, _ int, _ int64) (types.ScoreBreakdown, error) {
		params := backtest.ParamsFromVector(space, vec)
		res, err := backtest.Evaluate(h, win, params, backtest.DefaultExec)
		if err != nil {
			return types.ScoreBreakdown{}, err
		}
		return backtest.Breakdown(res, lambda), nil
	}
}

func bestOf(cands []types.Candidate, fallback types.Candidate) types.Candidate {
	best := fallback
	bestScore := -1e300
	if best.Score != nil {
		bestScore = best.Score.Composite
	}
	for _, c := range cands {
		if c.Score != nil && c.Score.Composite > bestScore {
			best = c
			bestScore = c.Score.Composite
		}
	}
	return best
}
