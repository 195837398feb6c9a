/*

This file contains the multi-fidelity global search: an asynchronous
successive-halving sweep over the quasi-random initial sample. Every
survivor of a rung is re-evaluated at the next fidelity before the
bottom fraction is discarded, and the hard screening filter applies at
every rung so degenerate regions never consume higher-fidelity budget.

*/

package search

import (
	"context"
	"fmt"

	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/sampler"
	"github.com/stratforge/optimizer/internal/types"
	"github.com/stratforge/optimizer/internal/worker"
)

// StageGlobal labels candidates created by the global search.
const StageGlobal = "global"

// GlobalResult is the outcome of the successive-halving sweep.
type GlobalResult struct {
	Survivors []types.Candidate // ranked best-first, scored at the top fidelity
	Generated int               // initial sample size actually drawn
	Evaluated int               // total evaluations across all rungs
	Rejected  int               // failed evaluations (error or panic)
	Degraded  bool              // budget guard cut the sweep short
}

// Global draws the initial sample and runs it up the fidelity ladder.
// Returns ErrConvergenceFailure if fewer than two candidates survive
// screening at any rung.
func Global(ctx context.Context, space types.ParameterSpace, cfg types.RunConfig, eval EvalFunc, pool *worker.Pool, guard *worker.Guard) (GlobalResult, error) {
	log := logger.GetForComponent("search.global")
	res := GlobalResult{}

	smp, err := sampler.New(cfg.Sampler, space.Dim(), cfg.Seed)
	if err != nil {
		return res, err
	}
	points := smp.Sample(cfg.SampleCount)
	res.Generated = len(points)

	current := make([]types.Candidate, 0, len(points))
	for i, pt := range points {
		vec := sampler.MapToSpace(space, pt)
		current = append(current, newCandidate(vec, StageGlobal, DeriveSeed(cfg.Seed, int64(i))))
	}
	log.Info().
		Str("sampler", smp.Name()).
		Int("candidates", len(current)).
		Ints("fidelity_ladder", cfg.FidelityLadder).
		Msg("Global search started")

	for rung, fidelity := range cfg.FidelityLadder {
		scored, started := evaluateAll(ctx, current, fidelity, eval, pool, guard)
		res.Evaluated += started
		res.Rejected += started - len(scored)
		if started < len(current) {
			res.Degraded = true
			log.Warn().
				Int("rung", rung).
				Int("skipped", len(current)-started).
				Msg("Budget guard expired mid-rung; continuing with evaluated candidates only")
		}

		passed := screen(scored, cfg)
		log.Info().
			Int("rung", rung).
			Int("fidelity_bars", fidelity).
			Int("evaluated", len(scored)).
			Int("passed_screen", len(passed)).
			Msg("Rung complete")

		if len(passed) < 2 {
			return res, fmt.Errorf("%w: %d candidates passed screening at fidelity %d (need >= 2)",
				types.ErrConvergenceFailure, len(passed), fidelity)
		}

		ranked := rankByComposite(passed)
		if rung < len(cfg.FidelityLadder)-1 {
			ranked = ranked[:KeepCount(len(ranked), cfg.HalvingEta)]
		}
		current = ranked
	}

	res.Survivors = current
	return res, nil
}

// KeepCount is the number of candidates promoted past a halving
// transition: the top 1/eta fraction, never fewer than two.
func KeepCount(n, eta int) int {
	keep := (n + eta - 1) / eta
	if keep < 2 {
		keep = 2
	}
	if keep > n {
		keep = n
	}
	return keep
}

// evaluateAll scores candidates at one fidelity across the pool. A
// candidate whose evaluation fails or panics is dropped, not retried;
// the rest of the rung proceeds. Returns the scored candidates and the
// number of evaluations started before the guard expired.
func evaluateAll(ctx context.Context, cands []types.Candidate, fidelity int, eval EvalFunc, pool *worker.Pool, guard *worker.Guard) ([]types.Candidate, int) {
	log := logger.GetForComponent("search.global")
	out := make([]*types.Candidate, len(cands))
	started := pool.ForEach(ctx, len(cands), guard, func(i int) {
		sb, err := safeEval(eval, cands[i].Vector, fidelity, cands[i].Seed)
		if err != nil {
			log.Warn().Err(err).Str("candidate_id", cands[i].ID).Msg("Candidate rejected: evaluation failed")
			return
		}
		c := cands[i].WithScore(sb, fidelity)
		out[i] = &c
	})

	scored := make([]types.Candidate, 0, len(cands))
	for _, c := range out {
		if c != nil {
			scored = append(scored, *c)
		}
	}
	return scored, started
}

// screen applies the hard filter: minimum profit factor and minimum
// trade count, both required at every fidelity.
func screen(cands []types.Candidate, cfg types.RunConfig) []types.Candidate {
	passed := make([]types.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Score == nil {
			continue
		}
		if c.Score.ProfitFactor >= cfg.ScreenMinProfitFactor && c.Score.Trades >= cfg.ScreenMinTrades {
			passed = append(passed, c)
		}
	}
	return passed
}

// safeEval shields the pool from a panicking evaluation; the panic is
// converted into a per-candidate rejection.
func safeEval(eval EvalFunc, vec []float64, fidelity int, seed int64) (sb types.ScoreBreakdown, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()
	return eval(vec, fidelity, seed)
}
