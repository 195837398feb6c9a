/*

This file contains the Bayesian local refinement stage. Each global
survivor anchors a Tree-structured Parzen Estimator loop: observations
are split into good and bad sets by composite score, per-dimension
Parzen densities are fit over each set, and the next point maximizes the
good/bad density ratio among a batch of proposals drawn from the good
density. Loops are sequential inside a neighborhood and fan out across
survivors on the worker pool.

*/

package search

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/types"
	"github.com/stratforge/optimizer/internal/worker"
)

// StageRefine labels candidates created by local refinement.
const StageRefine = "refine"

const (
	tpeGamma        = 0.25 // fraction of observations considered good
	tpeProposals    = 24   // proposals scored by density ratio per step
	tpeWarmupSteps  = 5    // jittered-neighborhood draws before the surrogate engages
	tpeNeighborhood = 0.15 // warmup sigma as a fraction of each dimension's span
)

// RefineResult is the outcome of the local refinement stage.
type RefineResult struct {
	Promoted  []types.Candidate // top candidates re-scored on the full dataset, best-first
	Evaluated int
	Degraded  bool
}

// Refine runs a TPE loop around every survivor, pools all observations,
// re-evaluates the top RefineTopN on the full dataset and promotes the
// top RefinePromoteN of those.
func Refine(ctx context.Context, space types.ParameterSpace, cfg types.RunConfig, survivors []types.Candidate, eval EvalFunc, pool *worker.Pool, guard *worker.Guard) (RefineResult, error) {
	log := logger.GetForComponent("search.refine")
	res := RefineResult{}

	topFidelity := cfg.FidelityLadder[len(cfg.FidelityLadder)-1]
	perSurvivor := make([][]types.Candidate, len(survivors))
	started := pool.ForEach(ctx, len(survivors), guard, func(i int) {
		seed := DeriveSeed(survivors[i].Seed, int64(i)+1)
		perSurvivor[i] = RefineNeighborhood(ctx, space, survivors[i], cfg.RefineSteps, topFidelity, seed, eval, guard)
	})
	if started < len(survivors) {
		res.Degraded = true
	}

	all := make([]types.Candidate, 0, started*(cfg.RefineSteps+1))
	for _, cands := range perSurvivor {
		all = append(all, cands...)
		res.Evaluated += len(cands)
	}
	if len(all) == 0 {
		return res, types.ErrConvergenceFailure
	}
	ranked := rankByComposite(all)
	log.Info().
		Int("neighborhoods", started).
		Int("observations", len(ranked)).
		Msg("Refinement loops complete")

	// Full-data re-evaluation of the short list. Fidelity-truncated
	// scores never advance past this point.
	topN := cfg.RefineTopN
	if topN > len(ranked) {
		topN = len(ranked)
	}
	shortList := ranked[:topN]
	rescored := make([]*types.Candidate, topN)
	pool.ForEach(ctx, topN, guard, func(i int) {
		sb, err := safeEval(eval, shortList[i].Vector, 0, shortList[i].Seed)
		if err != nil {
			log.Warn().Err(err).Str("candidate_id", shortList[i].ID).Msg("Full-data re-evaluation failed")
			return
		}
		c := shortList[i].WithScore(sb, 0)
		rescored[i] = &c
	})

	finals := make([]types.Candidate, 0, topN)
	for _, c := range rescored {
		if c != nil {
			finals = append(finals, *c)
		}
	}
	if len(finals) == 0 {
		return res, types.ErrConvergenceFailure
	}
	finals = rankByComposite(finals)
	promote := cfg.RefinePromoteN
	if promote > len(finals) {
		promote = len(finals)
	}
	res.Promoted = finals[:promote]
	return res, nil
}

// RefineNeighborhood is the pure per-survivor TPE loop. It is also
// called by the walk-forward validator with a reduced step budget and a
// train-window-restricted eval, so it must not touch shared state.
// Returns every scored candidate in the neighborhood, anchor included.
func RefineNeighborhood(ctx context.Context, space types.ParameterSpace, anchor types.Candidate, steps, fidelity int, seed int64, eval EvalFunc, guard *worker.Guard) []types.Candidate {
	rng := rand.New(rand.NewSource(seed))
	obs := make([]types.Candidate, 0, steps+1)
	if anchor.Score != nil {
		obs = append(obs, anchor)
	}

	for step := 0; step < steps; step++ {
		if ctx.Err() != nil || (guard != nil && guard.Expired()) {
			break
		}
		var vec []float64
		if step < tpeWarmupSteps || len(obs) < 4 {
			vec = jitterAround(space, anchor.Vector, rng)
		} else {
			vec = proposeTPE(space, obs, rng)
		}
		candSeed := DeriveSeed(seed, int64(step)+1)
		sb, err := safeEval(eval, vec, fidelity, candSeed)
		if err != nil {
			continue
		}
		c := newCandidate(vec, StageRefine, candSeed).WithScore(sb, fidelity)
		obs = append(obs, c)
	}
	return obs
}

// jitterAround draws a point from a truncated gaussian neighborhood of
// the anchor, one dimension at a time.
func jitterAround(space types.ParameterSpace, center []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(space.Dimensions))
	for i, d := range space.Dimensions {
		c := 0.0
		if i < len(center) {
			c = center[i]
		}
		switch d.Kind {
		case types.ParamCategorical:
			if rng.Float64() < 0.8 {
				out[i] = c
			} else {
				out[i] = d.Choices[rng.Intn(len(d.Choices))]
			}
		default:
			sigma := (d.High - d.Low) * tpeNeighborhood
			out[i] = clampDim(d, c+rng.NormFloat64()*sigma)
		}
	}
	return out
}

// proposeTPE splits observations into good and bad by composite score,
// draws proposals from the good density and returns the proposal with
// the highest good/bad density ratio.
func proposeTPE(space types.ParameterSpace, obs []types.Candidate, rng *rand.Rand) []float64 {
	ranked := rankByComposite(obs)
	nGood := int(math.Ceil(tpeGamma * float64(len(ranked))))
	if nGood < 2 {
		nGood = 2
	}
	good, bad := ranked[:nGood], ranked[nGood:]
	if len(bad) == 0 {
		bad = good
	}

	var best []float64
	bestRatio := math.Inf(-1)
	for p := 0; p < tpeProposals; p++ {
		vec := sampleFromSet(space, good, rng)
		ratio := logDensity(space, good, vec) - logDensity(space, bad, vec)
		if ratio > bestRatio {
			bestRatio = ratio
			best = vec
		}
	}
	return best
}

// sampleFromSet draws one point from the Parzen mixture over a set:
// pick a member uniformly, then a gaussian around its value per
// dimension (or the empirical choice distribution for categoricals).
func sampleFromSet(space types.ParameterSpace, set []types.Candidate, rng *rand.Rand) []float64 {
	out := make([]float64, len(space.Dimensions))
	for i, d := range space.Dimensions {
		m := set[rng.Intn(len(set))]
		c := 0.0
		if i < len(m.Vector) {
			c = m.Vector[i]
		}
		switch d.Kind {
		case types.ParamCategorical:
			if rng.Float64() < 0.9 {
				out[i] = c
			} else {
				out[i] = d.Choices[rng.Intn(len(d.Choices))]
			}
		default:
			out[i] = clampDim(d, c+rng.NormFloat64()*bandwidth(d, len(set)))
		}
	}
	return out
}

// logDensity evaluates the log of the per-dimension Parzen mixture at a
// point, summed over dimensions (dimensions are treated independently).
func logDensity(space types.ParameterSpace, set []types.Candidate, vec []float64) float64 {
	total := 0.0
	for i, d := range space.Dimensions {
		x := vec[i]
		if d.Kind == types.ParamCategorical {
			// Smoothed empirical frequency of the chosen value.
			count := 1.0
			for _, m := range set {
				if i < len(m.Vector) && m.Vector[i] == x {
					count++
				}
			}
			total += math.Log(count / float64(len(set)+len(d.Choices)))
			continue
		}
		kernel := distuv.Normal{Sigma: bandwidth(d, len(set))}
		sum := 0.0
		for _, m := range set {
			if i >= len(m.Vector) {
				continue
			}
			kernel.Mu = m.Vector[i]
			sum += kernel.Prob(x)
		}
		if sum <= 0 {
			sum = 1e-300
		}
		total += math.Log(sum / float64(len(set)))
	}
	return total
}

// bandwidth is a Scott-style kernel width shrinking with set size.
func bandwidth(d types.ParamRange, n int) float64 {
	bw := (d.High - d.Low) / math.Pow(float64(n), 0.2) * 0.5
	if bw <= 0 {
		bw = 1e-9
	}
	return bw
}

func clampDim(d types.ParamRange, v float64) float64 {
	if v < d.Low {
		v = d.Low
	}
	if v > d.High {
		v = d.High
	}
	if d.Kind == types.ParamInteger {
		v = math.Round(v)
	}
	return v
}
