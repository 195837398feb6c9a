package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/optimizer/internal/types"
	"github.com/stratforge/optimizer/internal/worker"
)

// TestRefineNeighborhood_ImprovesOnAnchor verifies the loop finds a
// better point than a deliberately off-center anchor on the sphere
// objective.
func TestRefineNeighborhood_ImprovesOnAnchor(t *testing.T) {
	space := testSpace(2)
	anchorVec := []float64{0.9, 0.9}
	sb, err := sphereEval(anchorVec, 0, 0)
	require.NoError(t, err)
	anchor := types.Candidate{ID: "anchor", Vector: anchorVec, Seed: 1}.WithScore(sb, 0)

	obs := RefineNeighborhood(context.Background(), space, anchor, 40, 0, 7, sphereEval, nil)
	require.NotEmpty(t, obs)

	best := obs[0]
	for _, c := range obs {
		if c.Score.Composite > best.Score.Composite {
			best = c
		}
	}
	assert.Greater(t, best.Score.Composite, anchor.Score.Composite)
}

// TestRefineNeighborhood_Deterministic verifies the same seed replays
// the same trajectory.
func TestRefineNeighborhood_Deterministic(t *testing.T) {
	space := testSpace(3)
	anchor := types.Candidate{ID: "anchor", Vector: []float64{0.2, 0.8, 0.5}, Seed: 3}

	a := RefineNeighborhood(context.Background(), space, anchor, 15, 0, 99, sphereEval, nil)
	b := RefineNeighborhood(context.Background(), space, anchor, 15, 0, 99, sphereEval, nil)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Vector, b[i].Vector, "step %d diverged", i)
	}
}

// TestRefineNeighborhood_RespectsBounds verifies every proposal stays
// inside the parameter space.
func TestRefineNeighborhood_RespectsBounds(t *testing.T) {
	space := types.ParameterSpace{Dimensions: []types.ParamRange{
		{Name: "a", Kind: types.ParamContinuous, Low: 2, High: 5},
		{Name: "b", Kind: types.ParamInteger, Low: 1, High: 10},
		{Name: "c", Kind: types.ParamCategorical, Choices: []float64{3, 7, 11}},
	}}
	anchor := types.Candidate{ID: "anchor", Vector: []float64{4.9, 9, 7}, Seed: 5}

	obs := RefineNeighborhood(context.Background(), space, anchor, 30, 0, 21, sphereEval, nil)
	for _, c := range obs {
		assert.GreaterOrEqual(t, c.Vector[0], 2.0)
		assert.LessOrEqual(t, c.Vector[0], 5.0)
		assert.GreaterOrEqual(t, c.Vector[1], 1.0)
		assert.LessOrEqual(t, c.Vector[1], 10.0)
		assert.Equal(t, c.Vector[1], float64(int(c.Vector[1])), "integer dimension must stay integral")
		assert.Contains(t, []float64{3, 7, 11}, c.Vector[2])
	}
}

// TestLogDensity_FavorsObservedRegion verifies the Parzen mixture scores
// points near the observation cluster above points far from it.
func TestLogDensity_FavorsObservedRegion(t *testing.T) {
	space := testSpace(1)
	set := []types.Candidate{
		{Vector: []float64{0.48}},
		{Vector: []float64{0.50}},
		{Vector: []float64{0.52}},
	}

	near := logDensity(space, set, []float64{0.50})
	far := logDensity(space, set, []float64{0.05})
	assert.Greater(t, near, far)
}

// TestRefine_PromotesConfiguredCount verifies the full-data short list
// and promotion widths.
func TestRefine_PromotesConfiguredCount(t *testing.T) {
	cfg := searchConfig()
	cfg.RefineSteps = 10
	cfg.RefineTopN = 8
	cfg.RefinePromoteN = 3
	space := testSpace(2)

	survivors := []types.Candidate{
		newCandidate([]float64{0.3, 0.3}, StageGlobal, 1),
		newCandidate([]float64{0.6, 0.6}, StageGlobal, 2),
	}
	res, err := Refine(context.Background(), space, cfg, survivors, sphereEval, worker.NewPool(0.5), worker.NewGuard(0))
	require.NoError(t, err)
	require.Len(t, res.Promoted, 3)

	for i, c := range res.Promoted {
		assert.Equal(t, 0, c.Fidelity, "promoted candidates must carry full-data scores")
		require.NotNil(t, c.Score)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Promoted[i-1].Score.Composite, c.Score.Composite)
		}
	}
}
