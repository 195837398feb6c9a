package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/optimizer/internal/types"
)

// TestNew_UnknownBackend verifies backend names are a closed set.
func TestNew_UnknownBackend(t *testing.T) {
	_, err := New("halton", 3, 1)
	assert.Error(t, err)
}

// TestSobol_UnitCubeAndDeterminism verifies points land in [0,1) and a
// seed replays the identical sequence.
func TestSobol_UnitCubeAndDeterminism(t *testing.T) {
	a, err := New(BackendSobol, 6, 42)
	require.NoError(t, err)
	b, err := New(BackendSobol, 6, 42)
	require.NoError(t, err)

	pa, pb := a.Sample(128), b.Sample(128)
	require.Len(t, pa, 128)
	for i := range pa {
		assert.Equal(t, pa[i], pb[i], "point %d diverged under the same seed", i)
		for d, v := range pa[i] {
			assert.GreaterOrEqual(t, v, 0.0, "point %d dim %d", i, d)
			assert.Less(t, v, 1.0, "point %d dim %d", i, d)
		}
	}
}

// TestSobol_SeedShiftsSequence verifies different seeds explore
// different digital shifts.
func TestSobol_SeedShiftsSequence(t *testing.T) {
	a, err := New(BackendSobol, 4, 1)
	require.NoError(t, err)
	b, err := New(BackendSobol, 4, 2)
	require.NoError(t, err)

	assert.NotEqual(t, a.Sample(8), b.Sample(8))
}

// TestSobol_DimensionBound verifies the direction-number table bound is
// enforced.
func TestSobol_DimensionBound(t *testing.T) {
	_, err := New(BackendSobol, 17, 1)
	assert.Error(t, err)
}

// TestSobol_CoverageBeatsClustering verifies low-discrepancy behavior
// crudely: with 64 points in 1D, every 1/16 bucket is hit.
func TestSobol_CoverageBeatsClustering(t *testing.T) {
	s, err := New(BackendSobol, 1, 9)
	require.NoError(t, err)

	hits := make([]int, 16)
	for _, p := range s.Sample(64) {
		hits[int(p[0]*16)]++
	}
	for i, h := range hits {
		assert.Greater(t, h, 0, "bucket %d never sampled", i)
	}
}

// TestLHS_Stratification verifies each dimension places exactly one
// point per 1/n stratum.
func TestLHS_Stratification(t *testing.T) {
	const n = 40
	s, err := New(BackendLHS, 3, 7)
	require.NoError(t, err)

	points := s.Sample(n)
	require.Len(t, points, n)
	for d := 0; d < 3; d++ {
		seen := make([]bool, n)
		for _, p := range points {
			bin := int(p[d] * n)
			require.Less(t, bin, n)
			assert.False(t, seen[bin], "dim %d bin %d hit twice", d, bin)
			seen[bin] = true
		}
	}
}

// TestMapToSpace_Kinds verifies the unit-point scaling per dimension
// kind.
func TestMapToSpace_Kinds(t *testing.T) {
	space := types.ParameterSpace{Dimensions: []types.ParamRange{
		{Name: "cont", Kind: types.ParamContinuous, Low: 10, High: 20},
		{Name: "int", Kind: types.ParamInteger, Low: 0, High: 100},
		{Name: "cat", Kind: types.ParamCategorical, Choices: []float64{5, 8, 13}},
	}}

	vec := MapToSpace(space, []float64{0.5, 0.337, 0.99})
	assert.InDelta(t, 15.0, vec[0], 1e-12)
	assert.Equal(t, 34.0, vec[1])
	assert.Equal(t, 13.0, vec[2])

	// Upper edge of the unit interval must not index past the choices.
	vec = MapToSpace(space, []float64{1.0, 1.0, 0.9999999})
	assert.Equal(t, 13.0, vec[2])
}
