package validate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// syntheticReturns draws a seeded return series with the given mean and
// standard deviation.
func syntheticReturns(n int, mean, sd float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + sd*rng.NormFloat64()
	}
	return out
}

// TestDeflatedSortino_StrongEdgeSurvives verifies a clearly positive
// return series keeps a high deflated probability under moderate trial
// counts.
func TestDeflatedSortino_StrongEdgeSurvives(t *testing.T) {
	returns := syntheticReturns(500, 0.004, 0.01, 1)

	p := DeflatedSortino(0.4, returns, 200)
	assert.Greater(t, p, 0.95)
}

// TestDeflatedSortino_MoreTrialsDeflateHarder verifies the probability
// is non-increasing in the number of trials tested.
func TestDeflatedSortino_MoreTrialsDeflateHarder(t *testing.T) {
	returns := syntheticReturns(300, 0.001, 0.01, 2)

	pFew := DeflatedSortino(0.1, returns, 10)
	pMany := DeflatedSortino(0.1, returns, 100000)
	assert.Greater(t, pFew, pMany)
}

// TestDeflatedSortino_DegenerateInputs verifies short series and zero
// trials return the conservative zero.
func TestDeflatedSortino_DegenerateInputs(t *testing.T) {
	assert.Zero(t, DeflatedSortino(1.0, []float64{0.1, 0.2}, 100))
	assert.Zero(t, DeflatedSortino(1.0, syntheticReturns(100, 0.01, 0.01, 3), 0))
}

// TestSPAPValue_PositiveEdgeIsSignificant verifies a strong positive
// mean yields a small p-value.
func TestSPAPValue_PositiveEdgeIsSignificant(t *testing.T) {
	returns := syntheticReturns(400, 0.005, 0.01, 4)

	p := SPAPValue(returns, 500, rand.New(rand.NewSource(11)))
	assert.Less(t, p, 0.05)
}

// TestSPAPValue_NoEdgeIsNotSignificant verifies a zero-mean series
// cannot reject the null.
func TestSPAPValue_NoEdgeIsNotSignificant(t *testing.T) {
	returns := syntheticReturns(400, 0.0, 0.01, 5)

	p := SPAPValue(returns, 500, rand.New(rand.NewSource(12)))
	assert.Greater(t, p, 0.05)
}

// TestSPAPValue_ShortSeries verifies the degenerate guard.
func TestSPAPValue_ShortSeries(t *testing.T) {
	p := SPAPValue([]float64{0.1, -0.1}, 500, rand.New(rand.NewSource(13)))
	assert.Equal(t, 1.0, p)
}

// TestExcessReturns verifies benchmark subtraction and the misaligned
// fallback.
func TestExcessReturns(t *testing.T) {
	returns := []float64{0.02, -0.01, 0.03}
	benchmark := []float64{0.01, 0.01, 0.01}

	excess := excessReturns(returns, benchmark)
	assert.InDelta(t, 0.01, excess[0], 1e-12)
	assert.InDelta(t, -0.02, excess[1], 1e-12)
	assert.InDelta(t, 0.02, excess[2], 1e-12)

	assert.Equal(t, returns, excessReturns(returns, nil))
	assert.Equal(t, returns, excessReturns(returns, []float64{0.01}))
}

// TestSPA_BenchmarkMatchingEdgeIsNotSignificant verifies a strategy that
// only tracks its benchmark has no excess edge to certify.
func TestSPA_BenchmarkMatchingEdgeIsNotSignificant(t *testing.T) {
	returns := syntheticReturns(400, 0.005, 0.01, 6)

	p := SPAPValue(excessReturns(returns, returns), 500, rand.New(rand.NewSource(14)))
	assert.Greater(t, p, 0.05)
}
