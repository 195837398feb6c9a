package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/optimizer/internal/types"
)

// TestFoldBounds_EmbargoDisjointness verifies no training range comes
// within the embargo gap of its fold's test window.
func TestFoldBounds_EmbargoDisjointness(t *testing.T) {
	const n, folds, embargo = 50000, 5, 120

	bounds, err := FoldBounds(n, folds, embargo)
	require.NoError(t, err)
	require.Len(t, bounds, folds)

	for _, fb := range bounds {
		assert.Equal(t, embargo, fb.EmbargoBars)
		if fb.TrainEnd > 0 {
			assert.LessOrEqual(t, fb.TrainEnd, fb.TestStart-embargo,
				"fold %d: training data leaks into the embargo gap", fb.Fold)
		}
	}
}

// TestFoldBounds_CoverAllBars verifies the test folds tile the history
// contiguously with no gap and no overlap.
func TestFoldBounds_CoverAllBars(t *testing.T) {
	const n, folds = 10007, 5

	bounds, err := FoldBounds(n, folds, 10)
	require.NoError(t, err)

	assert.Equal(t, 0, bounds[0].TestStart)
	assert.Equal(t, n, bounds[len(bounds)-1].TestEnd)
	for i := 1; i < len(bounds); i++ {
		assert.Equal(t, bounds[i-1].TestEnd, bounds[i].TestStart)
	}
}

// TestFoldBounds_InsufficientData verifies the data-insufficiency error
// when the embargo swallows the folds.
func TestFoldBounds_InsufficientData(t *testing.T) {
	_, err := FoldBounds(100, 5, 50)
	assert.ErrorIs(t, err, types.ErrDataInsufficient)
}

// TestFoldBounds_TooFewFolds rejects single-fold layouts.
func TestFoldBounds_TooFewFolds(t *testing.T) {
	_, err := FoldBounds(1000, 1, 2)
	assert.Error(t, err)
}

// TestEmbargoBars_ScalesWithHoldingPeriod verifies the gap is the
// factor times the mean hold, rounded up and never below one bar.
func TestEmbargoBars_ScalesWithHoldingPeriod(t *testing.T) {
	assert.Equal(t, 25, EmbargoBars(2.5, 10))
	assert.Equal(t, 21, EmbargoBars(2.0, 10.4))
	assert.Equal(t, 1, EmbargoBars(2.0, 0))
}
