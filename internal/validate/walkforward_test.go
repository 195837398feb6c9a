package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/optimizer/internal/types"
)

func wfThresholds() types.RunConfig {
	return types.RunConfig{
		WFMinProfitFactor: 1.8,
		WFMinSortino:      1.5,
		WFMinCalmar:       1.5,
		WFMaxDrawdown:     0.30,
		WFMinTrades:       200,
	}
}

func passingSummary() types.WalkForwardSummary {
	return types.WalkForwardSummary{
		MedianScore: types.ScoreBreakdown{
			ProfitFactor: 2.1,
			Sortino:      1.9,
			Calmar:       1.7,
			MaxDrawdown:  0.18,
		},
		TotalTrades: 320,
	}
}

// TestSliceBounds_Layout verifies the rolling layout: adjacent train and
// test windows, non-overlapping test windows, and the final slice ending
// at the last bar.
func TestSliceBounds_Layout(t *testing.T) {
	const n, train, test, count = 220000, 77760, 17280, 8

	slices, err := SliceBounds(n, train, test, count)
	require.NoError(t, err)
	require.Len(t, slices, count)

	for i, sl := range slices {
		assert.Equal(t, sl.TrainEnd, sl.TestStart, "slice %d: train and test must be adjacent", i)
		assert.Equal(t, train, sl.TrainEnd-sl.TrainStart)
		assert.Equal(t, test, sl.TestEnd-sl.TestStart)
		if i > 0 {
			assert.Equal(t, slices[i-1].TestEnd, sl.TestStart, "test windows must tile without overlap")
		}
	}
	assert.Equal(t, n, slices[count-1].TestEnd)
}

// TestSliceBounds_InsufficientData verifies the explicit error when the
// history cannot hold the layout.
func TestSliceBounds_InsufficientData(t *testing.T) {
	_, err := SliceBounds(100000, 77760, 17280, 8)
	assert.ErrorIs(t, err, types.ErrDataInsufficient)
}

// TestAcceptWalkForward_Passes sanity-checks a summary above every
// threshold.
func TestAcceptWalkForward_Passes(t *testing.T) {
	ok, note := acceptWalkForward(passingSummary(), wfThresholds())
	assert.True(t, ok)
	assert.Empty(t, note)
}

// TestAcceptWalkForward_RejectsDeepDrawdown verifies a 35% median OOS
// drawdown is rejected even when every other metric passes.
func TestAcceptWalkForward_RejectsDeepDrawdown(t *testing.T) {
	s := passingSummary()
	s.MedianScore.MaxDrawdown = 0.35

	ok, note := acceptWalkForward(s, wfThresholds())
	assert.False(t, ok)
	assert.Contains(t, note, "drawdown")
}

// TestAcceptWalkForward_RejectsEachThreshold walks the remaining
// thresholds one at a time.
func TestAcceptWalkForward_RejectsEachThreshold(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*types.WalkForwardSummary)
		want   string
	}{
		{"profit factor", func(s *types.WalkForwardSummary) { s.MedianScore.ProfitFactor = 1.7 }, "profit factor"},
		{"sortino", func(s *types.WalkForwardSummary) { s.MedianScore.Sortino = 1.4 }, "sortino"},
		{"calmar", func(s *types.WalkForwardSummary) { s.MedianScore.Calmar = 1.2 }, "calmar"},
		{"trade count", func(s *types.WalkForwardSummary) { s.TotalTrades = 150 }, "trades"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := passingSummary()
			tc.mutate(&s)
			ok, note := acceptWalkForward(s, wfThresholds())
			assert.False(t, ok)
			assert.Contains(t, note, tc.want)
		})
	}
}
