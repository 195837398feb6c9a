/*

This file contains the default run configuration for the optimizer.

These defaults implement the documented pipeline thresholds. Each value is
a starting point; every run is expected to load its own YAML file and the
defaults only fill fields the file omits.

*/

package config

import (
	"github.com/stratforge/optimizer/internal/types"
)

// DefaultRunConfig provides the baseline run configuration. Thresholds
// follow the validation gates the strategy must clear before parameters
// are pushed anywhere near live capital.
var DefaultRunConfig = types.RunConfig{
	// --- Candidate generation & global search ---
	Sampler:        "sobol",
	SampleCount:    120,
	FidelityLadder: []int{10000, 30000, 50000},
	HalvingEta:     3,

	// Hard screen: anything below PF 1.4 or under 80 trades is noise,
	// regardless of composite score.
	ScreenMinProfitFactor: 1.4,
	ScreenMinTrades:       80,

	// --- Local refinement ---
	RefineSteps:      40,
	RefineTopN:       12,
	RefinePromoteN:   5,
	SliceRefineSteps: 15, // reduced budget for per-slice re-optimization

	// --- Purged K-fold ---
	Folds:          5,
	EmbargoFactor:  2.0,
	KFoldPromoteN:  3,
	LambdaDrawdown: 0.75,

	// --- Walk-forward (5m bars: ~9 months train, ~2 months test) ---
	TrainWindowBars:   77760,
	TestWindowBars:    17280,
	SliceCount:        8,
	WFMinProfitFactor: 1.8,
	WFMinSortino:      1.5,
	WFMinCalmar:       1.5,
	WFMaxDrawdown:     0.30,
	WFMinTrades:       200,

	// --- Monte Carlo ---
	MonteCarloPaths: 1500,
	MCMinPFP5:       1.5,
	MCMinSortinoP5:  1.2,
	MCMinCalmarP5:   1.2,
	MCMaxDDP95:      0.30,
	MCMinMedianSQN:  3.0,

	// --- Statistical validation ---
	SPASignificance: 0.05,
	SPABootstraps:   1000,
	CertifyTopN:     2,

	// --- Resource model ---
	WallClockBudgetMin: 90,
	WorkerFraction:     0.70,
	Seed:               1,
}
