/*

This file contains the parameter space definition and the tunable run
configuration for the optimizer. A ParameterSpace is defined once per run
and never mutated afterwards; stages only read it.

*/

package types

import (
	"errors"
	"fmt"
)

// ParamKind describes how a parameter dimension is sampled.
type ParamKind string

const (
	ParamContinuous  ParamKind = "continuous"
	ParamInteger     ParamKind = "integer"
	ParamCategorical ParamKind = "categorical"
)

// ParamRange is a single bounded dimension of the parameter space.
// For categorical parameters, Choices holds the admissible values and
// Low/High are ignored.
type ParamRange struct {
	Name    string    `json:"name" yaml:"name"`
	Kind    ParamKind `json:"kind" yaml:"kind"`
	Low     float64   `json:"low" yaml:"low"`
	High    float64   `json:"high" yaml:"high"`
	Choices []float64 `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// ParameterSpace is the ordered set of dimensions candidates are drawn
// from. Order is significant: candidate vectors are aligned to it.
type ParameterSpace struct {
	Dimensions []ParamRange `json:"dimensions" yaml:"dimensions"`
}

// Dim returns the number of dimensions.
func (s ParameterSpace) Dim() int {
	return len(s.Dimensions)
}

// Validate checks the space is well formed before a run starts.
func (s ParameterSpace) Validate() error {
	if len(s.Dimensions) == 0 {
		return errors.New("parameter space has no dimensions")
	}
	seen := make(map[string]bool, len(s.Dimensions))
	for _, d := range s.Dimensions {
		if d.Name == "" {
			return errors.New("parameter dimension has empty name")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate parameter dimension: %s", d.Name)
		}
		seen[d.Name] = true
		switch d.Kind {
		case ParamContinuous, ParamInteger:
			if d.High <= d.Low {
				return fmt.Errorf("parameter %s: high (%v) must exceed low (%v)", d.Name, d.High, d.Low)
			}
		case ParamCategorical:
			if len(d.Choices) == 0 {
				return fmt.Errorf("parameter %s: categorical dimension needs choices", d.Name)
			}
		default:
			return fmt.Errorf("parameter %s: unknown kind %q", d.Name, d.Kind)
		}
	}
	return nil
}

// RunConfig holds all tunable thresholds, budgets and coefficients for a
// single optimization run. Loaded from YAML, validated once, then treated
// as read-only by every stage.
type RunConfig struct {
	// --- Candidate generation & global search ---
	Sampler        string `json:"sampler" yaml:"sampler"`                 // "sobol" or "lhs"
	SampleCount    int    `json:"sample_count" yaml:"sample_count"`       // target initial sample count (e.g. 120)
	FidelityLadder []int  `json:"fidelity_ladder" yaml:"fidelity_ladder"` // bar counts per rung, ascending (e.g. 10000,30000,50000)
	HalvingEta     int    `json:"halving_eta" yaml:"halving_eta"`         // successive halving factor (default 3)

	// --- Hard screening filter (applies at every fidelity) ---
	ScreenMinProfitFactor float64 `json:"screen_min_profit_factor" yaml:"screen_min_profit_factor"` // default 1.4
	ScreenMinTrades       int     `json:"screen_min_trades" yaml:"screen_min_trades"`               // default 80

	// --- Local refinement ---
	RefineSteps      int `json:"refine_steps" yaml:"refine_steps"`             // TPE step budget per survivor (default 40)
	RefineTopN       int `json:"refine_top_n" yaml:"refine_top_n"`             // re-evaluated on full data (default 12)
	RefinePromoteN   int `json:"refine_promote_n" yaml:"refine_promote_n"`     // advance to k-fold screen (default 5)
	SliceRefineSteps int `json:"slice_refine_steps" yaml:"slice_refine_steps"` // reduced budget for walk-forward slices

	// --- Purged K-fold ---
	Folds          int     `json:"folds" yaml:"folds"`                       // default 5
	EmbargoFactor  float64 `json:"embargo_factor" yaml:"embargo_factor"`     // multiple of mean holding period (>= 2)
	KFoldPromoteN  int     `json:"kfold_promote_n" yaml:"kfold_promote_n"`   // default 3
	LambdaDrawdown float64 `json:"lambda_drawdown" yaml:"lambda_drawdown"`   // composite score DD penalty, in [0.5, 1.0]

	// --- Walk-forward ---
	TrainWindowBars int `json:"train_window_bars" yaml:"train_window_bars"` // ~9 months of bars
	TestWindowBars  int `json:"test_window_bars" yaml:"test_window_bars"`   // ~2 months of bars
	SliceCount      int `json:"slice_count" yaml:"slice_count"`             // default 8

	// Walk-forward OOS acceptance thresholds.
	WFMinProfitFactor float64 `json:"wf_min_profit_factor" yaml:"wf_min_profit_factor"` // 1.8
	WFMinSortino      float64 `json:"wf_min_sortino" yaml:"wf_min_sortino"`             // 1.5
	WFMinCalmar       float64 `json:"wf_min_calmar" yaml:"wf_min_calmar"`               // 1.5
	WFMaxDrawdown     float64 `json:"wf_max_drawdown" yaml:"wf_max_drawdown"`           // 0.30
	WFMinTrades       int     `json:"wf_min_trades" yaml:"wf_min_trades"`               // 200

	// --- Monte Carlo ---
	MonteCarloPaths int     `json:"monte_carlo_paths" yaml:"monte_carlo_paths"` // 1000-2000
	MCMinPFP5       float64 `json:"mc_min_pf_p5" yaml:"mc_min_pf_p5"`           // 1.5
	MCMinSortinoP5  float64 `json:"mc_min_sortino_p5" yaml:"mc_min_sortino_p5"` // 1.2
	MCMinCalmarP5   float64 `json:"mc_min_calmar_p5" yaml:"mc_min_calmar_p5"`   // 1.2
	MCMaxDDP95      float64 `json:"mc_max_dd_p95" yaml:"mc_max_dd_p95"`         // 0.30
	MCMinMedianSQN  float64 `json:"mc_min_median_sqn" yaml:"mc_min_median_sqn"` // 3.0

	// --- Statistical validation ---
	SPASignificance float64 `json:"spa_significance" yaml:"spa_significance"` // e.g. 0.05
	SPABootstraps   int     `json:"spa_bootstraps" yaml:"spa_bootstraps"`     // stationary bootstrap resamples
	CertifyTopN     int     `json:"certify_top_n" yaml:"certify_top_n"`       // 1-2

	// --- Resource model ---
	WallClockBudgetMin int     `json:"wall_clock_budget_min" yaml:"wall_clock_budget_min"` // whole-run budget, minutes
	WorkerFraction     float64 `json:"worker_fraction" yaml:"worker_fraction"`             // fraction of cores (default 0.70)
	Seed               int64   `json:"seed" yaml:"seed"`                                   // master seed for the run
}

// Validate enforces the documented ranges on the run configuration.
func (c RunConfig) Validate() error {
	if c.Sampler != "sobol" && c.Sampler != "lhs" {
		return fmt.Errorf("sampler must be \"sobol\" or \"lhs\", got %q", c.Sampler)
	}
	if c.SampleCount < 10 {
		return fmt.Errorf("sample_count must be >= 10, got %d", c.SampleCount)
	}
	if len(c.FidelityLadder) == 0 {
		return errors.New("fidelity_ladder must not be empty")
	}
	for i := 1; i < len(c.FidelityLadder); i++ {
		if c.FidelityLadder[i] <= c.FidelityLadder[i-1] {
			return errors.New("fidelity_ladder must be strictly ascending")
		}
	}
	if c.HalvingEta < 2 {
		return fmt.Errorf("halving_eta must be >= 2, got %d", c.HalvingEta)
	}
	if c.LambdaDrawdown < 0.5 || c.LambdaDrawdown > 1.0 {
		return fmt.Errorf("lambda_drawdown must be in [0.5, 1.0], got %v", c.LambdaDrawdown)
	}
	if c.EmbargoFactor < 2.0 {
		return fmt.Errorf("embargo_factor must be >= 2.0, got %v", c.EmbargoFactor)
	}
	if c.Folds < 2 {
		return fmt.Errorf("folds must be >= 2, got %d", c.Folds)
	}
	if c.SliceCount < 1 {
		return fmt.Errorf("slice_count must be >= 1, got %d", c.SliceCount)
	}
	if c.MonteCarloPaths < 100 {
		return fmt.Errorf("monte_carlo_paths must be >= 100, got %d", c.MonteCarloPaths)
	}
	if c.WorkerFraction <= 0 || c.WorkerFraction > 1 {
		return fmt.Errorf("worker_fraction must be in (0, 1], got %v", c.WorkerFraction)
	}
	return nil
}
