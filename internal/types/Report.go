/*

This file contains the terminal artifacts of an optimization run: the
Monte Carlo distribution, the statistical verdict, the certified parameter
set, and the report handed to the deployment collaborator.

*/

package types

import "time"

// Percentiles is the standard percentile map computed over a Monte Carlo
// metric distribution.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// MonteCarloResult summarizes the simulated metric distributions across
// all perturbation paths for one candidate.
type MonteCarloResult struct {
	Paths        int         `json:"paths"`
	ProfitFactor Percentiles `json:"profit_factor"`
	Sortino      Percentiles `json:"sortino"`
	Calmar       Percentiles `json:"calmar"`
	SQN          Percentiles `json:"sqn"`
	MaxDrawdown  Percentiles `json:"max_drawdown"`
	Robust       bool        `json:"robust"`
	RejectNote   string      `json:"reject_note,omitempty"`
}

// ValidationVerdict is the outcome of the multiple-testing-corrected
// statistical validation.
type ValidationVerdict struct {
	DeflatedSortino float64 `json:"deflated_sortino"`
	TrialsTested    int     `json:"trials_tested"`
	SPAPValue       float64 `json:"spa_p_value"`
	SPAPassed       bool    `json:"spa_passed"`
	CompositeRank   float64 `json:"composite_rank"` // 0.6*MC p5 + 0.4*WF median
}

// TradeStats are the empirical trade statistics the Kelly sizer consumes.
type TradeStats struct {
	Trades     int     `json:"trades"`
	WinRate    float64 `json:"win_rate"`
	AvgWin     float64 `json:"avg_win"`  // mean winning PnL, positive
	AvgLoss    float64 `json:"avg_loss"` // mean losing PnL magnitude, positive
	Expectancy float64 `json:"expectancy"`
}

// PayoffRatio is avg win over avg loss (the Kelly "b"). Zero avg loss
// yields 0 so the sizer falls back to its floor.
func (t TradeStats) PayoffRatio() float64 {
	if t.AvgLoss <= 0 {
		return 0
	}
	return t.AvgWin / t.AvgLoss
}

// BindingConstraint names the rule that bounded a position size decision.
type BindingConstraint string

const (
	ConstraintNone          BindingConstraint = "none"
	ConstraintMinOrderFloor BindingConstraint = "min_order_floor"
	ConstraintRiskCap       BindingConstraint = "risk_cap"
)

// PositionSizeDecision is the synchronous answer to a sizing query. It
// has no side effects and may be recomputed freely.
type PositionSizeDecision struct {
	KellyFraction    float64           `json:"kelly_fraction"` // full Kelly f*
	AppliedFraction  float64           `json:"applied_fraction"`
	Notional         string            `json:"notional"` // decimal string, quote currency units
	DrawdownDiscount float64           `json:"drawdown_discount"`
	Binding          BindingConstraint `json:"binding_constraint"`
}

// CertifiedParameterSet is the terminal artifact of a successful run.
// Immutable after creation; persisted by the state collaborator.
type CertifiedParameterSet struct {
	Candidate   Candidate          `json:"candidate"`
	Folds       []FoldResult       `json:"folds"`
	WalkForward WalkForwardSummary `json:"walk_forward"`
	MonteCarlo  MonteCarloResult   `json:"monte_carlo"`
	Verdict     ValidationVerdict  `json:"verdict"`
	TradeStats  TradeStats         `json:"trade_stats"`
	CertifiedAt time.Time          `json:"certified_at"`
}

// RunStatus is the explicit terminal state of a run.
type RunStatus string

const (
	StatusCertified          RunStatus = "certified"
	StatusNoViableParameters RunStatus = "no_viable_parameters"
	StatusConvergenceFailure RunStatus = "convergence_failure"
	StatusDataError          RunStatus = "data_error"
)

// StageRecord is one entry in the stage-by-stage metric trail kept for
// auditability.
type StageRecord struct {
	Stage         string        `json:"stage"`
	StartedAt     time.Time     `json:"started_at"`
	Elapsed       time.Duration `json:"elapsed"`
	CandidatesIn  int           `json:"candidates_in"`
	CandidatesOut int           `json:"candidates_out"`
	Degraded      bool          `json:"degraded"`
	Note          string        `json:"note,omitempty"`
}

// OptimizationReport is the sole handoff to the publishing collaborator.
type OptimizationReport struct {
	RunID      string                  `json:"run_id"`
	Status     RunStatus               `json:"status"`
	Certified  []CertifiedParameterSet `json:"certified,omitempty"`
	Trail      []StageRecord           `json:"trail"`
	Warnings   []string                `json:"warnings,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Seed       int64                   `json:"seed"`
}
