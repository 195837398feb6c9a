/*

This file contains the optimization pipeline orchestrator. A run walks
the full stage sequence: quasi-random generation and multi-fidelity
global search, Bayesian local refinement, the purged K-fold screen,
walk-forward validation, Monte Carlo robustness and the statistical
verdict, ending in zero or more certified parameter sets. Every run
carries a UUID for log tracing, a stage-by-stage metric trail for
auditability and an explicit terminal status; a run that certifies
nothing is a completed run, not a failed one.

*/

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratforge/optimizer/internal/backtest"
	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/montecarlo"
	"github.com/stratforge/optimizer/internal/search"
	"github.com/stratforge/optimizer/internal/sizing"
	"github.com/stratforge/optimizer/internal/types"
	"github.com/stratforge/optimizer/internal/validate"
	"github.com/stratforge/optimizer/internal/worker"
)

// deflationThreshold is the minimum deflated-Sortino probability a
// candidate must keep for certification.
const deflationThreshold = 0.95

// Optimizer holds one run's immutable inputs and collaborators.
type Optimizer struct {
	logger zerolog.Logger
	handle *dataset.Handle
	space  types.ParameterSpace
	cfg    types.RunConfig
	pool   *worker.Pool
}

// New validates the inputs and assembles an optimizer.
func New(h *dataset.Handle, space types.ParameterSpace, cfg types.RunConfig) (*Optimizer, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{
		logger: logger.GetForComponent("pipeline"),
		handle: h,
		space:  space,
		cfg:    cfg,
		pool:   worker.NewPool(cfg.WorkerFraction),
	}, nil
}

// Run executes the complete pipeline and always returns a report; the
// terminal status distinguishes the failure modes.
func (o *Optimizer) Run(ctx context.Context) types.OptimizationReport {
	startTime := time.Now()
	runID := uuid.New().String()
	runLogger := logger.ForRun(o.logger, runID)

	report := types.OptimizationReport{
		RunID:     runID,
		StartedAt: startTime,
		Seed:      o.cfg.Seed,
	}
	budget := time.Duration(o.cfg.WallClockBudgetMin) * time.Minute

	runLogger.Info().
		Int("bars", o.handle.NumBars()).
		Int("dimensions", o.space.Dim()).
		Int64("seed", o.cfg.Seed).
		Int("workers", o.pool.Workers()).
		Msg("--- Starting Optimization Run ---")

	finish := func(status types.RunStatus) types.OptimizationReport {
		report.Status = status
		report.FinishedAt = time.Now()
		runLogger.Info().
			Str("status", string(status)).
			Str("duration", report.FinishedAt.Sub(startTime).String()).
			Int("certified", len(report.Certified)).
			Msg("--- Optimization Run Completed ---")
		return report
	}
	record := func(stage string, started time.Time, in, out int, degraded bool, note string) {
		report.Trail = append(report.Trail, types.StageRecord{
			Stage: stage, StartedAt: started, Elapsed: time.Since(started),
			CandidatesIn: in, CandidatesOut: out, Degraded: degraded, Note: note,
		})
	}

	// --- Step 1: Data audit ---
	runLogger.Info().Msg("Step 1: Auditing dataset coverage...")
	if err := o.auditData(); err != nil {
		runLogger.Error().Err(err).Msg("Run aborted: dataset cannot support the configured stages.")
		report.Warnings = append(report.Warnings, err.Error())
		return finish(types.StatusDataError)
	}
	eval := NewEvaluator(o.handle, o.space, o.cfg.LambdaDrawdown)
	runLogger.Info().Msg("Step 1: Dataset audit complete.")

	// --- Step 2: Global search ---
	runLogger.Info().Msg("Step 2: Running multi-fidelity global search...")
	global, err := search.Global(ctx, o.space, o.cfg, eval.Eval, o.pool,
		worker.NewGuard(stageBudget(budget, budgetShareGlobal)))
	trialCount := global.Evaluated
	globalDegraded := global.Degraded
	if global.Degraded || errors.Is(err, types.ErrResourceExhausted) {
		runLogger.Warn().Msg("Global search overran its budget; retrying once with reduced sampling")
		report.Warnings = append(report.Warnings, "global search overran its budget; retried once with reduced sampling")
		global, err = search.Global(ctx, o.space, degradeForRetry(o.cfg), eval.Eval, o.pool,
			worker.NewGuard(stageBudget(budget, budgetShareGlobal)))
		trialCount += global.Evaluated
		globalDegraded = true
	}
	if err != nil {
		runLogger.Error().Err(err).Msg("Run aborted: global search did not converge.")
		record("global_search", startTime, global.Generated, 0, globalDegraded, err.Error())
		report.Warnings = append(report.Warnings, err.Error())
		if errors.Is(err, types.ErrConvergenceFailure) {
			return finish(types.StatusConvergenceFailure)
		}
		return finish(types.StatusDataError)
	}
	record("global_search", startTime, global.Generated, len(global.Survivors), globalDegraded, "")
	runLogger.Info().
		Int("survivors", len(global.Survivors)).
		Int("evaluations", global.Evaluated).
		Msg("Step 2: Global search complete.")

	// --- Step 3: Local refinement ---
	runLogger.Info().Msg("Step 3: Refining survivors with the Parzen surrogate...")
	stepStart := time.Now()
	refined, err := search.Refine(ctx, o.space, o.cfg, global.Survivors, eval.Eval, o.pool,
		worker.NewGuard(stageBudget(budget, budgetShareRefine)))
	trialCount += refined.Evaluated
	refineDegraded := refined.Degraded
	if refined.Degraded {
		runLogger.Warn().Msg("Refinement overran its budget; retrying once with a reduced step budget")
		report.Warnings = append(report.Warnings, "refinement overran its budget; retried once with a reduced step budget")
		refined, err = search.Refine(ctx, o.space, degradeForRetry(o.cfg), global.Survivors, eval.Eval, o.pool,
			worker.NewGuard(stageBudget(budget, budgetShareRefine)))
		trialCount += refined.Evaluated
		refineDegraded = true
	}
	if err != nil {
		runLogger.Error().Err(err).Msg("Run aborted: refinement produced no evaluable candidates.")
		record("refinement", stepStart, len(global.Survivors), 0, refineDegraded, err.Error())
		report.Warnings = append(report.Warnings, err.Error())
		return finish(types.StatusConvergenceFailure)
	}
	record("refinement", stepStart, len(global.Survivors), len(refined.Promoted), refineDegraded, "")
	runLogger.Info().Int("promoted", len(refined.Promoted)).Msg("Step 3: Refinement complete.")

	// --- Step 4: Purged K-fold screen ---
	runLogger.Info().Msg("Step 4: Screening with purged K-fold cross-validation...")
	stepStart = time.Now()
	foldOutcomes, kfoldPromoted, err := validate.KFold(o.handle, o.space, o.cfg, refined.Promoted)
	if err != nil {
		runLogger.Error().Err(err).Msg("Run aborted: k-fold screen failed.")
		record("kfold", stepStart, len(refined.Promoted), 0, false, err.Error())
		report.Warnings = append(report.Warnings, err.Error())
		if errors.Is(err, types.ErrConvergenceFailure) {
			return finish(types.StatusConvergenceFailure)
		}
		return finish(types.StatusDataError)
	}
	record("kfold", stepStart, len(refined.Promoted), len(kfoldPromoted), false, "")
	runLogger.Info().Int("promoted", len(kfoldPromoted)).Msg("Step 4: K-fold screen complete.")

	foldsByID := make(map[string][]types.FoldResult, len(foldOutcomes))
	for _, oc := range foldOutcomes {
		foldsByID[oc.Candidate.ID] = oc.Folds
	}

	// --- Step 5: Walk-forward validation ---
	runLogger.Info().Msg("Step 5: Walk-forward validation of promoted candidates...")
	stepStart = time.Now()
	type survivor struct {
		cand types.Candidate
		wf   types.WalkForwardSummary
	}
	wfGuard := worker.NewGuard(stageBudget(budget, budgetShareWalkForward))
	var wfSurvivors []survivor
	for _, cand := range kfoldPromoted {
		wf, err := validate.WalkForward(ctx, o.handle, o.space, o.cfg, cand, wfGuard)
		if err != nil {
			runLogger.Warn().Err(err).Str("candidate_id", cand.ID).Msg("Walk-forward failed for candidate")
			report.Warnings = append(report.Warnings, err.Error())
			continue
		}
		trialCount += len(wf.Slices) * (o.cfg.SliceRefineSteps + 1)
		if wf.Accepted {
			wfSurvivors = append(wfSurvivors, survivor{cand: cand, wf: wf})
		} else {
			runLogger.Info().Str("candidate_id", cand.ID).Str("reason", wf.RejectNote).Msg("Candidate rejected by walk-forward")
		}
	}
	record("walkforward", stepStart, len(kfoldPromoted), len(wfSurvivors), wfGuard.Expired(), "")
	if len(wfSurvivors) == 0 {
		runLogger.Info().Msg("No candidate survived walk-forward validation.")
		return finish(types.StatusNoViableParameters)
	}
	runLogger.Info().Int("survivors", len(wfSurvivors)).Msg("Step 5: Walk-forward complete.")

	// --- Step 6: Monte Carlo robustness ---
	runLogger.Info().Msg("Step 6: Monte Carlo robustness simulation...")
	stepStart = time.Now()
	type robust struct {
		cand types.Candidate
		wf   types.WalkForwardSummary
		mc   types.MonteCarloResult
	}
	mcGuard := worker.NewGuard(stageBudget(budget, budgetShareMonteCarlo))
	mcDegraded := false
	var robustSurvivors []robust
	for _, s := range wfSurvivors {
		mc, err := montecarlo.Run(ctx, o.handle, o.space, o.cfg, s.cand, o.pool, mcGuard)
		if errors.Is(err, types.ErrResourceExhausted) {
			runLogger.Warn().Err(err).Str("candidate_id", s.cand.ID).Msg("Monte Carlo overran its budget; retrying once with reduced paths")
			report.Warnings = append(report.Warnings, err.Error())
			mcDegraded = true
			mc, err = montecarlo.Run(ctx, o.handle, o.space, degradeForRetry(o.cfg), s.cand, o.pool,
				worker.NewGuard(stageBudget(budget, budgetShareMonteCarlo)))
		}
		if err != nil {
			runLogger.Warn().Err(err).Str("candidate_id", s.cand.ID).Msg("Monte Carlo failed for candidate")
			report.Warnings = append(report.Warnings, err.Error())
			continue
		}
		if mc.Robust {
			robustSurvivors = append(robustSurvivors, robust{cand: s.cand, wf: s.wf, mc: mc})
		} else {
			runLogger.Info().Str("candidate_id", s.cand.ID).Str("reason", mc.RejectNote).Msg("Candidate rejected by Monte Carlo")
		}
	}
	record("montecarlo", stepStart, len(wfSurvivors), len(robustSurvivors), mcDegraded || mcGuard.Expired(), "")
	if len(robustSurvivors) == 0 {
		runLogger.Info().Msg("No candidate survived Monte Carlo robustness.")
		return finish(types.StatusNoViableParameters)
	}
	runLogger.Info().Int("survivors", len(robustSurvivors)).Msg("Step 6: Monte Carlo complete.")

	// --- Step 7: Statistical validation & certification ---
	runLogger.Info().Msg("Step 7: Statistical validation and certification...")
	stepStart = time.Now()
	var certified []types.CertifiedParameterSet
	for _, s := range robustSurvivors {
		res, err := eval.FullResult(s.cand.Vector)
		if err != nil {
			runLogger.Warn().Err(err).Str("candidate_id", s.cand.ID).Msg("Full-data evaluation failed during certification")
			continue
		}
		sortino := 0.0
		if s.cand.Score != nil {
			sortino = s.cand.Score.Sortino
		}
		mcP5Composite := compositeFromPercentiles(s.mc, o.cfg.LambdaDrawdown)
		benchmark := backtest.BenchmarkReturns(o.handle, res)
		verdict := validate.Statistical(res.Returns, benchmark, sortino, trialCount,
			s.wf.MedianScore.Composite, mcP5Composite, o.cfg)

		if verdict.DeflatedSortino < deflationThreshold {
			runLogger.Info().
				Str("candidate_id", s.cand.ID).
				Float64("deflated_sortino", verdict.DeflatedSortino).
				Msg("Candidate rejected: edge does not survive deflation")
			continue
		}
		if !verdict.SPAPassed {
			runLogger.Info().
				Str("candidate_id", s.cand.ID).
				Float64("spa_p_value", verdict.SPAPValue).
				Msg("Candidate rejected: SPA test not significant")
			continue
		}
		certified = append(certified, types.CertifiedParameterSet{
			Candidate:   s.cand,
			Folds:       foldsByID[s.cand.ID],
			WalkForward: s.wf,
			MonteCarlo:  s.mc,
			Verdict:     verdict,
			TradeStats:  backtest.Stats(res),
			CertifiedAt: time.Now(),
		})
	}
	// Best composite rank first; certify at most CertifyTopN.
	for i := 1; i < len(certified); i++ {
		for j := i; j > 0 && certified[j-1].Verdict.CompositeRank < certified[j].Verdict.CompositeRank; j-- {
			certified[j-1], certified[j] = certified[j], certified[j-1]
		}
	}
	if o.cfg.CertifyTopN > 0 && len(certified) > o.cfg.CertifyTopN {
		certified = certified[:o.cfg.CertifyTopN]
	}
	record("statistical", stepStart, len(robustSurvivors), len(certified), false, "")

	if len(certified) == 0 {
		runLogger.Info().Msg("No candidate survived statistical validation.")
		return finish(types.StatusNoViableParameters)
	}
	report.Certified = certified
	runLogger.Info().Int("certified", len(certified)).Msg("Step 7: Certification complete.")
	return finish(types.StatusCertified)
}

// SizeForCertified answers a position-size query against a certified
// set; exposed here so the CLI and any embedding service share one path.
func SizeForCertified(set types.CertifiedParameterSet, balance, currentDrawdown float64) (types.PositionSizeDecision, error) {
	return sizing.Decide(sizing.Inputs{
		Balance:         balance,
		CurrentDrawdown: currentDrawdown,
		Stats:           set.TradeStats,
	})
}

// auditData verifies the history can hold the top fidelity rung, the
// k-fold layout and the walk-forward slices before any budget is spent.
func (o *Optimizer) auditData() error {
	n := o.handle.NumBars()
	top := o.cfg.FidelityLadder[len(o.cfg.FidelityLadder)-1]
	if n < top {
		return fmt.Errorf("%w: history has %d bars, top fidelity rung needs %d", types.ErrDataInsufficient, n, top)
	}
	if _, err := validate.SliceBounds(n, o.cfg.TrainWindowBars, o.cfg.TestWindowBars, o.cfg.SliceCount); err != nil {
		return err
	}
	return nil
}

// Shares of the whole-run wall-clock budget allotted to the
// evaluation-heavy stages, roughly proportional to their volume. The
// k-fold screen and the statistical verdict run a fixed, small number of
// evaluations and go unguarded.
const (
	budgetShareGlobal      = 0.35
	budgetShareRefine      = 0.25
	budgetShareWalkForward = 0.20
	budgetShareMonteCarlo  = 0.20
)

// stageBudget carves one stage's slice out of the whole-run budget. A
// zero budget disables the stage guard entirely.
func stageBudget(total time.Duration, share float64) time.Duration {
	if total <= 0 {
		return 0
	}
	return time.Duration(float64(total) * share)
}

// degradeForRetry halves the volume knobs for the single degraded retry
// of an over-budget stage, holding each at its validated minimum.
func degradeForRetry(cfg types.RunConfig) types.RunConfig {
	out := cfg
	out.SampleCount = cfg.SampleCount / 2
	if out.SampleCount < 10 {
		out.SampleCount = 10
	}
	out.RefineSteps = cfg.RefineSteps / 2
	if out.RefineSteps < 1 {
		out.RefineSteps = 1
	}
	out.SliceRefineSteps = cfg.SliceRefineSteps / 2
	if out.SliceRefineSteps < 1 {
		out.SliceRefineSteps = 1
	}
	out.MonteCarloPaths = cfg.MonteCarloPaths / 2
	if out.MonteCarloPaths < 100 {
		out.MonteCarloPaths = 100
	}
	if len(cfg.FidelityLadder) > 1 {
		out.FidelityLadder = cfg.FidelityLadder[:len(cfg.FidelityLadder)-1]
	}
	return out
}

// compositeFromPercentiles rebuilds the composite formula from the 5th
// percentile of each reward metric and the 95th of drawdown, the
// conservative corner of the Monte Carlo distribution.
func compositeFromPercentiles(mc types.MonteCarloResult, lambda float64) float64 {
	return types.CompositeScore(types.ScoreBreakdown{
		Sortino:      mc.Sortino.P5,
		Calmar:       mc.Calmar.P5,
		ProfitFactor: mc.ProfitFactor.P5,
		SQN:          mc.SQN.P5,
		MaxDrawdown:  mc.MaxDrawdown.P95,
	}, lambda)
}
