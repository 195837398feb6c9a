/*

This file contains the purged K-fold screen. The history is cut into K
contiguous held-out folds; around every fold an embargo gap proportional
to the candidate's mean holding period is carved out of the surrounding
data, so trades straddling a boundary cannot leak information into the
held-out evaluation. Candidates are ranked by median fold composite with
the inter-quartile range as the stability tie-break.

*/

package validate

import (
	"fmt"
	"math"
	"sort"

	"github.com/stratforge/optimizer/internal/backtest"
	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/types"
)

// KFoldOutcome is one candidate's full fold-by-fold record.
type KFoldOutcome struct {
	Candidate       types.Candidate    `json:"candidate"`
	Folds           []types.FoldResult `json:"folds"`
	MedianComposite float64            `json:"median_composite"`
	CompositeIQR    float64            `json:"composite_iqr"`
	EmbargoBars     int                `json:"embargo_bars"`
}

// KFold evaluates each candidate across K embargo-purged folds and
// promotes the top cfg.KFoldPromoteN by median composite (lower IQR
// breaks ties). Candidates whose folds cannot all be evaluated are
// dropped rather than failing the stage.
func KFold(h *dataset.Handle, space types.ParameterSpace, cfg types.RunConfig, cands []types.Candidate) ([]KFoldOutcome, []types.Candidate, error) {
	log := logger.GetForComponent("validate.kfold")
	outcomes := make([]KFoldOutcome, 0, len(cands))

	for _, cand := range cands {
		params := backtest.ParamsFromVector(space, cand.Vector)
		meanHold, err := meanHoldingBars(h, params)
		if err != nil {
			log.Warn().Err(err).Str("candidate_id", cand.ID).Msg("Dropping candidate: full-data evaluation failed")
			continue
		}
		embargo := EmbargoBars(cfg.EmbargoFactor, meanHold)

		bounds, err := FoldBounds(h.NumBars(), cfg.Folds, embargo)
		if err != nil {
			return nil, nil, err
		}

		oc := KFoldOutcome{Candidate: cand, EmbargoBars: embargo}
		composites := make([]float64, 0, cfg.Folds)
		ok := true
		for _, fb := range bounds {
			res, err := backtest.Evaluate(h, dataset.Window{Start: fb.TestStart, End: fb.TestEnd}, params, backtest.DefaultExec)
			if err != nil {
				log.Warn().Err(err).Str("candidate_id", cand.ID).Int("fold", fb.Fold).Msg("Dropping candidate: fold evaluation failed")
				ok = false
				break
			}
			fb.Score = backtest.Breakdown(res, cfg.LambdaDrawdown)
			fb.Trades = len(res.Trades)
			oc.Folds = append(oc.Folds, fb)
			composites = append(composites, fb.Score.Composite)
		}
		if !ok {
			continue
		}
		oc.MedianComposite = types.Median(composites)
		oc.CompositeIQR = types.IQR(composites)
		outcomes = append(outcomes, oc)
	}

	if len(outcomes) == 0 {
		return nil, nil, fmt.Errorf("%w: no candidate completed the k-fold screen", types.ErrConvergenceFailure)
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].MedianComposite != outcomes[j].MedianComposite {
			return outcomes[i].MedianComposite > outcomes[j].MedianComposite
		}
		return outcomes[i].CompositeIQR < outcomes[j].CompositeIQR
	})

	promote := cfg.KFoldPromoteN
	if promote > len(outcomes) {
		promote = len(outcomes)
	}
	promoted := make([]types.Candidate, 0, promote)
	for _, oc := range outcomes[:promote] {
		promoted = append(promoted, oc.Candidate)
	}
	log.Info().
		Int("candidates", len(cands)).
		Int("completed", len(outcomes)).
		Int("promoted", len(promoted)).
		Msg("K-fold screen complete")
	return outcomes, promoted, nil
}

// EmbargoBars converts the embargo factor and a mean holding period into
// a whole-bar gap, never less than one bar.
func EmbargoBars(factor, meanHoldBars float64) int {
	e := int(math.Ceil(factor * meanHoldBars))
	if e < 1 {
		e = 1
	}
	return e
}

// FoldBounds lays out K contiguous test folds over n bars and the
// embargo-trimmed training ranges around each. The training range before
// a fold ends embargo bars before the fold starts, and the training range
// after it starts embargo bars past the fold's end; FoldResult records
// the earlier range (TrainEnd is exclusive).
func FoldBounds(n, folds, embargo int) ([]types.FoldResult, error) {
	if folds < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", folds)
	}
	foldLen := n / folds
	if foldLen <= embargo*2 {
		return nil, fmt.Errorf("%w: %d bars across %d folds leaves no room for a %d-bar embargo",
			types.ErrDataInsufficient, n, folds, embargo)
	}
	out := make([]types.FoldResult, 0, folds)
	for k := 0; k < folds; k++ {
		ts := k * foldLen
		te := ts + foldLen
		if k == folds-1 {
			te = n
		}
		trainEnd := ts - embargo
		if trainEnd < 0 {
			trainEnd = 0
		}
		out = append(out, types.FoldResult{
			Fold:        k,
			TrainStart:  0,
			TrainEnd:    trainEnd,
			TestStart:   ts,
			TestEnd:     te,
			EmbargoBars: embargo,
		})
	}
	return out, nil
}

// meanHoldingBars runs one full-data evaluation to measure how long the
// candidate's trades stay open; the embargo width scales from it.
func meanHoldingBars(h *dataset.Handle, params backtest.Params) (float64, error) {
	res, err := backtest.Evaluate(h, dataset.Full(h, 0), params, backtest.DefaultExec)
	if err != nil {
		return 0, err
	}
	if len(res.Trades) == 0 {
		return 0, fmt.Errorf("candidate produced no trades on full data")
	}
	return res.MeanHoldBars, nil
}
