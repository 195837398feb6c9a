/*

This file contains the evaluator the search stages call into: it binds a
candidate vector to the strategy, selects the fidelity window (a tail
slice of the history for truncated rungs, the full history otherwise)
and returns the metric breakdown. Deterministic by construction; the
seed parameter exists for stages that perturb execution, which the
deterministic path ignores.

*/

package pipeline

import (
	"github.com/stratforge/optimizer/internal/backtest"
	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/types"
)

// Evaluator scores candidate vectors against one dataset handle. It is
// stateless beyond its read-only references and safe for concurrent use.
type Evaluator struct {
	handle *dataset.Handle
	space  types.ParameterSpace
	lambda float64
}

// NewEvaluator wires an evaluator to a dataset and parameter space.
func NewEvaluator(h *dataset.Handle, space types.ParameterSpace, lambda float64) *Evaluator {
	return &Evaluator{handle: h, space: space, lambda: lambda}
}

// Eval satisfies search.EvalFunc.
func (e *Evaluator) Eval(vec []float64, fidelityBars int, _ int64) (types.ScoreBreakdown, error) {
	win := dataset.Full(e.handle, 0)
	if fidelityBars > 0 {
		var err error
		win, err = dataset.Tail(e.handle, fidelityBars, 0)
		if err != nil {
			return types.ScoreBreakdown{}, err
		}
	}
	params := backtest.ParamsFromVector(e.space, vec)
	res, err := backtest.Evaluate(e.handle, win, params, backtest.DefaultExec)
	if err != nil {
		return types.ScoreBreakdown{}, err
	}
	return backtest.Breakdown(res, e.lambda), nil
}

// FullResult runs one full-data evaluation and returns the raw result,
// used where the pipeline needs the trade list itself (statistics for
// the sizer, return series for the statistical tests).
func (e *Evaluator) FullResult(vec []float64) (backtest.Result, error) {
	params := backtest.ParamsFromVector(e.space, vec)
	return backtest.Evaluate(e.handle, dataset.Full(e.handle, 0), params, backtest.DefaultExec)
}
