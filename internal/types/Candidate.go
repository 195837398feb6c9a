/*

This file contains the candidate model shared by every pipeline stage.
Candidates are immutable once created; refinement produces new candidates
rather than mutating old ones.

*/

package types

import (
	"math"
	"sort"
)

// Candidate is a concrete parameter vector plus its provenance. Vector is
// aligned to the ParameterSpace dimension order.
type Candidate struct {
	ID       string    `json:"id"`
	Vector   []float64 `json:"vector"`
	Stage    string    `json:"stage"`    // stage that created it: "global", "refine", "walkforward"
	Fidelity int       `json:"fidelity"` // bar count it was last evaluated at (0 = full data)
	Seed     int64     `json:"seed"`     // per-candidate evaluation seed

	// Score is attached after backtest evaluation; nil until then.
	Score *ScoreBreakdown `json:"score,omitempty"`
}

// Param returns the candidate's value for a named dimension.
func (c Candidate) Param(space ParameterSpace, name string) (float64, bool) {
	for i, d := range space.Dimensions {
		if d.Name == name && i < len(c.Vector) {
			return c.Vector[i], true
		}
	}
	return 0, false
}

// WithScore returns a copy of the candidate carrying the given score.
// The receiver is left untouched.
func (c Candidate) WithScore(sb ScoreBreakdown, fidelity int) Candidate {
	out := c
	out.Vector = append([]float64(nil), c.Vector...)
	out.Score = &sb
	out.Fidelity = fidelity
	return out
}

// ScoreBreakdown holds the four component metrics, max drawdown and the
// composite score for one backtest evaluation.
type ScoreBreakdown struct {
	Sortino      float64 `json:"sortino"`
	Calmar       float64 `json:"calmar"`
	ProfitFactor float64 `json:"profit_factor"`
	SQN          float64 `json:"sqn"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Composite    float64 `json:"composite"`
	Trades       int     `json:"trades"`
}

// CompositeScore computes the run's weighted composite:
// 0.35*Sortino + 0.25*Calmar + 0.20*PF + 0.20*SQN - lambda*MaxDD.
// Lambda is a required run input in [0.5, 1.0].
func CompositeScore(sb ScoreBreakdown, lambda float64) float64 {
	score := 0.35*sb.Sortino + 0.25*sb.Calmar + 0.20*sb.ProfitFactor + 0.20*sb.SQN - lambda*sb.MaxDrawdown
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return -math.MaxFloat64
	}
	return score
}

// FoldResult is the evaluation of one purged K-fold held-out fold.
// The embargo gap guarantees the test window and the training window
// around it share no timestamps.
type FoldResult struct {
	Fold        int            `json:"fold"`
	TrainStart  int            `json:"train_start"`
	TrainEnd    int            `json:"train_end"` // exclusive, already embargo-trimmed
	TestStart   int            `json:"test_start"`
	TestEnd     int            `json:"test_end"` // exclusive
	EmbargoBars int            `json:"embargo_bars"`
	Score       ScoreBreakdown `json:"score"`
	Trades      int            `json:"trades"`
}

// WalkForwardSlice is one rolling train/test window pair. OOS metrics are
// computed strictly from the test window with parameters fit on the train
// window only.
type WalkForwardSlice struct {
	Slice       int            `json:"slice"`
	TrainStart  int            `json:"train_start"`
	TrainEnd    int            `json:"train_end"`
	TestStart   int            `json:"test_start"`
	TestEnd     int            `json:"test_end"`
	SliceParams []float64      `json:"slice_params"` // slice-optimal vector (not necessarily the promoted one)
	OOS         ScoreBreakdown `json:"oos"`
}

// WalkForwardSummary aggregates slice OOS metrics with the median, IQR as
// the secondary tie-break.
type WalkForwardSummary struct {
	Slices      []WalkForwardSlice `json:"slices"`
	MedianScore ScoreBreakdown     `json:"median_score"`
	ScoreIQR    float64            `json:"score_iqr"`
	TotalTrades int                `json:"total_trades"`
	Accepted    bool               `json:"accepted"`
	RejectNote  string             `json:"reject_note,omitempty"`
}

// Median returns the median of xs. Empty input returns 0.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// IQR returns the inter-quartile range of xs using linear interpolation.
func IQR(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return quantileSorted(s, 0.75) - quantileSorted(s, 0.25)
}

func quantileSorted(s []float64, q float64) float64 {
	if len(s) == 1 {
		return s[0]
	}
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	frac := pos - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac
}
