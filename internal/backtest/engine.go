/*

This file contains the backtest engine. One evaluation is a pure function
of (dataset, window, params, execution model): entries fire on the bar
after the signal, stops are checked before targets, and per-trade returns
are R-multiples scaled by a fixed risk fraction. Nothing here mutates the
dataset, so evaluations run concurrently without locking.

*/

package backtest

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/stratforge/optimizer/internal/dataset"
)

// riskFraction is the fixed per-trade equity fraction the engine risks
// when converting R-multiples into equity returns. Position sizing for
// live capital is the sizer's job, not the engine's.
const riskFraction = 0.01

var ErrWindowTooSmall = errors.New("window too small for strategy warmup")

// ExecModel describes execution costs. Noise is nil for deterministic
// evaluation and set by the Monte Carlo execution-perturbation mode.
type ExecModel struct {
	FeeBps      float64
	SlippageBps float64
	SpreadBps   float64
	Noise       *ExecNoise
}

// ExecNoise injects randomized slippage and spread-widening events.
type ExecNoise struct {
	SlippageStdBps  float64
	SpreadEventProb float64
	SpreadEventBps  float64
	Rng             *rand.Rand
}

// DefaultExec mirrors the historical cost assumptions of the live venue.
var DefaultExec = ExecModel{FeeBps: 4, SlippageBps: 2, SpreadBps: 1}

// ExitReason records how a trade was closed.
type ExitReason string

const (
	ExitStop   ExitReason = "stop"
	ExitTarget ExitReason = "target"
	ExitTime   ExitReason = "time"
	ExitWindow ExitReason = "window_end"
)

// Trade is one completed round trip.
type Trade struct {
	EntryIdx   int
	ExitIdx    int
	EntryPrice float64
	ExitPrice  float64
	Return     float64 // equity-fraction return of this trade
	Reason     ExitReason
}

// HoldBars returns how long the trade was open.
func (t Trade) HoldBars() int {
	return t.ExitIdx - t.EntryIdx
}

// Result is the full outcome of one evaluation.
type Result struct {
	Trades       []Trade
	Returns      []float64 // per-trade returns, same order as Trades
	Equity       []float64 // compounded per-trade equity, starts at 1.0
	MeanHoldBars float64
}

// Evaluate runs the strategy over the window. The window must leave
// enough history before Start for the breakout channel and ATR warmup.
func Evaluate(h *dataset.Handle, w dataset.Window, p Params, exec ExecModel) (Result, error) {
	w = w.Clamp(h)
	warmup := p.Lookback
	if p.ATRLen > warmup {
		warmup = p.ATRLen
	}
	if w.Start < warmup+1 {
		w.Start = warmup + 1
	}
	if w.End-w.Start < 2 {
		return Result{}, fmt.Errorf("%w: [%d, %d) with warmup %d", ErrWindowTooSmall, w.Start, w.End, warmup)
	}

	atr := dataset.ATR(h, p.ATRLen)
	volRank := volatilityRank(h, p)

	var res Result
	inPosition := false
	var entryPrice, stopPrice, targetPrice, stopDistance float64
	var entryIdx int

	closeTrade := func(exitIdx int, rawExit float64, reason ExitReason) {
		exitPrice := applyCosts(rawExit, exec, false)
		r := (exitPrice - entryPrice) / stopDistance // R-multiple
		ret := r * riskFraction
		res.Trades = append(res.Trades, Trade{
			EntryIdx: entryIdx, ExitIdx: exitIdx,
			EntryPrice: entryPrice, ExitPrice: exitPrice,
			Return: ret, Reason: reason,
		})
		res.Returns = append(res.Returns, ret)
		inPosition = false
	}

	pendingEntry := false
	for t := w.Start; t < w.End; t++ {
		if inPosition {
			// Stops are checked before targets within a bar: the
			// conservative assumption when both levels are touched.
			switch {
			case h.Low[t] <= stopPrice:
				closeTrade(t, stopPrice, ExitStop)
			case h.High[t] >= targetPrice:
				closeTrade(t, targetPrice, ExitTarget)
			case t-entryIdx >= p.TimeStopBars:
				closeTrade(t, h.Close[t], ExitTime)
			}
			continue
		}

		if pendingEntry {
			pendingEntry = false
			a := atr[t-1]
			if a <= 0 {
				continue
			}
			entryPrice = applyCosts(h.Open[t], exec, true)
			stopDistance = p.StopATRMult * a
			stopPrice = entryPrice - stopDistance
			targetPrice = entryPrice + p.TargetR*stopDistance
			entryIdx = t
			inPosition = true
			continue
		}

		// Breakout signal: close above the highest high of the previous
		// Lookback bars, gated by the volatility-rank regime filter.
		// Entry executes at the next bar's open.
		if volRank[t] < p.MinVolRank {
			continue
		}
		if h.Close[t] > highestHigh(h, t-p.Lookback, t) && t+1 < w.End {
			pendingEntry = true
		}
	}

	// A position still open at the window edge is closed at the last
	// close so the test window's metrics include it.
	if inPosition {
		closeTrade(w.End-1, h.Close[w.End-1], ExitWindow)
	}

	res.Equity = make([]float64, len(res.Returns)+1)
	res.Equity[0] = 1.0
	for i, r := range res.Returns {
		res.Equity[i+1] = res.Equity[i] * (1 + r)
	}
	if len(res.Trades) > 0 {
		total := 0
		for _, tr := range res.Trades {
			total += tr.HoldBars()
		}
		res.MeanHoldBars = float64(total) / float64(len(res.Trades))
	}
	return res, nil
}

// applyCosts shifts the fill price against the trader by fees, slippage
// and half the spread, optionally randomized by the noise model.
func applyCosts(price float64, exec ExecModel, isEntry bool) float64 {
	slip := exec.SlippageBps
	spread := exec.SpreadBps
	if n := exec.Noise; n != nil && n.Rng != nil {
		slip += n.SlippageStdBps * n.Rng.NormFloat64()
		if slip < 0 {
			slip = 0
		}
		if n.Rng.Float64() < n.SpreadEventProb {
			spread += n.SpreadEventBps
		}
	}
	costBps := exec.FeeBps + slip + spread/2
	if isEntry {
		return price * (1 + costBps/10000)
	}
	return price * (1 - costBps/10000)
}

func highestHigh(h *dataset.Handle, start, end int) float64 {
	if start < 0 {
		start = 0
	}
	hh := h.High[start]
	for i := start + 1; i < end; i++ {
		if h.High[i] > hh {
			hh = h.High[i]
		}
	}
	return hh
}

// volatilityRank prefers a precomputed indicator column from the data
// engine and falls back to computing one from closes.
func volatilityRank(h *dataset.Handle, p Params) []float64 {
	if col, err := h.Indicator("vol_rank"); err == nil {
		return col
	}
	vol := dataset.RollingVolatility(h, p.ATRLen*2)
	return dataset.VolatilityRank(vol, p.Lookback*10)
}
