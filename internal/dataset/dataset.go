/*

This file contains the read-only dataset handle shared by all pipeline
stages. Bars and indicator columns are columnar, aligned by index, and
never copied or mutated during a run; windows are index ranges into the
same arrays.

*/

package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyDataset     = errors.New("dataset contains no bars")
	ErrColumnMismatch   = errors.New("indicator column length does not match bar count")
	ErrUnorderedBars    = errors.New("bar timestamps are not strictly increasing")
	ErrUnknownIndicator = errors.New("unknown indicator column")
)

// Handle is the read-only view of the full backtest history: OHLCV bars
// plus precomputed indicator columns aligned by index.
type Handle struct {
	Times  []int64 // close time, unix milliseconds, strictly increasing
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	indicators map[string][]float64
}

// New validates the columns and wraps them in a Handle. The arrays are
// retained, not copied; callers hand over ownership.
func New(times []int64, open, high, low, close, volume []float64, indicators map[string][]float64) (*Handle, error) {
	n := len(times)
	if n == 0 {
		return nil, ErrEmptyDataset
	}
	for name, col := range map[string][]float64{
		"open": open, "high": high, "low": low, "close": close, "volume": volume,
	} {
		if len(col) != n {
			return nil, fmt.Errorf("%w: %s has %d rows, want %d", ErrColumnMismatch, name, len(col), n)
		}
	}
	for name, col := range indicators {
		if len(col) != n {
			return nil, fmt.Errorf("%w: indicator %s has %d rows, want %d", ErrColumnMismatch, name, len(col), n)
		}
	}
	for i := 1; i < n; i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("%w: index %d", ErrUnorderedBars, i)
		}
	}
	if indicators == nil {
		indicators = map[string][]float64{}
	}
	return &Handle{
		Times: times, Open: open, High: high, Low: low, Close: close, Volume: volume,
		indicators: indicators,
	}, nil
}

// NumBars returns the total bar count.
func (h *Handle) NumBars() int {
	return len(h.Times)
}

// Indicator returns a precomputed indicator column by name.
func (h *Handle) Indicator(name string) ([]float64, error) {
	col, ok := h.indicators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndicator, name)
	}
	return col, nil
}

// HasIndicator reports whether a named indicator column was supplied.
func (h *Handle) HasIndicator(name string) bool {
	_, ok := h.indicators[name]
	return ok
}

// Window is a half-open index range [Start, End) plus the warmup history
// needed before Start so indicators are computed from real data.
type Window struct {
	Start  int
	End    int
	Warmup int
}

// Len returns the number of tradeable bars in the window.
func (w Window) Len() int {
	return w.End - w.Start
}

// Clamp bounds the window to the handle's index range.
func (w Window) Clamp(h *Handle) Window {
	out := w
	if out.Start < 0 {
		out.Start = 0
	}
	if out.End > h.NumBars() {
		out.End = h.NumBars()
	}
	if out.Start > out.End {
		out.Start = out.End
	}
	return out
}

// Full returns a window covering the entire history.
func Full(h *Handle, warmup int) Window {
	return Window{Start: warmup, End: h.NumBars(), Warmup: warmup}
}

// Tail returns a window over the most recent n bars, used for fidelity
// truncation during the global search ladder.
func Tail(h *Handle, n, warmup int) (Window, error) {
	if n+warmup > h.NumBars() {
		return Window{}, fmt.Errorf("tail of %d bars (+%d warmup) exceeds %d available", n, warmup, h.NumBars())
	}
	start := h.NumBars() - n
	return Window{Start: start, End: h.NumBars(), Warmup: warmup}, nil
}
