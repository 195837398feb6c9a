package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func column(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i)
	}
	return out
}

func timeColumn(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i+1) * 60000
	}
	return out
}

// TestNew_ValidatesColumns covers the constructor's rejection paths.
func TestNew_ValidatesColumns(t *testing.T) {
	n := 10
	c := column(n, 100)

	_, err := New(nil, nil, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = New(timeColumn(n), c, c, c, c, column(n-1, 0), nil)
	assert.ErrorIs(t, err, ErrColumnMismatch)

	_, err = New(timeColumn(n), c, c, c, c, c, map[string][]float64{"atr": column(n+2, 0)})
	assert.ErrorIs(t, err, ErrColumnMismatch)

	times := timeColumn(n)
	times[5] = times[4] // duplicate timestamp
	_, err = New(times, c, c, c, c, c, nil)
	assert.ErrorIs(t, err, ErrUnorderedBars)
}

// TestHandle_Indicators covers lookup and the unknown-column error.
func TestHandle_Indicators(t *testing.T) {
	n := 8
	c := column(n, 1)
	h, err := New(timeColumn(n), c, c, c, c, c, map[string][]float64{"vol_rank": column(n, 0)})
	require.NoError(t, err)

	assert.True(t, h.HasIndicator("vol_rank"))
	assert.False(t, h.HasIndicator("atr"))

	col, err := h.Indicator("vol_rank")
	require.NoError(t, err)
	assert.Len(t, col, n)

	_, err = h.Indicator("atr")
	assert.ErrorIs(t, err, ErrUnknownIndicator)
}

// TestTail_FidelityTruncation verifies the tail window covers exactly
// the most recent n bars and rejects requests beyond the history.
func TestTail_FidelityTruncation(t *testing.T) {
	n := 100
	c := column(n, 50)
	h, err := New(timeColumn(n), c, c, c, c, c, nil)
	require.NoError(t, err)

	w, err := Tail(h, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, 70, w.Start)
	assert.Equal(t, 100, w.End)
	assert.Equal(t, 30, w.Len())

	_, err = Tail(h, 90, 20)
	assert.Error(t, err)
}

// TestWindow_Clamp verifies out-of-range windows snap to the handle.
func TestWindow_Clamp(t *testing.T) {
	n := 50
	c := column(n, 10)
	h, err := New(timeColumn(n), c, c, c, c, c, nil)
	require.NoError(t, err)

	w := Window{Start: -5, End: 500}.Clamp(h)
	assert.Equal(t, 0, w.Start)
	assert.Equal(t, 50, w.End)

	w = Window{Start: 60, End: 55}.Clamp(h)
	assert.Equal(t, w.Start, w.End)
}

// TestLoadCSV_RoundTrip writes a small file and reads it back,
// indicator column included.
func TestLoadCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	content := "timestamp,open,high,low,close,volume,vol_rank\n" +
		"60000,100,101,99,100.5,1000,0.5\n" +
		"120000,100.5,102,100,101.5,1100,0.6\n" +
		"180000,101.5,103,101,102.5,1200,0.7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	h, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 3, h.NumBars())
	assert.Equal(t, int64(120000), h.Times[1])
	assert.InDelta(t, 101.5, h.Close[1], 1e-12)

	col, err := h.Indicator("vol_rank")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, col[2], 1e-12)
}

// TestLoadCSV_RejectsBadHeader verifies the column contract is
// enforced up front.
func TestLoadCSV_RejectsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,o,h,l,c,v\n"), 0644))

	_, err := LoadCSV(path)
	assert.Error(t, err)
}

// TestATR_WarmupAndPositivity verifies the smoothing produces positive
// values once warmed up.
func TestATR_WarmupAndPositivity(t *testing.T) {
	n := 60
	open := column(n, 100)
	closes := column(n, 100)
	high := make([]float64, n)
	low := make([]float64, n)
	for i := range high {
		high[i] = closes[i] + 1
		low[i] = closes[i] - 1
	}
	h, err := New(timeColumn(n), open, high, low, closes, column(n, 1000), nil)
	require.NoError(t, err)

	atr := ATR(h, 14)
	require.Len(t, atr, n)
	assert.Greater(t, atr[30], 0.0)
}
