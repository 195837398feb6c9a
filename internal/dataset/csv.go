package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stratforge/optimizer/internal/logger"
)

var csvLogger = logger.GetForComponent("dataset_loader")

// LoadCSV reads a bar history from a CSV file. The first five columns
// after the timestamp must be open, high, low, close, volume; any further
// columns are loaded as named indicator arrays aligned by index.
//
// Expected header: timestamp,open,high,low,close,volume[,indicator...]
func LoadCSV(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) < 6 {
		return nil, fmt.Errorf("dataset %s: need at least 6 columns (timestamp,o,h,l,c,v), got %d", path, len(header))
	}
	for i, want := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, fmt.Errorf("dataset %s: column %d is %q, want %q", path, i, header[i], want)
		}
	}
	indicatorNames := make([]string, 0, len(header)-6)
	for _, name := range header[6:] {
		indicatorNames = append(indicatorNames, strings.TrimSpace(name))
	}

	var (
		times                        []int64
		open, high, low, closes, vol []float64
		indicators                   = make(map[string][]float64, len(indicatorNames))
	)
	for _, name := range indicatorNames {
		indicators[name] = nil
	}

	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", path, line+1, err)
		}
		line++
		if len(rec) != len(header) {
			return nil, fmt.Errorf("dataset %s line %d: %d fields, want %d", path, line, len(rec), len(header))
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dataset %s line %d: bad timestamp: %w", path, line, err)
		}
		vals := make([]float64, len(rec)-1)
		for i := 1; i < len(rec); i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("dataset %s line %d col %d: %w", path, line, i, err)
			}
			vals[i-1] = v
		}
		times = append(times, ts)
		open = append(open, vals[0])
		high = append(high, vals[1])
		low = append(low, vals[2])
		closes = append(closes, vals[3])
		vol = append(vol, vals[4])
		for j, name := range indicatorNames {
			indicators[name] = append(indicators[name], vals[5+j])
		}
	}

	h, err := New(times, open, high, low, closes, vol, indicators)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}

	csvLogger.Info().
		Str("path", path).
		Int("bars", h.NumBars()).
		Int("indicators", len(indicatorNames)).
		Msg("Dataset loaded")

	return h, nil
}
