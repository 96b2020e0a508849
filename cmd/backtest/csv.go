package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pohanwww/auto-trade/core"
)

// loadCSVBars reads a "time,open,high,low,close,volume" CSV file into
// a Bars sequence. Rows outside [start, end] (when non-zero) are
// dropped.
func loadCSVBars(path, symbol string, start, end time.Time) (core.Bars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read bars file: %w", err)
	}

	bars := make(core.Bars, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		t, err := parseBarTime(row[0])
		if err != nil {
			continue
		}
		if !start.IsZero() && t.Before(start) {
			continue
		}
		if !end.IsZero() && t.After(end) {
			continue
		}

		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		closePrice, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)

		bars = append(bars, core.Bar{
			Symbol: symbol,
			Time:   t,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return bars, nil
}

func parseBarTime(s string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
