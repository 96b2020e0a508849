package core

import "golang.org/x/exp/constraints"

// MaxOf returns the largest value in a non-empty slice.
func MaxOf[T constraints.Ordered](values []T) T {
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

// MinOf returns the smallest value in a non-empty slice.
func MinOf[T constraints.Ordered](values []T) T {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

// Highs extracts the high of each bar.
func (b Bars) Highs() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.High
	}
	return out
}

// Lows extracts the low of each bar.
func (b Bars) Lows() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Low
	}
	return out
}

// Closes extracts the close of each bar.
func (b Bars) Closes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Close
	}
	return out
}
