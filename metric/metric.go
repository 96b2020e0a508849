// Package metric computes the summary statistics a backtest report
// needs beyond raw trade counting: Sharpe ratio, max drawdown, and a
// bootstrap confidence interval on a trade statistic.
package metric

import (
	"math"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Sharpe computes the annualized Sharpe ratio of a return series
// (simple, not log returns), given the number of periods per year
// used to annualize. Returns 0 if fewer than 2 points or the series
// has zero variance.
func Sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 {
		return 0
	}
	return (mean / stdDev) * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns the largest peak-to-trough decline observed in
// an equity curve, as a positive value in the curve's own units.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// ProfitFactor is gross profit divided by gross loss (absolute), or 0
// when there is no loss to divide by and no profit either.
func ProfitFactor(pnls []float64) float64 {
	var grossProfit, grossLoss float64
	for _, p := range pnls {
		if p >= 0 {
			grossProfit += p
		} else {
			grossLoss += -p
		}
	}
	if grossLoss == 0 {
		if grossProfit == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return grossProfit / grossLoss
}

// BootstrapInterval is the confidence interval computed over resampled
// measures of a trade statistic (win rate, mean P&L, ...).
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	StdDev float64
	Mean   float64
}

// Bootstrap resamples `values` with replacement `sampleSize` times,
// applies `measure` to each resample, and reports the resulting
// confidence interval at the given level.
func Bootstrap(values []float64, measure func([]float64) float64, sampleSize int, confidence float64) BootstrapInterval {
	if len(values) == 0 {
		return BootstrapInterval{}
	}

	data := make([]float64, 0, sampleSize)
	for i := 0; i < sampleSize; i++ {
		sample := make([]float64, len(values))
		for j := range values {
			sample[j] = lo.Sample(values)
		}
		data = append(data, measure(sample))
	}

	tail := 1 - confidence
	sort.Float64s(data)

	mean, stdDev := stat.MeanStdDev(data, nil)
	upper := stat.Quantile(1-tail/2, stat.LinInterp, data, nil)
	lower := stat.Quantile(tail/2, stat.LinInterp, data, nil)

	return BootstrapInterval{Lower: lower, Upper: upper, StdDev: stdDev, Mean: mean}
}

// MeanOf is a measure function for Bootstrap: the sample mean.
func MeanOf(values []float64) float64 {
	return stat.Mean(values, nil)
}

// WinRateOf is a measure function for Bootstrap: the fraction of
// non-negative values in the sample.
func WinRateOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	wins := 0
	for _, v := range values {
		if v >= 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(values))
}
