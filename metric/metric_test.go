package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 30.0, MaxDrawdown([]float64{100, 120, 90, 110, 95}))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{100, 110, 120}))
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}

func TestProfitFactor(t *testing.T) {
	assert.Equal(t, 2.0, ProfitFactor([]float64{100, 100, -100}))
	assert.Equal(t, 0.0, ProfitFactor(nil))
	assert.True(t, math.IsInf(ProfitFactor([]float64{100, 50}), 1), "no losses at all is an infinite profit factor")
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{1}, 252))
	assert.Equal(t, 0.0, Sharpe([]float64{1, 1, 1}, 252), "zero variance yields 0, not NaN/Inf")
	assert.Greater(t, Sharpe([]float64{1, 2, 3, -1, 2}, 252), 0.0)
}

func TestMeanOfAndWinRateOf(t *testing.T) {
	assert.InDelta(t, 2.0, MeanOf([]float64{1, 2, 3}), 1e-9)
	assert.Equal(t, 0.5, WinRateOf([]float64{10, -5, 0, -3}))
	assert.Equal(t, 0.0, WinRateOf(nil))
}

func TestBootstrap_IntervalIsInternallyConsistent(t *testing.T) {
	values := []float64{10, -5, 20, -15, 8, 3, -2, 12}
	result := Bootstrap(values, MeanOf, 500, 0.95)
	assert.LessOrEqual(t, result.Lower, result.Mean)
	assert.GreaterOrEqual(t, result.Upper, result.Mean)
	assert.GreaterOrEqual(t, result.StdDev, 0.0)
}

func TestBootstrap_EmptyInput(t *testing.T) {
	assert.Equal(t, BootstrapInterval{}, Bootstrap(nil, MeanOf, 100, 0.95))
}
