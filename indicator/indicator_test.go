package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pohanwww/auto-trade/core"
)

func md(macdLine, signalLine float64) MACDData {
	return MACDData{MACDLine: macdLine, SignalLine: signalLine}
}

// CheckGoldenCross/CheckDeathCross must depend only on the last three
// points: a cross buried earlier in the series, with the last three
// points flat, must not be reported.
func TestCheckGoldenCross_OnlyLooksAtLastThreePoints(t *testing.T) {
	series := []MACDData{
		md(-5, -1),
		md(-1, -5), // crossed up here, far outside the examined window
		md(1, 5),
		md(2, 2), // flat since
		md(2, 2),
	}
	assert.False(t, CheckGoldenCross(series, 0), "a cross outside the last three points must not register")
}

func TestCheckGoldenCross_ConfirmedCross(t *testing.T) {
	series := []MACDData{
		md(-3, -1),
		md(-1, 0),   // previous confirmed: macd <= signal
		md(2, 0),    // confirmed (index -2): macd > signal -> golden cross
		md(2.5, 1),  // forming bar, must not be what the cross reads
	}
	assert.True(t, CheckGoldenCross(series, 0))
}

func TestCheckGoldenCross_IgnoresFormingBar(t *testing.T) {
	series := []MACDData{
		md(-1, 0), // previous confirmed: below
		md(-1, 0), // confirmed: still below -> no cross yet
		md(2, 0),  // only the forming bar crossed
	}
	assert.False(t, CheckGoldenCross(series, 0), "a cross on the forming bar alone must not register")
}

func TestCheckGoldenCross_RequiresMinStrength(t *testing.T) {
	series := []MACDData{
		md(-1, 0),
		md(0.1, 0), // confirmed cross, but barely
		md(0.2, 0), // forming
	}
	assert.True(t, CheckGoldenCross(series, 0))
	assert.False(t, CheckGoldenCross(series, 1.0), "weak crossing must fail a strength gate")
}

func TestCheckDeathCross_ConfirmedCross(t *testing.T) {
	series := []MACDData{
		md(1, 0),   // previous confirmed: macd >= signal
		md(-2, 0),  // confirmed: macd < signal -> death cross
		md(-1, -1), // forming
	}
	assert.True(t, CheckDeathCross(series, 0))
	assert.False(t, CheckGoldenCross(series, 0))
}

func TestCheckCross_TooFewPoints(t *testing.T) {
	series := []MACDData{md(1, 0), md(-1, 0)}
	assert.False(t, CheckGoldenCross(series, 0))
	assert.False(t, CheckDeathCross(series, 0))
}

func TestCandleStrength(t *testing.T) {
	assert.Equal(t, 1.0, CandleStrength(core.Bar{High: 110, Low: 100, Close: 110}))
	assert.Equal(t, 0.0, CandleStrength(core.Bar{High: 110, Low: 100, Close: 100}))
	assert.Equal(t, 0.5, CandleStrength(core.Bar{High: 110, Low: 100, Close: 105}))
	assert.Equal(t, 0.5, CandleStrength(core.Bar{High: 100, Low: 100, Close: 100}), "zero range defaults to neutral")
}

func TestRVOL(t *testing.T) {
	bars := core.Bars{
		{Volume: 100}, {Volume: 100}, {Volume: 100}, {Volume: 100}, // 4-bar lookback history
		{Volume: 400}, // current bar: 4x the average
	}
	rvol, ok := RVOL(bars, 4)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, rvol, 1e-9)
}

func TestRVOL_InsufficientBars(t *testing.T) {
	_, ok := RVOL(core.Bars{{Volume: 100}}, 4)
	assert.False(t, ok)
}

func TestVolumePercentile(t *testing.T) {
	bars := core.Bars{
		{Volume: 10}, {Volume: 20}, {Volume: 30}, // history
		{Volume: 25}, // confirmed bar under test (index -2)
		{Volume: 999}, // forming bar, excluded
	}
	pct, ok := VolumePercentile(bars, 3)
	require := assert.New(t)
	require.True(ok)
	require.InDelta(2.0/3.0, pct, 1e-9)
}

func TestSessionVWAP_FiltersToSessionAndDate(t *testing.T) {
	day := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	bars := core.Bars{
		{Time: day.Add(8 * time.Hour), High: 100, Low: 100, Close: 100, Volume: 1},  // before session
		{Time: day.Add(9 * time.Hour), High: 110, Low: 90, Close: 100, Volume: 10},  // in session
		{Time: day.Add(10 * time.Hour), High: 120, Low: 110, Close: 115, Volume: 10}, // in session
		{Time: day.Add(14 * time.Hour), High: 200, Low: 200, Close: 200, Volume: 100}, // after session
	}
	vwap, ok := SessionVWAP(bars, 9*time.Hour, 12*time.Hour)
	assert.True(t, ok)
	assert.Greater(t, vwap, 0.0)
	assert.Less(t, vwap, 150.0, "must exclude the after-session outlier bar")
}
