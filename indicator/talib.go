// Package indicator holds pure, stateless functions over bar
// sequences. Where go-talib already implements an indicator (EMA,
// MACD, ADX, ATR, Bollinger Bands) this package is a thin
// pass-through; session VWAP, RVOL, volume percentile, candle strength
// and the golden/death-cross helpers are hand-written.
package indicator

import "github.com/markcheno/go-talib"

// MaType re-exports talib's moving-average type selector.
type MaType = talib.MaType

const (
	TypeSMA = talib.SMA
	TypeEMA = talib.EMA
)

// EMASeries returns the exponential moving average of close prices.
func EMASeries(closes []float64, period int) []float64 {
	return talib.Ema(closes, period)
}

// EMA returns the latest EMA value, or 0 if insufficient data.
func EMA(closes []float64, period int) float64 {
	series := EMASeries(closes, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// MACDData is one bar's MACD triple.
type MACDData struct {
	MACDLine   float64
	SignalLine float64
	Histogram  float64
}

// MACD computes MACD/signal/histogram series from close prices.
func MACD(closes []float64, fast, slow, signal int) []MACDData {
	macdLine, signalLine, hist := talib.Macd(closes, fast, slow, signal)
	out := make([]MACDData, len(macdLine))
	for i := range macdLine {
		out[i] = MACDData{MACDLine: macdLine[i], SignalLine: signalLine[i], Histogram: hist[i]}
	}
	return out
}

// ADX computes Wilder-smoothed Average Directional Index. Returns
// (value, true) if the sequence has at least period*3 bars, else
// (0, false).
func ADX(bars []barOHLC, period int) (float64, bool) {
	if len(bars) < period*3 {
		return 0, false
	}
	highs, lows, closes := split(bars)
	series := talib.Adx(highs, lows, closes, period)
	v := series[len(series)-1]
	if v == 0 {
		return 0, false
	}
	return v, true
}

// ATR computes Wilder-smoothed Average True Range. Returns (value,
// true) if there are at least period+1 bars.
func ATR(bars []barOHLC, period int) (float64, bool) {
	if len(bars) < period+1 {
		return 0, false
	}
	highs, lows, closes := split(bars)
	series := talib.Atr(highs, lows, closes, period)
	v := series[len(series)-1]
	if v == 0 {
		return 0, false
	}
	return v, true
}

// BollingerBands computes (upper, middle, lower) from the last `period`
// closes with `numStd` standard deviations, or false if insufficient data.
func BollingerBands(closes []float64, period int, numStd float64) (upper, middle, lower float64, ok bool) {
	if len(closes) < period {
		return 0, 0, 0, false
	}
	window := closes[len(closes)-period:]
	u, m, l := talib.BBands(window, period, numStd, numStd, TypeSMA)
	n := len(u)
	if n == 0 {
		return 0, 0, 0, false
	}
	return u[n-1], m[n-1], l[n-1], true
}

// barOHLC is the minimal shape ADX/ATR need; kept unexported so callers
// pass core.Bars directly via the FromBars adapters.
type barOHLC struct {
	High, Low, Close float64
}

func split(bars []barOHLC) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	return
}
