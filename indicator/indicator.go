package indicator

import (
	"time"

	"github.com/pohanwww/auto-trade/core"
)

func toOHLC(bars core.Bars) []barOHLC {
	out := make([]barOHLC, len(bars))
	for i, b := range bars {
		out[i] = barOHLC{High: b.High, Low: b.Low, Close: b.Close}
	}
	return out
}

func closes(bars core.Bars) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// EMAFromBars is EMA over bar closes.
func EMAFromBars(bars core.Bars, period int) float64 {
	return EMA(closes(bars), period)
}

// MACDFromBars is MACD over bar closes.
func MACDFromBars(bars core.Bars, fast, slow, signal int) []MACDData {
	return MACD(closes(bars), fast, slow, signal)
}

// ADXFromBars computes ADX(period) over a bar sequence, Wilder-smoothed.
func ADXFromBars(bars core.Bars, period int) (float64, bool) {
	return ADX(toOHLC(bars), period)
}

// ATRFromBars computes ATR(period) over a bar sequence, Wilder-smoothed.
func ATRFromBars(bars core.Bars, period int) (float64, bool) {
	return ATR(toOHLC(bars), period)
}

// BollingerFromBars computes Bollinger Bands over bar closes.
func BollingerFromBars(bars core.Bars, period int, numStd float64) (upper, middle, lower float64, ok bool) {
	return BollingerBands(closes(bars), period, numStd)
}

// CheckGoldenCross reports a confirmed MACD golden cross: the
// second-to-last data point crosses from <= signal to > signal,
// checked against the last three points so the crossing bar itself is
// always fully confirmed (never the forming bar). If minStrength > 0,
// also requires |macd - signal| >= minStrength at the crossing bar.
func CheckGoldenCross(macd []MACDData, minStrength float64) bool {
	if len(macd) < 3 {
		return false
	}
	latest := macd[len(macd)-3:]
	current, previous := latest[1], latest[0]

	crossed := previous.MACDLine <= previous.SignalLine && current.MACDLine > current.SignalLine
	if !crossed {
		return false
	}
	if minStrength <= 0 {
		return true
	}
	strength := current.MACDLine - current.SignalLine
	if strength < 0 {
		strength = -strength
	}
	return strength >= minStrength
}

// CheckDeathCross is the mirror of CheckGoldenCross: a confirmed cross
// from >= signal to < signal, optionally gated on acceleration
// (the change in (macd-signal) between the two confirmed points).
func CheckDeathCross(macd []MACDData, minAcceleration float64) bool {
	if len(macd) < 3 {
		return false
	}
	latest := macd[len(macd)-3:]
	current, previous := latest[1], latest[0]

	crossed := previous.MACDLine >= previous.SignalLine && current.MACDLine < current.SignalLine
	if !crossed {
		return false
	}
	if minAcceleration <= 0 {
		return true
	}
	prevDiff := previous.MACDLine - previous.SignalLine
	currDiff := current.MACDLine - current.SignalLine
	accel := currDiff - prevDiff
	if accel < 0 {
		accel = -accel
	}
	return accel >= minAcceleration
}

// SessionVWAP computes the volume-weighted average of typical prices
// ((H+L+C)/3) over the current calendar day's bars restricted to
// [sessionStart, sessionEnd). Returns (0, false) on zero volume or no
// matching bars.
func SessionVWAP(bars core.Bars, sessionStart, sessionEnd time.Duration) (float64, bool) {
	if len(bars) == 0 {
		return 0, false
	}
	latestDate := bars[len(bars)-1].Time

	var totalTPVol, totalVol float64
	for _, bar := range bars {
		if !sameDate(bar.Time, latestDate) {
			continue
		}
		tod := timeOfDay(bar.Time)
		if tod < sessionStart || tod >= sessionEnd {
			continue
		}
		tp := (bar.High + bar.Low + bar.Close) / 3.0
		vol := bar.Volume
		totalTPVol += tp * vol
		totalVol += vol
	}
	if totalVol == 0 {
		return 0, false
	}
	return totalTPVol / totalVol, true
}

// RVOL is current-bar volume divided by the mean of the previous
// `lookback` positive-volume bars. Uses the latest bar in the slice
// (callers pass a confirmed-only slice when look-ahead must be
// avoided).
func RVOL(bars core.Bars, lookback int) (float64, bool) {
	if len(bars) < lookback+1 {
		return 0, false
	}
	recent := bars[len(bars)-(lookback+1):]
	currentVol := recent[len(recent)-1].Volume
	if currentVol <= 0 {
		return 0, false
	}

	var sum float64
	var n int
	for _, b := range recent[:len(recent)-1] {
		if b.Volume > 0 {
			sum += b.Volume
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	avg := sum / float64(n)
	if avg <= 0 {
		return 0, false
	}
	return currentVol / avg, true
}

// VolumePercentile is, for the confirmed last bar (index -2), the
// fraction of the prior `lookback` bars with strictly smaller volume.
func VolumePercentile(bars core.Bars, lookback int) (float64, bool) {
	if len(bars) < lookback+2 {
		return 0, false
	}
	recent := bars[len(bars)-(lookback+2):]
	current := recent[len(recent)-2]
	if current.Volume == 0 {
		return 0, false
	}

	history := recent[:len(recent)-2]
	var countBelow, total int
	for _, b := range history {
		if b.Volume <= 0 {
			continue
		}
		total++
		if b.Volume < current.Volume {
			countBelow++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(countBelow) / float64(total), true
}

// CandleStrength is the close price's relative position within the
// bar's range: 1.0 = closed at the high (bullish), 0.0 = closed at the
// low (bearish). 0.5 when high == low.
func CandleStrength(bar core.Bar) float64 {
	rng := bar.High - bar.Low
	if rng <= 0 {
		return 0.5
	}
	return (bar.Close - bar.Low) / rng
}

// IsHammer reports a hammer (long) or shooting-star (short) pattern:
// a long shadow on the side opposite the trade direction relative to
// the candle body, scaled by whether the body itself closed in the
// shadow's favor. minShadowPoints filters noise on tiny bars.
func IsHammer(bar core.Bar, long bool, minShadowPoints float64) bool {
	body := bar.Open - bar.Close
	if body < 0 {
		body = -body
	}

	if long {
		lowerShadow := min(bar.Open, bar.Close) - bar.Low
		if lowerShadow <= minShadowPoints {
			return false
		}
		if bar.Close <= bar.Open {
			return lowerShadow >= body*2
		}
		return lowerShadow >= body*1.5
	}

	upperShadow := bar.High - max(bar.Open, bar.Close)
	if upperShadow <= minShadowPoints {
		return false
	}
	if bar.Close >= bar.Open {
		return upperShadow >= body*2
	}
	return upperShadow >= body*1.5
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}
