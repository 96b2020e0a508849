// Package orb implements the Opening Range Breakout strategy: a
// dual-mode (strong-breakout / pullback-retest) state machine tracked
// independently per direction.
package orb

import (
	"sort"
	"time"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/indicator"
	"github.com/pohanwww/auto-trade/logger"
)

// BreakoutState is the per-direction state machine's current mode.
type BreakoutState int

const (
	Idle BreakoutState = iota
	WaitingPullback
	TestingLevel
)

// sessionOHLC is one session's (previous day or previous night) OHLC.
type sessionOHLC struct {
	Open, High, Low, Close float64
}

// Config parameterizes the ORB strategy.
type Config struct {
	ORBars         int    `mapstructure:"or_bars"`
	ORStartTime    string `mapstructure:"or_start_time"` // "HH:MM"
	EntryEndTime   string `mapstructure:"entry_end_time"`
	SessionEndTime string `mapstructure:"session_end_time"`

	StrongRVOL   float64 `mapstructure:"strong_rvol"`
	StrongCandle float64 `mapstructure:"strong_candle"`

	RetestTolerancePct  float64 `mapstructure:"retest_tolerance_pct"`
	PullbackTimeoutBars int     `mapstructure:"pullback_timeout_bars"`
	MinBounceStrength   float64 `mapstructure:"min_bounce_strength"`

	TPMultiplier      float64 `mapstructure:"tp_multiplier"`
	TSStartMultiplier float64 `mapstructure:"ts_start_multiplier"`
	TSDistanceRatio   float64 `mapstructure:"ts_distance_ratio"`

	LongOnly      bool     `mapstructure:"long_only"`
	UseVWAPFilter bool     `mapstructure:"use_vwap_filter"`
	ADXThreshold  *float64 `mapstructure:"adx_threshold"`
	ADXPeriod     int      `mapstructure:"adx_period"`

	UsePrevPressureFilter  bool    `mapstructure:"use_prev_pressure_filter"`
	MinPressureSpacePct    float64 `mapstructure:"min_pressure_space_pct"`
	UsePrevDirectionFilter bool    `mapstructure:"use_prev_direction_filter"`

	UseKeyLevelTrailing    bool    `mapstructure:"use_key_level_trailing"`
	KeyLevelBuffer         float64 `mapstructure:"key_level_buffer"`
	KeyLevelMinProfitPct   float64 `mapstructure:"key_level_min_profit_pct"`
	KeyLevelMinDistancePct float64 `mapstructure:"key_level_min_distance_pct"`

	UseKeyLevelTP    bool    `mapstructure:"use_key_level_tp"`
	KeyLevelTPMinPct float64 `mapstructure:"key_level_tp_min_pct"`
	UseKeyLevelTPMax bool    `mapstructure:"use_key_level_tp_max"`

	UseMomentumExit       bool    `mapstructure:"use_momentum_exit"`
	MomentumMinProfitPct  float64 `mapstructure:"momentum_min_profit_pct"`
	MomentumLookback      int     `mapstructure:"momentum_lookback"`
	MomentumWeakThreshold float64 `mapstructure:"momentum_weak_threshold"`
	MomentumMinWeakBars   int     `mapstructure:"momentum_min_weak_bars"`

	FixedTPPoints    float64 `mapstructure:"fixed_tp_points"`
	MaxEntriesPerDay int     `mapstructure:"max_entries_per_day"`

	UseEMADirection    bool `mapstructure:"use_ema_direction"`
	EMADirectionPeriod int  `mapstructure:"ema_direction_period"`

	RVOLLookback int `mapstructure:"rvol_lookback"`
}

// DefaultConfig is the baseline TXF day-session parameter set.
func DefaultConfig() Config {
	return Config{
		ORBars:              3,
		ORStartTime:         "08:45",
		EntryEndTime:        "12:30",
		SessionEndTime:      "13:45",
		StrongRVOL:          1.5,
		StrongCandle:        0.7,
		RetestTolerancePct:  0.3,
		PullbackTimeoutBars: 12,
		MinBounceStrength:   0.55,
		TPMultiplier:        2.0,
		TSStartMultiplier:   1.0,
		TSDistanceRatio:     0.5,
		ADXPeriod:           14,
		KeyLevelBuffer:      10,
		MomentumMinProfitPct: 1.0,
		MomentumLookback:     5,
		MomentumWeakThreshold: 0.45,
		MomentumMinWeakBars:   3,
		MaxEntriesPerDay:      1,
		EMADirectionPeriod:    200,
		RVOLLookback:          20,
	}
}

// Strategy is the ORB dual-mode breakout/retest state machine.
type Strategy struct {
	config Config
	log    logger.Logger

	orStart    time.Duration
	entryEnd   time.Duration
	sessionEnd time.Duration

	currentDate   time.Time
	hasDate       bool
	orHigh        float64
	orLow         float64
	orMid         float64
	orRange       float64
	orCalculated  bool
	longTrades    int
	shortTrades   int

	longState             BreakoutState
	shortState            BreakoutState
	longBarsSinceBreakout int
	shortBarsSinceBreakout int

	prevDay   *sessionOHLC
	prevNight *sessionOHLC

	dailyADX       *float64
	dailyDirection string // "long", "short", "both"
}

// New builds an ORB strategy. log may be nil.
func New(config Config, log logger.Logger) *Strategy {
	s := &Strategy{
		config:     config,
		log:        log,
		orStart:    parseTimeOfDay(config.ORStartTime),
		entryEnd:   parseTimeOfDay(config.EntryEndTime),
		sessionEnd: parseTimeOfDay(config.SessionEndTime),
	}
	s.resetDaily()
	return s
}

func (s *Strategy) Name() string { return "ORB" }

func (s *Strategy) OnPositionClosed() {}

func (s *Strategy) resetDaily() {
	s.orHigh, s.orLow, s.orMid, s.orRange = 0, 0, 0, 0
	s.orCalculated = false
	s.longTrades, s.shortTrades = 0, 0
	s.longState, s.shortState = Idle, Idle
	s.longBarsSinceBreakout, s.shortBarsSinceBreakout = 0, 0
	s.prevDay, s.prevNight = nil, nil
	s.dailyADX = nil
	s.dailyDirection = "both"
}

func parseTimeOfDay(hhmm string) time.Duration {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Strategy) isDaySession(barTime time.Time) bool {
	t := timeOfDay(barTime)
	return t >= s.orStart && t < s.sessionEnd
}

func (s *Strategy) isInTradingWindow(barTime time.Time) bool {
	return s.orCalculated && timeOfDay(barTime) <= s.entryEnd
}

// Evaluate implements strategy.Strategy.
func (s *Strategy) Evaluate(bars core.Bars, price float64, symbol string) core.Signal {
	if len(bars) < 2 {
		return core.HoldSignal(symbol, "insufficient data")
	}
	latest := bars[len(bars)-1]
	barTime := latest.Time

	if !s.hasDate || !sameDate(barTime, s.currentDate) {
		s.resetDaily()
		s.currentDate = barTime
		s.hasDate = true
	}

	if !s.isDaySession(barTime) {
		return core.HoldSignal(symbol, "outside day session")
	}

	if !s.orCalculated {
		s.tryCalculateOR(bars)
		return core.HoldSignal(symbol, "calculating opening range")
	}

	const minORRange = 10
	if s.orRange < minORRange {
		return core.HoldSignal(symbol, "OR range too small")
	}

	if s.config.ADXThreshold != nil {
		if s.dailyADX == nil || *s.dailyADX < *s.config.ADXThreshold {
			return core.HoldSignal(symbol, "ADX below threshold, ranging market")
		}
	}

	inWindow := s.isInTradingWindow(barTime)
	close := latest.Close

	if inWindow {
		allowLong := s.dailyDirection == "long" || s.dailyDirection == "both" || s.config.LongOnly
		allowShort := (s.dailyDirection == "short" || s.dailyDirection == "both") && !s.config.LongOnly

		if allowLong {
			if sig := s.updateLongState(bars, close, symbol); sig != nil {
				return *sig
			}
		}
		if allowShort {
			if sig := s.updateShortState(bars, close, symbol); sig != nil {
				return *sig
			}
		}
	}

	return core.HoldSignal(symbol, "no entry")
}

func (s *Strategy) tryCalculateOR(bars core.Bars) {
	if !s.hasDate {
		return
	}

	var todayDay core.Bars
	for _, b := range bars {
		if sameDate(b.Time, s.currentDate) && timeOfDay(b.Time) >= s.orStart && timeOfDay(b.Time) < s.sessionEnd {
			todayDay = append(todayDay, b)
		}
	}
	if len(todayDay) < s.config.ORBars {
		return
	}

	orBars := todayDay[:s.config.ORBars]
	s.orHigh = core.MaxOf(orBars.Highs())
	s.orLow = core.MinOf(orBars.Lows())
	s.orMid = (s.orHigh + s.orLow) / 2
	s.orRange = s.orHigh - s.orLow
	s.orCalculated = true

	s.calculatePreviousSessions(bars)

	if adx, ok := indicator.ADXFromBars(bars, s.config.ADXPeriod); ok {
		s.dailyADX = &adx
	}

	if s.config.UseEMADirection {
		ema := indicator.EMAFromBars(bars, s.config.EMADirectionPeriod)
		if ema > 0 {
			switch {
			case orBars[0].Open > ema:
				s.dailyDirection = "long"
			case orBars[0].Open < ema:
				s.dailyDirection = "short"
			}
		}
	}

	if s.log != nil {
		s.log.Infof("ORB [%s]: H=%.0f L=%.0f Mid=%.0f Range=%.0f", s.currentDate.Format("2006-01-02"), s.orHigh, s.orLow, s.orMid, s.orRange)
	}
}

// calculatePreviousSessions derives previous day-session and
// previous night-session OHLC from history. The night session spans
// 15:00 through 05:00 the following calendar day.
func (s *Strategy) calculatePreviousSessions(bars core.Bars) {
	today := s.currentDate
	nightBoundary := 5 * time.Hour
	eveningStart := 15 * time.Hour

	daySessions := map[string]core.Bars{}
	nightSessions := map[string]core.Bars{}

	dateKey := func(t time.Time) string { return t.Format("2006-01-02") }

	for _, b := range bars {
		d := b.Time
		t := timeOfDay(b.Time)
		isBeforeToday := d.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()))

		switch {
		case t >= s.orStart && t < s.sessionEnd && isBeforeToday:
			key := dateKey(d)
			daySessions[key] = append(daySessions[key], b)
		case t >= eveningStart && isBeforeToday:
			key := dateKey(d)
			nightSessions[key] = append(nightSessions[key], b)
		case t < nightBoundary:
			nsDate := d.AddDate(0, 0, -1)
			if nsDate.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())) {
				key := dateKey(nsDate)
				nightSessions[key] = append(nightSessions[key], b)
			}
		}
	}

	if len(daySessions) > 0 {
		s.prevDay = latestSessionOHLC(daySessions)
	}
	if len(nightSessions) > 0 {
		s.prevNight = latestSessionOHLC(nightSessions)
	}
}

func latestSessionOHLC(sessions map[string]core.Bars) *sessionOHLC {
	keys := make([]string, 0, len(sessions))
	for k := range sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	latestKey := keys[len(keys)-1]
	kbars := sessions[latestKey]
	sort.Slice(kbars, func(i, j int) bool { return kbars[i].Time.Before(kbars[j].Time) })

	high, low := kbars[0].High, kbars[0].Low
	for _, b := range kbars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return &sessionOHLC{Open: kbars[0].Open, High: high, Low: low, Close: kbars[len(kbars)-1].Close}
}

func (s *Strategy) combinedPrevHigh() (float64, bool) {
	switch {
	case s.prevDay != nil && s.prevNight != nil:
		return max(s.prevDay.High, s.prevNight.High), true
	case s.prevDay != nil:
		return s.prevDay.High, true
	case s.prevNight != nil:
		return s.prevNight.High, true
	}
	return 0, false
}

func (s *Strategy) combinedPrevLow() (float64, bool) {
	switch {
	case s.prevDay != nil && s.prevNight != nil:
		return min(s.prevDay.Low, s.prevNight.Low), true
	case s.prevDay != nil:
		return s.prevDay.Low, true
	case s.prevNight != nil:
		return s.prevNight.Low, true
	}
	return 0, false
}

func (s *Strategy) classifyBreakout(bars core.Bars, isLong bool) bool {
	latest := bars[len(bars)-1]
	rvol, ok := indicator.RVOL(bars, s.config.RVOLLookback)
	rvolOK := ok && rvol >= s.config.StrongRVOL

	strength := indicator.CandleStrength(latest)
	var candleOK bool
	if isLong {
		candleOK = strength >= s.config.StrongCandle
	} else {
		candleOK = (1.0 - strength) >= s.config.StrongCandle
	}
	return rvolOK && candleOK
}

// runFilters returns a non-empty rejection reason, or "" if every
// filter passes. ADX is not checked here — it gates the whole bar
// earlier in Evaluate.
func (s *Strategy) runFilters(bars core.Bars, close float64, isLong bool) string {
	if s.config.UseVWAPFilter {
		vwap, ok := indicator.SessionVWAP(bars, s.orStart, s.sessionEnd)
		if ok {
			if isLong && close <= vwap {
				return "VWAP filter: long rejected"
			}
			if !isLong && close >= vwap {
				return "VWAP filter: short rejected"
			}
		}
	}

	if s.config.UsePrevPressureFilter && s.orRange > 0 {
		minSpace := s.config.MinPressureSpacePct * s.orRange
		if isLong {
			prevHigh, ok := s.combinedPrevHigh()
			if ok && s.orHigh < prevHigh {
				if prevHigh-s.orHigh < minSpace {
					return "pressure space filter: insufficient room above OR_High"
				}
			}
		} else {
			prevLow, ok := s.combinedPrevLow()
			if ok && s.orLow > prevLow {
				if s.orLow-prevLow < minSpace {
					return "pressure space filter: insufficient room below OR_Low"
				}
			}
		}
	}

	if s.config.UsePrevDirectionFilter && s.prevDay != nil {
		if isLong && s.orMid <= s.prevDay.Close {
			return "direction bias filter: bearish gap"
		}
		if !isLong && s.orMid >= s.prevDay.Close {
			return "direction bias filter: bullish gap"
		}
	}

	return ""
}

func (s *Strategy) updateLongState(bars core.Bars, close float64, symbol string) *core.Signal {
	if s.longTrades >= s.config.MaxEntriesPerDay {
		return nil
	}
	tolerance := s.config.RetestTolerancePct * s.orRange

	switch s.longState {
	case Idle:
		if close > s.orHigh {
			if s.classifyBreakout(bars, true) {
				if reason := s.runFilters(bars, close, true); reason != "" {
					return nil
				}
				s.longTrades++
				return sigPtr(core.Signal{
					Type:      core.EntryLong,
					Symbol:    symbol,
					Price:     close,
					Confidence: 0.85,
					Reason:    "ORB strong long breakout",
					Overrides: s.buildEntryMetadata(true, "strong"),
				})
			}
			s.longState = WaitingPullback
			s.longBarsSinceBreakout = 0
		}

	case WaitingPullback:
		s.longBarsSinceBreakout++
		if s.longBarsSinceBreakout > s.config.PullbackTimeoutBars {
			s.longState = Idle
			return nil
		}
		if close < s.orMid {
			s.longState = Idle
			return nil
		}
		if close >= s.orHigh-tolerance && close <= s.orHigh+tolerance {
			s.longState = TestingLevel
		}

	case TestingLevel:
		s.longBarsSinceBreakout++
		if s.longBarsSinceBreakout > s.config.PullbackTimeoutBars {
			s.longState = Idle
			return nil
		}
		if close < s.orMid {
			s.longState = Idle
			return nil
		}
		strength := indicator.CandleStrength(bars[len(bars)-1])
		if close > s.orHigh && strength >= s.config.MinBounceStrength {
			if reason := s.runFilters(bars, close, true); reason != "" {
				return nil
			}
			s.longTrades++
			s.longState = Idle
			return sigPtr(core.Signal{
				Type:      core.EntryLong,
				Symbol:    symbol,
				Price:     close,
				Confidence: 0.8,
				Reason:    "ORB retest long",
				Overrides: s.buildEntryMetadata(true, "retest"),
			})
		}
		if close < s.orHigh-tolerance {
			s.longState = WaitingPullback
		}
	}
	return nil
}

func (s *Strategy) updateShortState(bars core.Bars, close float64, symbol string) *core.Signal {
	if s.shortTrades >= s.config.MaxEntriesPerDay {
		return nil
	}
	tolerance := s.config.RetestTolerancePct * s.orRange

	switch s.shortState {
	case Idle:
		if close < s.orLow {
			if s.classifyBreakout(bars, false) {
				if reason := s.runFilters(bars, close, false); reason != "" {
					return nil
				}
				s.shortTrades++
				return sigPtr(core.Signal{
					Type:      core.EntryShort,
					Symbol:    symbol,
					Price:     close,
					Confidence: 0.85,
					Reason:    "ORB strong short breakout",
					Overrides: s.buildEntryMetadata(false, "strong"),
				})
			}
			s.shortState = WaitingPullback
			s.shortBarsSinceBreakout = 0
		}

	case WaitingPullback:
		s.shortBarsSinceBreakout++
		if s.shortBarsSinceBreakout > s.config.PullbackTimeoutBars {
			s.shortState = Idle
			return nil
		}
		if close > s.orMid {
			s.shortState = Idle
			return nil
		}
		if close >= s.orLow-tolerance && close <= s.orLow+tolerance {
			s.shortState = TestingLevel
		}

	case TestingLevel:
		s.shortBarsSinceBreakout++
		if s.shortBarsSinceBreakout > s.config.PullbackTimeoutBars {
			s.shortState = Idle
			return nil
		}
		if close > s.orMid {
			s.shortState = Idle
			return nil
		}
		strength := indicator.CandleStrength(bars[len(bars)-1])
		bearStrength := 1.0 - strength
		if close < s.orLow && bearStrength >= s.config.MinBounceStrength {
			if reason := s.runFilters(bars, close, false); reason != "" {
				return nil
			}
			s.shortTrades++
			s.shortState = Idle
			return sigPtr(core.Signal{
				Type:      core.EntryShort,
				Symbol:    symbol,
				Price:     close,
				Confidence: 0.8,
				Reason:    "ORB retest short",
				Overrides: s.buildEntryMetadata(false, "retest"),
			})
		}
		if close > s.orLow+tolerance {
			s.shortState = WaitingPullback
		}
	}
	return nil
}

// buildEntryMetadata constructs the EntryOverrides record passed to
// the PositionManager alongside an entry signal.
func (s *Strategy) buildEntryMetadata(isLong bool, entryType string) core.EntryOverrides {
	tpPoints := s.config.TPMultiplier * s.orRange

	if s.config.UseKeyLevelTP && s.orRange > 0 {
		minTP := s.config.KeyLevelTPMinPct * s.orRange
		if klTP, ok := s.computeKeyLevelTP(isLong, minTP); ok {
			tpPoints = max(tpPoints, klTP)
		}
	}
	if s.config.FixedTPPoints > 0 {
		tpPoints = max(s.config.FixedTPPoints, tpPoints)
	}

	tsStart := s.config.TSStartMultiplier * s.orRange
	tsDistance := s.config.TSDistanceRatio * s.orRange

	ov := core.EntryOverrides{
		EntryType:                entryType,
		StopLossPrice:            floatPtr(s.orMid),
		StartTrailingStopPoints:  floatPtr(tsStart),
		TrailingStopPoints:       floatPtr(tsDistance),
	}
	if tpPoints > 0 {
		ov.TakeProfitPoints = floatPtr(tpPoints)
	}

	if s.config.UseKeyLevelTrailing {
		minDist := s.config.KeyLevelMinDistancePct * s.orRange
		var levels []float64

		if isLong {
			threshold := s.orHigh + minDist
			levels = dedupAscendingAbove(s.candidateLevels(), threshold)
		} else {
			threshold := s.orLow - minDist
			levels = dedupDescendingBelow(s.candidateLevels(), threshold)
		}

		if len(levels) > 0 {
			ov.KeyLevels = levels
			ov.KeyLevelBuffer = s.config.KeyLevelBuffer
			if s.config.KeyLevelMinProfitPct > 0 {
				ov.KeyLevelMinProfit = floatPtr(s.config.KeyLevelMinProfitPct * s.orRange)
			}

			if s.config.UseKeyLevelTPMax {
				var klTPMax float64
				if isLong {
					klTPMax = levels[len(levels)-1] - s.orHigh
				} else {
					klTPMax = s.orLow - levels[len(levels)-1]
				}
				if klTPMax > 0 {
					current := tpPoints
					if ov.TakeProfitPoints != nil {
						current = *ov.TakeProfitPoints
					}
					ov.TakeProfitPoints = floatPtr(max(current, klTPMax))
				}
			}
		}
	}

	if s.config.UseMomentumExit {
		ov.Momentum = &core.MomentumParams{
			MinProfit:     s.config.MomentumMinProfitPct * s.orRange,
			Lookback:      s.config.MomentumLookback,
			WeakThreshold: s.config.MomentumWeakThreshold,
			MinWeakBars:   s.config.MomentumMinWeakBars,
		}
	}

	return ov
}

// candidateLevels collects the set of previous-session price points a
// key-level trail or take-profit target may anchor on.
func (s *Strategy) candidateLevels() []float64 {
	var levels []float64
	if s.prevDay != nil {
		levels = append(levels, s.prevDay.High, s.prevDay.Close, s.prevDay.Low)
	}
	if s.prevNight != nil {
		levels = append(levels, s.prevNight.High, s.prevNight.Close, s.prevNight.Low)
	}
	return levels
}

func (s *Strategy) computeKeyLevelTP(isLong bool, minTP float64) (float64, bool) {
	candidates := s.candidateLevels()
	if isLong {
		levels := dedupAscendingAbove(candidates, s.orHigh)
		for _, lv := range levels {
			if dist := lv - s.orHigh; dist >= minTP {
				return dist, true
			}
		}
	} else {
		levels := dedupDescendingBelow(candidates, s.orLow)
		for _, lv := range levels {
			if dist := s.orLow - lv; dist >= minTP {
				return dist, true
			}
		}
	}
	return 0, false
}

func dedupAscendingAbove(values []float64, threshold float64) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, v := range values {
		if v > threshold && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func dedupDescendingBelow(values []float64, threshold float64) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, v := range values {
		if v < threshold && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

func sigPtr(s core.Signal) *core.Signal { return &s }
func floatPtr(v float64) *float64       { return &v }
