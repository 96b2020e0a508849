// Package bollinger implements a five-state Bollinger Band
// mean-reversion strategy.
package bollinger

import (
	"time"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/indicator"
)

// State is the reversion state machine's current mode.
type State int

const (
	Idle State = iota
	TouchLower
	ReversalLong
	TouchUpper
	ReversalShort
)

// TakeProfitTarget selects where the take-profit is anchored.
type TakeProfitTarget int

const (
	TPMiddle TakeProfitTarget = iota
	TPOpposite
	TPHybrid
)

// Config parameterizes the Bollinger strategy.
type Config struct {
	BBPeriod int     `mapstructure:"bb_period"`
	BBStd    float64 `mapstructure:"bb_std"`

	SessionStartTime string `mapstructure:"session_start_time"` // "HH:MM"; "00:00" disables the session filter
	EntryEndTime     string `mapstructure:"entry_end_time"`
	SessionEndTime   string `mapstructure:"session_end_time"`

	TPTarget            TakeProfitTarget `mapstructure:"tp_target"`
	TPBuffer            float64          `mapstructure:"tp_buffer"`
	HybridTSTrailPoints float64          `mapstructure:"hybrid_ts_trail_points"`
	SLBuffer            float64          `mapstructure:"sl_buffer"`

	TrendFilterBars  int  `mapstructure:"trend_filter_bars"`
	LongOnly         bool `mapstructure:"long_only"`
	ShortOnly        bool `mapstructure:"short_only"`
	MaxEntriesPerDay int  `mapstructure:"max_entries_per_day"`
	CooldownBars     int  `mapstructure:"cooldown_bars"`
}

// DefaultConfig is the baseline day-session parameter set.
func DefaultConfig() Config {
	return Config{
		BBPeriod:            20,
		BBStd:               3.0,
		SessionStartTime:    "09:05",
		EntryEndTime:        "13:00",
		SessionEndTime:      "13:45",
		TPTarget:            TPMiddle,
		TPBuffer:            5,
		HybridTSTrailPoints: 30,
		SLBuffer:            10,
		TrendFilterBars:     4,
		MaxEntriesPerDay:    99,
		CooldownBars:        2,
	}
}

// Strategy is the Bollinger mean-reversion state machine.
type Strategy struct {
	config Config

	sessionStart time.Duration
	entryEnd     time.Duration
	sessionEnd   time.Duration

	currentDate time.Time
	hasDate     bool
	state       State
	tradesToday int
	barsSinceExit int

	reversalBar      *core.Bar
	hasReversalBar   bool
	recentLow        float64
	recentHigh       float64
}

// New builds a Bollinger strategy.
func New(config Config) *Strategy {
	return &Strategy{
		config:        config,
		sessionStart:  parseTimeOfDay(config.SessionStartTime),
		entryEnd:      parseTimeOfDay(config.EntryEndTime),
		sessionEnd:    parseTimeOfDay(config.SessionEndTime),
		barsSinceExit: 999,
	}
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

func (s *Strategy) Name() string { return "Bollinger" }

// OnPositionClosed resets the cooldown and re-arms IDLE.
func (s *Strategy) OnPositionClosed() {
	s.barsSinceExit = 0
	s.state = Idle
}

func (s *Strategy) resetDaily() {
	s.state = Idle
	s.tradesToday = 0
	s.barsSinceExit = 999
	s.hasReversalBar = false
	s.recentLow = 0
	s.recentHigh = 0
}

// Evaluate implements strategy.Strategy.
func (s *Strategy) Evaluate(bars core.Bars, price float64, symbol string) core.Signal {
	if len(bars) < s.config.BBPeriod+2 {
		return core.HoldSignal(symbol, "insufficient data")
	}

	latest := bars[len(bars)-1]
	barTime := latest.Time

	if !s.hasDate || !sameDate(barTime, s.currentDate) {
		s.resetDaily()
		s.currentDate = barTime
		s.hasDate = true
	}

	t := timeOfDay(barTime)
	if s.sessionStart != 0 {
		if t < s.sessionStart || t >= s.sessionEnd {
			return core.HoldSignal(symbol, "outside session")
		}
		if t >= s.entryEnd {
			return core.HoldSignal(symbol, "past entry window")
		}
	}

	if s.tradesToday >= s.config.MaxEntriesPerDay {
		return core.HoldSignal(symbol, "daily entry cap reached")
	}

	s.barsSinceExit++
	if s.barsSinceExit < s.config.CooldownBars {
		return core.HoldSignal(symbol, "cooldown")
	}

	upper, middle, lower, ok := indicator.BollingerFromBars(bars, s.config.BBPeriod, s.config.BBStd)
	if !ok {
		return core.HoldSignal(symbol, "insufficient bollinger data")
	}

	if s.isHuggingBand(bars, upper, lower) {
		s.state = Idle
		return core.HoldSignal(symbol, "hugging band, no trend reversion")
	}

	close := latest.Close
	prev := bars[len(bars)-2]

	if sig := s.updateState(latest, prev, close, upper, middle, lower, symbol, price); sig != nil {
		return *sig
	}
	return core.HoldSignal(symbol, "no entry")
}

func (s *Strategy) updateState(bar, prev core.Bar, close, upper, middle, lower float64, symbol string, price float64) *core.Signal {
	switch s.state {
	case Idle:
		if !s.config.ShortOnly && close <= lower {
			s.state = TouchLower
			s.recentLow = bar.Low
			s.trackLow(prev)
		} else if !s.config.LongOnly && close >= upper {
			s.state = TouchUpper
			s.recentHigh = bar.High
			s.trackHigh(prev)
		}
		return nil

	case TouchLower:
		s.trackLow(bar)
		if isReversalBullish(bar) {
			s.state = ReversalLong
			b := bar
			s.reversalBar = &b
			s.hasReversalBar = true
		} else if close > middle {
			s.state = Idle
		}
		return nil

	case ReversalLong:
		if s.hasReversalBar && close > s.reversalBar.High {
			s.state = Idle
			s.tradesToday++
			return s.buildLongSignal(middle, upper, price, symbol)
		}
		if close <= lower {
			s.state = TouchLower
			s.trackLow(bar)
		} else if close > middle {
			s.state = Idle
		}
		return nil

	case TouchUpper:
		s.trackHigh(bar)
		if isReversalBearish(bar) {
			s.state = ReversalShort
			b := bar
			s.reversalBar = &b
			s.hasReversalBar = true
		} else if close < middle {
			s.state = Idle
		}
		return nil

	case ReversalShort:
		if s.hasReversalBar && close < s.reversalBar.Low {
			s.state = Idle
			s.tradesToday++
			return s.buildShortSignal(middle, lower, price, symbol)
		}
		if close >= upper {
			s.state = TouchUpper
			s.trackHigh(bar)
		} else if close < middle {
			s.state = Idle
		}
		return nil
	}
	return nil
}

func (s *Strategy) buildLongSignal(middle, upper, price float64, symbol string) *core.Signal {
	slPrice := s.recentLow - s.config.SLBuffer
	entry := price
	midDist := middle - s.config.TPBuffer - entry
	oppDist := upper - s.config.TPBuffer - entry

	tpDist := midDist
	if s.config.TPTarget == TPOpposite {
		tpDist = oppDist
	}
	if tpDist < 20 {
		tpDist = 20
	}

	ov := core.EntryOverrides{
		StopLossPrice:    floatPtr(slPrice),
		TakeProfitPoints: floatPtr(tpDist),
	}
	if s.config.TPTarget == TPHybrid {
		startTrail := midDist
		if startTrail < 20 {
			startTrail = 20
		}
		ov.StartTrailingStopPoints = floatPtr(startTrail)
		ov.TrailingStopPoints = floatPtr(s.config.HybridTSTrailPoints)
	}

	return &core.Signal{Type: core.EntryLong, Symbol: symbol, Price: price, Reason: "BB reversal long", Overrides: ov}
}

func (s *Strategy) buildShortSignal(middle, lower, price float64, symbol string) *core.Signal {
	slPrice := s.recentHigh + s.config.SLBuffer
	entry := price
	midDist := entry - (middle + s.config.TPBuffer)
	oppDist := entry - (lower + s.config.TPBuffer)

	tpDist := midDist
	if s.config.TPTarget == TPOpposite {
		tpDist = oppDist
	}
	if tpDist < 20 {
		tpDist = 20
	}

	ov := core.EntryOverrides{
		StopLossPrice:    floatPtr(slPrice),
		TakeProfitPoints: floatPtr(tpDist),
	}
	if s.config.TPTarget == TPHybrid {
		startTrail := midDist
		if startTrail < 20 {
			startTrail = 20
		}
		ov.StartTrailingStopPoints = floatPtr(startTrail)
		ov.TrailingStopPoints = floatPtr(s.config.HybridTSTrailPoints)
	}

	return &core.Signal{Type: core.EntryShort, Symbol: symbol, Price: price, Reason: "BB reversal short", Overrides: ov}
}

// isReversalBullish is a stalling bar: a bullish body at least 20% of
// range, or a lower shadow at least 40% of range.
func isReversalBullish(bar core.Bar) bool {
	body := bar.Close - bar.Open
	if body < 0 {
		body = -body
	}
	lowerShadow := min(bar.Open, bar.Close) - bar.Low
	rng := bar.High - bar.Low
	if rng <= 0 {
		return false
	}
	if bar.Close > bar.Open && body >= rng*0.2 {
		return true
	}
	return lowerShadow >= rng*0.4
}

func isReversalBearish(bar core.Bar) bool {
	body := bar.Close - bar.Open
	if body < 0 {
		body = -body
	}
	upperShadow := bar.High - max(bar.Open, bar.Close)
	rng := bar.High - bar.Low
	if rng <= 0 {
		return false
	}
	if bar.Close < bar.Open && body >= rng*0.2 {
		return true
	}
	return upperShadow >= rng*0.4
}

// isHuggingBand vetoes reversion entries when the last N bars all
// close within 0.2% of one band (a strong trend, not a reversion).
func (s *Strategy) isHuggingBand(bars core.Bars, upper, lower float64) bool {
	n := s.config.TrendFilterBars
	if len(bars) < n {
		return false
	}
	recent := bars[len(bars)-n:]

	huggingUpper, huggingLower := true, true
	for _, b := range recent {
		if b.Close < upper*0.998 {
			huggingUpper = false
		}
		if b.Close > lower*1.002 {
			huggingLower = false
		}
	}
	return huggingUpper || huggingLower
}

func (s *Strategy) trackLow(bar core.Bar) {
	if s.recentLow == 0 || bar.Low < s.recentLow {
		s.recentLow = bar.Low
	}
}

func (s *Strategy) trackHigh(bar core.Bar) {
	if bar.High > s.recentHigh {
		s.recentHigh = bar.High
	}
}

func floatPtr(v float64) *float64 { return &v }
