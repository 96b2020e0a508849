// Package scalp implements a bar-level breakout/reversal strategy with
// a post-exit cooldown.
package scalp

import (
	"time"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/indicator"
)

// EntryMode selects which detectors are active.
type EntryMode int

const (
	Both EntryMode = iota
	BreakoutOnly
	ReversalOnly
)

// Config parameterizes the Scalp strategy.
type Config struct {
	SessionStartTime string `mapstructure:"session_start_time"` // "HH:MM"
	EntryEndTime     string `mapstructure:"entry_end_time"`

	Mode EntryMode `mapstructure:"mode"`

	BreakoutLookback    int     `mapstructure:"breakout_lookback"`
	BreakoutMinStrength float64 `mapstructure:"breakout_min_strength"`

	ReversalConsecutive int     `mapstructure:"reversal_consecutive"`
	ReversalMinStrength float64 `mapstructure:"reversal_min_strength"`

	LongOnly  bool `mapstructure:"long_only"`
	ShortOnly bool `mapstructure:"short_only"`

	CooldownBars int `mapstructure:"cooldown_bars"`
}

// DefaultConfig is the baseline day-session parameter set.
func DefaultConfig() Config {
	return Config{
		SessionStartTime:    "09:05",
		EntryEndTime:        "13:00",
		Mode:                Both,
		BreakoutLookback:    12,
		BreakoutMinStrength: 0.6,
		ReversalConsecutive: 3,
		ReversalMinStrength: 0.65,
		CooldownBars:        2,
	}
}

// Strategy is the Scalp breakout/reversal entry producer.
type Strategy struct {
	config Config

	sessionStart time.Duration
	entryEnd     time.Duration

	barsSinceLastExit int
}

// New builds a Scalp strategy, starting with the cooldown already
// elapsed (so it can enter on its very first evaluation).
func New(config Config) *Strategy {
	return &Strategy{
		config:            config,
		sessionStart:      parseTimeOfDay(config.SessionStartTime),
		entryEnd:          parseTimeOfDay(config.EntryEndTime),
		barsSinceLastExit: 999,
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

func (s *Strategy) Name() string { return "Scalp" }

// OnPositionClosed zeroes the cooldown counter.
func (s *Strategy) OnPositionClosed() {
	s.barsSinceLastExit = 0
}

// Evaluate implements strategy.Strategy.
func (s *Strategy) Evaluate(bars core.Bars, price float64, symbol string) core.Signal {
	if len(bars) < s.config.BreakoutLookback+2 {
		return core.HoldSignal(symbol, "insufficient data")
	}

	latest := bars[len(bars)-1]
	tod := timeOfDay(latest.Time)
	if tod < s.sessionStart || tod >= s.entryEnd {
		return core.HoldSignal(symbol, "outside trading window")
	}

	s.barsSinceLastExit++
	if s.barsSinceLastExit < s.config.CooldownBars {
		return core.HoldSignal(symbol, "cooldown")
	}

	lookback := s.config.BreakoutLookback
	if s.config.ReversalConsecutive+1 > lookback {
		lookback = s.config.ReversalConsecutive + 1
	}
	if len(bars) < lookback+1 {
		return core.HoldSignal(symbol, "insufficient lookback")
	}
	recent := bars[len(bars)-(lookback+1):]

	if s.config.Mode == Both || s.config.Mode == BreakoutOnly {
		if sig := s.checkBreakout(recent, symbol, price); sig != nil {
			return *sig
		}
	}
	if s.config.Mode == Both || s.config.Mode == ReversalOnly {
		if sig := s.checkReversal(recent, symbol, price); sig != nil {
			return *sig
		}
	}

	return core.HoldSignal(symbol, "no entry")
}

func (s *Strategy) checkBreakout(recent core.Bars, symbol string, price float64) *core.Signal {
	if len(recent) < s.config.BreakoutLookback+1 {
		return nil
	}
	current := recent[len(recent)-1]
	lookbackBars := recent[len(recent)-(s.config.BreakoutLookback+1) : len(recent)-1]

	highest := core.MaxOf(lookbackBars.Highs())
	lowest := core.MinOf(lookbackBars.Lows())
	strength := indicator.CandleStrength(current)

	if !s.config.ShortOnly && current.Close > highest && strength >= s.config.BreakoutMinStrength {
		return &core.Signal{Type: core.EntryLong, Symbol: symbol, Price: price, Reason: "Scalp breakout long", Overrides: core.EntryOverrides{EntryType: "breakout"}}
	}
	if !s.config.LongOnly && current.Close < lowest && strength <= 1.0-s.config.BreakoutMinStrength {
		return &core.Signal{Type: core.EntryShort, Symbol: symbol, Price: price, Reason: "Scalp breakout short", Overrides: core.EntryOverrides{EntryType: "breakout"}}
	}
	return nil
}

func (s *Strategy) checkReversal(recent core.Bars, symbol string, price float64) *core.Signal {
	n := s.config.ReversalConsecutive
	if len(recent) < n+1 {
		return nil
	}
	current := recent[len(recent)-1]
	prevBars := recent[len(recent)-(n+1) : len(recent)-1]
	strength := indicator.CandleStrength(current)

	allBearish := true
	for _, b := range prevBars {
		if b.Close >= b.Open {
			allBearish = false
			break
		}
	}
	if !s.config.ShortOnly && allBearish && strength >= s.config.ReversalMinStrength && current.Close > current.Open {
		return &core.Signal{Type: core.EntryLong, Symbol: symbol, Price: price, Reason: "Scalp reversal long", Overrides: core.EntryOverrides{EntryType: "reversal"}}
	}

	allBullish := true
	for _, b := range prevBars {
		if b.Close <= b.Open {
			allBullish = false
			break
		}
	}
	if !s.config.LongOnly && allBullish && strength <= 1.0-s.config.ReversalMinStrength && current.Close < current.Open {
		return &core.Signal{Type: core.EntryShort, Symbol: symbol, Price: price, Reason: "Scalp reversal short", Overrides: core.EntryOverrides{EntryType: "reversal"}}
	}
	return nil
}
