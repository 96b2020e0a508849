// Package macd implements the MACD golden-cross entry strategy, in a
// long-only and a bidirectional variant.
package macd

import (
	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/indicator"
)

// Config parameterizes both variants.
type Config struct {
	Bidirectional bool `mapstructure:"bidirectional"`

	Fast          int     `mapstructure:"fast"`
	Slow          int     `mapstructure:"slow"`
	Signal        int     `mapstructure:"signal"`
	MACDThreshold float64 `mapstructure:"macd_threshold"`

	UseVolumeGate    bool    `mapstructure:"use_volume_gate"`
	VolumeLookback   int     `mapstructure:"volume_lookback"`
	VolumePercentile float64 `mapstructure:"volume_percentile"`
}

// Strategy is the MACD golden/death-cross entry producer.
type Strategy struct {
	config Config
	name   string
}

// New builds a MACD strategy from config. name distinguishes multiple
// MACD instances (e.g. different timeframes) in logs/reports.
func New(config Config, name string) *Strategy {
	return &Strategy{config: config, name: name}
}

func (s *Strategy) Name() string { return s.name }

func (s *Strategy) OnPositionClosed() {}

// Evaluate implements strategy.Strategy.
func (s *Strategy) Evaluate(bars core.Bars, price float64, symbol string) core.Signal {
	const minBars = 30
	if len(bars) < minBars {
		return core.HoldSignal(symbol, "insufficient bars")
	}

	series := indicator.MACDFromBars(bars, s.config.Fast, s.config.Slow, s.config.Signal)
	if len(series) < 3 {
		return core.HoldSignal(symbol, "insufficient macd series")
	}
	latest := series[len(series)-1]
	mid := (latest.MACDLine + latest.SignalLine) / 2

	if s.config.UseVolumeGate {
		pct, ok := indicator.VolumePercentile(bars, s.config.VolumeLookback)
		if !ok || pct < s.config.VolumePercentile {
			return core.HoldSignal(symbol, "volume gate")
		}
	}

	if mid < s.config.MACDThreshold && indicator.CheckGoldenCross(series, 0) {
		return core.Signal{Type: core.EntryLong, Symbol: symbol, Price: price, Reason: "macd golden cross"}
	}

	if s.config.Bidirectional {
		if mid > -s.config.MACDThreshold && indicator.CheckDeathCross(series, 0) {
			return core.Signal{Type: core.EntryShort, Symbol: symbol, Price: price, Reason: "macd death cross"}
		}
	}

	return core.HoldSignal(symbol, "no cross")
}
