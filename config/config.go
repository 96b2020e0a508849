// Package config loads the engine's single YAML document into a thin,
// validated struct tree via spf13/viper. Validation rejects a
// leg-quantity sum that does not match, an unknown strategy_type or
// active_strategy, and an unparseable timeframe; everything else is a
// structural decode.
package config

import (
	"fmt"
	"time"

	"github.com/StudioSol/set"
	"github.com/spf13/viper"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/pohanwww/auto-trade/core"
)

// SymbolConfig identifies the traded instrument.
type SymbolConfig struct {
	Current  string `mapstructure:"current"`
	Contract string `mapstructure:"contract"`
	Name     string `mapstructure:"name"`
}

// PositionBlock is the `position` YAML block: leg-quantity split.
type PositionBlock struct {
	TotalQuantity int `mapstructure:"total_quantity"`
	TPLegQuantity int `mapstructure:"tp_leg_quantity"`
	TSLegQuantity int `mapstructure:"ts_leg_quantity"`
}

// MonitoringBlock is the `monitoring` YAML block: live-mode pacing.
type MonitoringBlock struct {
	SignalCheckIntervalMin   int `mapstructure:"signal_check_interval"`
	PositionCheckIntervalSec int `mapstructure:"position_check_interval"`
}

// TradingBlock is the `trading` YAML block — every key recognized by
// core.PositionManagerConfig plus the timeframe and fast-stop/
// force-exit controls. Strategy-specific keys (ORB/Scalp/Bollinger)
// are the strategy block's remaining keys (StrategyBlock.Params),
// decoded separately by the strategy package that `strategy_type`
// selects.
type TradingBlock struct {
	Timeframe string `mapstructure:"timeframe"`

	StopLossPoints     float64 `mapstructure:"stop_loss_points"`
	StopLossPointsRate float64 `mapstructure:"stop_loss_points_rate"`

	TakeProfitPoints     float64 `mapstructure:"take_profit_points"`
	TakeProfitPointsRate float64 `mapstructure:"take_profit_points_rate"`

	StartTrailingStopPoints     float64 `mapstructure:"start_trailing_stop_points"`
	StartTrailingStopPointsRate float64 `mapstructure:"start_trailing_stop_points_rate"`

	TrailingStopPoints     float64 `mapstructure:"trailing_stop_points"`
	TrailingStopPointsRate float64 `mapstructure:"trailing_stop_points_rate"`

	TightenAfterPoints              float64 `mapstructure:"tighten_after_points"`
	TightenAfterPointsRate          float64 `mapstructure:"tighten_after_points_rate"`
	TightenedTrailingStopPoints     float64 `mapstructure:"tightened_trailing_stop_points"`
	TightenedTrailingStopPointsRate float64 `mapstructure:"tightened_trailing_stop_points_rate"`

	EnableMACDFastStop bool   `mapstructure:"enable_macd_fast_stop"`
	ForceExitTime      string `mapstructure:"force_exit_time"`
}

// TimeframeDuration parses the block's timeframe ("1m", "5m", "30m",
// "1h", ...) into a bar width.
func (t TradingBlock) TimeframeDuration() (time.Duration, error) {
	d, err := str2duration.ParseDuration(t.Timeframe)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", core.ErrUnknownTimeframe, t.Timeframe)
	}
	return d, nil
}

// ToPositionManagerConfig maps a decoded trading+position block pair
// into the runtime core.PositionManagerConfig the engine consumes.
func (t TradingBlock) ToPositionManagerConfig(p PositionBlock) core.PositionManagerConfig {
	return core.PositionManagerConfig{
		Timeframe:                       t.Timeframe,
		TotalQuantity:                   p.TotalQuantity,
		TPLegQuantity:                   p.TPLegQuantity,
		TSLegQuantity:                   p.TSLegQuantity,
		StopLossPoints:                  t.StopLossPoints,
		StopLossPointsRate:              t.StopLossPointsRate,
		TakeProfitPoints:                t.TakeProfitPoints,
		TakeProfitPointsRate:            t.TakeProfitPointsRate,
		StartTrailingStopPoints:         t.StartTrailingStopPoints,
		StartTrailingStopPointsRate:     t.StartTrailingStopPointsRate,
		TrailingStopPoints:              t.TrailingStopPoints,
		TrailingStopPointsRate:          t.TrailingStopPointsRate,
		TightenAfterPoints:              t.TightenAfterPoints,
		TightenAfterPointsRate:          t.TightenAfterPointsRate,
		TightenedTrailingStopPoints:     t.TightenedTrailingStopPoints,
		TightenedTrailingStopPointsRate: t.TightenedTrailingStopPointsRate,
		EnableMACDFastStop:              t.EnableMACDFastStop,
		ForceExitTime:                   t.ForceExitTime,
	}
}

// StrategyBlock is one named strategy entry under the YAML document's
// top level.
type StrategyBlock struct {
	StrategyType string                 `mapstructure:"strategy_type"`
	Trading      TradingBlock           `mapstructure:"trading"`
	Position     PositionBlock          `mapstructure:"position"`
	Monitoring   MonitoringBlock        `mapstructure:"monitoring"`
	Params       map[string]interface{} `mapstructure:",remain"`
}

// Config is the root of the decoded YAML document.
type Config struct {
	ActiveStrategy string                   `mapstructure:"active_strategy"`
	Symbol         SymbolConfig             `mapstructure:"symbol"`
	Strategies     map[string]StrategyBlock `mapstructure:",remain"`
}

// Load reads and decodes the YAML document at path, then validates it.
// Config inconsistency fails loudly here, at startup, never later.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the leg-sum invariant for every declared strategy
// block that sets a position block, and that active_strategy and every
// strategy_type name a strategy this engine knows how to build.
func (c *Config) Validate() error {
	known := set.NewLinkedHashSetString()
	for _, name := range []string{"macd", "macd_bidirectional", "orb", "scalp", "bollinger"} {
		known.Add(name)
	}

	names := set.NewLinkedHashSetString()
	for name, block := range c.Strategies {
		names.Add(name)

		if block.Position.TotalQuantity > 0 || block.Position.TPLegQuantity > 0 || block.Position.TSLegQuantity > 0 {
			pmc := block.Trading.ToPositionManagerConfig(block.Position)
			if err := pmc.Validate(); err != nil {
				return fmt.Errorf("config: strategy %q: %w", name, err)
			}
		}

		if block.StrategyType != "" && !known.InArray(block.StrategyType) {
			return fmt.Errorf("config: strategy %q: %w: %s", name, core.ErrUnknownStrategy, block.StrategyType)
		}

		if block.Trading.Timeframe != "" {
			if _, err := block.Trading.TimeframeDuration(); err != nil {
				return fmt.Errorf("config: strategy %q: %w", name, err)
			}
		}
	}

	if c.ActiveStrategy != "" && !names.InArray(c.ActiveStrategy) {
		return fmt.Errorf("config: %w: %s", core.ErrUnknownStrategy, c.ActiveStrategy)
	}
	return nil
}

// Active returns the strategy block named by ActiveStrategy.
func (c *Config) Active() (StrategyBlock, bool) {
	block, ok := c.Strategies[c.ActiveStrategy]
	return block, ok
}
