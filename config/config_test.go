package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pohanwww/auto-trade/core"
)

func TestValidate_LegSumMismatchFails(t *testing.T) {
	cfg := &Config{
		ActiveStrategy: "macd_5m",
		Strategies: map[string]StrategyBlock{
			"macd_5m": {
				StrategyType: "macd",
				Position:     PositionBlock{TotalQuantity: 2, TPLegQuantity: 1, TSLegQuantity: 2},
			},
		},
	}
	assert.ErrorIs(t, cfg.Validate(), core.ErrLegQuantityMismatch)
}

func TestValidate_UnknownStrategyTypeFails(t *testing.T) {
	cfg := &Config{
		Strategies: map[string]StrategyBlock{
			"weird": {StrategyType: "not-a-real-strategy"},
		},
	}
	assert.ErrorIs(t, cfg.Validate(), core.ErrUnknownStrategy)
}

func TestValidate_UnknownActiveStrategyFails(t *testing.T) {
	cfg := &Config{
		ActiveStrategy: "missing",
		Strategies: map[string]StrategyBlock{
			"present": {StrategyType: "macd"},
		},
	}
	assert.ErrorIs(t, cfg.Validate(), core.ErrUnknownStrategy)
}

func TestValidate_UnknownTimeframeFails(t *testing.T) {
	cfg := &Config{
		Strategies: map[string]StrategyBlock{
			"orb_weird": {
				StrategyType: "orb",
				Trading:      TradingBlock{Timeframe: "five-minutes"},
			},
		},
	}
	assert.ErrorIs(t, cfg.Validate(), core.ErrUnknownTimeframe)
}

func TestTimeframeDuration(t *testing.T) {
	d, err := TradingBlock{Timeframe: "5m"}.TimeframeDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = TradingBlock{Timeframe: "1h"}.TimeframeDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	cfg := &Config{
		ActiveStrategy: "macd_5m",
		Strategies: map[string]StrategyBlock{
			"macd_5m": {
				StrategyType: "macd",
				Position:     PositionBlock{TotalQuantity: 2, TPLegQuantity: 1, TSLegQuantity: 1},
			},
		},
	}
	assert.NoError(t, cfg.Validate())
}

const sampleYAML = `
active_strategy: macd_5m
symbol:
  current: TXF
  contract: TXFR1
  name: "Taiwan Index Futures"
macd_5m:
  strategy_type: macd
  trading:
    timeframe: 5m
    stop_loss_points: 50
    take_profit_points: 80
  position:
    total_quantity: 2
    tp_leg_quantity: 1
    ts_leg_quantity: 1
  monitoring:
    signal_check_interval: 60
    position_check_interval: 5
  fast: 12
  slow: 26
  signal: 9
`

func TestLoad_DecodesDocumentAndSeparatesStrategyParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "macd_5m", cfg.ActiveStrategy)
	assert.Equal(t, "TXF", cfg.Symbol.Current)

	block, ok := cfg.Active()
	require.True(t, ok)
	assert.Equal(t, "macd", block.StrategyType)
	assert.Equal(t, "5m", block.Trading.Timeframe)
	assert.Equal(t, 2, block.Position.TotalQuantity)
	assert.Equal(t, 60, block.Monitoring.SignalCheckIntervalMin)

	assert.Equal(t, 12, block.Params["fast"])
	assert.Equal(t, 26, block.Params["slow"])

	pmc := block.Trading.ToPositionManagerConfig(block.Position)
	assert.NoError(t, pmc.Validate())
	assert.Equal(t, 50.0, pmc.StopLossPoints)
}
