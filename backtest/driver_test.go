package backtest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pohanwww/auto-trade/core"
	loggerzerolog "github.com/pohanwww/auto-trade/logger/zerolog"
)

func testLogger(t *testing.T) *loggerzerolog.Adapter {
	t.Helper()
	zl := zerolog.Nop()
	return &loggerzerolog.Adapter{Logger: &zl}
}

// onceLongStrategy signals a single long entry on its first Evaluate
// call, then holds forever (the driver never calls it again while a
// position is open).
type onceLongStrategy struct {
	fired    bool
	stopLoss float64
}

func (s *onceLongStrategy) Evaluate(bars core.Bars, price float64, symbol string) core.Signal {
	if s.fired {
		return core.HoldSignal(symbol, "already fired")
	}
	s.fired = true
	sl := s.stopLoss
	return core.Signal{
		Type: core.EntryLong, Symbol: symbol, Price: price, Reason: "test entry",
		Overrides: core.EntryOverrides{StopLossPrice: &sl},
	}
}
func (s *onceLongStrategy) OnPositionClosed() {}
func (s *onceLongStrategy) Name() string      { return "OnceLong" }

func mkBar(t time.Time, open, high, low, close float64) core.Bar {
	return core.Bar{Symbol: "TXF", Time: t, Open: open, High: high, Low: low, Close: close}
}

// The deferred-entry anti-look-ahead property: a signal raised while
// evaluating bar N fills no earlier than bar N+1's open, and a
// stop-loss that the next bar gaps straight through fills at that
// bar's open rather than at the stale trigger price.
func TestDriver_DeferredEntryAndGapDownStopLoss(t *testing.T) {
	t0 := time.Date(2026, 7, 29, 8, 45, 0, 0, time.UTC)
	bars := core.Bars{
		mkBar(t0, 100, 101, 99, 100),
		mkBar(t0.Add(time.Minute), 102, 103, 101, 102),
		mkBar(t0.Add(2*time.Minute), 75, 76, 70, 72),
	}

	strat := &onceLongStrategy{stopLoss: 80}
	unit := TradingUnit{
		Name:     "unit",
		Strategy: strat,
		Config: core.PositionManagerConfig{
			TotalQuantity:           1,
			TSLegQuantity:           1,
			StopLossPoints:          500,
			StartTrailingStopPoints: 100000,
		},
	}

	driver := NewDriver(testLogger(t), 100000, 0, false)
	results := driver.Run(bars, "TXF", "TXFR1", []TradingUnit{unit})
	require.Len(t, results, 1)
	result := results[0]

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]

	assert.Equal(t, bars[1].Time, trade.EntryTime, "entry must fill no earlier than the bar after the signal")
	assert.Equal(t, bars[1].Open, trade.EntryPrice, "entry fills at the next bar's open")
	assert.Equal(t, core.ExitStopLoss, trade.Reason)
	assert.Equal(t, bars[2].Open, trade.ExitPrice, "a gap-down stop-loss fills at the bar's open, not the stale trigger")
	assert.Less(t, trade.PnLPoints, 0.0)

	require.Len(t, result.EquityCurve, 3)
}

// A strategy that never signals produces an empty, but still
// well-formed, result with one equity point per bar.
func TestDriver_NoSignalsProducesFlatEquityCurve(t *testing.T) {
	t0 := time.Date(2026, 7, 29, 8, 45, 0, 0, time.UTC)
	bars := core.Bars{
		mkBar(t0, 100, 101, 99, 100),
		mkBar(t0.Add(time.Minute), 100, 101, 99, 100),
	}
	unit := TradingUnit{
		Name:     "unit",
		Strategy: &holdStrategy{},
		Config:   core.PositionManagerConfig{TotalQuantity: 1, TSLegQuantity: 1, StopLossPoints: 500},
	}
	driver := NewDriver(testLogger(t), 50000, 0, false)
	results := driver.Run(bars, "TXF", "TXFR1", []TradingUnit{unit})
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Trades)
	require.Len(t, results[0].EquityCurve, 2)
	for _, p := range results[0].EquityCurve {
		assert.Equal(t, 50000.0, p.Equity)
	}
}

type holdStrategy struct{}

func (holdStrategy) Evaluate(bars core.Bars, price float64, symbol string) core.Signal {
	return core.HoldSignal(symbol, "never")
}
func (holdStrategy) OnPositionClosed() {}
func (holdStrategy) Name() string      { return "Hold" }
