package positionmgr

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

func ptr(v float64) *float64 { return &v }

func longEntrySignal(price float64, ov core.EntryOverrides) core.Signal {
	return core.Signal{Type: core.EntryLong, Symbol: "TXF", Price: price, Overrides: ov}
}

func shortEntrySignal(price float64, ov core.EntryOverrides) core.Signal {
	return core.Signal{Type: core.EntryShort, Symbol: "TXF", Price: price, Overrides: ov}
}

// Leg quantities must sum to the total; construction fails otherwise.
func TestPositionManagerConfig_LegSumInvariant(t *testing.T) {
	bad := core.PositionManagerConfig{TotalQuantity: 2, TPLegQuantity: 1, TSLegQuantity: 0}
	require.ErrorIs(t, bad.Validate(), core.ErrLegQuantityMismatch)

	good := core.PositionManagerConfig{TotalQuantity: 2, TPLegQuantity: 1, TSLegQuantity: 1}
	require.NoError(t, good.Validate())
}

// A HOLD signal, or an entry while already holding, changes nothing.
func TestOnSignal_IdempotentHold(t *testing.T) {
	cfg := core.PositionManagerConfig{TotalQuantity: 1, TSLegQuantity: 1, StopLossPoints: 50}
	require.NoError(t, cfg.Validate())
	m := New(cfg, testLogger(t))

	actions := m.OnSignal(core.HoldSignal("TXF", "hold"), nil, "TXF", "TXFR1")
	assert.Empty(t, actions)
	assert.False(t, m.HasPosition())

	ov := core.EntryOverrides{StopLossPrice: ptr(900)}
	actions = m.OnSignal(longEntrySignal(1000, ov), nil, "TXF", "TXFR1")
	require.Len(t, actions, 1)
	require.True(t, m.HasPosition())

	// A second entry while holding is a no-op.
	actions = m.OnSignal(longEntrySignal(1000, ov), nil, "TXF", "TXFR1")
	assert.Empty(t, actions)
}

// The manager never holds two positions at once.
func TestHasPosition_NeverTwoSimultaneously(t *testing.T) {
	cfg := core.PositionManagerConfig{TotalQuantity: 1, TSLegQuantity: 1, StopLossPoints: 50}
	m := New(cfg, testLogger(t))

	ov := core.EntryOverrides{StopLossPrice: ptr(900)}
	m.OnSignal(longEntrySignal(1000, ov), nil, "TXF", "TXFR1")
	first := m.Position().PositionID

	m.OnSignal(shortEntrySignal(1000, ov), nil, "TXF", "TXFR1")
	assert.Equal(t, first, m.Position().PositionID, "second entry while holding must not replace the position")
}

// A forced time exit closes every leg in one step.
func TestCheckTimeExit_ClosesEveryLegAtomically(t *testing.T) {
	cfg := core.PositionManagerConfig{
		TotalQuantity: 2, TPLegQuantity: 1, TSLegQuantity: 1,
		StopLossPoints: 50, TakeProfitPoints: 1000, StartTrailingStopPoints: 1000,
		ForceExitTime: "13:30",
	}
	m := New(cfg, testLogger(t))
	ov := core.EntryOverrides{StopLossPrice: ptr(900)}
	m.OnSignal(longEntrySignal(1000, ov), nil, "TXF", "TXFR1")
	require.True(t, m.HasPosition())

	loc := time.Local
	now := time.Date(2026, 7, 29, 13, 30, 0, 0, loc)
	actions := m.CheckTimeExit(now, 1005)
	require.Len(t, actions, 1)
	assert.Equal(t, core.OrderClose, actions[0].Type)
	assert.Equal(t, core.ExitTimeExit, actions[0].Metadata.ExitReason)
	assert.Len(t, actions[0].Metadata.LegIDs, 2)
	assert.Equal(t, 2, actions[0].Quantity)

	for _, legID := range actions[0].Metadata.LegIDs {
		m.OnFill(legID, 1005, now, core.ExitTimeExit)
	}
	assert.False(t, m.HasPosition())
}

// Once active, a long trailing stop never decreases.
func TestTrailing_MonotonicLong(t *testing.T) {
	cfg := core.PositionManagerConfig{
		TotalQuantity: 1, TSLegQuantity: 1,
		StopLossPoints: 500, StartTrailingStopPoints: 50, TrailingStopPoints: 20,
	}
	m := New(cfg, testLogger(t))
	m.OnSignal(longEntrySignal(1000, core.EntryOverrides{}), nil, "TXF", "TXFR1")

	prices := []float64{1040, 1060, 1055, 1080, 1070, 1100}
	var last float64
	for _, p := range prices {
		m.OnPriceUpdate(p, nil)
		leg := m.Position().Legs[0]
		if leg.Rule.TrailingStopActive {
			assert.GreaterOrEqual(t, leg.Rule.TrailingStopPrice, last,
				"trailing stop must never decrease once active")
			last = leg.Rule.TrailingStopPrice
		}
	}
	assert.Greater(t, last, 0.0)
}

// Once active, a short trailing stop never increases.
func TestTrailing_MonotonicShort(t *testing.T) {
	cfg := core.PositionManagerConfig{
		TotalQuantity: 1, TSLegQuantity: 1,
		StopLossPoints: 500, StartTrailingStopPoints: 50, TrailingStopPoints: 20,
	}
	m := New(cfg, testLogger(t))
	m.OnSignal(shortEntrySignal(1000, core.EntryOverrides{}), nil, "TXF", "TXFR1")

	prices := []float64{960, 940, 945, 920, 930, 900}
	last := 0.0
	first := true
	for _, p := range prices {
		m.OnPriceUpdate(p, nil)
		leg := m.Position().Legs[0]
		if leg.Rule.TrailingStopActive {
			if !first {
				assert.LessOrEqual(t, leg.Rule.TrailingStopPrice, last,
					"short trailing stop must never increase once active")
			}
			last = leg.Rule.TrailingStopPrice
			first = false
		}
	}
}

// Staged tightening then a close on the very next pullback to the
// tightened stop.
func TestTightening_ClosesOnPullbackToTightenedStop(t *testing.T) {
	cfg := core.PositionManagerConfig{
		TotalQuantity: 1, TSLegQuantity: 1,
		StopLossPoints:              500,
		StartTrailingStopPoints:     100,
		TrailingStopPoints:          100,
		TightenAfterPoints:          200,
		TightenedTrailingStopPoints: 40,
	}
	m := New(cfg, testLogger(t))
	m.OnSignal(longEntrySignal(1000, core.EntryOverrides{}), nil, "TXF", "TXFR1")

	// price rises to 1150: trailing activates (>= entry+100=1100) at 1150-100=1050.
	actions := m.OnPriceUpdate(1150, nil)
	assert.Empty(t, actions)
	leg := m.Position().Legs[0]
	require.True(t, leg.Rule.TrailingStopActive)
	assert.Equal(t, 1050.0, leg.Rule.TrailingStopPrice)

	// price rises to 1210: tighten fires (>= entry+200=1200), new stop = 1210-40=1170.
	actions = m.OnPriceUpdate(1210, nil)
	assert.Empty(t, actions)
	leg = m.Position().Legs[0]
	assert.True(t, leg.Rule.IsTightened)
	assert.Equal(t, 1170.0, leg.Rule.TrailingStopPrice)

	// price falls to 1170: touches the tightened stop exactly -> close.
	actions = m.OnPriceUpdate(1170, nil)
	require.Len(t, actions, 1)
	assert.Equal(t, core.ExitTrailingStop, actions[0].Metadata.ExitReason)
	assert.Equal(t, 1170.0, *actions[0].Metadata.TriggerPrice)
}

// Key-level trailing re-anchors on each broken level, then closes on
// a pullback below the re-anchored stop.
func TestKeyLevelTrailing(t *testing.T) {
	cfg := core.PositionManagerConfig{TotalQuantity: 1, TSLegQuantity: 1, StopLossPoints: 500}
	m := New(cfg, testLogger(t))
	ov := core.EntryOverrides{
		StopLossPrice:  ptr(50),
		KeyLevels:      []float64{120},
		KeyLevelBuffer: 10,
	}
	m.OnSignal(longEntrySignal(100, ov), nil, "TXF", "TXFR1")

	// Below the key level: no trailing activation yet.
	actions := m.OnPriceUpdate(103, nil)
	assert.Empty(t, actions)
	assert.False(t, m.Position().Legs[0].Rule.TrailingStopActive)

	// Crosses 120: trailing re-anchors at 120-10=110.
	actions = m.OnPriceUpdate(121, nil)
	assert.Empty(t, actions)
	leg := m.Position().Legs[0]
	require.True(t, leg.Rule.TrailingStopActive)
	assert.Equal(t, 110.0, leg.Rule.TrailingStopPrice)

	// Pullback to 109 triggers a close at the re-anchored stop.
	actions = m.OnPriceUpdate(109, nil)
	require.Len(t, actions, 1)
	assert.Equal(t, core.ExitTrailingStop, actions[0].Metadata.ExitReason)
	assert.Equal(t, 110.0, *actions[0].Metadata.TriggerPrice)
}

// MACD fast-stop fires once the position is in an adverse cross and
// unrealized loss exceeds the stop-loss threshold.
func TestFastStop_FiresOnAdverseCrossAndLossThreshold(t *testing.T) {
	cfg := core.PositionManagerConfig{
		TotalQuantity: 1, TSLegQuantity: 1,
		StopLossPoints: 80, StartTrailingStopPoints: 100000,
		EnableMACDFastStop: true,
	}
	m := New(cfg, testLogger(t))
	ov := core.EntryOverrides{StopLossPrice: ptr(0)}
	m.OnSignal(longEntrySignal(1000, ov), nil, "TXF", "TXFR1")
	m.Position().IsInMACDAdverseCross = true

	bars := core.Bars{{Symbol: "TXF", Time: time.Unix(1000, 0), Close: 919}}
	actions := m.OnPriceUpdate(919, bars)
	require.Len(t, actions, 1)
	assert.Equal(t, core.ExitFastStop, actions[0].Metadata.ExitReason)

	for _, legID := range actions[0].Metadata.LegIDs {
		m.OnFill(legID, 919, time.Unix(1000, 0), core.ExitFastStop)
	}
	assert.False(t, m.HasPosition())
}

// Momentum exhaustion fires when recent candle strength shows fading
// follow-through in the held direction.
func TestMomentumExit_ConsecutiveWeakBars(t *testing.T) {
	cfg := core.PositionManagerConfig{TotalQuantity: 1, TSLegQuantity: 1, StopLossPoints: 5000}
	m := New(cfg, testLogger(t))
	ov := core.EntryOverrides{
		StopLossPrice: ptr(0),
		Momentum: &core.MomentumParams{
			MinProfit: 80, Lookback: 5, WeakThreshold: 0.45, MinWeakBars: 3,
		},
	}
	m.OnSignal(longEntrySignal(1000, ov), nil, "TXF", "TXFR1")

	// The last lookback bars, the current closed bar included: candle
	// strengths 0.8, 0.3, 0.25, 0.2, 0.35 give four consecutive weak
	// trailing bars.
	strengths := []float64{0.8, 0.3, 0.25, 0.2, 0.35}
	bars := make(core.Bars, 0, len(strengths))
	for i, s := range strengths {
		bars = append(bars, core.Bar{
			Symbol: "TXF",
			Time:   time.Unix(int64(1000+i), 0),
			Low:    0, High: 1, Open: s, Close: s,
		})
	}

	actions := m.OnPriceUpdate(1120, bars)
	require.Len(t, actions, 1)
	assert.Equal(t, core.ExitMomentumExit, actions[0].Metadata.ExitReason)
}
