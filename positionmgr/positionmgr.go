// Package positionmgr implements the PositionManager state machine:
// the per-leg owner of stops, targets, trailing logic, staged
// tightening, key-level trailing, momentum-exhaustion exit and the
// MACD adverse-cross fast-stop.
package positionmgr

import (
	"fmt"
	"math"
	"time"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/indicator"
	"github.com/pohanwww/auto-trade/logger"
)

// Manager owns at most one core.ManagedPosition at a time.
type Manager struct {
	config core.PositionManagerConfig
	log    logger.Logger

	position    *core.ManagedPosition
	keyLevelIdx int
	nextLegSeq  int
}

// New builds a Manager from a validated config. Callers must call
// config.Validate() themselves; the config loader is the only place
// quantity-sum validation happens.
func New(config core.PositionManagerConfig, log logger.Logger) *Manager {
	return &Manager{config: config, log: log}
}

// HasPosition reports whether a position is currently held.
func (m *Manager) HasPosition() bool {
	return m.position != nil && m.position.Status != core.PositionClosed
}

// Position returns the currently held position, or nil.
func (m *Manager) Position() *core.ManagedPosition {
	return m.position
}

// Reset drops any held position and transient state.
func (m *Manager) Reset() {
	m.position = nil
	m.keyLevelIdx = 0
}

// OnSignal opens a position from an entry signal when none is held;
// any other signal, or a signal while holding, is a no-op.
func (m *Manager) OnSignal(sig core.Signal, bars core.Bars, symbol, subSymbol string) []core.OrderAction {
	if m.HasPosition() {
		return nil
	}
	if sig.Type != core.EntryLong && sig.Type != core.EntryShort {
		return nil
	}
	return m.openPosition(sig, bars, symbol, subSymbol)
}

func (m *Manager) openPosition(sig core.Signal, bars core.Bars, symbol, subSymbol string) []core.OrderAction {
	isLong := sig.Type == core.EntryLong
	direction := core.Sell
	if isLong {
		direction = core.Buy
	}
	ops := core.OpsFor(direction)

	entry := math.Trunc(sig.Price)
	ov := sig.Overrides

	stopLoss := m.calculateInitialStopLoss(entry, bars, ops, ov)

	tpDistance := m.config.TakeProfitDistance(entry)
	if ov.TakeProfitPoints != nil {
		tpDistance = *ov.TakeProfitPoints
	}
	takeProfit := ops.StepToward(entry, tpDistance)

	startDistance := m.config.StartTrailingDistance(entry)
	if ov.StartTrailingStopPoints != nil {
		startDistance = *ov.StartTrailingStopPoints
	}
	startTrailing := ops.StepToward(entry, startDistance)

	var tightenAfter *float64
	if m.config.HasTightening() {
		v := ops.StepToward(entry, m.config.TightenAfterDistance(entry))
		tightenAfter = &v
	}
	tightenedDistance := m.config.TightenedDistance(entry)

	position := &core.ManagedPosition{
		PositionID:   fmt.Sprintf("%s-%d", subSymbol, time.Now().UnixNano()),
		Symbol:       symbol,
		SubSymbol:    subSymbol,
		Direction:    direction,
		EntryPrice:   entry,
		TotalQty:     m.config.TotalQuantity,
		HighestPrice: entry,
		LowestPrice:  entry,
		Status:       core.PositionOpen,
		Overrides:    ov,
	}

	if m.config.TPLegQuantity > 0 {
		position.Legs = append(position.Legs, &core.PositionLeg{
			LegID:    m.nextLegID(),
			Type:     core.TakeProfitLeg,
			Quantity: m.config.TPLegQuantity,
			Status:   core.LegOpen,
			Rule: core.ExitRule{
				StopLossPrice:               stopLoss,
				TakeProfitPrice:             floatPtr(takeProfit),
				StartTrailingStopPrice:      floatPtr(startTrailing),
				TightenAfterPrice:           tightenAfter,
				TightenedTrailingStopPoints: tightenedDistance,
			},
		})
	}
	if m.config.TSLegQuantity > 0 {
		position.Legs = append(position.Legs, &core.PositionLeg{
			LegID:    m.nextLegID(),
			Type:     core.TrailingStopLeg,
			Quantity: m.config.TSLegQuantity,
			Status:   core.LegOpen,
			Rule: core.ExitRule{
				StopLossPrice:               stopLoss,
				StartTrailingStopPrice:      floatPtr(startTrailing),
				TightenAfterPrice:           tightenAfter,
				TightenedTrailingStopPoints: tightenedDistance,
			},
		})
	}

	m.position = position
	m.keyLevelIdx = 0
	m.log.Infof("position opened: %s %s qty=%d entry=%.0f sl=%.0f tp=%.0f",
		symbol, direction, m.config.TotalQuantity, entry, stopLoss, takeProfit)

	return []core.OrderAction{{
		Action:    direction,
		Symbol:    symbol,
		SubSymbol: subSymbol,
		Quantity:  m.config.TotalQuantity,
		Type:      core.OrderOpen,
		Reason:    sig.Reason,
	}}
}

func (m *Manager) nextLegID() string {
	m.nextLegSeq++
	return fmt.Sprintf("leg-%d", m.nextLegSeq)
}

// calculateInitialStopLoss resolves the SL price honoring overrides,
// else deriving it from the last 31 bars' extreme, else falling back
// to a fixed offset from entry.
func (m *Manager) calculateInitialStopLoss(entry float64, bars core.Bars, ops core.DirectionOps, ov core.EntryOverrides) float64 {
	if ov.StopLossPrice != nil {
		return *ov.StopLossPrice
	}
	if ov.StopLossDistance != nil {
		return ops.StepAway(entry, *ov.StopLossDistance)
	}

	const lookback = 31
	if len(bars) >= lookback {
		window := bars[len(bars)-lookback:]
		extreme := core.MinOf(window.Lows())
		if ops.Sign() < 0 {
			extreme = core.MaxOf(window.Highs())
		}
		return ops.StepAway(extreme, m.config.StopLossDistance(entry))
	}

	return ops.StepAway(entry, m.config.StopLossDistance(entry))
}

// OnEntryFill overwrites the held position's realized entry anchors
// (price, time, highest/lowest trackers) from the actual opening fill.
// SL/TP/TS prices resolved at signal time are left untouched; exit
// triggers keep the originally-signaled absolute levels.
func (m *Manager) OnEntryFill(fillPrice float64, fillTime time.Time) {
	if !m.HasPosition() {
		return
	}
	p := m.position
	p.EntryPrice = fillPrice
	p.EntryTime = fillTime
	p.HighestPrice = fillPrice
	p.LowestPrice = fillPrice
}

// CheckTimeExit emits a close-all action with reason TimeExit if
// force_exit_time is configured and now has reached it on the same day.
func (m *Manager) CheckTimeExit(now time.Time, price float64) []core.OrderAction {
	if !m.HasPosition() || m.config.ForceExitTime == "" {
		return nil
	}
	t, err := time.Parse("15:04", m.config.ForceExitTime)
	if err != nil {
		return nil
	}
	forceTime := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if now.Before(forceTime) {
		return nil
	}
	return []core.OrderAction{m.closeAll(core.ExitTimeExit, price)}
}

// OnPriceUpdate updates trackers and runs the MACD fast-stop, the
// momentum-exhaustion exit, per-leg exit checks and trailing updates,
// in that order; the first group that produces actions wins the probe.
// The fast-stop's "any leg trailing active" veto is deliberately read
// before this price has a chance to activate trailing. bars may be
// nil; fast-stop/momentum checks are skipped without it.
func (m *Manager) OnPriceUpdate(price float64, bars core.Bars) []core.OrderAction {
	if !m.HasPosition() {
		return nil
	}
	p := m.position
	p.UpdatePriceTracking(price)
	ops := core.OpsFor(p.Direction)

	if bars != nil {
		if fs := m.checkMACDFastStop(bars, price, ops); len(fs) > 0 {
			return fs
		}
		if me := m.checkMomentumExhaustion(bars, price); len(me) > 0 {
			return me
		}
	}

	var actions []core.OrderAction
	fired := map[string]bool{}

	for _, leg := range p.OpenLegs() {
		if reason, trigger, ok := m.checkLegExit(leg, price, ops); ok {
			actions = append(actions, m.closeLeg(leg, reason, trigger))
			fired[leg.LegID] = true
		}
	}

	remaining := make([]*core.PositionLeg, 0, len(p.Legs))
	for _, leg := range p.OpenLegs() {
		if !fired[leg.LegID] {
			remaining = append(remaining, leg)
		}
	}

	if len(remaining) > 0 {
		if len(p.Overrides.KeyLevels) > 0 {
			m.updateKeyLevelTrailing(remaining, price, ops)
		} else {
			m.updateStandardTrailing(remaining, price, ops)
		}
	}

	return actions
}

// checkLegExit runs the fixed SL -> TS -> TP order; only the first
// triggered condition per leg per call fires.
func (m *Manager) checkLegExit(leg *core.PositionLeg, price float64, ops core.DirectionOps) (core.ExitReason, float64, bool) {
	if ops.Unfavorable(price, leg.Rule.StopLossPrice) {
		return core.ExitStopLoss, leg.Rule.StopLossPrice, true
	}
	if leg.Rule.TrailingStopActive && leg.Rule.TrailingStopPrice != 0 {
		if ops.Unfavorable(price, leg.Rule.TrailingStopPrice) {
			return core.ExitTrailingStop, leg.Rule.TrailingStopPrice, true
		}
	}
	if leg.Type == core.TakeProfitLeg && leg.Rule.TakeProfitPrice != nil {
		if ops.Favorable(price, *leg.Rule.TakeProfitPrice) {
			return core.ExitTakeProfit, *leg.Rule.TakeProfitPrice, true
		}
	}
	return core.ExitHold, 0, false
}

func (m *Manager) currentTrailingDistance(leg *core.PositionLeg, entry float64) float64 {
	if leg.Rule.IsTightened {
		return leg.Rule.TightenedTrailingStopPoints
	}
	if m.position.Overrides.TrailingStopPoints != nil {
		return *m.position.Overrides.TrailingStopPoints
	}
	return m.config.TrailingDistance(entry)
}

// updateStandardTrailing applies activation / tightening / monotonic
// trailing maintenance, per leg. The stop only ever moves closer to
// market in the favorable direction.
func (m *Manager) updateStandardTrailing(legs []*core.PositionLeg, price float64, ops core.DirectionOps) {
	entry := m.position.EntryPrice

	for _, leg := range legs {
		if leg.Rule.StartTrailingStopPrice == nil {
			continue
		}

		if !leg.Rule.TrailingStopActive {
			if ops.Favorable(price, *leg.Rule.StartTrailingStopPrice) {
				leg.Rule.TrailingStopActive = true
				leg.Rule.TrailingStopPrice = ops.StepAway(price, m.currentTrailingDistance(leg, entry))
			}
			continue
		}

		if !leg.Rule.IsTightened && leg.Rule.TightenAfterPrice != nil && ops.Favorable(price, *leg.Rule.TightenAfterPrice) {
			next := ops.StepAway(price, leg.Rule.TightenedTrailingStopPoints)
			if ops.Favorable(next, leg.Rule.TrailingStopPrice) {
				leg.Rule.TrailingStopPrice = next
			}
			leg.Rule.IsTightened = true
			continue
		}

		next := ops.StepAway(price, m.currentTrailingDistance(leg, entry))
		if ops.Favorable(next, leg.Rule.TrailingStopPrice) {
			leg.Rule.TrailingStopPrice = next
		}
	}
}

// updateKeyLevelTrailing re-anchors the trailing stop at each broken
// key level in turn; once all levels are broken it falls back to a
// dynamic distance of floor(entry*0.005).
func (m *Manager) updateKeyLevelTrailing(legs []*core.PositionLeg, price float64, ops core.DirectionOps) {
	p := m.position
	ov := p.Overrides

	if ov.KeyLevelMinProfit != nil && p.UnrealizedPoints(price) < *ov.KeyLevelMinProfit {
		m.updateStandardTrailing(legs, price, ops)
		return
	}

	isLong := p.IsLong()
	crossedAny := false
	for m.keyLevelIdx < len(ov.KeyLevels) {
		level := ov.KeyLevels[m.keyLevelIdx]
		crossed := (isLong && price > level) || (!isLong && price < level)
		if !crossed {
			break
		}
		newStop := ops.StepAway(level, ov.KeyLevelBuffer)
		for _, leg := range legs {
			leg.Rule.TrailingStopActive = true
			leg.Rule.TrailingStopPrice = newStop
		}
		m.keyLevelIdx++
		crossedAny = true
	}

	// The dynamic distance takes over only on updates after the final
	// level was broken; the update that breaks a level keeps that
	// level's anchored stop.
	if m.keyLevelIdx < len(ov.KeyLevels) || crossedAny {
		return
	}

	dynamicDistance := math.Floor(p.EntryPrice * 0.005)
	for _, leg := range legs {
		if !leg.Rule.TrailingStopActive {
			continue
		}
		next := ops.StepAway(price, dynamicDistance)
		if ops.Favorable(next, leg.Rule.TrailingStopPrice) {
			leg.Rule.TrailingStopPrice = next
		}
	}
}

// checkMACDFastStop fires a close-all FastStop when the position has
// entered an adverse MACD cross and unrealized loss exceeds the SL
// threshold, no leg's trailing stop active yet. Evaluated at most once
// per distinct latest-bar timestamp.
func (m *Manager) checkMACDFastStop(bars core.Bars, price float64, ops core.DirectionOps) []core.OrderAction {
	if !m.config.EnableMACDFastStop || len(bars) == 0 {
		return nil
	}
	p := m.position
	barTime := bars[len(bars)-1].Time
	if p.LastFastStopBarTime.Equal(barTime) {
		return nil
	}
	p.LastFastStopBarTime = barTime

	threshold := m.config.StopLossDistance(p.EntryPrice)
	unrealizedLoss := -p.UnrealizedPoints(price)

	if !p.IsInMACDAdverseCross && unrealizedLoss < threshold {
		return nil
	}

	anyTrailing := false
	for _, leg := range p.OpenLegs() {
		if leg.Rule.TrailingStopActive {
			anyTrailing = true
		}
	}

	if p.IsInMACDAdverseCross && !anyTrailing && unrealizedLoss > threshold {
		return []core.OrderAction{m.closeAll(core.ExitFastStop, price)}
	}

	macd := indicator.MACDFromBars(bars, 12, 26, 9)
	var adverseCross, favorableCross bool
	if p.IsLong() {
		adverseCross = indicator.CheckDeathCross(macd, 0)
		favorableCross = indicator.CheckGoldenCross(macd, 0)
	} else {
		adverseCross = indicator.CheckGoldenCross(macd, 0)
		favorableCross = indicator.CheckDeathCross(macd, 0)
	}

	if adverseCross {
		p.IsInMACDAdverseCross = true
		if !anyTrailing && unrealizedLoss > threshold {
			return []core.OrderAction{m.closeAll(core.ExitFastStop, price)}
		}
	} else if favorableCross {
		p.IsInMACDAdverseCross = false
	}

	return nil
}

// checkMomentumExhaustion fires a close-all MomentumExit when recent
// bars show fading follow-through in the held direction. Evaluated at
// most once per bar timestamp.
func (m *Manager) checkMomentumExhaustion(bars core.Bars, price float64) []core.OrderAction {
	p := m.position
	mp := p.Overrides.Momentum
	if mp == nil {
		return nil
	}
	barTime := bars[len(bars)-1].Time
	if p.LastMomentumBarTime.Equal(barTime) {
		return nil
	}
	p.LastMomentumBarTime = barTime

	if p.UnrealizedPoints(price) < mp.MinProfit {
		return nil
	}
	if len(bars) < mp.Lookback {
		return nil
	}

	window := bars[len(bars)-mp.Lookback:]
	isLong := p.IsLong()

	consecutiveWeak := 0
	for i := len(window) - 1; i >= 0; i-- {
		strength := indicator.CandleStrength(window[i])
		weak := (isLong && strength < mp.WeakThreshold) || (!isLong && strength > 1-mp.WeakThreshold)
		if !weak {
			break
		}
		consecutiveWeak++
	}

	shrinking := 0
	for i := 1; i < len(window); i++ {
		body := math.Abs(window[i].Close - window[i].Open)
		prevBody := math.Abs(window[i-1].Close - window[i-1].Open)
		if body < 0.7*prevBody {
			shrinking++
		}
	}

	conditionA := consecutiveWeak >= mp.MinWeakBars
	conditionB := shrinking >= mp.Lookback-2 && consecutiveWeak >= 2

	if conditionA || conditionB {
		return []core.OrderAction{m.closeAll(core.ExitMomentumExit, price)}
	}
	return nil
}

// closeAll builds a single close-all OrderAction for every open leg,
// bundled by leg ID in metadata.
func (m *Manager) closeAll(reason core.ExitReason, price float64) core.OrderAction {
	p := m.position
	var legIDs []string
	total := 0
	for _, leg := range p.OpenLegs() {
		legIDs = append(legIDs, leg.LegID)
		total += leg.Quantity
	}
	return core.OrderAction{
		Action:    opposite(p.Direction),
		Symbol:    p.Symbol,
		SubSymbol: p.SubSymbol,
		Quantity:  total,
		Type:      core.OrderClose,
		Reason:    reason.String(),
		Metadata: core.OrderMetadata{
			ExitReason:   reason,
			TriggerPrice: floatPtr(price),
			LegIDs:       legIDs,
		},
	}
}

func (m *Manager) closeLeg(leg *core.PositionLeg, reason core.ExitReason, trigger float64) core.OrderAction {
	p := m.position
	return core.OrderAction{
		Action:    opposite(p.Direction),
		Symbol:    p.Symbol,
		SubSymbol: p.SubSymbol,
		Quantity:  leg.Quantity,
		Type:      core.OrderClose,
		LegID:     leg.LegID,
		Reason:    reason.String(),
		Metadata: core.OrderMetadata{
			ExitReason:   reason,
			TriggerPrice: floatPtr(trigger),
		},
	}
}

// OnFill closes the named leg; when every leg has closed the held
// position is cleared. Callers must not invoke this for a failed
// execution — position state stays as-is until a real fill arrives.
func (m *Manager) OnFill(legID string, fillPrice float64, fillTime time.Time, reason core.ExitReason) {
	if !m.HasPosition() {
		return
	}
	for _, leg := range m.position.Legs {
		if leg.LegID == legID && leg.Status == core.LegOpen {
			leg.Status = core.LegClosed
			leg.ExitPrice = fillPrice
			leg.ExitTime = fillTime
			leg.ExitReason = reason
		}
	}
	if m.position.AllClosed() {
		m.position.Status = core.PositionClosed
		m.log.Infof("position closed: %s @ %.0f (%s)", m.position.Symbol, fillPrice, reason)
		m.position = nil
		m.keyLevelIdx = 0
	} else {
		m.position.Status = core.PositionPartiallyClosed
	}
}

func opposite(d core.Direction) core.Direction {
	if d == core.Buy {
		return core.Sell
	}
	return core.Buy
}

func floatPtr(v float64) *float64 { return &v }
