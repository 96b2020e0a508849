package backtest

import (
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/executor"
	"github.com/pohanwww/auto-trade/logger"
	"github.com/pohanwww/auto-trade/positionmgr"
	"github.com/pohanwww/auto-trade/strategy"
)

// Trade is one closed position record, the unit Report() consumes.
type Trade struct {
	Symbol, SubSymbol string
	Direction         core.Direction
	EntryPrice        float64
	EntryTime         time.Time
	ExitPrice         float64
	ExitTime          time.Time
	Quantity          int
	Reason            core.ExitReason
	PnLPoints         float64
	PnLTWD            float64
}

// EquityPoint is one sample of the equity curve: realized cash plus
// unrealized P&L on any currently held position.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// TradingUnit pairs one strategy instance with its own PM config — the
// unit of sequential replay.
type TradingUnit struct {
	Name     string
	Strategy strategy.Strategy
	Config   core.PositionManagerConfig
}

// UnitResult is one unit's full replay output.
type UnitResult struct {
	Name           string
	Trades         []Trade
	EquityCurve    []EquityPoint
	InitialCapital float64
}

// Driver is the deterministic bar-replay loop. It is purely
// sequential: a tight loop over bars, no goroutines, no suspension
// points.
type Driver struct {
	log            logger.Logger
	initialCapital float64
	slippage       float64
	showProgress   bool
}

// NewDriver builds a Driver. slippage is points applied against entry
// fills only; exit fills are resolved exactly.
func NewDriver(log logger.Logger, initialCapital, slippage float64, showProgress bool) *Driver {
	return &Driver{log: log, initialCapital: initialCapital, slippage: slippage, showProgress: showProgress}
}

// deferredSignal is the "at most one pending entry" state the driver
// carries across iterations: a signal observed at bar i fills at bar
// i+1's open, never sooner.
type deferredSignal struct {
	signal core.Signal
	bars   core.Bars
}

// Run replays bars against every unit, sequentially, over the same
// stream. A unit's state cannot influence another's.
func (d *Driver) Run(bars core.Bars, symbol, subSymbol string, units []TradingUnit) []UnitResult {
	results := make([]UnitResult, 0, len(units))
	for _, unit := range units {
		results = append(results, d.runUnit(bars, symbol, subSymbol, unit))
	}
	return results
}

func (d *Driver) runUnit(bars core.Bars, symbol, subSymbol string, unit TradingUnit) UnitResult {
	if len(bars) == 0 {
		d.log.Warnf("backtest: unit %s has no bars to replay, producing empty result", unit.Name)
		return UnitResult{Name: unit.Name, InitialCapital: d.initialCapital}
	}

	pm := positionmgr.New(unit.Config, d.log)
	exec := executor.NewBacktest(d.slippage)

	cash := d.initialCapital
	var equity []EquityPoint
	var trades []Trade
	var pending *deferredSignal
	var openEntry struct {
		price float64
		time  time.Time
	}

	var bar core.Bar
	var progress *progressbar.ProgressBar
	if d.showProgress {
		progress = progressbar.Default(int64(len(bars)), unit.Name)
	}

	for i := range bars {
		bar = bars[i]
		ctxBars := bars[:i+1]
		exec.SetMarketState(bar.Open, bar.Time)

		if pending != nil {
			actions := pm.OnSignal(pending.signal, pending.bars, symbol, subSymbol)
			pending = nil
			for _, action := range actions {
				if action.Type != core.OrderOpen {
					continue
				}
				fill := exec.Execute(action)
				if !fill.Success {
					continue
				}
				pm.OnEntryFill(fill.FillPrice, fill.FillTime)
				openEntry.price = fill.FillPrice
				openEntry.time = fill.FillTime
			}
		}

		if pm.HasPosition() {
			// Once any probe produces a close, the rest of the bar is
			// skipped; a surviving leg waits for the next bar.
			fired := d.applyCloses(pm, exec, symbol, subSymbol, pm.CheckTimeExit(bar.Time, bar.Close), bar, &cash, &trades, openEntry)

			if !fired && pm.HasPosition() {
				exec.SetMarketState(bar.Open, bar.Time)
				fired = d.applyCloses(pm, exec, symbol, subSymbol, pm.OnPriceUpdate(bar.Open, ctxBars), bar, &cash, &trades, openEntry)
			}

			if !fired && pm.HasPosition() {
				first, second := bar.Low, bar.High
				if !pm.Position().IsLong() {
					first, second = bar.High, bar.Low
				}
				exec.SetMarketState(first, bar.Time)
				fired = d.applyCloses(pm, exec, symbol, subSymbol, pm.OnPriceUpdate(first, ctxBars), bar, &cash, &trades, openEntry)

				if !fired && pm.HasPosition() {
					exec.SetMarketState(second, bar.Time)
					fired = d.applyCloses(pm, exec, symbol, subSymbol, pm.OnPriceUpdate(second, ctxBars), bar, &cash, &trades, openEntry)
				}
			}

			if !fired && pm.HasPosition() {
				exec.SetMarketState(bar.Close, bar.Time)
				d.applyCloses(pm, exec, symbol, subSymbol, pm.OnPriceUpdate(bar.Close, ctxBars), bar, &cash, &trades, openEntry)
			}

			if !pm.HasPosition() {
				unit.Strategy.OnPositionClosed()
			}
		} else {
			sig := unit.Strategy.Evaluate(ctxBars, bar.Close, symbol)
			if sig.Type == core.EntryLong || sig.Type == core.EntryShort {
				pending = &deferredSignal{signal: sig, bars: ctxBars}
			}
		}

		unrealized := 0.0
		if pm.HasPosition() {
			p := pm.Position()
			qty := 0
			for _, leg := range p.OpenLegs() {
				qty += leg.Quantity
			}
			unrealized = p.UnrealizedPoints(bar.Close) * float64(qty) * core.PointValue(symbol)
		}
		equity = append(equity, EquityPoint{Time: bar.Time, Equity: cash + unrealized})

		if progress != nil {
			_ = progress.Add(1)
		}
	}

	return UnitResult{Name: unit.Name, Trades: trades, EquityCurve: equity, InitialCapital: d.initialCapital}
}

// applyCloses executes every close OrderAction against exec, fires
// PM.OnFill for each leg involved, and records a Trade + cash delta
// per leg closed. Reports whether any close was executed, so the
// caller can stop probing this bar. A failed fill leaves PM state
// untouched — the backtest executor never fails, but the shape is
// kept general for parity with the live path.
func (d *Driver) applyCloses(
	pm *positionmgr.Manager,
	exec *executor.Backtest,
	symbol, subSymbol string,
	actions []core.OrderAction,
	bar core.Bar,
	cash *float64,
	trades *[]Trade,
	entry struct {
		price float64
		time  time.Time
	},
) bool {
	closedAny := false
	for _, action := range actions {
		if action.Type != core.OrderClose {
			continue
		}
		isLong := true
		if pm.Position() != nil {
			isLong = pm.Position().IsLong()
		}
		reason := action.Metadata.ExitReason
		trigger := bar.Close
		if action.Metadata.TriggerPrice != nil {
			trigger = *action.Metadata.TriggerPrice
		}
		fillPrice := ResolveFillPrice(reason, isLong, trigger, bar)
		exec.SetMarketState(fillPrice, bar.Time)
		fill := exec.Execute(action)
		if !fill.Success {
			continue
		}
		closedAny = true

		legIDs := action.Metadata.LegIDs
		if len(legIDs) == 0 {
			legIDs = []string{action.LegID}
		}

		legQty := map[string]int{}
		if pm.Position() != nil {
			for _, leg := range pm.Position().Legs {
				legQty[leg.LegID] = leg.Quantity
			}
		}

		direction := core.Buy
		if !isLong {
			direction = core.Sell
		}

		for _, legID := range legIDs {
			qty, ok := legQty[legID]
			if !ok {
				qty = action.Quantity
			}
			pm.OnFill(legID, fill.FillPrice, fill.FillTime, reason)

			pnlPoints := fill.FillPrice - entry.price
			if !isLong {
				pnlPoints = entry.price - fill.FillPrice
			}
			pnlTWD := pnlPoints * float64(qty) * core.PointValue(symbol)
			*cash += pnlTWD

			*trades = append(*trades, Trade{
				Symbol:     symbol,
				SubSymbol:  subSymbol,
				Direction:  direction,
				EntryPrice: entry.price,
				EntryTime:  entry.time,
				ExitPrice:  fill.FillPrice,
				ExitTime:   fill.FillTime,
				Quantity:   qty,
				Reason:     reason,
				PnLPoints:  pnlPoints,
				PnLTWD:     pnlTWD,
			})
		}
	}
	return closedAny
}
