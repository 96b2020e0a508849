package executor

import (
	"time"

	"github.com/pohanwww/auto-trade/core"
)

// Backtest is the simulated Executor the backtest driver drives. It
// is stateful only insofar as the driver calls SetMarketState before
// each Execute. It does no balance tracking — the backtest driver
// itself owns cash and the equity curve.
type Backtest struct {
	price    float64
	time     time.Time
	slippage float64
}

// NewBacktest builds a Backtest executor with a fixed per-fill
// slippage in points, applied against the entry (open) side only —
// exits are supplied an already-resolved fill price by the driver.
func NewBacktest(slippage float64) *Backtest {
	return &Backtest{slippage: slippage}
}

// SetMarketState updates the executor's view of "now" ahead of the
// next Execute call.
func (e *Backtest) SetMarketState(price float64, t time.Time) {
	e.price = price
	e.time = t
}

// Execute fills immediately against the current market state. For
// opens, fill price is price +/- slippage in the adverse direction
// (buying costs slippage, selling receives less). For closes, the
// driver has already resolved the exact fill price via SetMarketState,
// so Execute returns it unchanged.
func (e *Backtest) Execute(action core.OrderAction) core.FillResult {
	price := e.price
	if action.Type == core.OrderOpen {
		ops := core.OpsFor(action.Action)
		price = ops.StepToward(price, e.slippage)
	}
	return core.FillResult{
		Success:   true,
		FillPrice: price,
		FillTime:  e.time,
		FillQty:   action.Quantity,
	}
}
