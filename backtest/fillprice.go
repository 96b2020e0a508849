// Package backtest implements the deterministic replay loop: bar-by-bar
// orchestration of strategies and the PositionManager against historical
// bars, with direction-aware gap-handling fill-price resolution and an
// equity curve that includes unrealized P&L.
package backtest

import "github.com/pohanwww/auto-trade/core"

// ResolveFillPrice decides, from an exit OrderAction's reason/trigger
// and the current bar's OHLC, whether the bar gapped through the
// trigger (fill at open) or the trigger itself was touched intrabar
// (fill at trigger). FastStop always fills at open;
// TimeExit/MomentumExit/unknown always fill at close.
func ResolveFillPrice(reason core.ExitReason, long bool, trigger float64, bar core.Bar) float64 {
	switch reason {
	case core.ExitTakeProfit:
		if long {
			if bar.Open >= trigger {
				return bar.Open
			}
			return trigger
		}
		if bar.Open <= trigger {
			return bar.Open
		}
		return trigger

	case core.ExitStopLoss, core.ExitTrailingStop:
		if long {
			if bar.Open <= trigger {
				return bar.Open
			}
			return trigger
		}
		if bar.Open >= trigger {
			return bar.Open
		}
		return trigger

	case core.ExitFastStop:
		return bar.Open

	default: // TimeExit, MomentumExit, any unknown reason
		return bar.Close
	}
}
