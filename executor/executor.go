// Package executor defines the Executor capability PositionManager
// commands are translated through, shared by the live and backtest
// drivers.
package executor

import "github.com/pohanwww/auto-trade/core"

// Executor turns an OrderAction into a fill. Live and Backtest are the
// two implementations.
type Executor interface {
	Execute(action core.OrderAction) core.FillResult
}
