package core

// SignalType is the tagged variant a Strategy emits each bar.
type SignalType int

const (
	Hold SignalType = iota
	EntryLong
	EntryShort
	Exit
)

// MomentumParams parameterizes the PM's momentum-exhaustion exit.
// Present only when a strategy opts in via EntryOverrides.Momentum.
type MomentumParams struct {
	MinProfit     float64 // gate: unrealized points must reach this before checking
	Lookback      int     // bars scanned for consecutive-weak / shrinking-body counts
	WeakThreshold float64 // candle-strength threshold marking a "weak" bar
	MinWeakBars   int     // condition A: consecutive_weak >= MinWeakBars
}

// EntryOverrides is the closed set of channels a strategy can use to
// parameterize PositionManager behavior for one trade. Every field is
// optional; nil/empty means "use the PM config default".
type EntryOverrides struct {
	StopLossPrice              *float64
	StopLossDistance           *float64
	TakeProfitPoints           *float64
	StartTrailingStopPoints    *float64
	TrailingStopPoints         *float64
	KeyLevels                  []float64 // ordered nearest-to-farthest from entry
	KeyLevelBuffer             float64
	KeyLevelMinProfit          *float64
	Momentum                   *MomentumParams
	EntryType                  string // free-text reason tag ("strong", "retest", "breakout", ...)
}

// Signal is what Strategy.Evaluate returns each bar.
type Signal struct {
	Type       SignalType
	Symbol     string
	Price      float64
	Confidence float64
	Reason     string
	Overrides  EntryOverrides
}

// HoldSignal is the canonical no-op signal.
func HoldSignal(symbol, reason string) Signal {
	return Signal{Type: Hold, Symbol: symbol, Reason: reason}
}
