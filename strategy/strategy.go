// Package strategy defines the Strategy evaluation contract shared by
// every concrete strategy (macd, orb, scalp, bollinger).
package strategy

import "github.com/pohanwww/auto-trade/core"

// Strategy evaluates one bar's worth of market data and decides whether
// to enter, exit, or hold. Implementations are per-instrument and keep
// whatever internal state machine they need between calls; they do NOT
// track open positions themselves — that is the PositionManager's job.
type Strategy interface {
	// Evaluate is called once per confirmed bar (and, for intrabar-aware
	// strategies, optionally on tick updates too) and returns the signal
	// for this evaluation.
	Evaluate(bars core.Bars, price float64, symbol string) core.Signal

	// OnPositionClosed notifies the strategy that the position it most
	// recently opened has fully closed, so internal machinery gated on
	// "currently flat" (cooldowns, state resets) can re-arm.
	OnPositionClosed()

	// Name identifies the strategy for logs, reports and config lookup.
	Name() string
}
