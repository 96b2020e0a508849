// Package notify defines the outbound notification contract the
// engine's drivers push order/error events through.
package notify

import "github.com/pohanwww/auto-trade/core"

// Notifier is the outbound sink a driver reports to: free-text status
// messages, fill events, and errors.
type Notifier interface {
	Notify(message string)
	OnOrder(action core.OrderAction, fill core.FillResult)
	OnError(err error)
}

// NoOp discards every event; the default when no sink is configured.
type NoOp struct{}

func (NoOp) Notify(string)                            {}
func (NoOp) OnOrder(core.OrderAction, core.FillResult) {}
func (NoOp) OnError(error)                             {}
