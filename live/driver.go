// Package live implements the same per-leg orchestration as package
// backtest, but paced by wall-clock sleeps instead of a bar loop, and
// driven by live ticks/bar fetches against a market-data adapter.
package live

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/executor"
	"github.com/pohanwww/auto-trade/logger"
	"github.com/pohanwww/auto-trade/notify"
	"github.com/pohanwww/auto-trade/positionmgr"
	"github.com/pohanwww/auto-trade/storage"
	"github.com/pohanwww/auto-trade/strategy"
)

// MarketData is the external market-data adapter: tick subscription,
// historical bar fetch and timeframe resampling live behind this
// interface; only the contract the driver consumes is specified here.
type MarketData interface {
	Bars(ctx context.Context, symbol, subSymbol, timeframe string, lookback int) (core.Bars, error)
	Price(ctx context.Context, symbol string) (price float64, at time.Time, err error)
}

// Driver runs one trading unit against live market data and a live
// Executor. Single-threaded: it blocks only on network I/O to the
// broker/market-data adapter and on deliberate pacing sleeps.
type Driver struct {
	log      logger.Logger
	pm       *positionmgr.Manager
	strategy strategy.Strategy
	exec     executor.Executor
	data     MarketData
	notifier notify.Notifier
	store    *storage.PositionStore

	symbol, subSymbol, timeframe string
	barLookback                  int

	signalCheckInterval   time.Duration
	positionCheckInterval time.Duration
}

// Config bundles Driver's constructor parameters.
type Config struct {
	Log                   logger.Logger
	PM                    *positionmgr.Manager
	Strategy              strategy.Strategy
	Executor              executor.Executor
	Data                  MarketData
	Notifier              notify.Notifier
	Store                 *storage.PositionStore
	Symbol, SubSymbol     string
	Timeframe             string
	BarLookback           int
	SignalCheckInterval   time.Duration
	PositionCheckInterval time.Duration
}

// NewDriver builds a Driver. A nil Notifier defaults to notify.NoOp{}.
func NewDriver(c Config) *Driver {
	if c.Notifier == nil {
		c.Notifier = notify.NoOp{}
	}
	return &Driver{
		log:                   c.Log,
		pm:                    c.PM,
		strategy:              c.Strategy,
		exec:                  c.Executor,
		data:                  c.Data,
		notifier:              c.Notifier,
		store:                 c.Store,
		symbol:                c.Symbol,
		subSymbol:             c.SubSymbol,
		timeframe:             c.Timeframe,
		barLookback:           c.BarLookback,
		signalCheckInterval:   c.SignalCheckInterval,
		positionCheckInterval: c.PositionCheckInterval,
	}
}

// Run loops until ctx is cancelled: while flat it polls for entry
// signals at signal_check_interval (aligned to the wall clock); while
// holding a position it polls price/time-exit at
// position_check_interval. Cancellation exits cleanly.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			d.log.Info("live driver: context cancelled, exiting")
			return nil
		}

		if d.pm.HasPosition() {
			d.pollPosition(ctx)
			if !sleepCtx(ctx, d.positionCheckInterval) {
				return nil
			}
			continue
		}

		d.pollSignal(ctx)
		if !sleepCtx(ctx, d.nextSignalBoundary()) {
			return nil
		}
	}
}

// nextSignalBoundary is the wait until the next wall-clock boundary
// aligned to signalCheckInterval.
func (d *Driver) nextSignalBoundary() time.Duration {
	if d.signalCheckInterval <= 0 {
		return time.Second
	}
	now := time.Now()
	elapsed := now.Sub(now.Truncate(d.signalCheckInterval))
	wait := d.signalCheckInterval - elapsed
	if wait <= 0 {
		wait = d.signalCheckInterval
	}
	return wait
}

// pollSignal fetches bars with backoff-guarded retry on a market-data
// gap (log and continue, never crash), evaluates the strategy, and on
// an entry signal opens the position immediately against the live
// executor. There is no deferred-entry stage here: no next-bar-open
// exists to wait for against a live tick feed.
func (d *Driver) pollSignal(ctx context.Context) {
	bars, err := d.fetchBarsWithBackoff(ctx)
	if err != nil {
		d.log.WithError(err).Warn("live driver: market data gap, skipping this poll")
		d.notifier.OnError(err)
		return
	}
	if len(bars) == 0 {
		return
	}

	price, _, err := d.data.Price(ctx, d.symbol)
	if err != nil {
		price = bars[len(bars)-1].Close
	}

	sig := d.strategy.Evaluate(bars, price, d.symbol)
	if sig.Type != core.EntryLong && sig.Type != core.EntryShort {
		return
	}

	actions := d.pm.OnSignal(sig, bars, d.symbol, d.subSymbol)
	d.executeAndApply(actions)

	if d.pm.HasPosition() && d.store != nil {
		p := d.pm.Position()
		rec := storage.NewPositionRecord(p.Symbol, p.SubSymbol, p.Direction.String(),
			p.TotalQty, p.EntryPrice, firstStopLoss(p), p.EntryTime, d.timeframe)
		if err := d.store.Save(d.subSymbol, rec); err != nil {
			d.log.WithError(err).Warn("live driver: persist position record failed")
		}
	}
}

// firstStopLoss is the stop-loss price of the position's first leg;
// every leg shares the same initial stop at open time.
func firstStopLoss(p *core.ManagedPosition) float64 {
	if len(p.Legs) == 0 {
		return 0
	}
	return p.Legs[0].Rule.StopLossPrice
}

// pollPosition checks the forced time exit, then feeds the latest
// price (and bars, for fast-stop/momentum) through the held position's
// per-leg exit checks and trailing updates.
func (d *Driver) pollPosition(ctx context.Context) {
	price, now, err := d.data.Price(ctx, d.symbol)
	if err != nil {
		d.log.WithError(err).Warn("live driver: price fetch failed")
		d.notifier.OnError(err)
		return
	}

	d.executeAndApply(d.pm.CheckTimeExit(now, price))
	if d.pm.HasPosition() {
		bars, err := d.fetchBarsWithBackoff(ctx)
		if err != nil {
			bars = nil
		}
		d.executeAndApply(d.pm.OnPriceUpdate(price, bars))
	}

	if !d.pm.HasPosition() {
		d.strategy.OnPositionClosed()
		if d.store != nil {
			_ = d.store.Delete(d.subSymbol)
		}
	}
}

// executeAndApply runs every OrderAction through the executor and, on
// success, advances the PM via OnFill/OnEntryFill. A failed fill
// leaves PM state untouched — the live driver simply treats the next
// tick as a fresh opportunity.
func (d *Driver) executeAndApply(actions []core.OrderAction) {
	for _, action := range actions {
		fill := d.exec.Execute(action)
		d.notifier.OnOrder(action, fill)
		if !fill.Success {
			d.log.Warnf("live driver: execution failed for %s %s: %s", action.Symbol, action.Reason, fill.Message)
			continue
		}

		if action.Type == core.OrderOpen {
			d.pm.OnEntryFill(fill.FillPrice, fill.FillTime)
			continue
		}

		legIDs := action.Metadata.LegIDs
		if len(legIDs) == 0 {
			legIDs = []string{action.LegID}
		}
		for _, legID := range legIDs {
			d.pm.OnFill(legID, fill.FillPrice, fill.FillTime, action.Metadata.ExitReason)
		}
	}
}

func (d *Driver) fetchBarsWithBackoff(ctx context.Context) (core.Bars, error) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: true}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		bars, err := d.data.Bars(ctx, d.symbol, d.subSymbol, d.timeframe, d.barLookback)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
