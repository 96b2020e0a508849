package backtest

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/metric"
)

// Statistics is the set of summary numbers reported for one trading
// unit: counts, win rate, PnL points/TWD, return %, profit factor,
// max drawdown, Sharpe, and the buy-and-hold delta.
type Statistics struct {
	TradeCount     int
	WinCount       int
	WinRate        float64
	PnLPoints      float64
	PnLTWD         float64
	ReturnPct      float64
	ProfitFactor   float64
	MaxDrawdownTWD float64
	Sharpe         float64
	BuyHoldPnLTWD  float64
	VsBuyHoldTWD   float64

	// WinRateCI is a bootstrap confidence interval on the win rate, a
	// guard against reading too much into a handful of trades.
	WinRateCI metric.BootstrapInterval

	ByReason map[core.ExitReason]int
}

// CalculateStatistics computes Statistics for a UnitResult, comparing
// against a simple buy-and-hold of the same bar stream.
func CalculateStatistics(result UnitResult, bars core.Bars, symbol string) Statistics {
	var stats Statistics
	stats.TradeCount = len(result.Trades)
	stats.ByReason = map[core.ExitReason]int{}

	if stats.TradeCount == 0 {
		return stats
	}

	pnls := make([]float64, stats.TradeCount)
	for i, t := range result.Trades {
		pnls[i] = t.PnLTWD
		stats.PnLPoints += t.PnLPoints
		stats.PnLTWD += t.PnLTWD
		if t.PnLTWD >= 0 {
			stats.WinCount++
		}
		stats.ByReason[t.Reason]++
	}
	stats.WinRate = float64(stats.WinCount) / float64(stats.TradeCount)
	stats.ProfitFactor = metric.ProfitFactor(pnls)
	stats.WinRateCI = metric.Bootstrap(pnls, metric.WinRateOf, 200, 0.95)

	if result.InitialCapital > 0 {
		stats.ReturnPct = stats.PnLTWD / result.InitialCapital * 100
	}

	equity := make([]float64, len(result.EquityCurve))
	for i, p := range result.EquityCurve {
		equity[i] = p.Equity
	}
	stats.MaxDrawdownTWD = metric.MaxDrawdown(equity)

	returns := tradeReturns(result.Trades, result.InitialCapital)
	stats.Sharpe = metric.Sharpe(returns, tradingPeriodsPerYear)

	if len(bars) > 1 {
		qty := 1.0
		pv := core.PointValue(symbol)
		stats.BuyHoldPnLTWD = (bars[len(bars)-1].Close - bars[0].Open) * qty * pv
	}
	stats.VsBuyHoldTWD = stats.PnLTWD - stats.BuyHoldPnLTWD

	return stats
}

// tradingPeriodsPerYear approximates trading sessions per year for
// Sharpe annualization (TXF day+night sessions, ~252 trading days).
const tradingPeriodsPerYear = 252

func tradeReturns(trades []Trade, capital float64) []float64 {
	if capital <= 0 {
		capital = 1
	}
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.PnLTWD / capital
	}
	return out
}

// TradesByReason groups a unit's trades by exit reason.
func TradesByReason(trades []Trade) map[core.ExitReason][]Trade {
	return lo.GroupBy(trades, func(t Trade) core.ExitReason { return t.Reason })
}

// Render writes the monospaced per-unit report block: summary stats
// followed by a numbered trade list.
func Render(w *strings.Builder, unitName string, stats Statistics, trades []Trade) {
	fmt.Fprintf(w, "=== %s ===\n", unitName)
	fmt.Fprintf(w, "Trades: %d   Win rate: %.1f%% (95%% CI %.1f–%.1f%%)   Profit factor: %.2f\n",
		stats.TradeCount, stats.WinRate*100, stats.WinRateCI.Lower*100, stats.WinRateCI.Upper*100, stats.ProfitFactor)
	fmt.Fprintf(w, "PnL: %.1f pts / %.0f TWD   Return: %.2f%%\n",
		stats.PnLPoints, stats.PnLTWD, stats.ReturnPct)
	fmt.Fprintf(w, "Max drawdown: %.0f TWD   Sharpe: %.2f\n", stats.MaxDrawdownTWD, stats.Sharpe)
	fmt.Fprintf(w, "Buy & hold: %.0f TWD   vs strategy: %+.0f TWD\n\n", stats.BuyHoldPnLTWD, stats.VsBuyHoldTWD)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Dir", "Entry", "Exit", "Qty", "Reason", "PnL (TWD)"})
	for i, t := range trades {
		dir := "L"
		if t.Direction == core.Sell {
			dir = "S"
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			dir,
			fmt.Sprintf("%.0f@%s", t.EntryPrice, t.EntryTime.Format("01-02 15:04")),
			fmt.Sprintf("%.0f@%s", t.ExitPrice, t.ExitTime.Format("01-02 15:04")),
			fmt.Sprintf("%d", t.Quantity),
			t.Reason.String(),
			fmt.Sprintf("%.0f", t.PnLTWD),
		})
	}
	table.Render()
	fmt.Fprintln(w)
}
