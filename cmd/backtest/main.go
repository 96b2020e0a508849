// Command backtest is the CLI entrypoint for historical replay: load
// config and bars, replay every requested trading unit, render the
// per-unit text report.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"

	"github.com/pohanwww/auto-trade/backtest"
	"github.com/pohanwww/auto-trade/config"
	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/logger"
	"github.com/pohanwww/auto-trade/logger/zerolog"
	"github.com/pohanwww/auto-trade/storage"
	"github.com/pohanwww/auto-trade/strategy"
	"github.com/pohanwww/auto-trade/strategy/bollinger"
	"github.com/pohanwww/auto-trade/strategy/macd"
	"github.com/pohanwww/auto-trade/strategy/orb"
	"github.com/pohanwww/auto-trade/strategy/scalp"
)

const dateLayout = "2006-01-02"

var (
	configPath   string
	barsPath     string
	startDate    string
	endDate      string
	days         int
	timeframe    string
	strategyList string
	capital      float64
	slippage     float64
	saveReport   string
	saveHistory  string
)

func main() {
	root := &cobra.Command{
		Use:     "backtest",
		Short:   "Replay historical bars against one or more trading units",
		Version: "1.0.0",
		RunE:    run,
	}

	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML strategy configuration")
	root.Flags().StringVar(&barsPath, "bars", "", "path to a CSV bar file (time,open,high,low,close,volume)")
	root.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	root.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	root.Flags().IntVar(&days, "days", 0, "replay only the trailing N days")
	root.Flags().StringVar(&timeframe, "timeframe", "", "timeframe override")
	root.Flags().StringVar(&strategyList, "strategy", "", "comma-separated strategy block names (default: active_strategy)")
	root.Flags().Float64Var(&capital, "capital", 1_000_000, "initial capital (TWD)")
	root.Flags().Float64Var(&slippage, "slippage", 1, "slippage points applied to entry fills")
	root.Flags().StringVar(&saveReport, "save-report", "", "path to write the text report to (default: stdout)")
	root.Flags().StringVar(&saveHistory, "save-history", "", "path to a SQLite file to record closed trades into")
	root.MarkFlagRequired("bars")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log, err := zerolog.New("info", time.RFC3339, true, false)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	names := strings.Split(strategyList, ",")
	if strategyList == "" {
		names = []string{cfg.ActiveStrategy}
	}

	units := make([]backtest.TradingUnit, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		block, ok := cfg.Strategies[name]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownStrategy, name)
		}
		if timeframe != "" {
			block.Trading.Timeframe = timeframe
		}
		strat, err := buildStrategy(name, block, log)
		if err != nil {
			return err
		}
		units = append(units, backtest.TradingUnit{
			Name:     name,
			Strategy: strat,
			Config:   block.Trading.ToPositionManagerConfig(block.Position),
		})
	}

	start, end, err := parseDateRange(startDate, endDate, days)
	if err != nil {
		return err
	}

	bars, err := loadCSVBars(barsPath, cfg.Symbol.Current, start, end)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		log.Warn("backtest: no bars loaded for the requested range, exiting with an empty report")
	}

	driver := backtest.NewDriver(log, capital, slippage, true)
	results := driver.Run(bars, cfg.Symbol.Current, cfg.Symbol.Contract, units)

	var report strings.Builder
	for _, result := range results {
		stats := backtest.CalculateStatistics(result, bars, cfg.Symbol.Current)
		backtest.Render(&report, result.Name, stats, result.Trades)
	}

	if saveHistory != "" {
		if err := recordHistory(saveHistory, results); err != nil {
			return err
		}
		log.Infof("backtest: trade history written to %s", saveHistory)
	}

	if saveReport != "" {
		if err := os.WriteFile(saveReport, []byte(report.String()), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Infof("backtest: report written to %s", saveReport)
		return nil
	}
	fmt.Print(report.String())
	return nil
}

// recordHistory persists every closed trade from every unit into the
// SQLite trade-history sink.
func recordHistory(path string, results []backtest.UnitResult) error {
	history, err := storage.OpenTradeHistory(path)
	if err != nil {
		return err
	}
	defer history.Close()

	for _, result := range results {
		for _, trade := range result.Trades {
			rec := storage.TradeRecord{
				Symbol:     trade.Symbol,
				SubSymbol:  trade.SubSymbol,
				Direction:  trade.Direction.String(),
				Quantity:   trade.Quantity,
				EntryPrice: trade.EntryPrice,
				EntryTime:  trade.EntryTime,
				ExitPrice:  trade.ExitPrice,
				ExitTime:   trade.ExitTime,
				Reason:     trade.Reason.String(),
				PnLPoints:  trade.PnLPoints,
				PnLTWD:     trade.PnLTWD,
				Strategy:   result.Name,
			}
			if err := history.Record(rec); err != nil {
				return fmt.Errorf("record trade history: %w", err)
			}
		}
	}
	return nil
}

func parseDateRange(start, end string, days int) (time.Time, time.Time, error) {
	var startT, endT time.Time
	var err error
	if end != "" {
		endT, err = time.Parse(dateLayout, end)
		if err != nil {
			return startT, endT, fmt.Errorf("parse --end: %w", err)
		}
	}
	if start != "" {
		startT, err = time.Parse(dateLayout, start)
		if err != nil {
			return startT, endT, fmt.Errorf("parse --start: %w", err)
		}
	} else if days > 0 {
		base := endT
		if base.IsZero() {
			base = time.Now()
		}
		startT = base.AddDate(0, 0, -days)
	}
	return startT, endT, nil
}

// buildStrategy decodes a strategy block's free-form Params (the
// `,remain` capture of every YAML key not in Trading/Position/
// Monitoring) into the concrete strategy package's Config struct and
// constructs it.
func buildStrategy(name string, block config.StrategyBlock, log logger.Logger) (strategy.Strategy, error) {
	switch block.StrategyType {
	case "macd":
		var c macd.Config
		if err := mapstructure.Decode(block.Params, &c); err != nil {
			return nil, fmt.Errorf("strategy %q: decode macd config: %w", name, err)
		}
		return macd.New(c, name), nil

	case "macd_bidirectional":
		var c macd.Config
		if err := mapstructure.Decode(block.Params, &c); err != nil {
			return nil, fmt.Errorf("strategy %q: decode macd config: %w", name, err)
		}
		c.Bidirectional = true
		return macd.New(c, name), nil

	case "orb":
		var c orb.Config
		if err := mapstructure.Decode(block.Params, &c); err != nil {
			return nil, fmt.Errorf("strategy %q: decode orb config: %w", name, err)
		}
		return orb.New(c, log), nil

	case "scalp":
		var c scalp.Config
		if err := mapstructure.Decode(block.Params, &c); err != nil {
			return nil, fmt.Errorf("strategy %q: decode scalp config: %w", name, err)
		}
		return scalp.New(c), nil

	case "bollinger":
		c := bollinger.DefaultConfig()
		if err := mapstructure.Decode(block.Params, &c); err != nil {
			return nil, fmt.Errorf("strategy %q: decode bollinger config: %w", name, err)
		}
		return bollinger.New(c), nil

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownStrategy, block.StrategyType)
	}
}
