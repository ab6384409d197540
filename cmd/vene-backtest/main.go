package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/12Lemon123456/vene-quant/internal/backtest"
	"github.com/12Lemon123456/vene-quant/internal/chart"
	"github.com/12Lemon123456/vene-quant/internal/config"
	"github.com/12Lemon123456/vene-quant/internal/store"
	"github.com/12Lemon123456/vene-quant/internal/strategy"
	"github.com/12Lemon123456/vene-quant/internal/strategy/builtins"
	"github.com/12Lemon123456/vene-quant/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "ticker to backtest (default from config)")
	csvPath := flag.String("csv", "", "read bars from this CSV file")
	source := flag.String("source", "", "bar source: csv or parquet")
	lookback := flag.Int("lookback", 0, "breakout lookback in days")
	slippage := flag.Float64("slippage", 0, "fractional slippage per fill")
	fee := flag.Float64("fee", 0, "fractional fee per fill")
	stopLoss := flag.Float64("stop-loss", 0, "fractional stop-loss below entry")
	chartPath := flag.String("chart", "", "write an HTML chart to this path")
	tradesPath := flag.String("trades-csv", "", "write the trade log to this CSV path")
	save := flag.Bool("save", false, "save the run to the SQLite run store")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags only override the config when given explicitly.
	bc := &cfg.Backtest
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "symbol":
			bc.Symbol = strings.ToUpper(*symbol)
		case "csv":
			bc.CSVPath = *csvPath
			bc.Source = "csv"
		case "source":
			bc.Source = *source
		case "lookback":
			bc.LookbackDays = *lookback
		case "slippage":
			bc.Slippage = *slippage
		case "fee":
			bc.FeeRate = *fee
		case "stop-loss":
			bc.StopLoss = *stopLoss
		case "chart":
			bc.ChartPath = *chartPath
		case "trades-csv":
			bc.TradesCSV = *tradesPath
		case "save":
			bc.SaveRun = *save
		}
	})

	// Logs go to stderr so the summary on stdout stays clean.
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	bc := cfg.Backtest

	start, end, err := bc.Range()
	if err != nil {
		return err
	}
	bars, err := store.OpenBarStore(bc.Source, cfg.Storage.DataDir, bc.CSVPath, bc.Symbol)
	if err != nil {
		return err
	}

	params := backtest.Params{
		Lookback: bc.LookbackDays,
		Slippage: bc.Slippage,
		FeeRate:  bc.FeeRate,
		StopLoss: bc.StopLoss,
	}
	registry := strategy.NewRegistry()
	builtins.Register(registry, params)

	bt := strategy.NewBacktester(bars, registry, logger)
	outcome, err := bt.Run(ctx, "breakout", bc.Symbol, bc.Market, start, end)
	if err != nil {
		return err
	}
	if cs, ok := bars.(*store.CSVStore); ok && cs.Skipped > 0 {
		logger.Warn("skipped unparseable csv rows", "path", cs.Path, "rows", cs.Skipped)
	}

	fmt.Print(backtest.FormatSummary(outcome.Result))

	if bc.TradesCSV != "" {
		if err := writeFile(bc.TradesCSV, func(f *os.File) error {
			return backtest.WriteTradesCSV(f, outcome.Result)
		}); err != nil {
			return fmt.Errorf("writing trades: %w", err)
		}
		logger.Info("trade log written", "path", bc.TradesCSV)
	}

	if bc.ChartPath != "" {
		if err := writeFile(bc.ChartPath, func(f *os.File) error {
			return chart.RenderBacktest(f, bc.Symbol, outcome.Series, outcome.Result)
		}); err != nil {
			return fmt.Errorf("rendering chart: %w", err)
		}
		logger.Info("chart written", "path", bc.ChartPath)
	}

	if bc.SaveRun {
		runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer runs.Close()

		id, err := runs.SaveRun(ctx, outcome.RunRecord())
		if err != nil {
			return err
		}
		logger.Info("run saved", "id", id, "db", cfg.Storage.SQLitePath)
	}
	return nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
