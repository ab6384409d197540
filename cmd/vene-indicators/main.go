package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/12Lemon123456/vene-quant/internal/chart"
	"github.com/12Lemon123456/vene-quant/internal/config"
	"github.com/12Lemon123456/vene-quant/internal/domain"
	"github.com/12Lemon123456/vene-quant/internal/indicator"
	"github.com/12Lemon123456/vene-quant/internal/store"
	"github.com/12Lemon123456/vene-quant/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "ticker (default from config)")
	csvPath := flag.String("csv", "", "read bars from this CSV file")
	window := flag.Int("window", 0, "number of most recent bars to chart")
	chartPath := flag.String("chart", "", "write the HTML chart to this path")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *symbol != "" {
		cfg.Backtest.Symbol = strings.ToUpper(*symbol)
	}
	if *csvPath != "" {
		cfg.Backtest.CSVPath = *csvPath
		cfg.Backtest.Source = "csv"
	}
	if *window > 0 {
		cfg.Indicators.WindowDays = *window
	}
	if *chartPath != "" {
		cfg.Indicators.ChartPath = *chartPath
	}

	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	bc, ic := cfg.Backtest, cfg.Indicators
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	bars, err := store.OpenBarStore(bc.Source, cfg.Storage.DataDir, bc.CSVPath, bc.Symbol)
	if err != nil {
		log.Fatalf("failed to open bar source: %v", err)
	}
	raw, err := bars.ReadBars(ctx, bc.Symbol, bc.Market, time.Time{}, time.Time{})
	if err != nil {
		log.Fatalf("failed to read bars: %v", err)
	}
	full, err := domain.NewSeries(bc.Symbol, raw)
	if err != nil {
		log.Fatalf("invalid bars: %v", err)
	}
	if full.Len() == 0 {
		log.Fatalf("no bars for %s", bc.Symbol)
	}

	series := full
	if ic.WindowDays > 0 {
		series = full.Tail(ic.WindowDays)
	}
	closes := series.Closes()
	logger.Info("computing indicators", "symbol", bc.Symbol, "bars", series.Len(),
		"from", series.At(0).Date(), "to", series.Last().Date())

	lines := chart.IndicatorLines{Overlays: make(map[string][]float64)}
	for _, p := range ic.SMAPeriods {
		sma := indicator.SMA{Period: p}
		if err := sma.Validate(); err != nil {
			log.Fatalf("indicators.sma_periods: %v", err)
		}
		lines.Overlays[sma.Name()] = sma.Line(closes)
		if v, ok := indicator.Last(lines.Overlays[sma.Name()]); ok {
			fmt.Printf("latest %d-day average close: %.2f\n", p, v)
		}
	}

	for _, p := range ic.EMAPeriods {
		ema := indicator.EMA{Period: p}
		if err := ema.Validate(); err != nil {
			log.Fatalf("indicators.ema_periods: %v", err)
		}
		for name, line := range ema.Compute(closes) {
			lines.Overlays[name] = line
			if v, ok := indicator.Last(line); ok {
				fmt.Printf("latest %d-day exponential average: %.2f\n", p, v)
			}
		}
	}

	macd := indicator.MACD{Fast: ic.MACD.Fast, Slow: ic.MACD.Slow, Signal: ic.MACD.Signal}
	if err := macd.Validate(); err != nil {
		log.Fatalf("indicators.macd: %v", err)
	}
	lines.MACD = macd.Compute(closes)
	m, okM := indicator.Last(lines.MACD[indicator.LineMACD])
	s, okS := indicator.Last(lines.MACD[indicator.LineSignal])
	h, okH := indicator.Last(lines.MACD[indicator.LineHist])
	if okM && okS && okH {
		fmt.Printf("latest macd: %.4f  signal: %.4f  hist: %.4f\n", m, s, h)
	} else {
		fmt.Printf("macd needs more than %d bars, have %d\n", macd.Warmup(), series.Len())
	}

	if ic.ChartPath == "" {
		return
	}
	f, err := os.Create(ic.ChartPath)
	if err != nil {
		log.Fatalf("failed to create chart: %v", err)
	}
	defer f.Close()
	if err := chart.RenderIndicators(f, bc.Symbol, series, lines); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	logger.Info("chart written", "path", ic.ChartPath)
}
