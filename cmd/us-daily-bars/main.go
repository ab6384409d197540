package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/12Lemon123456/vene-quant/internal/config"
	"github.com/12Lemon123456/vene-quant/internal/gather/us"
	"github.com/12Lemon123456/vene-quant/internal/store"
	"github.com/12Lemon123456/vene-quant/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated tickers (default from config)")
	start := flag.String("start", "", "first date to gather, YYYY-MM-DD (default from config)")
	refresh := flag.Bool("refresh", false, "refetch full history, ignoring resume state")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	job := cfg.Gather.USDaily
	if *symbols != "" {
		job.Symbols = strings.Split(*symbols, ",")
	}
	if *start != "" {
		job.StartDate = *start
	}
	if *refresh {
		job.Refresh = true
	}

	// Dual logger: stdout + temp log file.
	logFileName := filepath.Join(os.TempDir(), fmt.Sprintf("us-daily-bars-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	progressDir := filepath.Join(cfg.Storage.DataDir, "us", "daily")
	gatherer := us.NewDailyBarGatherer(cfg.Alpaca, job, pstore, progressDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting "+gatherer.Name(), "logFile", logFileName, "symbols", len(job.Symbols), "start", job.StartDate, "refresh", job.Refresh)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
