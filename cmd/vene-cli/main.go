package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/12Lemon123456/vene-quant/internal/config"
	"github.com/12Lemon123456/vene-quant/internal/store"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vene-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  runs [n]     List the n most recent saved backtests (default 20)\n")
		fmt.Fprintf(os.Stderr, "  show <id>    Show a saved backtest and its fills\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("vene-cli %s\n", version)

	case "runs":
		limit := 20
		if len(os.Args) > 2 {
			n, err := strconv.Atoi(os.Args[2])
			if err != nil {
				log.Fatalf("invalid limit %q", os.Args[2])
			}
			limit = n
		}
		withRuns(func(ctx context.Context, rs *store.SQLiteStore) error {
			return listRuns(ctx, rs, limit)
		})

	case "show":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		id, err := strconv.ParseInt(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("invalid run id %q", os.Args[2])
		}
		withRuns(func(ctx context.Context, rs *store.SQLiteStore) error {
			return showRun(ctx, rs, id)
		})

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func withRuns(fn func(context.Context, *store.SQLiteStore) error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	rs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer rs.Close()

	if err := fn(context.Background(), rs); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		log.Fatalf("%v", err)
	}
}

func listRuns(ctx context.Context, rs store.RunStore, limit int) error {
	runs, err := rs.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no saved runs")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tSTRATEGY\tRANGE\tN\tTRADES\tAVG\tTOTAL\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s..%s\t%d\t%d\t%s\t%.2f%%\t%s\n",
			r.ID, r.Symbol, r.Strategy, r.Start, r.End, r.Lookback, r.TradeCount,
			pct(r.AverageReturn), r.TotalReturn*100, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func showRun(ctx context.Context, rs store.RunStore, id int64) error {
	r, err := rs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("run %d: %s %s %s..%s (%d bars)\n", r.ID, r.Strategy, r.Symbol, r.Start, r.End, r.Bars)
	fmt.Printf("lookback %d  slippage %.4f  fee %.4f  stop %.2f%%\n", r.Lookback, r.Slippage, r.FeeRate, r.StopLoss*100)
	fmt.Printf("trades %d  average %s  total %.2f%%  win rate %.1f%%\n",
		r.TradeCount, pct(r.AverageReturn), r.TotalReturn*100, r.WinRate*100)
	if len(r.Fills) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tDATE\tACTION\tREASON\tPRICE\tFEE")
	for _, f := range r.Fills {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\t%.4f\n", f.Seq, f.Date, f.Action, f.Reason, f.Price, f.Fee)
	}
	return tw.Flush()
}

func pct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}
