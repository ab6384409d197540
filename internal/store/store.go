// Package store defines storage interfaces for daily bars and backtest runs,
// with Parquet, CSV and SQLite implementations.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/12Lemon123456/vene-quant/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within
	// [start, end], sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunRecord is a persisted backtest run with its fills.
type RunRecord struct {
	ID        int64
	Symbol    string
	Strategy  string
	CreatedAt time.Time
	Start     string // first bar date
	End       string // last bar date
	Bars      int

	Lookback int
	Slippage float64
	FeeRate  float64
	StopLoss float64

	TradeCount    int
	AverageReturn *float64 // nil when the run made no trades
	TotalReturn   float64
	WinRate       float64

	Fills []FillRecord
}

// FillRecord is one executed trade of a run.
type FillRecord struct {
	Seq    int
	Date   string
	Action string
	Reason string
	Price  float64
	Fee    float64
}

// RunStore persists and retrieves backtest runs.
type RunStore interface {
	// SaveRun inserts a run and its fills, returning the new run ID.
	SaveRun(ctx context.Context, run *RunRecord) (int64, error)

	// GetRun retrieves a single run, including fills, by ID.
	GetRun(ctx context.Context, id int64) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	// Fills are not loaded.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// ListFills returns the fills of a run in execution order.
	ListFills(ctx context.Context, runID int64) ([]FillRecord, error)
}

// OpenBarStore returns the BarStore for a source name: "csv" reads the single
// file at csvPath for symbol, "parquet" reads the tree under dataDir.
func OpenBarStore(source, dataDir, csvPath, symbol string) (BarStore, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "csv":
		if csvPath == "" {
			return nil, fmt.Errorf("csv source needs a file path")
		}
		return NewCSVStore(csvPath, symbol), nil
	case "parquet", "":
		return NewParquetStore(dataDir), nil
	default:
		return nil, fmt.Errorf("unknown bar source %q (want csv or parquet)", source)
	}
}

// inRange reports whether the session day of ts lies in [start, end],
// comparing calendar days so a bar stamped at exchange-local midnight
// matches a date-only bound. A zero bound is open.
func inRange(ts, start, end time.Time) bool {
	day := utcDay(ts)
	if !start.IsZero() && day.Before(utcDay(start)) {
		return false
	}
	if !end.IsZero() && day.After(utcDay(end)) {
		return false
	}
	return true
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
