package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/12Lemon123456/vene-quant/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// Parquet
// ---------------------------------------------------------------------------

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("aapl", "us", 2024)
	want := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:     "AAPL",
			Timestamp:  day(2024, 1, 3),
			Open:       185.5,
			High:       187.0,
			Low:        185.0,
			Close:      186.0,
			Volume:     45000000,
			TradeCount: 450000,
			VWAP:       185.75,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  day(2023, 12, 29),
			Open:       193.9,
			High:       194.4,
			Low:        191.7,
			Close:      192.5,
			Volume:     42000000,
			TradeCount: 420000,
			VWAP:       192.9,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  day(2024, 1, 2),
			Open:       185.0,
			High:       186.5,
			Low:        184.0,
			Close:      185.5,
			Volume:     50000000,
			TradeCount: 500000,
			VWAP:       185.25,
		},
	}

	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", "us", day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 || got[1].Close != 186.0 {
		t.Errorf("closes = %v, %v, want 185.5, 186.0", got[0].Close, got[1].Close)
	}
	if got[1].VWAP != 185.75 || got[1].TradeCount != 450000 {
		t.Errorf("second bar = %+v, want VWAP 185.75 and 450000 trades", got[1])
	}

	// Open range spans both year files in order.
	all, err := ps.ReadBars(ctx, "AAPL", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars (open range): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ReadBars (open range) returned %d bars, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Errorf("bars not ascending at %d: %s after %s", i, all[i].Date(), all[i-1].Date())
		}
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	first := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 403, Volume: 30000000},
	}
	if err := ps.WriteBars(ctx, first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Same symbol and year: merged, and a repeated timestamp is replaced.
	second := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 404, Volume: 30000000},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Open: 403, High: 410, Low: 402, Close: 408, Volume: 35000000},
	}
	if err := ps.WriteBars(ctx, second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404 {
		t.Errorf("merged close = %v, want 404", got[0].Close)
	}
}

func TestParquetStoreReadBarsSessionDays(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	// Alpaca stamps daily bars at New York midnight.
	ny := time.FixedZone("EST", -5*60*60)
	var bars []domain.Bar
	for d := 27; d <= 31; d++ {
		bars = append(bars, domain.Bar{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 12, d, 0, 0, 0, 0, ny).UTC(),
			Open:      100, High: 101, Low: 99, Close: 100,
		})
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", "us", day(2024, 12, 27), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("ReadBars returned %d bars, want 5", len(got))
	}
	if got[4].Date() != "2024-12-31" {
		t.Errorf("last bar = %s, want 2024-12-31", got[4].Date())
	}

	got, err = ps.ReadBars(ctx, "AAPL", "us", day(2024, 12, 28), day(2024, 12, 30))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 || got[0].Date() != "2024-12-28" || got[2].Date() != "2024-12-30" {
		t.Errorf("inner range returned %d bars", len(got))
	}
}

func TestParquetStoreWriteKeepsUnreadableFile(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Open: 1, High: 2, Low: 1, Close: 2},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 3), Open: 1, High: 2, Low: 1, Close: 2},
	}
	if err := ps.WriteBars(ctx, first); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	path := ps.barPath("AAPL", "us", 2024)
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupting %s: %v", path, err)
	}

	next := []domain.Bar{{Symbol: "AAPL", Timestamp: day(2024, 1, 4), Open: 1, High: 2, Low: 1, Close: 2}}
	if err := ps.WriteBars(ctx, next); err == nil {
		t.Fatal("WriteBars over an unreadable year file returned nil error")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "garbage" {
		t.Error("unreadable year file was overwritten")
	}
}

func TestInRangeComparesDays(t *testing.T) {
	ts := time.Date(2024, 12, 31, 5, 0, 0, 0, time.UTC)
	tests := []struct {
		start, end time.Time
		want       bool
	}{
		{time.Time{}, time.Time{}, true},
		{day(2024, 12, 31), day(2024, 12, 31), true},
		{time.Time{}, day(2024, 12, 30), false},
		{day(2025, 1, 1), time.Time{}, false},
	}
	for _, tt := range tests {
		if got := inRange(ts, tt.start, tt.end); got != tt.want {
			t.Errorf("inRange(%s, %s, %s) = %v, want %v", ts, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	if syms, err := ps.ListSymbols(ctx, "us"); err != nil || len(syms) != 0 {
		t.Fatalf("ListSymbols on empty dir = %v, %v, want none", syms, err)
	}

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: day(2024, 1, 2), Open: 140.0, High: 141.0, Low: 139.0, Close: 140.5, Volume: 20000000},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Open: 185.0, High: 186.0, Low: 184.0, Close: 185.5, Volume: 50000000},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

// ---------------------------------------------------------------------------
// CSV
// ---------------------------------------------------------------------------

func TestReadCSVBars(t *testing.T) {
	in := "date,Open,HIGH,Low,Close,Adj Close,Volume\n" +
		"1980-12-15,0.122210,0.122210,0.121652,0.121652,0.094005,175884800\n" +
		"1980-12-12,0.128348,0.128906,0.128348,0.128348,0.099185,469033600\n" +
		"1980-12-16,,,,,,\n" +
		"1980-12-17,0.115513,0.116071,0.115513,0.0,0.089347,86441600\n" +
		"1980-12-18,0.118862,0.119420,0.118862,0.118862,0.091849,73449600\n"

	bars, skipped, err := ReadCSVBars(strings.NewReader(in), "AAPL")
	if err != nil {
		t.Fatalf("ReadCSVBars: %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	wantDates := []string{"1980-12-12", "1980-12-15", "1980-12-18"}
	for i, b := range bars {
		if b.Date() != wantDates[i] {
			t.Errorf("bars[%d].Date() = %s, want %s", i, b.Date(), wantDates[i])
		}
		if b.Symbol != "AAPL" {
			t.Errorf("bars[%d].Symbol = %q, want AAPL", i, b.Symbol)
		}
	}
	if bars[0].High != 0.128906 || bars[0].Volume != 469033600 {
		t.Errorf("bars[0] = %+v, want high 0.128906 volume 469033600", bars[0])
	}
}

func TestReadCSVBarsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing high", "Date,Open,Low,Close\n2024-01-02,1,1,1\n"},
		{"bad date", "Date,Open,High,Low,Close\nyesterday,1,1,1,1\n"},
		{"duplicate date", "Date,Open,High,Low,Close\n2024-01-02,1,1,1,1\n2024-01-02,2,2,2,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadCSVBars(strings.NewReader(tt.in), "X")
			if !errors.Is(err, ErrCSVFormat) {
				t.Errorf("err = %v, want ErrCSVFormat", err)
			}
		})
	}
}

func TestCSVStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices", "msft.csv")
	cs := NewCSVStore(path, "")
	ctx := context.Background()

	if cs.Symbol != "MSFT" {
		t.Errorf("Symbol = %q, want MSFT from file stem", cs.Symbol)
	}

	bars := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Open: 403, High: 410, Low: 402, Close: 408.25, Volume: 35000000},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 403.5, Volume: 30000000},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 5), Open: 408, High: 409, Low: 401, Close: 402, Volume: 31000000},
	}
	if err := cs.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(raw), "Date,Open,High,Low,Close,Volume\n2024-03-01,") {
		t.Errorf("file starts %q, want header then 2024-03-01", string(raw[:40]))
	}

	got, err := cs.ReadBars(ctx, "", "us", day(2024, 3, 2), day(2024, 3, 4))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || got[0].Close != 408.25 {
		t.Fatalf("ReadBars = %+v, want the 2024-03-04 bar", got)
	}

	syms, err := cs.ListSymbols(ctx, "us")
	if err != nil || len(syms) != 1 || syms[0] != "MSFT" {
		t.Errorf("ListSymbols = %v, %v, want [MSFT]", syms, err)
	}
}

func TestWriteCSVBarsFormat(t *testing.T) {
	var buf bytes.Buffer
	bars := []domain.Bar{{Timestamp: day(2020, 1, 2), Open: 1.5, High: 2, Low: 1, Close: 1.75, Volume: 10}}
	if err := WriteCSVBars(&buf, bars); err != nil {
		t.Fatalf("WriteCSVBars: %v", err)
	}
	want := "Date,Open,High,Low,Close,Volume\n2020-01-02,1.5,2,1,1.75,10\n"
	if buf.String() != want {
		t.Errorf("WriteCSVBars =\n%q\nwant\n%q", buf.String(), want)
	}
}

// ---------------------------------------------------------------------------
// SQLite
// ---------------------------------------------------------------------------

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs", "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return store
}

func TestSQLiteStoreOpen(t *testing.T) {
	store := openTestDB(t)
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
	// Migrations are idempotent.
	if err := store.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLiteStoreSaveGetRun(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	avg := 0.0425
	run := &RunRecord{
		Symbol:        "AAPL",
		Strategy:      "breakout",
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Start:         "2023-01-03",
		End:           "2023-12-29",
		Bars:          250,
		Lookback:      20,
		Slippage:      0.002,
		FeeRate:       0.0005,
		StopLoss:      0.05,
		TradeCount:    1,
		AverageReturn: &avg,
		TotalReturn:   0.0425,
		WinRate:       1,
		Fills: []FillRecord{
			{Date: "2023-02-01", Action: "buy", Reason: "breakout", Price: 145.29, Fee: 0.0726},
			{Date: "2023-03-01", Action: "sell", Reason: "stop-loss", Price: 151.55, Fee: 0.0757},
		},
	}

	id, err := store.SaveRun(ctx, run)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Errorf("SaveRun id = %d, run.ID = %d", id, run.ID)
	}

	got, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Symbol != "AAPL" || got.Bars != 250 || got.Lookback != 20 {
		t.Errorf("GetRun = %+v", got)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
	if got.AverageReturn == nil || *got.AverageReturn != avg {
		t.Errorf("AverageReturn = %v, want %v", got.AverageReturn, avg)
	}
	if len(got.Fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(got.Fills))
	}
	if got.Fills[1].Seq != 1 || got.Fills[1].Reason != "stop-loss" || got.Fills[1].Price != 151.55 {
		t.Errorf("Fills[1] = %+v", got.Fills[1])
	}

	fills, err := store.ListFills(ctx, id)
	if err != nil {
		t.Fatalf("ListFills: %v", err)
	}
	if len(fills) != 2 || fills[0].Action != "buy" || fills[1].Action != "sell" {
		t.Errorf("ListFills = %+v, want buy then sell", fills)
	}

	if _, err := store.GetRun(ctx, id+100); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(unknown) err = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteStoreNoTradeRun(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	id, err := store.SaveRun(ctx, &RunRecord{Symbol: "KO", Strategy: "breakout", Start: "2024-01-02", End: "2024-02-01", Bars: 22, Lookback: 20})
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.AverageReturn != nil {
		t.Errorf("AverageReturn = %v, want nil for a run without trades", *got.AverageReturn)
	}
	if len(got.Fills) != 0 {
		t.Errorf("got %d fills, want 0", len(got.Fills))
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt was not set on save")
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, sym := range []string{"AAPL", "MSFT", "TSLA"} {
		run := &RunRecord{
			Symbol:    sym,
			Strategy:  "breakout",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Fills:     []FillRecord{{Date: "2024-01-02", Action: "buy", Reason: "breakout", Price: 1, Fee: 0}},
		}
		if _, err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%s): %v", sym, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns(2) returned %d runs", len(runs))
	}
	if runs[0].Symbol != "TSLA" || runs[1].Symbol != "MSFT" {
		t.Errorf("ListRuns order = %s, %s, want TSLA, MSFT", runs[0].Symbol, runs[1].Symbol)
	}
	if runs[0].Fills != nil {
		t.Errorf("ListRuns loaded fills: %+v", runs[0].Fills)
	}

	all, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns(0): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListRuns(0) returned %d runs, want 3", len(all))
	}
}

func TestOpenBarStore(t *testing.T) {
	bs, err := OpenBarStore("CSV", "/data", "/tmp/aapl.csv", "AAPL")
	if err != nil {
		t.Fatalf("OpenBarStore(csv): %v", err)
	}
	if cs, ok := bs.(*CSVStore); !ok || cs.Symbol != "AAPL" || cs.Path != "/tmp/aapl.csv" {
		t.Errorf("OpenBarStore(csv) = %#v", bs)
	}

	bs, err = OpenBarStore("parquet", "/data", "", "AAPL")
	if err != nil {
		t.Fatalf("OpenBarStore(parquet): %v", err)
	}
	if ps, ok := bs.(*ParquetStore); !ok || ps.DataDir != "/data" {
		t.Errorf("OpenBarStore(parquet) = %#v", bs)
	}

	if _, err := OpenBarStore("csv", "/data", "", "AAPL"); err == nil {
		t.Error("csv without a path should fail")
	}
	if _, err := OpenBarStore("postgres", "/data", "", "AAPL"); err == nil {
		t.Error("unknown source should fail")
	}
}
