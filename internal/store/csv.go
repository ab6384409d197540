package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/12Lemon123456/vene-quant/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*CSVStore)(nil)

// ErrCSVFormat is returned when a price file cannot be interpreted as daily
// bars.
var ErrCSVFormat = errors.New("invalid price csv")

// csvHeader is the column layout written by WriteBars.
var csvHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"1/2/2006",
}

// CSVStore implements BarStore over a single CSV file holding one symbol's
// daily history with at least Date, Open, High, Low and Close columns.
type CSVStore struct {
	Path   string
	Symbol string // symbol reported for the file; defaults to the file stem

	// Skipped counts rows dropped by the last ReadBars for missing or
	// non-positive prices.
	Skipped int
}

// NewCSVStore returns a CSVStore for the file at path.
func NewCSVStore(path, symbol string) *CSVStore {
	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	return &CSVStore{Path: path, Symbol: symbol}
}

// WriteBars replaces the file with the given bars in date order.
func (s *CSVStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	if err := WriteCSVBars(f, bars); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", s.Path, err)
	}
	return f.Close()
}

// ReadBars loads the file and returns bars within [start, end]. The symbol
// and market arguments are ignored beyond labelling: the file holds one
// instrument.
func (s *CSVStore) ReadBars(_ context.Context, symbol string, _ string, start, end time.Time) ([]domain.Bar, error) {
	if symbol == "" {
		symbol = s.Symbol
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, skipped, err := ReadCSVBars(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Path, err)
	}
	s.Skipped = skipped

	out := bars[:0]
	for _, b := range bars {
		if inRange(b.Timestamp, start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListSymbols returns the single symbol the file holds.
func (s *CSVStore) ListSymbols(_ context.Context, _ string) ([]string, error) {
	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return []string{s.Symbol}, nil
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// ReadCSVBars parses daily bars from r. Column names are matched case
// insensitively and extra columns are ignored. Rows with an empty, NaN or
// non-positive price are dropped and counted in skipped. The result is sorted
// by date; a repeated date is an error.
func ReadCSVBars(r io.Reader, symbol string) (bars []domain.Bar, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, fmt.Errorf("%w: missing header", ErrCSVFormat)
		}
		return nil, 0, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	idx := make(map[string]int, 5)
	for _, name := range []string{"date", "open", "high", "low", "close"} {
		i, ok := cols[name]
		if !ok {
			return nil, 0, fmt.Errorf("%w: missing %q column", ErrCSVFormat, name)
		}
		idx[name] = i
	}
	volCol, hasVol := cols["volume"]

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		line++

		ts, err := parseDate(field(rec, idx["date"]))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: %v", ErrCSVFormat, line, err)
		}

		var prices [4]float64
		ok := true
		for k, name := range []string{"open", "high", "low", "close"} {
			v, perr := strconv.ParseFloat(field(rec, idx[name]), 64)
			if perr != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				ok = false
				break
			}
			prices[k] = v
		}
		if !ok {
			skipped++
			continue
		}

		var vol int64
		if hasVol {
			if v, perr := strconv.ParseFloat(field(rec, volCol), 64); perr == nil && v > 0 {
				vol = int64(v)
			}
		}

		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    vol,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Equal(bars[i-1].Timestamp) {
			return nil, 0, fmt.Errorf("%w: duplicate date %s", ErrCSVFormat, bars[i].Date())
		}
	}
	return bars, skipped, nil
}

// WriteCSVBars writes bars in date order under the Date,Open,High,Low,Close,Volume header.
func WriteCSVBars(w io.Writer, bars []domain.Bar) error {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range sorted {
		if err := cw.Write([]string{
			b.Date(),
			formatPrice(b.Open),
			formatPrice(b.High),
			formatPrice(b.Low),
			formatPrice(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
