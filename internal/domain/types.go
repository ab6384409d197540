// Package domain holds the market data types shared by the loaders, the
// backtest engine and the reporting tools.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
)

// ErrPrecondition is returned when a price series violates the ordering or
// completeness guarantees the engine relies on.
var ErrPrecondition = errors.New("price series precondition violated")

// Bar is one daily OHLCV bar.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Date returns the bar's calendar date formatted as YYYY-MM-DD.
func (b Bar) Date() string {
	return b.Timestamp.Format("2006-01-02")
}

// Series is an immutable, strictly date-ascending sequence of bars for a
// single instrument. The zero value is an empty series.
type Series struct {
	symbol string
	bars   []Bar
}

// NewSeries copies bars into a Series after checking that the slice is
// non-empty, that timestamps strictly increase and that every price field is
// a positive finite number. Bars are not re-sorted: ordering is the loader's
// job.
func NewSeries(symbol string, bars []Bar) (Series, error) {
	if len(bars) == 0 {
		return Series{}, fmt.Errorf("%w: empty series for %q", ErrPrecondition, symbol)
	}
	for i, b := range bars {
		if err := checkPrices(b); err != nil {
			return Series{}, fmt.Errorf("%w: bar %d (%s): %v", ErrPrecondition, i, b.Date(), err)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return Series{}, fmt.Errorf("%w: bar %d (%s) does not follow %s",
				ErrPrecondition, i, b.Date(), bars[i-1].Date())
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return Series{symbol: symbol, bars: cp}, nil
}

func checkPrices(b Bar) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return fmt.Errorf("%s price %v is missing or not positive", f.name, f.v)
		}
	}
	return nil
}

// Symbol returns the instrument the series belongs to.
func (s Series) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s Series) Len() int { return len(s.bars) }

// At returns the i-th bar.
func (s Series) At(i int) Bar { return s.bars[i] }

// Last returns the final bar. It panics on an empty series.
func (s Series) Last() Bar { return s.bars[len(s.bars)-1] }

// Bars returns a copy of the underlying bars.
func (s Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Highs returns the High of every bar in order.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.High
	}
	return out
}

// Closes returns the Close of every bar in order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Tail returns a series of the last n bars. A non-positive n or one larger
// than the series returns the series unchanged.
func (s Series) Tail(n int) Series {
	if n <= 0 || n >= len(s.bars) {
		return s
	}
	return Series{symbol: s.symbol, bars: s.bars[len(s.bars)-n:]}
}
