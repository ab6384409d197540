// Package indicator computes the moving-average and MACD lines shown next to
// the breakout backtest. Every output line has the same length as the input
// closes; positions without enough history are NaN.
package indicator

import (
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// ErrPeriod is returned by Validate for an unusable period.
var ErrPeriod = errors.New("invalid indicator period")

// Indicator computes one or more named lines from a close series.
type Indicator interface {
	Name() string
	Validate() error
	Compute(closes []float64) map[string][]float64
}

var (
	_ Indicator = SMA{}
	_ Indicator = EMA{}
	_ Indicator = MACD{}
)

// ---------------------------------------------------------------------------
// SMA
// ---------------------------------------------------------------------------

// SMA is the simple moving average of Period closes. Until Period closes are
// available it averages whatever history exists, so the first value equals
// the first close.
type SMA struct {
	Period int
}

// Name returns "sma<period>".
func (s SMA) Name() string { return fmt.Sprintf("sma%d", s.Period) }

// Validate checks the period.
func (s SMA) Validate() error {
	if s.Period < 1 {
		return fmt.Errorf("%w: sma period %d", ErrPeriod, s.Period)
	}
	return nil
}

// Compute returns the average under the SMA's name.
func (s SMA) Compute(closes []float64) map[string][]float64 {
	return map[string][]float64{s.Name(): s.Line(closes)}
}

// Line returns the moving average for closes.
func (s SMA) Line(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	if s.Period == 1 {
		copy(out, closes)
		return out
	}
	warm := min(s.Period-1, len(closes))
	var sum float64
	for i := 0; i < warm; i++ {
		sum += closes[i]
		out[i] = sum / float64(i+1)
	}
	if len(closes) >= s.Period {
		full := talib.Sma(closes, s.Period)
		copy(out[warm:], full[warm:])
	}
	return out
}

// ---------------------------------------------------------------------------
// EMA
// ---------------------------------------------------------------------------

// EMA is the exponential moving average seeded with the SMA of the first
// Period closes.
type EMA struct {
	Period int
}

// Name returns "ema<period>".
func (e EMA) Name() string { return fmt.Sprintf("ema%d", e.Period) }

// Validate checks the period.
func (e EMA) Validate() error {
	if e.Period < 2 {
		return fmt.Errorf("%w: ema period %d", ErrPeriod, e.Period)
	}
	return nil
}

// Compute returns the average under the EMA's name.
func (e EMA) Compute(closes []float64) map[string][]float64 {
	if len(closes) < e.Period {
		return map[string][]float64{e.Name(): nanLine(len(closes))}
	}
	return map[string][]float64{e.Name(): maskWarmup(talib.Ema(closes, e.Period), e.Period-1)}
}

// ---------------------------------------------------------------------------
// MACD
// ---------------------------------------------------------------------------

// MACD line names returned by MACD.Compute.
const (
	LineMACD   = "macd"
	LineSignal = "signal"
	LineHist   = "hist"
)

// MACD is the moving-average convergence/divergence indicator: the fast EMA
// minus the slow EMA, its Signal-period EMA, and their difference.
type MACD struct {
	Fast   int
	Slow   int
	Signal int
}

// DefaultMACD returns the conventional 12/26/9 configuration.
func DefaultMACD() MACD { return MACD{Fast: 12, Slow: 26, Signal: 9} }

// Name returns "macd".
func (m MACD) Name() string { return "macd" }

// Validate checks that Fast and Slow are at least 2, Fast < Slow and Signal
// is positive.
func (m MACD) Validate() error {
	if m.Fast < 2 || m.Slow < 2 || m.Signal < 1 {
		return fmt.Errorf("%w: macd %d/%d/%d", ErrPeriod, m.Fast, m.Slow, m.Signal)
	}
	if m.Fast >= m.Slow {
		return fmt.Errorf("%w: macd fast %d not below slow %d", ErrPeriod, m.Fast, m.Slow)
	}
	return nil
}

// Warmup returns the number of leading positions without a value.
func (m MACD) Warmup() int { return m.Slow + m.Signal - 2 }

// Compute returns the macd, signal and hist lines.
func (m MACD) Compute(closes []float64) map[string][]float64 {
	warm := m.Warmup()
	if len(closes) <= warm {
		return map[string][]float64{
			LineMACD:   nanLine(len(closes)),
			LineSignal: nanLine(len(closes)),
			LineHist:   nanLine(len(closes)),
		}
	}
	macd, signal, hist := talib.Macd(closes, m.Fast, m.Slow, m.Signal)
	return map[string][]float64{
		LineMACD:   maskWarmup(macd, warm),
		LineSignal: maskWarmup(signal, warm),
		LineHist:   maskWarmup(hist, warm),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// Last returns the final non-NaN value of line and whether one exists.
func Last(line []float64) (float64, bool) {
	for i := len(line) - 1; i >= 0; i-- {
		if !math.IsNaN(line[i]) {
			return line[i], true
		}
	}
	return 0, false
}

func nanLine(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskWarmup replaces the zero-seeded leading values talib emits with NaN.
func maskWarmup(line []float64, n int) []float64 {
	for i := 0; i < n && i < len(line); i++ {
		line[i] = math.NaN()
	}
	return line
}
