// Package backtest simulates a single-instrument N-day breakout strategy over
// a daily price series: signals, a flat/long position machine, slippage and
// fee execution, and an append-only trade ledger.
//
// A run is a single synchronous pass. Runs share nothing except the
// read-only series, so independent runs may execute concurrently.
package backtest

import (
	"errors"
	"fmt"

	"github.com/12Lemon123456/vene-quant/internal/domain"
)

var (
	// ErrConfig reports invalid run parameters. It is always returned before
	// any bar is simulated.
	ErrConfig = errors.New("invalid backtest configuration")

	// ErrSequence reports a trade that would break buy/sell alternation.
	ErrSequence = errors.New("trade out of sequence")
)

// Default parameters.
const (
	DefaultLookback = 20
	DefaultSlippage = 0.002
	DefaultFeeRate  = 0.0005
	DefaultStopLoss = 0.05
)

// Params configures a run.
type Params struct {
	Lookback int     // N, bars in the breakout window
	Slippage float64 // fraction, [0, 1)
	FeeRate  float64 // fraction of execution price, [0, 1)
	StopLoss float64 // fraction below entry, (0, 1)
}

// DefaultParams returns the 20-day, 0.2% slippage, 0.05% fee, 5% stop setup.
func DefaultParams() Params {
	return Params{
		Lookback: DefaultLookback,
		Slippage: DefaultSlippage,
		FeeRate:  DefaultFeeRate,
		StopLoss: DefaultStopLoss,
	}
}

// Validate checks p against a series of seriesLen bars.
func (p Params) Validate(seriesLen int) error {
	if p.Lookback < 1 {
		return fmt.Errorf("%w: lookback %d must be at least 1", ErrConfig, p.Lookback)
	}
	if p.Lookback >= seriesLen {
		return fmt.Errorf("%w: lookback %d needs more than %d bars", ErrConfig, p.Lookback, seriesLen)
	}
	if !(p.Slippage >= 0 && p.Slippage < 1) {
		return fmt.Errorf("%w: slippage %v must be in [0, 1)", ErrConfig, p.Slippage)
	}
	if !(p.FeeRate >= 0 && p.FeeRate < 1) {
		return fmt.Errorf("%w: fee rate %v must be in [0, 1)", ErrConfig, p.FeeRate)
	}
	if !(p.StopLoss > 0 && p.StopLoss < 1) {
		return fmt.Errorf("%w: stop loss %v must be in (0, 1)", ErrConfig, p.StopLoss)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	Symbol     string
	Params     Params
	Bars       int
	Signals    []SignalRow
	Trades     []Trade
	RoundTrips []RoundTrip
	Returns    []float64
	Summary    Summary
	FinalState PositionState
	Forced     bool // the last sell was a forced liquidation
}

// NoTrades reports whether the run completed no round trip.
func (r *Result) NoTrades() bool {
	return r.Summary.AverageReturn == nil
}

// Run simulates the breakout strategy over series. Configuration and
// precondition errors are returned before any trade is recorded.
func Run(series domain.Series, p Params) (*Result, error) {
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: empty series", domain.ErrPrecondition)
	}
	if err := p.Validate(series.Len()); err != nil {
		return nil, err
	}

	signals, err := GenerateSignals(series, p.Lookback)
	if err != nil {
		return nil, err
	}

	machine := NewPositionMachine(p.StopLoss)
	exec := ExecutionModel{Slippage: p.Slippage, FeeRate: p.FeeRate}
	ledger := NewLedger()

	fill := func(d Decision) error {
		tr := exec.Execute(d)
		if err := ledger.Record(tr); err != nil {
			return err
		}
		return machine.Apply(tr)
	}

	for i := 0; i < series.Len(); i++ {
		d, ok := machine.Decide(i, series.At(i), signals[i])
		if !ok {
			continue
		}
		if err := fill(d); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
	}

	last := series.Len() - 1
	d, forced := machine.Liquidate(last, series.At(last))
	if forced {
		if err := fill(d); err != nil {
			return nil, fmt.Errorf("liquidating: %w", err)
		}
	}
	if ledger.Open() {
		return nil, fmt.Errorf("%w: ledger still open after the final bar", ErrSequence)
	}

	trips := ledger.RoundTrips()
	return &Result{
		Symbol:     series.Symbol(),
		Params:     p,
		Bars:       series.Len(),
		Signals:    signals,
		Trades:     ledger.Trades(),
		RoundTrips: trips,
		Returns:    ledger.PerTradeReturns(),
		Summary:    ledger.Summary(),
		FinalState: machine.State(),
		Forced:     forced,
	}, nil
}
