// Package builtins provides the strategy implementations that ship with
// vene.
package builtins

import (
	"github.com/12Lemon123456/vene-quant/internal/backtest"
	"github.com/12Lemon123456/vene-quant/internal/domain"
	"github.com/12Lemon123456/vene-quant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Breakout)(nil)

// Breakout buys when a bar's High exceeds the highest High of the previous
// Lookback bars and exits on a close below the stop, or at the last bar.
type Breakout struct {
	params backtest.Params
}

// NewBreakout creates a Breakout strategy with the given parameters.
func NewBreakout(p backtest.Params) *Breakout {
	return &Breakout{params: p}
}

// Name returns "breakout".
func (b *Breakout) Name() string {
	return "breakout"
}

// Params returns the strategy's parameters.
func (b *Breakout) Params() backtest.Params { return b.params }

// Backtest runs the breakout simulation over series.
func (b *Breakout) Backtest(series domain.Series) (*backtest.Result, error) {
	return backtest.Run(series, b.params)
}

// Register adds every built-in strategy, configured with p, to r.
func Register(r *strategy.Registry, p backtest.Params) {
	r.Register(NewBreakout(p))
}
