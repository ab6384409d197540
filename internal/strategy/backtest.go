package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/12Lemon123456/vene-quant/internal/backtest"
	"github.com/12Lemon123456/vene-quant/internal/domain"
	"github.com/12Lemon123456/vene-quant/internal/store"
)

// ErrUnknownStrategy is returned when a name is not in the registry.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Outcome is a completed backtest together with the series it ran on.
type Outcome struct {
	Strategy string
	Series   domain.Series
	Result   *backtest.Result
}

// Backtester loads historical bars from a store and runs a registered
// strategy over them.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry. A nil logger uses
// slog.Default().
func NewBacktester(barStore store.BarStore, registry *Registry, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		store:    barStore,
		registry: registry,
		log:      log.With("component", "backtester"),
	}
}

// Run executes the named strategy for symbol over [start, end]. Zero bounds
// leave the range open. Series precondition failures wrap
// domain.ErrPrecondition; parameter problems wrap backtest.ErrConfig.
func (bt *Backtester) Run(ctx context.Context, name, symbol, market string, start, end time.Time) (*Outcome, error) {
	strat, ok := bt.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStrategy, name, bt.registry.List())
	}

	bars, err := bt.store.ReadBars(ctx, symbol, market, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", symbol, err)
	}
	series, err := domain.NewSeries(symbol, bars)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bt.log.Info("running backtest",
		"strategy", name,
		"symbol", symbol,
		"bars", series.Len(),
		"from", series.At(0).Date(),
		"to", series.Last().Date(),
	)

	res, err := strat.Backtest(series)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", name, symbol, err)
	}

	attrs := []any{"strategy", name, "symbol", symbol, "trades", res.Summary.TradeCount}
	if res.Summary.AverageReturn != nil {
		attrs = append(attrs, "avgReturn", *res.Summary.AverageReturn, "totalReturn", res.Summary.TotalReturn)
	}
	if res.Forced {
		attrs = append(attrs, "forcedExit", true)
	}
	bt.log.Info("backtest complete", attrs...)

	return &Outcome{Strategy: name, Series: series, Result: res}, nil
}

// RunRecord converts an outcome into the form persisted by a RunStore.
func (o *Outcome) RunRecord() *store.RunRecord {
	r := o.Result
	rec := &store.RunRecord{
		Symbol:        o.Series.Symbol(),
		Strategy:      o.Strategy,
		Start:         o.Series.At(0).Date(),
		End:           o.Series.Last().Date(),
		Bars:          o.Series.Len(),
		Lookback:      r.Params.Lookback,
		Slippage:      r.Params.Slippage,
		FeeRate:       r.Params.FeeRate,
		StopLoss:      r.Params.StopLoss,
		TradeCount:    r.Summary.TradeCount,
		AverageReturn: r.Summary.AverageReturn,
		TotalReturn:   r.Summary.TotalReturn,
		WinRate:       r.Summary.WinRate,
	}
	for i, tr := range r.Trades {
		rec.Fills = append(rec.Fills, store.FillRecord{
			Seq:    i,
			Date:   tr.Date,
			Action: string(tr.Action),
			Reason: string(tr.Reason),
			Price:  tr.Price,
			Fee:    tr.Fee,
		})
	}
	return rec
}
