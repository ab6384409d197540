package backtest

import "fmt"

// RoundTrip is a completed buy/sell pair and its fee-adjusted return.
type RoundTrip struct {
	Buy    Trade
	Sell   Trade
	Return float64
}

// Summary aggregates the round trips of a ledger. AverageReturn is nil when
// no round trip completed, which is not the same as a 0% average.
type Summary struct {
	TradeCount    int
	AverageReturn *float64
	TotalReturn   float64 // compounded
	WinRate       float64
}

// Ledger is an append-only record of trades in chronological order.
type Ledger struct {
	trades []Trade
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends tr. Trades must alternate buy, sell, buy, ... starting with
// a buy, and never go back in time.
func (l *Ledger) Record(tr Trade) error {
	want := ActionBuy
	if len(l.trades)%2 == 1 {
		want = ActionSell
	}
	if tr.Action != want {
		return fmt.Errorf("%w: got %s, want %s at trade %d", ErrSequence, tr.Action, want, len(l.trades))
	}
	if n := len(l.trades); n > 0 && tr.Index < l.trades[n-1].Index {
		return fmt.Errorf("%w: trade at bar %d precedes bar %d", ErrSequence, tr.Index, l.trades[n-1].Index)
	}
	l.trades = append(l.trades, tr)
	return nil
}

// Trades returns a copy of the recorded trades.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Open reports whether the last recorded trade is an unmatched buy.
func (l *Ledger) Open() bool {
	return len(l.trades)%2 == 1
}

// RoundTrips pairs every buy with the sell that follows it. A trailing open
// buy is left out.
func (l *Ledger) RoundTrips() []RoundTrip {
	out := make([]RoundTrip, 0, len(l.trades)/2)
	for i := 0; i+1 < len(l.trades); i += 2 {
		b, s := l.trades[i], l.trades[i+1]
		out = append(out, RoundTrip{Buy: b, Sell: s, Return: TradeReturn(b, s)})
	}
	return out
}

// PerTradeReturns returns the fee-adjusted return of every round trip.
func (l *Ledger) PerTradeReturns() []float64 {
	trips := l.RoundTrips()
	out := make([]float64, len(trips))
	for i, rt := range trips {
		out[i] = rt.Return
	}
	return out
}

// Summary computes count, mean, compounded return and win rate.
func (l *Ledger) Summary() Summary {
	returns := l.PerTradeReturns()
	s := Summary{TradeCount: len(returns)}
	if len(returns) == 0 {
		return s
	}

	var sum float64
	var wins int
	growth := 1.0
	for _, r := range returns {
		sum += r
		growth *= 1 + r
		if r > 0 {
			wins++
		}
	}
	avg := sum / float64(len(returns))
	s.AverageReturn = &avg
	s.TotalReturn = growth - 1
	s.WinRate = float64(wins) / float64(len(returns))
	return s
}

// TradeReturn is the return of buying at b and selling at s, with both fees
// normalised by the buy price.
func TradeReturn(b, s Trade) float64 {
	return (s.Price-b.Price)/b.Price - (b.Fee+s.Fee)/b.Price
}
