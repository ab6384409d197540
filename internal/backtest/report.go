package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteTradesCSV writes the ledger of r as CSV, one row per fill. Sell rows
// carry the return of the round trip they close.
func WriteTradesCSV(w io.Writer, r *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "action", "reason", "price", "fee", "return"}); err != nil {
		return err
	}
	for i, tr := range r.Trades {
		ret := ""
		if tr.Action == ActionSell && i/2 < len(r.Returns) {
			ret = formatF(r.Returns[i/2])
		}
		if err := cw.Write([]string{
			tr.Date, string(tr.Action), string(tr.Reason),
			formatF(tr.Price), formatF(tr.Fee), ret,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatSummary renders the human-readable run summary.
func FormatSummary(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "symbol: %s  bars: %d  lookback: %d  slippage: %.4f  fee: %.4f  stop: %.2f%%\n",
		r.Symbol, r.Bars, r.Params.Lookback, r.Params.Slippage, r.Params.FeeRate, r.Params.StopLoss*100)
	if r.NoTrades() {
		b.WriteString("no trades in period\n")
		return b.String()
	}
	fmt.Fprintf(&b, "total trades: %d\n", r.Summary.TradeCount)
	fmt.Fprintf(&b, "average return: %.2f%%\n", *r.Summary.AverageReturn*100)
	fmt.Fprintf(&b, "compounded return: %.2f%%  win rate: %.1f%%\n",
		r.Summary.TotalReturn*100, r.Summary.WinRate*100)
	for _, rt := range r.RoundTrips {
		fmt.Fprintf(&b, "  %s buy %.4f -> %s sell %.4f (%s)  %+.3f%%\n",
			rt.Buy.Date, rt.Buy.Price, rt.Sell.Date, rt.Sell.Price, rt.Sell.Reason, rt.Return*100)
	}
	return b.String()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
