package backtest

import (
	"fmt"

	"github.com/12Lemon123456/vene-quant/internal/domain"
)

// SignalRow annotates one bar with its look-back extreme and breakout flag.
// PriorMax is only meaningful when Valid is true.
type SignalRow struct {
	PriorMax float64
	Valid    bool
	Breakout bool
}

// GenerateSignals computes, for every bar i, the maximum High over bars
// [i-n, i-1] and whether bar i's High exceeds it. The current bar never
// enters its own window. Bars with fewer than n predecessors get no window
// and never break out.
func GenerateSignals(series domain.Series, n int) ([]SignalRow, error) {
	if n < 1 || n >= series.Len() {
		return nil, fmt.Errorf("%w: lookback %d must be in [1, %d)", ErrConfig, n, series.Len())
	}

	highs := series.Highs()
	rows := make([]SignalRow, len(highs))

	// Monotonic deque of indices with decreasing highs over the window.
	dq := make([]int, 0, n)
	for i := range highs {
		if i >= n {
			for len(dq) > 0 && dq[0] < i-n {
				dq = dq[1:]
			}
			priorMax := highs[dq[0]]
			rows[i] = SignalRow{
				PriorMax: priorMax,
				Valid:    true,
				Breakout: highs[i] > priorMax,
			}
		}
		for len(dq) > 0 && highs[dq[len(dq)-1]] <= highs[i] {
			dq = dq[:len(dq)-1]
		}
		dq = append(dq, i)
	}
	return rows, nil
}
