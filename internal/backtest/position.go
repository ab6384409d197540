package backtest

import (
	"fmt"

	"github.com/12Lemon123456/vene-quant/internal/domain"
)

// PositionState is the single-position state of a run.
type PositionState int

const (
	Flat PositionState = iota
	Long
)

func (s PositionState) String() string {
	switch s {
	case Flat:
		return "flat"
	case Long:
		return "long"
	default:
		return fmt.Sprintf("PositionState(%d)", int(s))
	}
}

// Action is the side of a decision or trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Reason records why a decision was taken.
type Reason string

const (
	ReasonBreakout Reason = "breakout"
	ReasonStopLoss Reason = "stop-loss"
	ReasonForced   Reason = "forced-liquidation"
)

// Decision is a request to trade at a raw, pre-slippage price.
type Decision struct {
	Action Action
	Reason Reason
	Index  int
	Date   string
	Price  float64
}

// PositionMachine decides bar by bar whether to enter, exit or hold. It only
// changes state through Apply, after a decision has been executed.
type PositionMachine struct {
	stopLoss   float64
	state      PositionState
	entryPrice float64
}

// NewPositionMachine returns a machine in the Flat state.
func NewPositionMachine(stopLoss float64) *PositionMachine {
	return &PositionMachine{stopLoss: stopLoss, state: Flat}
}

// State returns the current position state.
func (m *PositionMachine) State() PositionState { return m.state }

// Decide evaluates bar i against its signal. A flat machine buys a breakout
// at the bar's High; a long machine sells at the bar's Close once it falls
// below the executed entry price by more than the stop-loss fraction.
// Otherwise ok is false.
func (m *PositionMachine) Decide(i int, bar domain.Bar, sig SignalRow) (Decision, bool) {
	switch m.state {
	case Flat:
		if sig.Breakout {
			return Decision{Action: ActionBuy, Reason: ReasonBreakout, Index: i, Date: bar.Date(), Price: bar.High}, true
		}
	case Long:
		if bar.Close < m.entryPrice*(1-m.stopLoss) {
			return Decision{Action: ActionSell, Reason: ReasonStopLoss, Index: i, Date: bar.Date(), Price: bar.Close}, true
		}
	}
	return Decision{}, false
}

// Liquidate returns the forced closing decision for a machine still long at
// the final bar.
func (m *PositionMachine) Liquidate(i int, last domain.Bar) (Decision, bool) {
	if m.state != Long {
		return Decision{}, false
	}
	return Decision{Action: ActionSell, Reason: ReasonForced, Index: i, Date: last.Date(), Price: last.Close}, true
}

// Apply transitions the machine after tr has been executed.
func (m *PositionMachine) Apply(tr Trade) error {
	switch {
	case m.state == Flat && tr.Action == ActionBuy:
		m.state = Long
		m.entryPrice = tr.Price
	case m.state == Long && tr.Action == ActionSell:
		m.state = Flat
		m.entryPrice = 0
	default:
		return fmt.Errorf("%w: %s while %s", ErrSequence, tr.Action, m.state)
	}
	return nil
}
