package backtest

// Trade is one executed fill. Price already includes slippage; Fee is kept
// apart so returns can net it explicitly.
type Trade struct {
	Index  int
	Date   string
	Action Action
	Reason Reason
	Price  float64
	Fee    float64
}

// ExecutionModel turns decisions into trades. Slippage always moves the
// price against the trader.
type ExecutionModel struct {
	Slippage float64
	FeeRate  float64
}

// Execute fills d.
func (e ExecutionModel) Execute(d Decision) Trade {
	price := d.Price
	switch d.Action {
	case ActionBuy:
		price *= 1 + e.Slippage
	case ActionSell:
		price *= 1 - e.Slippage
	}
	return Trade{
		Index:  d.Index,
		Date:   d.Date,
		Action: d.Action,
		Reason: d.Reason,
		Price:  price,
		Fee:    price * e.FeeRate,
	}
}
