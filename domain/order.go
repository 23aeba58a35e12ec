package domain

const TableOrder = "order"

// Order is the pipe view of an order table row. Values are kept as text so they
// are forwarded exactly as the exchange reported them.
type Order struct {
	OrderID      string
	ClOrdID      string
	ClOrdLinkID  string
	Account      string
	Symbol       string
	Side         string
	OrderQty     string
	Price        string
	OrdType      string
	OrdStatus    string
	Triggered    string
	LeavesQty    string
	Text         string
	TransactTime string
}

func OrderFromRecord(r Record) Order {
	return Order{
		OrderID:      r.Text("orderID"),
		ClOrdID:      r.Text("clOrdID"),
		ClOrdLinkID:  r.Text("clOrdLinkID"),
		Account:      r.Text("account"),
		Symbol:       r.Text("symbol"),
		Side:         r.Text("side"),
		OrderQty:     r.Text("orderQty"),
		Price:        r.Text("price"),
		OrdType:      r.Text("ordType"),
		OrdStatus:    r.Text("ordStatus"),
		Triggered:    r.Text("triggered"),
		LeavesQty:    r.Text("leavesQty"),
		Text:         r.Text("text"),
		TransactTime: r.Text("transactTime"),
	}
}

// IsTerminalOrder reports whether nothing is left to fill (filled, cancelled or rejected).
// Rows without a readable leavesQty are treated as still active.
func IsTerminalOrder(r Record) bool {
	leaves, err := r.Decimal("leavesQty")
	if err != nil {
		return false
	}
	return leaves.Sign() <= 0
}
