package domain

import "time"

// Order represents one broker-facing instruction and its local record.
type Order struct {
	ID            int64
	TradeID       *int64 // Link to the trade this order protects or opened
	InstrumentID  int64
	Type          OrderType
	Side          OrderSide
	Quantity      int
	StopPrice     *float64 // Stop orders only
	LimitPrice    *float64 // Limit orders only
	Status        OrderStatus
	BrokerOrderID string // Broker-assigned identifier
	ClientOrderID string // Our identifier stamped at submission
	FilledPrice   *float64
	FilledAt      *time.Time
	SubmittedAt   time.Time
}

// IsPending checks if the order is still awaiting a terminal broker state.
func (o *Order) IsPending() bool {
	return o.Status == OrderPending
}

// IsProtective reports whether this is a broker-resident exit order
// (stop-loss or take-profit) rather than an entry.
func (o *Order) IsProtective() bool {
	return o.Type == OrderTypeStop || o.Type == OrderTypeLimit
}
