package ports

import (
	"context"

	"stockTradeBot/internal/domain"
)

// AccountSummary holds the account-level values the risk layer needs.
// Always fetched fresh; never cached across calls.
type AccountSummary struct {
	NetLiquidation float64 // Total portfolio value
	BuyingPower    float64 // Capital currently available for new positions
}

// BrokerPosition is one holding as reported by the broker. The broker's
// view is authoritative; reconciliation resolves divergence from the
// local ledger.
type BrokerPosition struct {
	Symbol   string
	Quantity int
	AvgCost  float64
}

// PlaceOrderRequest describes one order to submit.
type PlaceOrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Type          domain.OrderType
	Quantity      int
	StopPrice     *float64 // Required for STOP
	LimitPrice    *float64 // Required for LIMIT
	ClientOrderID string
}

// Broker order states, already normalized by the adapter from the
// broker's own vocabulary.
type BrokerOrderState string

const (
	BrokerOrderFilled    BrokerOrderState = "filled"
	BrokerOrderCancelled BrokerOrderState = "cancelled"
	BrokerOrderPending   BrokerOrderState = "pending"
)

// BrokerOrderStatus is a point-in-time snapshot of one order at the broker.
type BrokerOrderStatus struct {
	State        BrokerOrderState
	AvgFillPrice *float64 // Present only when filled
	FilledQty    int
}

// Quote is a market data snapshot for one symbol. Any field may be zero
// when the broker has no data for it.
type Quote struct {
	Last float64
	Bid  float64
	Ask  float64
}

// BrokerGateway defines the contract this engine requires from the raw
// broker connection. A single logical session is active at a time;
// callers must treat ErrNotConnected as a recoverable precondition
// failure, not a fatal error.
type BrokerGateway interface {
	// Connect establishes the broker session.
	Connect(ctx context.Context) error
	// Disconnect tears down the session and marks it unusable.
	Disconnect(ctx context.Context) error
	// Reconnect retries Connect with exponential backoff up to the
	// configured attempt cap.
	Reconnect(ctx context.Context) error
	// IsConnected reports whether the session is currently usable.
	IsConnected() bool

	// AccountSummary returns net liquidation and buying power.
	AccountSummary(ctx context.Context) (*AccountSummary, error)
	// Positions returns all current holdings reported by the broker.
	Positions(ctx context.Context) ([]BrokerPosition, error)
	// PlaceOrder submits an order and returns the broker-assigned ID.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error)
	// OrderStatus returns the broker's current view of an order.
	OrderStatus(ctx context.Context, brokerOrderID string) (*BrokerOrderStatus, error)
	// Quote returns a market data snapshot for the symbol.
	Quote(ctx context.Context, symbol string) (*Quote, error)
}
