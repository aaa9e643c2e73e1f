package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the broker order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeStop   OrderType = "STOP"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the local lifecycle state of a broker order.
// Transitions away from pending happen only via polled broker status,
// never guessed locally.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// TradeStatus represents the status of a trade (position).
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// StrategyStatus represents the lifecycle state of a trading strategy.
type StrategyStatus string

const (
	StrategyWarming StrategyStatus = "warming"
	StrategyActive  StrategyStatus = "active"
	StrategyPaused  StrategyStatus = "paused"
	StrategyError   StrategyStatus = "error"
)

// SignalType represents the kind of trading signal a strategy emitted.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// DiscrepancyKind classifies a divergence between broker and local holdings.
type DiscrepancyKind string

const (
	ExtraAtBroker    DiscrepancyKind = "EXTRA_AT_BROKER"
	MissingAtBroker  DiscrepancyKind = "MISSING_AT_BROKER"
	QuantityMismatch DiscrepancyKind = "QUANTITY_MISMATCH"
)

// RecoveryReason records why a trade was created or closed during recovery.
type RecoveryReason string

const (
	RecoveryReasonMissingAtBroker RecoveryReason = "missing_at_broker"
	RecoveryReasonExtraAtBroker   RecoveryReason = "extra_at_broker"
)
