package ports

import (
	"context"
	"time"

	"stockTradeBot/internal/domain"
)

// StrategyRepository defines storage for trading strategies.
type StrategyRepository interface {
	// CreateStrategy saves a new strategy and returns its assigned ID.
	CreateStrategy(ctx context.Context, s *domain.Strategy) (int64, error)
	// UpdateStrategy modifies an existing strategy.
	UpdateStrategy(ctx context.Context, s *domain.Strategy) error
	// FindStrategyByID retrieves a strategy by ID. Returns nil, nil if
	// not found.
	FindStrategyByID(ctx context.Context, id int64) (*domain.Strategy, error)
	// FindAllStrategies retrieves all strategies.
	FindAllStrategies(ctx context.Context) ([]*domain.Strategy, error)
	// ResetLossCounters zeroes every strategy's consecutive-loss counter
	// without changing status. Returns the number of strategies touched.
	ResetLossCounters(ctx context.Context) (int, error)
}

// InstrumentRepository defines storage for tradable instruments.
type InstrumentRepository interface {
	// CreateInstrument saves a new instrument and returns its assigned ID.
	CreateInstrument(ctx context.Context, ins *domain.Instrument) (int64, error)
	// FindInstrumentBySymbol retrieves an instrument by its ticker.
	// Returns nil, nil if not found.
	FindInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error)
	// FindInstrumentByID retrieves an instrument by ID. Returns nil, nil
	// if not found.
	FindInstrumentByID(ctx context.Context, id int64) (*domain.Instrument, error)
}

// TradeRepository defines storage for trades (positions).
type TradeRepository interface {
	// CreateTrade saves a new trade and returns its assigned ID.
	CreateTrade(ctx context.Context, t *domain.Trade) (int64, error)
	// UpdateTrade modifies an existing trade.
	UpdateTrade(ctx context.Context, t *domain.Trade) error
	// FindTradeByID retrieves a trade by ID. Returns nil, nil if not found.
	FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindOpenTrade retrieves the open trade for a (strategy, instrument)
	// pair, if any. Returns nil, nil if none.
	FindOpenTrade(ctx context.Context, strategyID, instrumentID int64) (*domain.Trade, error)
	// FindOpenTradesByStrategy retrieves all open trades for a strategy.
	FindOpenTradesByStrategy(ctx context.Context, strategyID int64) ([]*domain.Trade, error)
	// FindOpenTradesByInstrument retrieves all open trades for an instrument.
	FindOpenTradesByInstrument(ctx context.Context, instrumentID int64) ([]*domain.Trade, error)
	// FindOpenTrades retrieves every open trade.
	FindOpenTrades(ctx context.Context) ([]*domain.Trade, error)
	// FindTradesCreatedSince retrieves trades created at or after the cutoff.
	FindTradesCreatedSince(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error)
}

// OrderRepository defines storage for broker order records.
type OrderRepository interface {
	// CreateOrder saves a new order and returns its assigned ID.
	CreateOrder(ctx context.Context, o *domain.Order) (int64, error)
	// UpdateOrder modifies an existing order.
	UpdateOrder(ctx context.Context, o *domain.Order) error
	// FindOrderByID retrieves an order by ID. Returns nil, nil if not found.
	FindOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	// FindPendingOrders retrieves every order still in pending status.
	FindPendingOrders(ctx context.Context) ([]*domain.Order, error)
	// FindOrdersByTrade retrieves all orders linked to a trade.
	FindOrdersByTrade(ctx context.Context, tradeID int64) ([]*domain.Order, error)
}

// SystemStateRepository defines storage for the heartbeat row and the
// append-only recovery audit log.
type SystemStateRepository interface {
	// UpdateHeartbeat overwrites the single heartbeat row with the
	// current time and status label.
	UpdateHeartbeat(ctx context.Context, status string) error
	// LastHeartbeat retrieves the heartbeat record. Returns nil, nil on
	// first run (no record yet).
	LastHeartbeat(ctx context.Context) (*domain.HeartbeatRecord, error)
	// AppendRecoveryEvent appends an immutable recovery audit record.
	AppendRecoveryEvent(ctx context.Context, ev *domain.RecoveryEvent) (int64, error)
	// RecentRecoveryEvents retrieves the most recent recovery events,
	// newest first, up to a limit.
	RecentRecoveryEvents(ctx context.Context, limit int) ([]*domain.RecoveryEvent, error)
}
