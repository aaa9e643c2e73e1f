package execution

import (
	"context"
	"fmt"
	"time"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
)

// --- Test Doubles ---

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockBroker scripts order placement and per-order status sequences.
type mockBroker struct {
	summary  *ports.AccountSummary
	quote    *ports.Quote
	quoteErr error

	placed      []ports.PlaceOrderRequest
	placeErr    error
	placeErrFor domain.OrderType // Fail only this order type when set
	nextOrderID int

	// statuses maps brokerOrderID to a queue of snapshots; the last one
	// repeats once the queue drains.
	statuses  map[string][]*ports.BrokerOrderStatus
	statusErr error
}

func newMockBroker() *mockBroker {
	return &mockBroker{
		summary:  &ports.AccountSummary{NetLiquidation: 10000, BuyingPower: 10000},
		quote:    &ports.Quote{Last: 100},
		statuses: map[string][]*ports.BrokerOrderStatus{},
	}
}

func (m *mockBroker) Connect(ctx context.Context) error    { return nil }
func (m *mockBroker) Disconnect(ctx context.Context) error { return nil }
func (m *mockBroker) Reconnect(ctx context.Context) error  { return nil }
func (m *mockBroker) IsConnected() bool                    { return true }

func (m *mockBroker) AccountSummary(ctx context.Context) (*ports.AccountSummary, error) {
	return m.summary, nil
}

func (m *mockBroker) Positions(ctx context.Context) ([]ports.BrokerPosition, error) {
	return nil, nil
}

func (m *mockBroker) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (string, error) {
	if m.placeErr != nil && (m.placeErrFor == "" || m.placeErrFor == req.Type) {
		return "", m.placeErr
	}
	m.nextOrderID++
	id := fmt.Sprintf("broker-%d", m.nextOrderID)
	m.placed = append(m.placed, req)
	return id, nil
}

func (m *mockBroker) OrderStatus(ctx context.Context, brokerOrderID string) (*ports.BrokerOrderStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	queue := m.statuses[brokerOrderID]
	if len(queue) == 0 {
		return &ports.BrokerOrderStatus{State: ports.BrokerOrderPending}, nil
	}
	status := queue[0]
	if len(queue) > 1 {
		m.statuses[brokerOrderID] = queue[1:]
	}
	return status, nil
}

func (m *mockBroker) Quote(ctx context.Context, symbol string) (*ports.Quote, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return m.quote, nil
}

func filledStatus(price float64) *ports.BrokerOrderStatus {
	return &ports.BrokerOrderStatus{State: ports.BrokerOrderFilled, AvgFillPrice: &price}
}

// memOrderRepo is an in-memory OrderRepository.
type memOrderRepo struct {
	orders map[int64]*domain.Order
	nextID int64
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[int64]*domain.Order{}}
}

func (m *memOrderRepo) CreateOrder(ctx context.Context, o *domain.Order) (int64, error) {
	m.nextID++
	o.ID = m.nextID
	copied := *o
	m.orders[o.ID] = &copied
	return o.ID, nil
}

func (m *memOrderRepo) UpdateOrder(ctx context.Context, o *domain.Order) error {
	if _, ok := m.orders[o.ID]; !ok {
		return ports.ErrNotFound
	}
	copied := *o
	m.orders[o.ID] = &copied
	return nil
}

func (m *memOrderRepo) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (m *memOrderRepo) FindPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	var pending []*domain.Order
	for id := int64(1); id <= m.nextID; id++ {
		if o, ok := m.orders[id]; ok && o.Status == domain.OrderPending {
			copied := *o
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

func (m *memOrderRepo) FindOrdersByTrade(ctx context.Context, tradeID int64) ([]*domain.Order, error) {
	var out []*domain.Order
	for id := int64(1); id <= m.nextID; id++ {
		if o, ok := m.orders[id]; ok && o.TradeID != nil && *o.TradeID == tradeID {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, nil
}

// memTradeRepo is an in-memory TradeRepository.
type memTradeRepo struct {
	trades map[int64]*domain.Trade
	nextID int64
}

func newMemTradeRepo() *memTradeRepo {
	return &memTradeRepo{trades: map[int64]*domain.Trade{}}
}

func (m *memTradeRepo) CreateTrade(ctx context.Context, t *domain.Trade) (int64, error) {
	m.nextID++
	t.ID = m.nextID
	copied := *t
	m.trades[t.ID] = &copied
	return t.ID, nil
}

func (m *memTradeRepo) UpdateTrade(ctx context.Context, t *domain.Trade) error {
	if _, ok := m.trades[t.ID]; !ok {
		return ports.ErrNotFound
	}
	copied := *t
	m.trades[t.ID] = &copied
	return nil
}

func (m *memTradeRepo) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	t, ok := m.trades[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (m *memTradeRepo) FindOpenTrade(ctx context.Context, strategyID, instrumentID int64) (*domain.Trade, error) {
	for id := int64(1); id <= m.nextID; id++ {
		t, ok := m.trades[id]
		if ok && t.StrategyID == strategyID && t.InstrumentID == instrumentID && t.Status == domain.TradeOpen {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memTradeRepo) FindOpenTradesByStrategy(ctx context.Context, strategyID int64) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.trades[id]; ok && t.StrategyID == strategyID && t.Status == domain.TradeOpen {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memTradeRepo) FindOpenTradesByInstrument(ctx context.Context, instrumentID int64) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.trades[id]; ok && t.InstrumentID == instrumentID && t.Status == domain.TradeOpen {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memTradeRepo) FindOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.trades[id]; ok && t.Status == domain.TradeOpen {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memTradeRepo) FindTradesCreatedSince(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.trades[id]; ok && !t.CreatedAt.Before(cutoff) {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

// memInstrumentRepo is an in-memory InstrumentRepository.
type memInstrumentRepo struct {
	instruments map[string]*domain.Instrument
	nextID      int64
}

func newMemInstrumentRepo(symbols ...string) *memInstrumentRepo {
	m := &memInstrumentRepo{instruments: map[string]*domain.Instrument{}}
	for _, s := range symbols {
		m.nextID++
		m.instruments[s] = &domain.Instrument{ID: m.nextID, Symbol: s}
	}
	return m
}

func (m *memInstrumentRepo) CreateInstrument(ctx context.Context, ins *domain.Instrument) (int64, error) {
	m.nextID++
	ins.ID = m.nextID
	m.instruments[ins.Symbol] = ins
	return ins.ID, nil
}

func (m *memInstrumentRepo) FindInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return m.instruments[symbol], nil
}

func (m *memInstrumentRepo) FindInstrumentByID(ctx context.Context, id int64) (*domain.Instrument, error) {
	for _, ins := range m.instruments {
		if ins.ID == id {
			return ins, nil
		}
	}
	return nil, nil
}

// memStrategyRepo is an in-memory StrategyRepository.
type memStrategyRepo struct {
	strategies map[int64]*domain.Strategy
}

func (m *memStrategyRepo) CreateStrategy(ctx context.Context, s *domain.Strategy) (int64, error) {
	return s.ID, nil
}

func (m *memStrategyRepo) UpdateStrategy(ctx context.Context, s *domain.Strategy) error {
	m.strategies[s.ID] = s
	return nil
}

func (m *memStrategyRepo) FindStrategyByID(ctx context.Context, id int64) (*domain.Strategy, error) {
	return m.strategies[id], nil
}

func (m *memStrategyRepo) FindAllStrategies(ctx context.Context) ([]*domain.Strategy, error) {
	return nil, nil
}

func (m *memStrategyRepo) ResetLossCounters(ctx context.Context) (int, error) {
	return 0, nil
}
