package risk

import (
	"context"
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

type mockBroker struct {
	summary    *ports.AccountSummary
	summaryErr error
}

func (m *mockBroker) Connect(ctx context.Context) error    { return nil }
func (m *mockBroker) Disconnect(ctx context.Context) error { return nil }
func (m *mockBroker) Reconnect(ctx context.Context) error  { return nil }
func (m *mockBroker) IsConnected() bool                    { return true }

func (m *mockBroker) AccountSummary(ctx context.Context) (*ports.AccountSummary, error) {
	if m.summaryErr != nil {
		return nil, m.summaryErr
	}
	return m.summary, nil
}

func (m *mockBroker) Positions(ctx context.Context) ([]ports.BrokerPosition, error) {
	return nil, nil
}

func (m *mockBroker) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (string, error) {
	return "", nil
}

func (m *mockBroker) OrderStatus(ctx context.Context, brokerOrderID string) (*ports.BrokerOrderStatus, error) {
	return nil, nil
}

func (m *mockBroker) Quote(ctx context.Context, symbol string) (*ports.Quote, error) {
	return nil, nil
}

type mockTradeRepo struct {
	openTrade   *domain.Trade
	openByStrat []*domain.Trade
	tradesByID  map[int64]*domain.Trade
	updated     []*domain.Trade
	findOpenErr error
	byStratErr  error
}

func (m *mockTradeRepo) CreateTrade(ctx context.Context, t *domain.Trade) (int64, error) {
	return 1, nil
}

func (m *mockTradeRepo) UpdateTrade(ctx context.Context, t *domain.Trade) error {
	m.updated = append(m.updated, t)
	return nil
}

func (m *mockTradeRepo) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	return m.tradesByID[id], nil
}

func (m *mockTradeRepo) FindOpenTrade(ctx context.Context, strategyID, instrumentID int64) (*domain.Trade, error) {
	if m.findOpenErr != nil {
		return nil, m.findOpenErr
	}
	return m.openTrade, nil
}

func (m *mockTradeRepo) FindOpenTradesByStrategy(ctx context.Context, strategyID int64) ([]*domain.Trade, error) {
	if m.byStratErr != nil {
		return nil, m.byStratErr
	}
	return m.openByStrat, nil
}

func (m *mockTradeRepo) FindOpenTradesByInstrument(ctx context.Context, instrumentID int64) ([]*domain.Trade, error) {
	return nil, nil
}

func (m *mockTradeRepo) FindOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	return nil, nil
}

func (m *mockTradeRepo) FindTradesCreatedSince(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error) {
	return nil, nil
}

type mockStrategyRepo struct {
	strategies map[int64]*domain.Strategy
	updated    []*domain.Strategy
	resetCount int
}

func (m *mockStrategyRepo) CreateStrategy(ctx context.Context, s *domain.Strategy) (int64, error) {
	return 1, nil
}

func (m *mockStrategyRepo) UpdateStrategy(ctx context.Context, s *domain.Strategy) error {
	copied := *s
	m.updated = append(m.updated, &copied)
	m.strategies[s.ID] = s
	return nil
}

func (m *mockStrategyRepo) FindStrategyByID(ctx context.Context, id int64) (*domain.Strategy, error) {
	return m.strategies[id], nil
}

func (m *mockStrategyRepo) FindAllStrategies(ctx context.Context) ([]*domain.Strategy, error) {
	return nil, nil
}

func (m *mockStrategyRepo) ResetLossCounters(ctx context.Context) (int, error) {
	for _, s := range m.strategies {
		if s.ConsecutiveLossesToday > 0 {
			s.ConsecutiveLossesToday = 0
			m.resetCount++
		}
	}
	return m.resetCount, nil
}

type mockNotifier struct {
	sent []struct {
		Severity ports.Severity
		Subject  string
	}
}

func (m *mockNotifier) Notify(ctx context.Context, severity ports.Severity, subject, body string) error {
	m.sent = append(m.sent, struct {
		Severity ports.Severity
		Subject  string
	}{severity, subject})
	return nil
}
