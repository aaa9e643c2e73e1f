package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
	"stockTradeBot/internal/reconcile"
)

// --- Test Doubles ---

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stubBroker struct {
	connected bool
	positions []ports.BrokerPosition
}

func (s *stubBroker) Connect(ctx context.Context) error    { return nil }
func (s *stubBroker) Disconnect(ctx context.Context) error { return nil }
func (s *stubBroker) Reconnect(ctx context.Context) error  { return nil }
func (s *stubBroker) IsConnected() bool                    { return s.connected }

func (s *stubBroker) AccountSummary(ctx context.Context) (*ports.AccountSummary, error) {
	return nil, nil
}

func (s *stubBroker) Positions(ctx context.Context) ([]ports.BrokerPosition, error) {
	return s.positions, nil
}

func (s *stubBroker) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (string, error) {
	return "", nil
}

func (s *stubBroker) OrderStatus(ctx context.Context, brokerOrderID string) (*ports.BrokerOrderStatus, error) {
	return nil, nil
}

func (s *stubBroker) Quote(ctx context.Context, symbol string) (*ports.Quote, error) {
	return nil, nil
}

type memSystemRepo struct {
	heartbeat    *domain.HeartbeatRecord
	events       []*domain.RecoveryEvent
	heartbeatErr error
}

func (m *memSystemRepo) UpdateHeartbeat(ctx context.Context, status string) error {
	if m.heartbeatErr != nil {
		return m.heartbeatErr
	}
	m.heartbeat = &domain.HeartbeatRecord{ID: 1, LastHeartbeat: time.Now().UTC(), Status: status}
	return nil
}

func (m *memSystemRepo) LastHeartbeat(ctx context.Context) (*domain.HeartbeatRecord, error) {
	return m.heartbeat, nil
}

func (m *memSystemRepo) AppendRecoveryEvent(ctx context.Context, ev *domain.RecoveryEvent) (int64, error) {
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return ev.ID, nil
}

func (m *memSystemRepo) RecentRecoveryEvents(ctx context.Context, limit int) ([]*domain.RecoveryEvent, error) {
	return m.events, nil
}

type memTradeRepo struct {
	trades []*domain.Trade
}

func (m *memTradeRepo) CreateTrade(ctx context.Context, t *domain.Trade) (int64, error) {
	return 0, nil
}
func (m *memTradeRepo) UpdateTrade(ctx context.Context, t *domain.Trade) error { return nil }
func (m *memTradeRepo) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	return nil, nil
}
func (m *memTradeRepo) FindOpenTrade(ctx context.Context, strategyID, instrumentID int64) (*domain.Trade, error) {
	return nil, nil
}
func (m *memTradeRepo) FindOpenTradesByStrategy(ctx context.Context, strategyID int64) ([]*domain.Trade, error) {
	return nil, nil
}
func (m *memTradeRepo) FindOpenTradesByInstrument(ctx context.Context, instrumentID int64) ([]*domain.Trade, error) {
	return nil, nil
}
func (m *memTradeRepo) FindOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	return nil, nil
}
func (m *memTradeRepo) FindTradesCreatedSince(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for _, t := range m.trades {
		if !t.CreatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

type memOrderRepo struct {
	byTrade map[int64][]*domain.Order
	err     error
}

func (m *memOrderRepo) CreateOrder(ctx context.Context, o *domain.Order) (int64, error) {
	return 0, nil
}
func (m *memOrderRepo) UpdateOrder(ctx context.Context, o *domain.Order) error { return nil }
func (m *memOrderRepo) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	return nil, nil
}
func (m *memOrderRepo) FindPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	return nil, nil
}
func (m *memOrderRepo) FindOrdersByTrade(ctx context.Context, tradeID int64) ([]*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byTrade[tradeID], nil
}

type memInstrumentRepo struct{}

func (memInstrumentRepo) CreateInstrument(ctx context.Context, ins *domain.Instrument) (int64, error) {
	return 0, nil
}
func (memInstrumentRepo) FindInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return nil, nil
}
func (memInstrumentRepo) FindInstrumentByID(ctx context.Context, id int64) (*domain.Instrument, error) {
	return nil, nil
}

type recordingNotifier struct {
	sent []ports.Severity
}

func (r *recordingNotifier) Notify(ctx context.Context, severity ports.Severity, subject, body string) error {
	r.sent = append(r.sent, severity)
	return nil
}

type fixture struct {
	orchestrator *Orchestrator
	system       *memSystemRepo
	trades       *memTradeRepo
	orders       *memOrderRepo
	broker       *stubBroker
	notifier     *recordingNotifier
}

func newFixture() *fixture {
	system := &memSystemRepo{}
	trades := &memTradeRepo{}
	orders := &memOrderRepo{byTrade: map[int64][]*domain.Order{}}
	broker := &stubBroker{connected: true}
	notify := &recordingNotifier{}

	reconciler := reconcile.NewReconciler(broker, trades, memInstrumentRepo{}, nopLogger{})
	orchestrator := NewOrchestrator(Config{
		System:         system,
		Trades:         trades,
		Orders:         orders,
		Broker:         broker,
		Reconciler:     reconciler,
		Notifier:       notify,
		Logger:         nopLogger{},
		CrashTimeout:   5 * time.Minute,
		MajorThreshold: 100,
	})
	return &fixture{
		orchestrator: orchestrator,
		system:       system,
		trades:       trades,
		orders:       orders,
		broker:       broker,
		notifier:     notify,
	}
}

// --- Tests ---

func TestOrchestrator_DetectCrash_FirstRun(t *testing.T) {
	f := newFixture()

	crashed, gap, err := f.orchestrator.DetectCrash(context.Background())
	require.NoError(t, err)
	assert.False(t, crashed, "a missing heartbeat is a first run, not a crash")
	assert.Zero(t, gap)
}

func TestOrchestrator_DetectCrash_StaleHeartbeat(t *testing.T) {
	f := newFixture()
	f.system.heartbeat = &domain.HeartbeatRecord{
		ID:            1,
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
		Status:        domain.HeartbeatRunning,
	}

	crashed, gap, err := f.orchestrator.DetectCrash(context.Background())
	require.NoError(t, err)
	assert.True(t, crashed)
	assert.Greater(t, gap, 5*time.Minute)
}

func TestOrchestrator_DetectCrash_CleanShutdownIsNotACrash(t *testing.T) {
	f := newFixture()
	f.system.heartbeat = &domain.HeartbeatRecord{
		ID:            1,
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
		Status:        domain.HeartbeatStopping,
	}

	crashed, gap, err := f.orchestrator.DetectCrash(context.Background())
	require.NoError(t, err)
	assert.False(t, crashed, "a stale stopping heartbeat is a planned restart")
	assert.Greater(t, gap, 5*time.Minute)
}

func TestOrchestrator_DetectCrash_RecentHeartbeat(t *testing.T) {
	f := newFixture()
	f.system.heartbeat = &domain.HeartbeatRecord{
		ID:            1,
		LastHeartbeat: time.Now().Add(-time.Minute),
		Status:        domain.HeartbeatRunning,
	}

	crashed, _, err := f.orchestrator.DetectCrash(context.Background())
	require.NoError(t, err)
	assert.False(t, crashed)
}

func TestOrchestrator_RunRecovery_FirstRun(t *testing.T) {
	f := newFixture()

	report, err := f.orchestrator.RunRecovery(context.Background())
	require.NoError(t, err)
	assert.True(t, report.FirstRun)
	assert.False(t, report.CrashDetected)

	require.NotNil(t, f.system.heartbeat)
	assert.Equal(t, domain.HeartbeatRunning, f.system.heartbeat.Status)

	require.Len(t, f.system.events, 1)
	assert.True(t, f.system.events[0].Success)
	assert.Len(t, f.notifier.sent, 1)
}

func TestOrchestrator_RunRecovery_AfterCrash(t *testing.T) {
	f := newFixture()
	f.system.heartbeat = &domain.HeartbeatRecord{
		ID:            1,
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
		Status:        domain.HeartbeatRunning,
	}

	report, err := f.orchestrator.RunRecovery(context.Background())
	require.NoError(t, err)
	assert.True(t, report.CrashDetected)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, ports.SeverityCritical, f.notifier.sent[0])
}

func TestOrchestrator_RunRecovery_CleanShutdownIsNotACrash(t *testing.T) {
	f := newFixture()
	f.system.heartbeat = &domain.HeartbeatRecord{
		ID:            1,
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
		Status:        domain.HeartbeatStopping,
	}

	report, err := f.orchestrator.RunRecovery(context.Background())
	require.NoError(t, err)
	assert.False(t, report.CrashDetected)
}

func TestOrchestrator_RunRecovery_SkipsReconcileWhenDisconnected(t *testing.T) {
	f := newFixture()
	f.broker.connected = false

	report, err := f.orchestrator.RunRecovery(context.Background())
	require.NoError(t, err)
	assert.True(t, report.ReconcileSkipped)
	assert.Contains(t, report.Actions, "reconciliation skipped, broker not connected")
}

func TestOrchestrator_RunRecovery_FlagsOrphanedTrades(t *testing.T) {
	f := newFixture()
	now := time.Now().UTC()
	f.trades.trades = []*domain.Trade{
		{ID: 1, CreatedAt: now.Add(-time.Hour), Status: domain.TradeOpen},
		{ID: 2, CreatedAt: now.Add(-2 * time.Hour), Status: domain.TradeOpen},
		{ID: 3, CreatedAt: now.Add(-48 * time.Hour), Status: domain.TradeOpen}, // Outside the scan window
	}
	f.orders.byTrade[1] = []*domain.Order{{ID: 10, TradeID: int64Ptr(1)}}

	report, err := f.orchestrator.RunRecovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, report.OrphanedTrades)
}

func TestOrchestrator_RunRecovery_FailureStillWritesEvent(t *testing.T) {
	f := newFixture()
	f.trades.trades = []*domain.Trade{{ID: 1, CreatedAt: time.Now().UTC(), Status: domain.TradeOpen}}
	f.orders.err = ports.ErrQueryFailed

	_, err := f.orchestrator.RunRecovery(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)

	require.Len(t, f.system.events, 1)
	assert.False(t, f.system.events[0].Success, "a failed recovery must still leave an audit record")
}

func int64Ptr(v int64) *int64 { return &v }
