package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
	"stockTradeBot/internal/risk"
)

type engineFixture struct {
	engine      *Engine
	broker      *mockBroker
	orders      *memOrderRepo
	trades      *memTradeRepo
	instruments *memInstrumentRepo
	strategy    *domain.Strategy
}

func newEngineFixture() *engineFixture {
	broker := newMockBroker()
	orders := newMemOrderRepo()
	trades := newMemTradeRepo()
	instruments := newMemInstrumentRepo("AAPL")
	strategy := &domain.Strategy{
		ID:            1,
		Name:          "momentum",
		Status:        domain.StrategyActive,
		StopLossPct:   0.05,
		TakeProfitPct: 0.10,
	}
	strategies := &memStrategyRepo{strategies: map[int64]*domain.Strategy{1: strategy}}

	tracker := NewTracker(broker, orders, trades, nopLogger{})
	engine := NewEngine(EngineConfig{
		Broker:           broker,
		Sizer:            risk.NewSizer(broker, nopLogger{}),
		Validator:        risk.NewValidator(broker, trades, nopLogger{}),
		Tracker:          tracker,
		Strategies:       strategies,
		Instruments:      instruments,
		Trades:           trades,
		Logger:           nopLogger{},
		FillPollTimeout:  100 * time.Millisecond,
		FillPollInterval: time.Millisecond,
	})
	return &engineFixture{
		engine:      engine,
		broker:      broker,
		orders:      orders,
		trades:      trades,
		instruments: instruments,
		strategy:    strategy,
	}
}

func buySignal() *domain.Signal {
	return &domain.Signal{StrategyID: 1, Symbol: "AAPL", Type: domain.SignalBuy, TriggerReason: "breakout"}
}

// The end-to-end happy path: $10k portfolio, $100 reference price, 5%
// stop. The sizer proposes 40 shares but caps at 20; a confirmed fill
// at $100.10 produces the trade and both protective orders.
func TestEngine_ExecuteSignal_FullSequence(t *testing.T) {
	f := newEngineFixture()
	// The entry is broker-1; scripted to fill at 100.10.
	f.broker.statuses["broker-1"] = []*ports.BrokerOrderStatus{filledStatus(100.10)}

	result, err := f.engine.ExecuteSignal(context.Background(), buySignal())
	require.NoError(t, err)
	require.True(t, result.Success, "failed step: %s (%s)", result.FailedStep, result.ErrorMessage)

	require.NotNil(t, result.Size)
	assert.Equal(t, 20, result.Size.Quantity)
	assert.True(t, result.Size.Capped)

	require.NotNil(t, result.Trade)
	assert.Equal(t, 20, result.Trade.Quantity)
	assert.InDelta(t, 100.10, result.Trade.EntryPrice, 1e-9, "trade must record the realized fill price")
	assert.InDelta(t, 95.0, result.Trade.StopLoss, 1e-9)
	assert.InDelta(t, 110.0, result.Trade.TakeProfit, 1e-9)
	assert.Equal(t, domain.TradeOpen, result.Trade.Status)

	require.NotNil(t, result.StopOrder)
	assert.Equal(t, domain.OrderTypeStop, result.StopOrder.Type)
	assert.Equal(t, domain.Sell, result.StopOrder.Side)
	require.NotNil(t, result.StopOrder.StopPrice)
	assert.InDelta(t, 95.0, *result.StopOrder.StopPrice, 1e-9)

	require.NotNil(t, result.TakeProfitOrder)
	assert.Equal(t, domain.OrderTypeLimit, result.TakeProfitOrder.Type)
	require.NotNil(t, result.TakeProfitOrder.LimitPrice)
	assert.InDelta(t, 110.0, *result.TakeProfitOrder.LimitPrice, 1e-9)

	// Entry + stop + take-profit all submitted to the broker.
	assert.Len(t, f.broker.placed, 3)

	// Both protective orders are linked to the trade.
	linked, err := f.orders.FindOrdersByTrade(context.Background(), result.Trade.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 3)
}

func TestEngine_ExecuteSignal_NonBuyRejected(t *testing.T) {
	f := newEngineFixture()

	for _, signalType := range []domain.SignalType{domain.SignalSell, domain.SignalHold} {
		signal := buySignal()
		signal.Type = signalType
		result, err := f.engine.ExecuteSignal(context.Background(), signal)
		require.NoError(t, err)
		assert.True(t, result.Rejected)
		assert.Equal(t, "unsupported_signal", result.RejectCheck)
		assert.Empty(t, f.broker.placed)
	}
}

func TestEngine_ExecuteSignal_ValidationRejectionSurfacedVerbatim(t *testing.T) {
	f := newEngineFixture()

	// An existing open trade triggers the duplicate check.
	_, err := f.trades.CreateTrade(context.Background(), &domain.Trade{
		StrategyID:   1,
		InstrumentID: 1,
		EntryPrice:   100,
		Quantity:     10,
		Status:       domain.TradeOpen,
	})
	require.NoError(t, err)

	result, err := f.engine.ExecuteSignal(context.Background(), buySignal())
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Contains(t, result.RejectReason, "Duplicate position")
	assert.Empty(t, f.broker.placed, "no order may reach the broker after a rejection")
}

func TestEngine_ExecuteSignal_FillTimeoutLeavesOrderPending(t *testing.T) {
	f := newEngineFixture()
	// No scripted fill: the entry stays pending past the poll window.

	result, err := f.engine.ExecuteSignal(context.Background(), buySignal())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, StepFillPoll, result.FailedStep)

	require.NotNil(t, result.MarketOrder)
	persisted, err := f.orders.FindOrderByID(context.Background(), result.MarketOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, persisted.Status)

	// No trade is created without a confirmed fill.
	open, err := f.trades.FindOpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestEngine_ExecuteSignal_QuoteFailure(t *testing.T) {
	f := newEngineFixture()
	f.broker.quoteErr = ports.ErrQuoteUnavailable

	result, err := f.engine.ExecuteSignal(context.Background(), buySignal())
	require.NoError(t, err)
	assert.Equal(t, StepQuote, result.FailedStep)
	assert.Empty(t, f.broker.placed)
}

func TestEngine_ExecuteSignal_StopPlacementFailureSurfaced(t *testing.T) {
	f := newEngineFixture()
	f.broker.statuses["broker-1"] = []*ports.BrokerOrderStatus{filledStatus(100.10)}
	f.broker.placeErr = ports.ErrOrderPlacementFailed
	f.broker.placeErrFor = domain.OrderTypeStop

	result, err := f.engine.ExecuteSignal(context.Background(), buySignal())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, StepStopOrder, result.FailedStep)

	// The filled entry and its trade survive; recovery deals with the
	// missing protective cover.
	require.NotNil(t, result.Trade)
	open, err := f.trades.FindOpenTrades(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestEngine_ExecuteSignal_UnknownSymbolCreatesInstrument(t *testing.T) {
	f := newEngineFixture()
	f.broker.statuses["broker-1"] = []*ports.BrokerOrderStatus{filledStatus(50.0)}
	f.broker.quote = &ports.Quote{Last: 50}

	signal := buySignal()
	signal.Symbol = "MSFT"
	result, err := f.engine.ExecuteSignal(context.Background(), signal)
	require.NoError(t, err)
	require.True(t, result.Success, "failed step: %s (%s)", result.FailedStep, result.ErrorMessage)

	created, err := f.instruments.FindInstrumentBySymbol(context.Background(), "MSFT")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, created.ID, result.Trade.InstrumentID)
}
