package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
	"stockTradeBot/internal/risk"
)

// Execution step names, used in failure results.
const (
	StepResolveInstrument = "resolve_instrument"
	StepQuote             = "quote"
	StepSizing            = "sizing"
	StepValidation        = "validation"
	StepEntryOrder        = "entry_order"
	StepFillPoll          = "fill_poll"
	StepCreateTrade       = "create_trade"
	StepStopOrder         = "stop_order"
	StepTakeProfitOrder   = "take_profit_order"
)

// ExecutionResult is the structured outcome of one signal execution.
// Exactly one of Success, Rejected, or a non-empty FailedStep holds.
type ExecutionResult struct {
	Success      bool
	Rejected     bool
	RejectReason string
	RejectCheck  string
	FailedStep   string
	ErrorMessage string

	Trade           *domain.Trade
	MarketOrder     *domain.Order
	StopOrder       *domain.Order
	TakeProfitOrder *domain.Order
	Size            *risk.SizeResult
}

// Engine orchestrates sizing, validation, entry, and protective-order
// placement for one approved BUY signal. It is the single entry point
// for turning a signal into broker state.
type Engine struct {
	broker      ports.BrokerGateway
	sizer       *risk.Sizer
	validator   *risk.Validator
	tracker     *Tracker
	strategies  ports.StrategyRepository
	instruments ports.InstrumentRepository
	trades      ports.TradeRepository
	logger      ports.Logger

	fillPollTimeout  time.Duration
	fillPollInterval time.Duration
}

// EngineConfig wires an execution engine.
type EngineConfig struct {
	Broker      ports.BrokerGateway
	Sizer       *risk.Sizer
	Validator   *risk.Validator
	Tracker     *Tracker
	Strategies  ports.StrategyRepository
	Instruments ports.InstrumentRepository
	Trades      ports.TradeRepository
	Logger      ports.Logger

	FillPollTimeout  time.Duration
	FillPollInterval time.Duration
}

// NewEngine creates an execution engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.FillPollTimeout <= 0 {
		cfg.FillPollTimeout = 30 * time.Second
	}
	if cfg.FillPollInterval <= 0 {
		cfg.FillPollInterval = time.Second
	}
	return &Engine{
		broker:           cfg.Broker,
		sizer:            cfg.Sizer,
		validator:        cfg.Validator,
		tracker:          cfg.Tracker,
		strategies:       cfg.Strategies,
		instruments:      cfg.Instruments,
		trades:           cfg.Trades,
		logger:           cfg.Logger,
		fillPollTimeout:  cfg.FillPollTimeout,
		fillPollInterval: cfg.FillPollInterval,
	}
}

func failed(step string, err error) (*ExecutionResult, error) {
	return &ExecutionResult{FailedStep: step, ErrorMessage: err.Error()}, nil
}

// ExecuteSignal runs the full entry sequence for a BUY signal. Anything
// other than a BUY signal is rejected. Rejections and step failures are
// returned as structured results; the error return is reserved for
// states the caller cannot act on.
//
// A fill-poll timeout leaves the entry order tracked as pending for the
// sweep to resolve; the broker order is never cancelled here. A failure
// after a confirmed fill leaves a trade without full protective cover,
// which is surfaced for recovery rather than retried blind.
func (e *Engine) ExecuteSignal(ctx context.Context, signal *domain.Signal) (*ExecutionResult, error) {
	if signal.Type != domain.SignalBuy {
		return &ExecutionResult{
			Rejected:     true,
			RejectCheck:  "unsupported_signal",
			RejectReason: fmt.Sprintf("Only BUY signals are actionable, got %s", signal.Type),
		}, nil
	}

	strategy, err := e.strategies.FindStrategyByID(ctx, signal.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy %d: %w", signal.StrategyID, err)
	}
	if strategy == nil {
		return nil, fmt.Errorf("strategy %d: %w", signal.StrategyID, ports.ErrNotFound)
	}

	// 1. Resolve the instrument and a current reference price.
	instrument, err := e.instruments.FindInstrumentBySymbol(ctx, signal.Symbol)
	if err != nil {
		return failed(StepResolveInstrument, err)
	}
	if instrument == nil {
		instrument = &domain.Instrument{Symbol: signal.Symbol}
		if _, err := e.instruments.CreateInstrument(ctx, instrument); err != nil {
			return failed(StepResolveInstrument, err)
		}
	}

	quote, err := e.broker.Quote(ctx, signal.Symbol)
	if err != nil {
		return failed(StepQuote, err)
	}
	referencePrice := referencePriceFrom(quote)
	if referencePrice <= 0 {
		return failed(StepQuote, fmt.Errorf("no usable reference price for %s: %w", signal.Symbol, ports.ErrQuoteUnavailable))
	}

	// 2. Protective levels from the strategy's configured percentages.
	stopPrice := referencePrice * (1 - strategy.StopLossPct)
	takeProfitPrice := referencePrice * (1 + strategy.TakeProfitPct)

	// 3. Size, then validate. Rejections surface verbatim.
	size, err := e.sizer.SizeForAccount(ctx, referencePrice, stopPrice)
	if err != nil {
		return failed(StepSizing, err)
	}
	validation, err := e.validator.Validate(ctx, strategy, instrument, referencePrice, size)
	if err != nil {
		return failed(StepValidation, err)
	}
	if !validation.Valid {
		e.logger.Info(ctx, "Signal rejected by risk validation", map[string]interface{}{
			"strategyID": strategy.ID,
			"symbol":     signal.Symbol,
			"check":      validation.Check,
			"reason":     validation.Reason,
		})
		return &ExecutionResult{
			Rejected:     true,
			RejectCheck:  validation.Check,
			RejectReason: validation.Reason,
			Size:         size,
		}, nil
	}

	// 4. Market entry, blocking on a bounded fill poll.
	marketOrder := &domain.Order{
		InstrumentID: instrument.ID,
		Type:         domain.OrderTypeMarket,
		Side:         domain.Buy,
		Quantity:     size.Quantity,
	}
	if _, err := e.tracker.Submit(ctx, instrument, marketOrder); err != nil {
		return failed(StepEntryOrder, err)
	}

	fillPrice, err := e.tracker.PollUntilFilled(ctx, marketOrder, e.fillPollTimeout, e.fillPollInterval)
	if err != nil {
		if errors.Is(err, ports.ErrFillTimeout) {
			e.logger.Warn(ctx, "Entry fill not confirmed within poll window, order left pending", map[string]interface{}{
				"orderID": marketOrder.ID,
				"symbol":  signal.Symbol,
				"timeout": e.fillPollTimeout.String(),
			})
		}
		result, _ := failed(StepFillPoll, err)
		result.MarketOrder = marketOrder
		result.Size = size
		return result, nil
	}

	// 5. The trade records the realized fill price, not the reference price.
	trade := &domain.Trade{
		StrategyID:   strategy.ID,
		InstrumentID: instrument.ID,
		EntryTime:    time.Now().UTC(),
		EntryPrice:   fillPrice,
		Quantity:     size.Quantity,
		Status:       domain.TradeOpen,
		StopLoss:     stopPrice,
		TakeProfit:   takeProfitPrice,
	}
	if _, err := e.trades.CreateTrade(ctx, trade); err != nil {
		result, _ := failed(StepCreateTrade, err)
		result.MarketOrder = marketOrder
		result.Size = size
		return result, nil
	}
	marketOrder.TradeID = &trade.ID
	if err := e.tracker.orders.UpdateOrder(ctx, marketOrder); err != nil {
		e.logger.Error(ctx, err, "Failed to link entry order to trade", map[string]interface{}{
			"orderID": marketOrder.ID,
			"tradeID": trade.ID,
		})
	}

	// 6. Broker-resident protective orders, so exits survive a crash.
	result := &ExecutionResult{
		Success:     true,
		Trade:       trade,
		MarketOrder: marketOrder,
		Size:        size,
	}

	stopOrder := &domain.Order{
		TradeID:      &trade.ID,
		InstrumentID: instrument.ID,
		Type:         domain.OrderTypeStop,
		Side:         domain.Sell,
		Quantity:     size.Quantity,
		StopPrice:    &stopPrice,
	}
	if _, err := e.tracker.Submit(ctx, instrument, stopOrder); err != nil {
		e.logger.Error(ctx, err, "Failed to place protective stop, trade is open without full cover", map[string]interface{}{
			"tradeID": trade.ID,
			"symbol":  signal.Symbol,
		})
		result.Success = false
		result.FailedStep = StepStopOrder
		result.ErrorMessage = err.Error()
		return result, nil
	}
	result.StopOrder = stopOrder

	takeProfitOrder := &domain.Order{
		TradeID:      &trade.ID,
		InstrumentID: instrument.ID,
		Type:         domain.OrderTypeLimit,
		Side:         domain.Sell,
		Quantity:     size.Quantity,
		LimitPrice:   &takeProfitPrice,
	}
	if _, err := e.tracker.Submit(ctx, instrument, takeProfitOrder); err != nil {
		e.logger.Error(ctx, err, "Failed to place take-profit order, trade has stop cover only", map[string]interface{}{
			"tradeID": trade.ID,
			"symbol":  signal.Symbol,
		})
		result.Success = false
		result.FailedStep = StepTakeProfitOrder
		result.ErrorMessage = err.Error()
		return result, nil
	}
	result.TakeProfitOrder = takeProfitOrder

	e.logger.Info(ctx, "Signal executed", map[string]interface{}{
		"strategyID": strategy.ID,
		"symbol":     signal.Symbol,
		"tradeID":    trade.ID,
		"quantity":   size.Quantity,
		"entryPrice": fillPrice,
		"stopLoss":   stopPrice,
		"takeProfit": takeProfitPrice,
	})
	return result, nil
}

// referencePriceFrom picks a usable reference price from a quote. The
// last trade price wins; with only a book, the ask is what a market buy
// would pay.
func referencePriceFrom(q *ports.Quote) float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Ask > 0 {
		return q.Ask
	}
	return q.Bid
}
