// Package app wires the trading components behind a single service
// facade and owns the background loops.
package app

import (
	"context"
	"fmt"
	"time"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/execution"
	"stockTradeBot/internal/metrics"
	"stockTradeBot/internal/ports"
	"stockTradeBot/internal/reconcile"
	"stockTradeBot/internal/recovery"
	"stockTradeBot/internal/risk"
)

// TradingService is the synchronous boundary exposed to the API layer.
// All methods return structured payloads rather than raw internal
// errors; execution is deliberately not idempotent — de-duplicating
// signals is the caller's responsibility.
type TradingService struct {
	engine     *execution.Engine
	tracker    *execution.Tracker
	reconciler *reconcile.Reconciler
	recovery   *recovery.Orchestrator
	lossGuard  *risk.LossLimitGuard
	broker     ports.BrokerGateway
	trades     ports.TradeRepository
	logger     ports.Logger
	metrics    *metrics.Metrics

	heartbeatInterval time.Duration
	sweepInterval     time.Duration
}

// Config wires a trading service.
type Config struct {
	Engine     *execution.Engine
	Tracker    *execution.Tracker
	Reconciler *reconcile.Reconciler
	Recovery   *recovery.Orchestrator
	LossGuard  *risk.LossLimitGuard
	Broker     ports.BrokerGateway
	Trades     ports.TradeRepository
	Logger     ports.Logger
	Metrics    *metrics.Metrics

	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
}

// NewTradingService creates the service facade.
func NewTradingService(cfg Config) *TradingService {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &TradingService{
		engine:            cfg.Engine,
		tracker:           cfg.Tracker,
		reconciler:        cfg.Reconciler,
		recovery:          cfg.Recovery,
		lossGuard:         cfg.LossGuard,
		broker:            cfg.Broker,
		trades:            cfg.Trades,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		heartbeatInterval: cfg.HeartbeatInterval,
		sweepInterval:     cfg.SweepInterval,
	}
}

// ExecuteSignal runs one signal through the execution engine and
// records the outcome in the instrumentation.
func (s *TradingService) ExecuteSignal(ctx context.Context, signal *domain.Signal) (*execution.ExecutionResult, error) {
	result, err := s.engine.ExecuteSignal(ctx, signal)
	if err != nil {
		return nil, fmt.Errorf("signal execution failed for %s: %w", signal.Symbol, err)
	}

	switch {
	case result.Success:
		s.metrics.TradesExecuted.WithLabelValues(signal.Symbol).Inc()
	case result.Rejected:
		s.metrics.SignalsRejected.WithLabelValues(result.RejectCheck).Inc()
	case result.FailedStep != "":
		s.metrics.ExecutionFailures.WithLabelValues(result.FailedStep).Inc()
		if result.FailedStep == execution.StepFillPoll {
			s.metrics.FillTimeouts.Inc()
		}
	}
	for _, order := range []*domain.Order{result.MarketOrder, result.StopOrder, result.TakeProfitOrder} {
		if order != nil {
			s.metrics.OrdersSubmitted.Inc()
		}
	}
	return result, nil
}

// ReconcilePositions runs one reconciliation pass and records the
// discrepancy counts.
func (s *TradingService) ReconcilePositions(ctx context.Context) (*reconcile.Report, error) {
	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range report.Discrepancies {
		s.metrics.Discrepancies.WithLabelValues(string(d.Kind)).Inc()
	}
	return report, nil
}

// RunRecovery runs the full recovery flow on demand.
func (s *TradingService) RunRecovery(ctx context.Context) (*recovery.Report, error) {
	report, err := s.recovery.RunRecovery(ctx)
	if err != nil {
		s.metrics.RecoveryRuns.WithLabelValues("failure").Inc()
		return nil, err
	}
	s.metrics.RecoveryRuns.WithLabelValues("success").Inc()
	return report, nil
}

// GetStrategyLossStatus reports a strategy's loss-limit state.
func (s *TradingService) GetStrategyLossStatus(ctx context.Context, strategyID int64) (*risk.LossStatus, error) {
	return s.lossGuard.Status(ctx, strategyID)
}

// ResetDailyLossCounters is the trading-day-start hook for the
// external scheduler.
func (s *TradingService) ResetDailyLossCounters(ctx context.Context) (int, error) {
	return s.lossGuard.ResetDailyCounters(ctx)
}

// Run starts the background loops and blocks until the context is
// cancelled. On startup it checks for a crash and runs recovery before
// any heartbeat is written, so a stale heartbeat is still observable.
func (s *TradingService) Run(ctx context.Context) error {
	crashed, gap, err := s.recovery.DetectCrash(ctx)
	if err != nil {
		return fmt.Errorf("startup crash detection failed: %w", err)
	}
	if crashed {
		s.logger.Warn(ctx, "Stale heartbeat detected at startup, running recovery", map[string]interface{}{
			"heartbeatGap": gap.Round(time.Second).String(),
		})
	}
	if _, err := s.RunRecovery(ctx); err != nil {
		// Recovery failure at startup is fatal: trading on unverified
		// state risks doubling positions.
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()
	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	s.logger.Info(ctx, "Trading service started", map[string]interface{}{
		"heartbeatInterval": s.heartbeatInterval.String(),
		"sweepInterval":     s.sweepInterval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.recovery.MarkStopping(shutdownCtx); err != nil {
				s.logger.Error(shutdownCtx, err, "Failed to record clean shutdown")
			}
			s.logger.Info(shutdownCtx, "Trading service stopped")
			return nil

		case <-heartbeat.C:
			if err := s.recovery.Heartbeat(ctx); err != nil {
				s.logger.Error(ctx, err, "Heartbeat write failed")
				continue
			}
			s.metrics.HeartbeatsRecorded.Inc()

		case <-sweep.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce refreshes pending orders and feeds any resulting trade
// closes into loss tracking.
func (s *TradingService) sweepOnce(ctx context.Context) {
	if !s.broker.IsConnected() {
		if err := s.broker.Reconnect(ctx); err != nil {
			s.logger.Error(ctx, err, "Broker reconnect failed, skipping sweep")
			return
		}
	}

	closedTrades, err := s.tracker.SweepPending(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Pending order sweep failed")
		return
	}

	for _, tradeID := range closedTrades {
		s.metrics.TradesClosed.Inc()

		trade, err := s.loadTrade(ctx, tradeID)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to load closed trade for loss tracking", map[string]interface{}{"tradeID": tradeID})
			continue
		}
		pausedBefore, err := s.strategyPaused(ctx, trade.StrategyID)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to check strategy state", map[string]interface{}{"strategyID": trade.StrategyID})
		}

		if err := s.lossGuard.OnTradeClosed(ctx, tradeID); err != nil {
			s.logger.Error(ctx, err, "Loss tracking failed for closed trade", map[string]interface{}{"tradeID": tradeID})
			continue
		}

		pausedAfter, err := s.strategyPaused(ctx, trade.StrategyID)
		if err == nil && !pausedBefore && pausedAfter {
			s.metrics.StrategiesPaused.Inc()
		}
	}
}

func (s *TradingService) loadTrade(ctx context.Context, tradeID int64) (*domain.Trade, error) {
	trade, err := s.trades.FindTradeByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	return trade, nil
}

func (s *TradingService) strategyPaused(ctx context.Context, strategyID int64) (bool, error) {
	status, err := s.lossGuard.Status(ctx, strategyID)
	if err != nil {
		return false, err
	}
	return status.Paused, nil
}
