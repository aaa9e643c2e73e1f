package risk

import (
	"context"
	"fmt"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
)

// MaxConsecutiveLosses is the number of consecutive losing trades that
// pauses a strategy for the rest of the trading day.
const MaxConsecutiveLosses = 3

// LossStatus is a snapshot of one strategy's loss-limit state.
type LossStatus struct {
	StrategyID        int64
	ConsecutiveLosses int
	MaxAllowed        int
	Paused            bool
	TradesUntilPaused int
}

// LossLimitGuard maintains per-strategy consecutive-loss counters and
// pauses a strategy when the threshold is crossed. Counters mutate only
// through this guard.
type LossLimitGuard struct {
	strategies ports.StrategyRepository
	trades     ports.TradeRepository
	notifier   ports.Notifier
	logger     ports.Logger
}

// NewLossLimitGuard creates a loss-limit guard.
func NewLossLimitGuard(strategies ports.StrategyRepository, trades ports.TradeRepository, notifier ports.Notifier, logger ports.Logger) *LossLimitGuard {
	return &LossLimitGuard{strategies: strategies, trades: trades, notifier: notifier, logger: logger}
}

// OnTradeClosed updates the strategy's loss counter from one closed
// trade. A losing trade increments the counter and pauses the strategy
// at the threshold; a winning or break-even trade resets the counter
// without resuming a paused strategy. Trades that are still open or
// have no recorded P&L are ignored.
func (g *LossLimitGuard) OnTradeClosed(ctx context.Context, tradeID int64) error {
	trade, err := g.trades.FindTradeByID(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("failed to load trade %d for loss tracking: %w", tradeID, err)
	}
	if trade == nil {
		return fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	if trade.Status != domain.TradeClosed {
		g.logger.Debug(ctx, "Trade not closed yet, skipping loss tracking", map[string]interface{}{"tradeID": trade.ID})
		return nil
	}
	if trade.ProfitLoss == nil {
		g.logger.Warn(ctx, "Closed trade has no recorded P&L, skipping loss tracking", map[string]interface{}{"tradeID": trade.ID})
		return nil
	}

	strategy, err := g.strategies.FindStrategyByID(ctx, trade.StrategyID)
	if err != nil {
		return fmt.Errorf("failed to load strategy %d for loss tracking: %w", trade.StrategyID, err)
	}
	if strategy == nil {
		return fmt.Errorf("strategy %d for trade %d: %w", trade.StrategyID, trade.ID, ports.ErrNotFound)
	}

	if *trade.ProfitLoss >= 0 {
		if strategy.ConsecutiveLossesToday == 0 {
			return nil
		}
		strategy.ConsecutiveLossesToday = 0
		if err := g.strategies.UpdateStrategy(ctx, strategy); err != nil {
			return fmt.Errorf("failed to reset loss counter for strategy %d: %w", strategy.ID, err)
		}
		g.logger.Info(ctx, "Loss streak broken", map[string]interface{}{
			"strategyID": strategy.ID,
			"tradeID":    trade.ID,
			"profitLoss": *trade.ProfitLoss,
		})
		return nil
	}

	strategy.ConsecutiveLossesToday++
	pausedNow := false
	if strategy.ConsecutiveLossesToday >= MaxConsecutiveLosses && strategy.Status != domain.StrategyPaused {
		strategy.Status = domain.StrategyPaused
		pausedNow = true
	}
	if err := g.strategies.UpdateStrategy(ctx, strategy); err != nil {
		return fmt.Errorf("failed to record loss for strategy %d: %w", strategy.ID, err)
	}

	g.logger.Warn(ctx, "Losing trade recorded", map[string]interface{}{
		"strategyID":        strategy.ID,
		"tradeID":           trade.ID,
		"profitLoss":        *trade.ProfitLoss,
		"consecutiveLosses": strategy.ConsecutiveLossesToday,
		"paused":            pausedNow,
	})

	if pausedNow {
		subject := fmt.Sprintf("Strategy %q paused", strategy.Name)
		body := fmt.Sprintf("Strategy %q hit %d consecutive losses and has been paused for the day. Last losing trade: %d (P&L $%.2f).",
			strategy.Name, strategy.ConsecutiveLossesToday, trade.ID, *trade.ProfitLoss)
		if nerr := g.notifier.Notify(ctx, ports.SeverityCritical, subject, body); nerr != nil {
			g.logger.Error(ctx, nerr, "Failed to send pause notification", map[string]interface{}{"strategyID": strategy.ID})
		}
	}
	return nil
}

// ResetDailyCounters zeroes every strategy's loss counter at the start
// of a new trading day. Paused strategies stay paused; resuming is an
// operator decision.
func (g *LossLimitGuard) ResetDailyCounters(ctx context.Context) (int, error) {
	n, err := g.strategies.ResetLossCounters(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily loss counters: %w", err)
	}
	return n, nil
}

// Status reports the loss-limit state for one strategy.
func (g *LossLimitGuard) Status(ctx context.Context, strategyID int64) (*LossStatus, error) {
	strategy, err := g.strategies.FindStrategyByID(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy %d: %w", strategyID, err)
	}
	if strategy == nil {
		return nil, fmt.Errorf("strategy %d: %w", strategyID, ports.ErrNotFound)
	}

	remaining := MaxConsecutiveLosses - strategy.ConsecutiveLossesToday
	if remaining < 0 {
		remaining = 0
	}
	return &LossStatus{
		StrategyID:        strategy.ID,
		ConsecutiveLosses: strategy.ConsecutiveLossesToday,
		MaxAllowed:        MaxConsecutiveLosses,
		Paused:            strategy.IsPaused(),
		TradesUntilPaused: remaining,
	}, nil
}
