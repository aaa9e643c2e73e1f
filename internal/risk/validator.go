package risk

import (
	"context"
	"fmt"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
)

// MaxStrategyAllocationPercent caps the combined entry value of all
// open positions for a single strategy, as a fraction of the portfolio.
const MaxStrategyAllocationPercent = 0.50

// ValidationResult is the outcome of one validation run. A rejection
// is a normal result, not an error: Check names the failing check and
// Reason carries the operator-facing explanation.
type ValidationResult struct {
	Valid  bool
	Check  string
	Reason string
}

// Check names, in evaluation order.
const (
	CheckLossLimit          = "loss_limit"
	CheckDuplicatePosition  = "duplicate_position"
	CheckPositionSizeCap    = "position_size_cap"
	CheckCapitalSufficiency = "capital_sufficiency"
	CheckStrategyAllocation = "strategy_allocation"
)

// Validator runs the pre-trade check pipeline. Checks run in a fixed
// order and short-circuit on the first failure, cheapest first.
type Validator struct {
	broker ports.BrokerGateway
	trades ports.TradeRepository
	logger ports.Logger
}

// NewValidator creates a pre-trade validator.
func NewValidator(broker ports.BrokerGateway, trades ports.TradeRepository, logger ports.Logger) *Validator {
	return &Validator{broker: broker, trades: trades, logger: logger}
}

func rejected(check, reason string) *ValidationResult {
	return &ValidationResult{Valid: false, Check: check, Reason: reason}
}

// Validate runs all checks for a candidate position. It returns a
// rejection result when a check fails and an error only when a check
// could not be evaluated (repository or broker failure).
//
// Account values are fetched immediately before use so that concurrent
// trades from other strategies are reflected in the capital checks.
func (v *Validator) Validate(ctx context.Context, strategy *domain.Strategy, instrument *domain.Instrument, entryPrice float64, size *SizeResult) (*ValidationResult, error) {
	// 1. Daily loss limit: a paused strategy places no orders.
	if strategy.IsPaused() {
		return rejected(CheckLossLimit,
			fmt.Sprintf("Strategy %q is paused after %d consecutive losses", strategy.Name, strategy.ConsecutiveLossesToday)), nil
	}
	if !strategy.CanTrade() {
		return rejected(CheckLossLimit,
			fmt.Sprintf("Strategy %q is not active (status %s)", strategy.Name, strategy.Status)), nil
	}

	// 2. Duplicate position: at most one open trade per (strategy, instrument).
	existing, err := v.trades.FindOpenTrade(ctx, strategy.ID, instrument.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for open trade on %s: %w", instrument.Symbol, err)
	}
	if existing != nil {
		return rejected(CheckDuplicatePosition,
			fmt.Sprintf("Duplicate position: already holding %d shares of %s (trade %d)", existing.Quantity, instrument.Symbol, existing.ID)), nil
	}

	summary, err := v.broker.AccountSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account for validation: %w", err)
	}

	// 3. Position size cap.
	if summary.NetLiquidation <= 0 {
		return nil, fmt.Errorf("account reports non-positive portfolio value %.2f: %w", summary.NetLiquidation, ports.ErrInvalidInput)
	}
	if size.PositionValue/summary.NetLiquidation > MaxPositionPercent {
		return rejected(CheckPositionSizeCap,
			fmt.Sprintf("Position value $%.2f exceeds %.0f%% of portfolio ($%.2f)",
				size.PositionValue, MaxPositionPercent*100, summary.NetLiquidation)), nil
	}

	// 4. Capital sufficiency.
	if size.PositionValue > summary.BuyingPower {
		return rejected(CheckCapitalSufficiency,
			fmt.Sprintf("Insufficient capital: need $%.2f, have $%.2f", size.PositionValue, summary.BuyingPower)), nil
	}

	// 5. Strategy allocation cap across all open positions.
	open, err := v.trades.FindOpenTradesByStrategy(ctx, strategy.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open trades for strategy %d: %w", strategy.ID, err)
	}
	allocated := 0.0
	for _, t := range open {
		allocated += t.EntryValue()
	}
	maxAllocation := summary.NetLiquidation * MaxStrategyAllocationPercent
	if allocated+size.PositionValue > maxAllocation {
		return rejected(CheckStrategyAllocation,
			fmt.Sprintf("Strategy allocation $%.2f + candidate $%.2f exceeds %.0f%% of portfolio ($%.2f)",
				allocated, size.PositionValue, MaxStrategyAllocationPercent*100, maxAllocation)), nil
	}

	v.logger.Debug(ctx, "Pre-trade validation passed", map[string]interface{}{
		"strategyID":    strategy.ID,
		"symbol":        instrument.Symbol,
		"positionValue": size.PositionValue,
	})
	return &ValidationResult{Valid: true}, nil
}
