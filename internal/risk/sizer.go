// Package risk implements position sizing, pre-trade validation, and
// the consecutive-loss circuit breaker.
package risk

import (
	"context"
	"fmt"
	"math"

	"stockTradeBot/internal/ports"
)

const (
	// RiskPercent is the fraction of portfolio value put at risk on a
	// single trade (fixed-fractional sizing).
	RiskPercent = 0.02
	// MaxPositionPercent caps a single position's entry value as a
	// fraction of portfolio value.
	MaxPositionPercent = 0.20
)

// SizeResult describes one sizing decision with the intermediate
// values, so the decision can be logged and audited.
type SizeResult struct {
	Quantity        int
	PositionValue   float64
	RiskAmount      float64 // Dollars lost if the stop is hit
	RiskPercent     float64
	PositionPercent float64 // Entry value as a fraction of the portfolio
	Capped          bool
	CapReason       string
}

// Sizer computes position sizes from live account values.
type Sizer struct {
	broker ports.BrokerGateway
	logger ports.Logger
}

// NewSizer creates a position sizer backed by the broker gateway.
func NewSizer(broker ports.BrokerGateway, logger ports.Logger) *Sizer {
	return &Sizer{broker: broker, logger: logger}
}

// Size computes the share quantity for an entry at entryPrice with a
// protective stop at stopPrice, given the current portfolio value.
//
// The raw quantity risks RiskPercent of the portfolio against the
// per-share distance to the stop, floored to whole shares with a
// minimum of one. The result is then capped so the position's entry
// value does not exceed MaxPositionPercent of the portfolio.
func (s *Sizer) Size(portfolioValue, entryPrice, stopPrice float64) (*SizeResult, error) {
	if portfolioValue <= 0 {
		return nil, fmt.Errorf("portfolio value must be positive, got %.2f: %w", portfolioValue, ports.ErrInvalidInput)
	}
	if entryPrice <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %.2f: %w", entryPrice, ports.ErrInvalidInput)
	}
	if stopPrice >= entryPrice {
		return nil, fmt.Errorf("stop price %.2f must be below entry price %.2f: %w", stopPrice, entryPrice, ports.ErrInvalidInput)
	}
	if stopPrice <= 0 {
		return nil, fmt.Errorf("stop price must be positive, got %.2f: %w", stopPrice, ports.ErrInvalidInput)
	}

	riskAmount := portfolioValue * RiskPercent
	riskPerShare := entryPrice - stopPrice

	quantity := int(math.Floor(riskAmount / riskPerShare))
	if quantity < 1 {
		quantity = 1 // Minimum viable position; the capital check rejects what the account cannot carry
	}

	result := &SizeResult{
		Quantity:   quantity,
		RiskAmount: float64(quantity) * riskPerShare,
	}

	maxPositionValue := portfolioValue * MaxPositionPercent
	if float64(quantity)*entryPrice > maxPositionValue {
		capped := int(math.Floor(maxPositionValue / entryPrice))
		if capped < 1 {
			capped = 1
		}
		result.Quantity = capped
		result.RiskAmount = float64(capped) * riskPerShare
		result.Capped = true
		result.CapReason = fmt.Sprintf("position value capped at %.0f%% of portfolio", MaxPositionPercent*100)
	}

	result.PositionValue = float64(result.Quantity) * entryPrice
	result.RiskPercent = result.RiskAmount / portfolioValue
	result.PositionPercent = result.PositionValue / portfolioValue
	return result, nil
}

// SizeForAccount fetches the current portfolio value from the broker
// and sizes against it. Account values are never cached.
func (s *Sizer) SizeForAccount(ctx context.Context, entryPrice, stopPrice float64) (*SizeResult, error) {
	summary, err := s.broker.AccountSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account for sizing: %w", err)
	}

	result, err := s.Size(summary.NetLiquidation, entryPrice, stopPrice)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "Position sized", map[string]interface{}{
		"portfolioValue": summary.NetLiquidation,
		"entryPrice":     entryPrice,
		"stopPrice":      stopPrice,
		"quantity":       result.Quantity,
		"positionValue":  result.PositionValue,
		"capped":         result.Capped,
	})
	return result, nil
}
