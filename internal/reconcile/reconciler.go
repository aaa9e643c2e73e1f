// Package reconcile compares broker-reported holdings against the
// local trade ledger and exposes repair actions for divergences.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
)

// localPosition is the per-symbol aggregate of all open trades:
// summed quantity with a cost-weighted average entry price.
type localPosition struct {
	quantity int
	avgCost  decimal.Decimal
	trades   []*domain.Trade
}

// Report is the outcome of one reconciliation run.
type Report struct {
	Discrepancies      []domain.PositionDiscrepancy
	TotalAbsoluteValue decimal.Decimal
	BrokerPositions    int
	LocalPositions     int
	RanAt              time.Time
}

// Reconciler diffs broker state against the local ledger. The broker's
// view is authoritative; repairs are invoked explicitly, never
// automatically. Runs are mutually exclusive: a reconciliation pass
// reads and repairs shared trade state and must not overlap another.
type Reconciler struct {
	broker      ports.BrokerGateway
	trades      ports.TradeRepository
	instruments ports.InstrumentRepository
	logger      ports.Logger

	mu sync.Mutex
}

// NewReconciler creates a position reconciler.
func NewReconciler(broker ports.BrokerGateway, trades ports.TradeRepository, instruments ports.InstrumentRepository, logger ports.Logger) *Reconciler {
	return &Reconciler{broker: broker, trades: trades, instruments: instruments, logger: logger}
}

// Reconcile fetches both position snapshots and classifies every
// divergence. Each symbol present in exactly one snapshot yields one
// discrepancy; symbols with equal quantities in both yield none.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	brokerPositions, err := r.broker.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch broker positions: %w", err)
	}
	broker := make(map[string]ports.BrokerPosition, len(brokerPositions))
	for _, p := range brokerPositions {
		broker[p.Symbol] = p
	}

	local, err := r.localPositions(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make(map[string]struct{}, len(broker)+len(local))
	for s := range broker {
		symbols[s] = struct{}{}
	}
	for s := range local {
		symbols[s] = struct{}{}
	}
	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	report := &Report{
		TotalAbsoluteValue: decimal.Zero,
		BrokerPositions:    len(broker),
		LocalPositions:     len(local),
		RanAt:              time.Now().UTC(),
	}
	for _, symbol := range ordered {
		bp, atBroker := broker[symbol]
		lp, atLocal := local[symbol]

		var d domain.PositionDiscrepancy
		switch {
		case atBroker && !atLocal:
			d = domain.PositionDiscrepancy{
				Symbol:         symbol,
				BrokerQuantity: bp.Quantity,
				Kind:           domain.ExtraAtBroker,
				ValueDiff:      decimal.NewFromInt(int64(bp.Quantity)).Mul(decimal.NewFromFloat(bp.AvgCost)),
			}
		case !atBroker && atLocal:
			d = domain.PositionDiscrepancy{
				Symbol:        symbol,
				LocalQuantity: lp.quantity,
				Kind:          domain.MissingAtBroker,
				ValueDiff:     decimal.NewFromInt(int64(lp.quantity)).Mul(lp.avgCost),
			}
		case bp.Quantity != lp.quantity:
			d = domain.PositionDiscrepancy{
				Symbol:         symbol,
				BrokerQuantity: bp.Quantity,
				LocalQuantity:  lp.quantity,
				Kind:           domain.QuantityMismatch,
				ValueDiff:      decimal.NewFromInt(int64(bp.Quantity - lp.quantity)).Mul(decimal.NewFromFloat(bp.AvgCost)),
			}
		default:
			continue
		}
		report.Discrepancies = append(report.Discrepancies, d)
		report.TotalAbsoluteValue = report.TotalAbsoluteValue.Add(d.ValueDiff.Abs())
	}

	if len(report.Discrepancies) > 0 {
		r.logger.Warn(ctx, "Position discrepancies found", map[string]interface{}{
			"count":              len(report.Discrepancies),
			"totalAbsoluteValue": report.TotalAbsoluteValue.StringFixed(2),
		})
	} else {
		r.logger.Info(ctx, "Positions reconciled, no discrepancies", map[string]interface{}{
			"brokerPositions": report.BrokerPositions,
			"localPositions":  report.LocalPositions,
		})
	}
	return report, nil
}

// localPositions aggregates all open trades per symbol.
func (r *Reconciler) localPositions(ctx context.Context) (map[string]*localPosition, error) {
	open, err := r.trades.FindOpenTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load open trades for reconciliation: %w", err)
	}

	bySymbol := make(map[string]*localPosition)
	for _, t := range open {
		instrument, err := r.instruments.FindInstrumentByID(ctx, t.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve instrument %d: %w", t.InstrumentID, err)
		}
		if instrument == nil {
			return nil, fmt.Errorf("instrument %d referenced by trade %d: %w", t.InstrumentID, t.ID, ports.ErrNotFound)
		}

		lp, ok := bySymbol[instrument.Symbol]
		if !ok {
			lp = &localPosition{avgCost: decimal.Zero}
			bySymbol[instrument.Symbol] = lp
		}

		prevQty := decimal.NewFromInt(int64(lp.quantity))
		addQty := decimal.NewFromInt(int64(t.Quantity))
		addCost := decimal.NewFromFloat(t.EntryPrice)
		totalQty := prevQty.Add(addQty)
		// Cost-weighted average across the strategy's open trades.
		lp.avgCost = lp.avgCost.Mul(prevQty).Add(addCost.Mul(addQty)).Div(totalQty)
		lp.quantity += t.Quantity
		lp.trades = append(lp.trades, t)
	}
	return bySymbol, nil
}

// RecoverExtraPosition synthesizes a local open trade matching a
// position the broker holds but the ledger does not. The trade is
// flagged recovered so it stays distinguishable from organic trades.
func (r *Reconciler) RecoverExtraPosition(ctx context.Context, d domain.PositionDiscrepancy, strategyID int64) (*domain.Trade, error) {
	if d.Kind != domain.ExtraAtBroker {
		return nil, fmt.Errorf("cannot recover %s discrepancy as an extra position: %w", d.Kind, ports.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	instrument, err := r.instruments.FindInstrumentBySymbol(ctx, d.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instrument %s: %w", d.Symbol, err)
	}
	if instrument == nil {
		instrument = &domain.Instrument{Symbol: d.Symbol}
		if _, err := r.instruments.CreateInstrument(ctx, instrument); err != nil {
			return nil, fmt.Errorf("failed to create instrument %s during recovery: %w", d.Symbol, err)
		}
	}

	avgCost, _ := d.ValueDiff.Div(decimal.NewFromInt(int64(d.BrokerQuantity))).Float64()
	trade := &domain.Trade{
		StrategyID:     strategyID,
		InstrumentID:   instrument.ID,
		EntryTime:      time.Now().UTC(),
		EntryPrice:     avgCost,
		Quantity:       d.BrokerQuantity,
		Status:         domain.TradeOpen,
		Recovered:      true,
		RecoveryReason: domain.RecoveryReasonExtraAtBroker,
	}
	if _, err := r.trades.CreateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to synthesize recovered trade for %s: %w", d.Symbol, err)
	}

	r.logger.Warn(ctx, "Synthesized trade for broker-only position", map[string]interface{}{
		"symbol":   d.Symbol,
		"quantity": d.BrokerQuantity,
		"avgCost":  avgCost,
		"tradeID":  trade.ID,
	})
	return trade, nil
}

// RecoverMissingPosition force-closes every local open trade for a
// position the broker no longer holds. Exit P&L is left unrecorded:
// the true exit price is unknown, so the trades cannot be classified
// win or loss.
func (r *Reconciler) RecoverMissingPosition(ctx context.Context, d domain.PositionDiscrepancy) (int, error) {
	if d.Kind != domain.MissingAtBroker {
		return 0, fmt.Errorf("cannot recover %s discrepancy as a missing position: %w", d.Kind, ports.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	instrument, err := r.instruments.FindInstrumentBySymbol(ctx, d.Symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve instrument %s: %w", d.Symbol, err)
	}
	if instrument == nil {
		return 0, fmt.Errorf("instrument %s: %w", d.Symbol, ports.ErrNotFound)
	}

	open, err := r.trades.FindOpenTradesByInstrument(ctx, instrument.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load open trades for %s: %w", d.Symbol, err)
	}

	now := time.Now().UTC()
	closed := 0
	for _, t := range open {
		t.Status = domain.TradeClosed
		t.ExitTime = now
		t.Recovered = true
		t.RecoveryReason = domain.RecoveryReasonMissingAtBroker
		if err := r.trades.UpdateTrade(ctx, t); err != nil {
			return closed, fmt.Errorf("failed to force-close trade %d for %s: %w", t.ID, d.Symbol, err)
		}
		closed++
	}

	r.logger.Warn(ctx, "Force-closed local trades for position missing at broker", map[string]interface{}{
		"symbol":       d.Symbol,
		"tradesClosed": closed,
	})
	return closed, nil
}

// IsMajor reports whether the total absolute discrepancy value crosses
// the operator-review threshold.
func IsMajor(totalAbsoluteValue decimal.Decimal, threshold float64) bool {
	return totalAbsoluteValue.GreaterThan(decimal.NewFromFloat(threshold))
}
