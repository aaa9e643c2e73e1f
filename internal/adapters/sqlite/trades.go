package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
)

// requireRowsAffected converts a zero-row update into ports.ErrNotFound.
func requireRowsAffected(result sql.Result, entity string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for %s ID %d: %w", entity, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s ID %d not found for update: %w", entity, id, ports.ErrNotFound)
	}
	return nil
}

// --- TradeRepository Implementation ---

const tradeColumns = `id, strategy_id, instrument_id, entry_time, entry_price, quantity,
	exit_time, COALESCE(exit_price, 0), status, stop_loss, take_profit, profit_loss,
	recovered, recovery_reason, created_at, updated_at`

// CreateTrade saves a new trade and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, t *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (strategy_id, instrument_id, entry_time, entry_price, quantity,
	                    status, stop_loss, take_profit, recovered, recovery_reason, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var recoveryReason sql.NullString
	if t.RecoveryReason != "" {
		recoveryReason = sql.NullString{String: string(t.RecoveryReason), Valid: true}
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		t.StrategyID, t.InstrumentID, t.EntryTime, t.EntryPrice, t.Quantity,
		t.Status, t.StopLoss, t.TakeProfit, t.Recovered, recoveryReason, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for instrument %d: %w", t.InstrumentID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "strategyID": t.StrategyID, "recovered": t.Recovered})
	return id, nil
}

// UpdateTrade modifies an existing trade based on its ID.
func (r *Repository) UpdateTrade(ctx context.Context, t *domain.Trade) error {
	const query = `
	UPDATE trades
	SET entry_time = ?, entry_price = ?, quantity = ?, exit_time = ?, exit_price = ?,
	    status = ?, stop_loss = ?, take_profit = ?, profit_loss = ?,
	    recovered = ?, recovery_reason = ?, updated_at = ?
	WHERE id = ?`

	var exitTime sql.NullTime
	if !t.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: t.ExitTime, Valid: true}
	}
	var exitPrice sql.NullFloat64
	if t.Status == domain.TradeClosed {
		exitPrice = sql.NullFloat64{Float64: t.ExitPrice, Valid: true}
	}
	var profitLoss sql.NullFloat64
	if t.ProfitLoss != nil {
		profitLoss = sql.NullFloat64{Float64: *t.ProfitLoss, Valid: true}
	}
	var recoveryReason sql.NullString
	if t.RecoveryReason != "" {
		recoveryReason = sql.NullString{String: string(t.RecoveryReason), Valid: true}
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		t.EntryTime, t.EntryPrice, t.Quantity, exitTime, exitPrice,
		t.Status, t.StopLoss, t.TakeProfit, profitLoss,
		t.Recovered, recoveryReason, now, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w", t.ID, err)
	}
	if err := requireRowsAffected(result, "trade", t.ID); err != nil {
		return err
	}
	t.UpdatedAt = now
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": t.ID, "status": t.Status})
	return nil
}

// FindTradeByID retrieves a trade by its unique ID.
func (r *Repository) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = ?`

	t, err := scanTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	return t, nil
}

// FindOpenTrade retrieves the open trade for a (strategy, instrument)
// pair, if any. At most one should exist; the earliest wins if the
// invariant was ever violated.
func (r *Repository) FindOpenTrade(ctx context.Context, strategyID, instrumentID int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
	WHERE strategy_id = ? AND instrument_id = ? AND status = ? ORDER BY id LIMIT 1`

	t, err := scanTrade(r.db.QueryRowContext(ctx, query, strategyID, instrumentID, domain.TradeOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open trade for strategy %d instrument %d: %w", strategyID, instrumentID, err)
	}
	return t, nil
}

// FindOpenTradesByStrategy retrieves all open trades for a strategy.
func (r *Repository) FindOpenTradesByStrategy(ctx context.Context, strategyID int64) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE strategy_id = ? AND status = ? ORDER BY entry_time`
	return r.queryTrades(ctx, query, strategyID, domain.TradeOpen)
}

// FindOpenTradesByInstrument retrieves all open trades for an instrument.
func (r *Repository) FindOpenTradesByInstrument(ctx context.Context, instrumentID int64) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE instrument_id = ? AND status = ? ORDER BY entry_time`
	return r.queryTrades(ctx, query, instrumentID, domain.TradeOpen)
}

// FindOpenTrades retrieves every open trade.
func (r *Repository) FindOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = ? ORDER BY entry_time`
	return r.queryTrades(ctx, query, domain.TradeOpen)
}

// FindTradesCreatedSince retrieves trades created at or after the cutoff.
func (r *Repository) FindTradesCreatedSince(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE created_at >= ? ORDER BY created_at`
	return r.queryTrades(ctx, query, cutoff)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var exitTime sql.NullTime
	var profitLoss sql.NullFloat64
	var recoveryReason sql.NullString
	var status string
	err := s.Scan(
		&t.ID, &t.StrategyID, &t.InstrumentID, &t.EntryTime, &t.EntryPrice, &t.Quantity,
		&exitTime, &t.ExitPrice, &status, &t.StopLoss, &t.TakeProfit, &profitLoss,
		&t.Recovered, &recoveryReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if exitTime.Valid {
		t.ExitTime = exitTime.Time
	}
	if profitLoss.Valid {
		pl := profitLoss.Float64
		t.ProfitLoss = &pl
	}
	if recoveryReason.Valid {
		t.RecoveryReason = domain.RecoveryReason(recoveryReason.String)
	}
	t.Status = domain.TradeStatus(status)
	return t, nil
}
