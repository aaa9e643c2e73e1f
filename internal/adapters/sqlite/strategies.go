package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockTradeBot/internal/domain"
)

// --- StrategyRepository Implementation ---

// CreateStrategy saves a new strategy and returns its assigned ID.
func (r *Repository) CreateStrategy(ctx context.Context, s *domain.Strategy) (int64, error) {
	const query = `
	INSERT INTO strategies (name, status, consecutive_losses_today, stop_loss_pct, take_profit_pct, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		s.Name, s.Status, s.ConsecutiveLossesToday, s.StopLossPct, s.TakeProfitPct, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert strategy %q: %w", s.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for strategy %q: %w", s.Name, err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	r.logger.Debug(ctx, "Strategy created", map[string]interface{}{"strategyID": id, "name": s.Name})
	return id, nil
}

// UpdateStrategy modifies an existing strategy based on its ID.
func (r *Repository) UpdateStrategy(ctx context.Context, s *domain.Strategy) error {
	const query = `
	UPDATE strategies
	SET name = ?, status = ?, consecutive_losses_today = ?, stop_loss_pct = ?, take_profit_pct = ?, updated_at = ?
	WHERE id = ?`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		s.Name, s.Status, s.ConsecutiveLossesToday, s.StopLossPct, s.TakeProfitPct, now, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update strategy ID %d: %w", s.ID, err)
	}
	if err := requireRowsAffected(result, "strategy", s.ID); err != nil {
		return err
	}
	s.UpdatedAt = now
	r.logger.Debug(ctx, "Strategy updated", map[string]interface{}{"strategyID": s.ID, "status": s.Status, "losses": s.ConsecutiveLossesToday})
	return nil
}

// FindStrategyByID retrieves a strategy by its unique ID.
func (r *Repository) FindStrategyByID(ctx context.Context, id int64) (*domain.Strategy, error) {
	const query = `
	SELECT id, name, status, consecutive_losses_today, stop_loss_pct, take_profit_pct, created_at, updated_at
	FROM strategies WHERE id = ?`

	s, err := scanStrategy(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query strategy by ID %d: %w", id, err)
	}
	return s, nil
}

// FindAllStrategies retrieves all strategies ordered by ID.
func (r *Repository) FindAllStrategies(ctx context.Context) ([]*domain.Strategy, error) {
	const query = `
	SELECT id, name, status, consecutive_losses_today, stop_loss_pct, take_profit_pct, created_at, updated_at
	FROM strategies ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query all strategies: %w", err)
	}
	defer rows.Close()

	strategies := make([]*domain.Strategy, 0)
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy during FindAllStrategies: %w", err)
		}
		strategies = append(strategies, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy rows: %w", err)
	}
	return strategies, nil
}

// ResetLossCounters zeroes every strategy's consecutive-loss counter.
// Status is deliberately untouched: resuming a paused strategy is an
// operator or scheduler decision.
func (r *Repository) ResetLossCounters(ctx context.Context) (int, error) {
	const query = `
	UPDATE strategies SET consecutive_losses_today = 0, updated_at = ?
	WHERE consecutive_losses_today > 0`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset loss counters: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for loss counter reset: %w", err)
	}
	r.logger.Info(ctx, "Daily loss counters reset", map[string]interface{}{"strategies": affected})
	return int(affected), nil
}

// --- InstrumentRepository Implementation ---

// CreateInstrument saves a new instrument and returns its assigned ID.
func (r *Repository) CreateInstrument(ctx context.Context, ins *domain.Instrument) (int64, error) {
	const query = `INSERT INTO instruments (symbol, name, created_at) VALUES (?, ?, ?)`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query, ins.Symbol, ins.Name, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert instrument %q: %w", ins.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for instrument %q: %w", ins.Symbol, err)
	}
	ins.ID = id
	ins.CreatedAt = now
	r.logger.Debug(ctx, "Instrument created", map[string]interface{}{"instrumentID": id, "symbol": ins.Symbol})
	return id, nil
}

// FindInstrumentBySymbol retrieves an instrument by its ticker.
func (r *Repository) FindInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	const query = `SELECT id, symbol, name, created_at FROM instruments WHERE symbol = ?`

	ins, err := scanInstrument(r.db.QueryRowContext(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query instrument by symbol %q: %w", symbol, err)
	}
	return ins, nil
}

// FindInstrumentByID retrieves an instrument by its unique ID.
func (r *Repository) FindInstrumentByID(ctx context.Context, id int64) (*domain.Instrument, error) {
	const query = `SELECT id, symbol, name, created_at FROM instruments WHERE id = ?`

	ins, err := scanInstrument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query instrument by ID %d: %w", id, err)
	}
	return ins, nil
}

// --- Helper Scan Functions ---

func scanStrategy(s scanner) (*domain.Strategy, error) {
	st := &domain.Strategy{}
	var status string
	err := s.Scan(&st.ID, &st.Name, &status, &st.ConsecutiveLossesToday,
		&st.StopLossPct, &st.TakeProfitPct, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	st.Status = domain.StrategyStatus(status)
	return st, nil
}

func scanInstrument(s scanner) (*domain.Instrument, error) {
	ins := &domain.Instrument{}
	if err := s.Scan(&ins.ID, &ins.Symbol, &ins.Name, &ins.CreatedAt); err != nil {
		return nil, err
	}
	return ins, nil
}
