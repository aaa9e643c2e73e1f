package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockTradeBot/internal/domain"
)

// --- OrderRepository Implementation ---

const orderColumns = `id, trade_id, instrument_id, order_type, side, quantity,
	stop_price, limit_price, status, broker_order_id, client_order_id,
	filled_price, filled_at, submitted_at`

// CreateOrder saves a new order record and returns its assigned ID.
func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order) (int64, error) {
	const query = `
	INSERT INTO orders (trade_id, instrument_id, order_type, side, quantity,
	                    stop_price, limit_price, status, broker_order_id, client_order_id, submitted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var tradeID sql.NullInt64
	if o.TradeID != nil {
		tradeID = sql.NullInt64{Int64: *o.TradeID, Valid: true}
	}
	var brokerOrderID sql.NullString
	if o.BrokerOrderID != "" {
		brokerOrderID = sql.NullString{String: o.BrokerOrderID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		tradeID, o.InstrumentID, o.Type, o.Side, o.Quantity,
		nullFloat(o.StopPrice), nullFloat(o.LimitPrice), o.Status, brokerOrderID, o.ClientOrderID, o.SubmittedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order for instrument %d: %w", o.InstrumentID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for order: %w", err)
	}
	o.ID = id
	r.logger.Debug(ctx, "Order created", map[string]interface{}{"orderID": id, "type": o.Type, "brokerOrderID": o.BrokerOrderID})
	return id, nil
}

// UpdateOrder modifies an existing order based on its ID.
func (r *Repository) UpdateOrder(ctx context.Context, o *domain.Order) error {
	const query = `
	UPDATE orders
	SET trade_id = ?, status = ?, broker_order_id = ?, filled_price = ?, filled_at = ?
	WHERE id = ?`

	var tradeID sql.NullInt64
	if o.TradeID != nil {
		tradeID = sql.NullInt64{Int64: *o.TradeID, Valid: true}
	}
	var brokerOrderID sql.NullString
	if o.BrokerOrderID != "" {
		brokerOrderID = sql.NullString{String: o.BrokerOrderID, Valid: true}
	}
	var filledAt sql.NullTime
	if o.FilledAt != nil {
		filledAt = sql.NullTime{Time: *o.FilledAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		tradeID, o.Status, brokerOrderID, nullFloat(o.FilledPrice), filledAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order ID %d: %w", o.ID, err)
	}
	if err := requireRowsAffected(result, "order", o.ID); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Order updated", map[string]interface{}{"orderID": o.ID, "status": o.Status})
	return nil
}

// FindOrderByID retrieves an order by its unique ID.
func (r *Repository) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order by ID %d: %w", id, err)
	}
	return o, nil
}

// FindPendingOrders retrieves every order still in pending status,
// oldest first so the sweep resolves them in submission order.
func (r *Repository) FindPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ? ORDER BY submitted_at`
	return r.queryOrders(ctx, query, domain.OrderPending)
}

// FindOrdersByTrade retrieves all orders linked to a trade.
func (r *Repository) FindOrdersByTrade(ctx context.Context, tradeID int64) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE trade_id = ? ORDER BY submitted_at`
	return r.queryOrders(ctx, query, tradeID)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// scanOrder scans a row into a domain.Order struct.
func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var tradeID sql.NullInt64
	var stopPrice, limitPrice, filledPrice sql.NullFloat64
	var brokerOrderID sql.NullString
	var filledAt sql.NullTime
	var orderType, side, status string
	err := s.Scan(
		&o.ID, &tradeID, &o.InstrumentID, &orderType, &side, &o.Quantity,
		&stopPrice, &limitPrice, &status, &brokerOrderID, &o.ClientOrderID,
		&filledPrice, &filledAt, &o.SubmittedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if tradeID.Valid {
		o.TradeID = &tradeID.Int64
	}
	if stopPrice.Valid {
		o.StopPrice = &stopPrice.Float64
	}
	if limitPrice.Valid {
		o.LimitPrice = &limitPrice.Float64
	}
	if filledPrice.Valid {
		o.FilledPrice = &filledPrice.Float64
	}
	if brokerOrderID.Valid {
		o.BrokerOrderID = brokerOrderID.String
	}
	if filledAt.Valid {
		o.FilledAt = &filledAt.Time
	}
	o.Type = domain.OrderType(orderType)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// nullFloat converts an optional float into its SQL representation.
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
