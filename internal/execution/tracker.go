// Package execution turns approved signals into broker orders and
// tracks those orders to a terminal state.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
)

// Tracker submits orders through the broker gateway, persists the local
// order record, and keeps local status in sync with polled broker
// status. Local status is never guessed: it only moves on the broker's
// explicit say-so.
type Tracker struct {
	broker ports.BrokerGateway
	orders ports.OrderRepository
	trades ports.TradeRepository
	logger ports.Logger
}

// NewTracker creates an order tracker.
func NewTracker(broker ports.BrokerGateway, orders ports.OrderRepository, trades ports.TradeRepository, logger ports.Logger) *Tracker {
	return &Tracker{broker: broker, orders: orders, trades: trades, logger: logger}
}

// Submit places the order at the broker and persists the local record
// as pending. The client order ID is generated here so a crash between
// placement and persistence remains attributable at the broker.
func (t *Tracker) Submit(ctx context.Context, instrument *domain.Instrument, order *domain.Order) (*domain.Order, error) {
	order.ClientOrderID = uuid.NewString()
	order.Status = domain.OrderPending
	order.SubmittedAt = time.Now().UTC()

	brokerOrderID, err := t.broker.PlaceOrder(ctx, ports.PlaceOrderRequest{
		Symbol:        instrument.Symbol,
		Side:          order.Side,
		Type:          order.Type,
		Quantity:      order.Quantity,
		StopPrice:     order.StopPrice,
		LimitPrice:    order.LimitPrice,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s %s order for %s: %w", order.Side, order.Type, instrument.Symbol, err)
	}
	order.BrokerOrderID = brokerOrderID

	if _, err := t.orders.CreateOrder(ctx, order); err != nil {
		// The broker order is live but the local record is missing;
		// the recovery orphan scan surfaces this state.
		t.logger.Error(ctx, err, "Order placed at broker but local persistence failed", map[string]interface{}{
			"brokerOrderID": brokerOrderID,
			"symbol":        instrument.Symbol,
		})
		return nil, fmt.Errorf("failed to persist order for broker order %s: %w", brokerOrderID, err)
	}
	return order, nil
}

// RefreshStatus performs a one-shot broker poll for the order and
// applies the result to local state. It returns the possibly-updated
// order and whether this refresh closed a linked trade.
func (t *Tracker) RefreshStatus(ctx context.Context, order *domain.Order) (*domain.Order, bool, error) {
	if !order.IsPending() {
		return order, false, nil
	}

	status, err := t.broker.OrderStatus(ctx, order.BrokerOrderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			// Conservative: an order the broker no longer knows stays
			// pending locally until reconciliation resolves it.
			t.logger.Warn(ctx, "Broker no longer reports order, leaving pending", map[string]interface{}{
				"orderID":       order.ID,
				"brokerOrderID": order.BrokerOrderID,
			})
			return order, false, nil
		}
		return nil, false, fmt.Errorf("failed to refresh order %d: %w", order.ID, err)
	}

	return t.applyBrokerStatus(ctx, order, status)
}

// PollUntilFilled blocks until the broker reports the order filled, up
// to the timeout. It returns the realized fill price. On timeout the
// order stays pending for the sweep to resolve; the broker order is
// not cancelled.
func (t *Tracker) PollUntilFilled(ctx context.Context, order *domain.Order, timeout, interval time.Duration) (float64, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		refreshed, _, err := t.RefreshStatus(ctx, order)
		if err != nil {
			return 0, err
		}
		switch refreshed.Status {
		case domain.OrderFilled:
			if refreshed.FilledPrice == nil {
				return 0, fmt.Errorf("order %d reported filled without a fill price", refreshed.ID)
			}
			return *refreshed.FilledPrice, nil
		case domain.OrderCancelled:
			return 0, fmt.Errorf("order %d was cancelled by the broker before filling", refreshed.ID)
		}

		if time.Now().After(deadline) {
			return 0, fmt.Errorf("order %d not filled within %s: %w", order.ID, timeout, ports.ErrFillTimeout)
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("fill poll aborted for order %d: %w", order.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SweepPending refreshes every pending order once and returns the IDs
// of trades closed by protective-order fills, so the caller can feed
// them to loss tracking. Orders may fill long after the request path
// that created them has moved on; the sweep is what catches those.
func (t *Tracker) SweepPending(ctx context.Context) ([]int64, error) {
	pending, err := t.orders.FindPendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending orders for sweep: %w", err)
	}

	var closedTrades []int64
	for _, order := range pending {
		_, closed, err := t.RefreshStatus(ctx, order)
		if err != nil {
			// One broken order must not stall the rest of the sweep.
			t.logger.Error(ctx, err, "Sweep failed to refresh order", map[string]interface{}{"orderID": order.ID})
			continue
		}
		if closed && order.TradeID != nil {
			closedTrades = append(closedTrades, *order.TradeID)
		}
	}
	if len(pending) > 0 {
		t.logger.Debug(ctx, "Pending order sweep complete", map[string]interface{}{
			"swept":        len(pending),
			"tradesClosed": len(closedTrades),
		})
	}
	return closedTrades, nil
}

// applyBrokerStatus maps one broker status snapshot onto the local
// order, persisting any transition. The mapping is conservative and
// idempotent: only an explicit broker fill sets filled, cancellation
// codes set cancelled, and anything transient leaves pending.
func (t *Tracker) applyBrokerStatus(ctx context.Context, order *domain.Order, status *ports.BrokerOrderStatus) (*domain.Order, bool, error) {
	switch status.State {
	case ports.BrokerOrderFilled:
		if order.Status == domain.OrderFilled {
			return order, false, nil
		}
		if status.AvgFillPrice == nil {
			return nil, false, fmt.Errorf("broker reported order %d filled without a fill price", order.ID)
		}
		now := time.Now().UTC()
		order.Status = domain.OrderFilled
		order.FilledPrice = status.AvgFillPrice
		order.FilledAt = &now
		if err := t.orders.UpdateOrder(ctx, order); err != nil {
			return nil, false, fmt.Errorf("failed to persist fill for order %d: %w", order.ID, err)
		}
		t.logger.Info(ctx, "Order filled", map[string]interface{}{
			"orderID":   order.ID,
			"type":      order.Type,
			"fillPrice": *status.AvgFillPrice,
		})

		closed := false
		if order.IsProtective() && order.TradeID != nil {
			var err error
			closed, err = t.closeTradeFromProtectiveFill(ctx, order)
			if err != nil {
				return nil, false, err
			}
		}
		return order, closed, nil

	case ports.BrokerOrderCancelled:
		if order.Status == domain.OrderCancelled {
			return order, false, nil
		}
		order.Status = domain.OrderCancelled
		if err := t.orders.UpdateOrder(ctx, order); err != nil {
			return nil, false, fmt.Errorf("failed to persist cancellation for order %d: %w", order.ID, err)
		}
		t.logger.Info(ctx, "Order cancelled by broker", map[string]interface{}{"orderID": order.ID, "type": order.Type})
		return order, false, nil

	default:
		return order, false, nil
	}
}

// closeTradeFromProtectiveFill closes the linked trade at the
// protective order's fill price, recording realized P&L. Idempotent:
// an already-closed trade is left untouched.
func (t *Tracker) closeTradeFromProtectiveFill(ctx context.Context, order *domain.Order) (bool, error) {
	trade, err := t.trades.FindTradeByID(ctx, *order.TradeID)
	if err != nil {
		return false, fmt.Errorf("failed to load trade %d for protective fill: %w", *order.TradeID, err)
	}
	if trade == nil {
		return false, fmt.Errorf("trade %d linked to order %d: %w", *order.TradeID, order.ID, ports.ErrNotFound)
	}
	if !trade.IsOpen() {
		return false, nil
	}

	exitPrice := *order.FilledPrice
	profitLoss := (exitPrice - trade.EntryPrice) * float64(trade.Quantity)
	trade.Status = domain.TradeClosed
	trade.ExitPrice = exitPrice
	trade.ExitTime = *order.FilledAt
	trade.ProfitLoss = &profitLoss
	if err := t.trades.UpdateTrade(ctx, trade); err != nil {
		return false, fmt.Errorf("failed to close trade %d after protective fill: %w", trade.ID, err)
	}

	t.logger.Info(ctx, "Trade closed by protective order", map[string]interface{}{
		"tradeID":    trade.ID,
		"orderID":    order.ID,
		"orderType":  order.Type,
		"exitPrice":  exitPrice,
		"profitLoss": profitLoss,
	})
	return true, nil
}
