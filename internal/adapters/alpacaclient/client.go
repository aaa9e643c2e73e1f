// Package alpacaclient implements the BrokerGateway port against the
// Alpaca trading and market data REST APIs.
package alpacaclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
)

// Config holds configuration for the Alpaca client adapter.
type Config struct {
	APIKey               string
	APISecret            string
	BaseURL              string
	DataURL              string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	Logger               ports.Logger
}

// Client adapts the Alpaca REST API to the ports.BrokerGateway contract.
// The REST transport is stateless; "connected" here means the last
// credential probe succeeded and calls are allowed through.
type Client struct {
	trading    *alpaca.Client
	marketData *marketdata.Client
	logger     ports.Logger
	cfg        Config

	mu        sync.RWMutex
	connected bool
}

// NewClient creates a new Alpaca broker gateway. It does not contact
// the API; call Connect before use.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("alpaca credentials are required: %w", ports.ErrConfigurationError)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 3
	}

	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.DataURL,
	})

	return &Client{
		trading:    trading,
		marketData: md,
		logger:     cfg.Logger,
		cfg:        cfg,
	}, nil
}

// Connect verifies the credentials by fetching the account and marks
// the session usable.
func (c *Client) Connect(ctx context.Context) error {
	acct, err := c.trading.GetAccount()
	if err != nil {
		c.setConnected(false)
		if isAuthError(err) {
			return fmt.Errorf("alpaca account probe rejected: %v: %w", err, ports.ErrAuthenticationFailed)
		}
		return fmt.Errorf("alpaca account probe failed: %v: %w", err, ports.ErrConnectionFailed)
	}
	c.setConnected(true)
	c.logger.Info(ctx, "Connected to Alpaca", map[string]interface{}{
		"accountID": acct.ID,
		"status":    acct.Status,
		"baseURL":   c.cfg.BaseURL,
	})
	return nil
}

// Disconnect marks the session unusable. There is no persistent
// connection to tear down.
func (c *Client) Disconnect(ctx context.Context) error {
	c.setConnected(false)
	c.logger.Info(ctx, "Disconnected from Alpaca")
	return nil
}

// Reconnect retries Connect with exponential backoff up to the
// configured attempt cap.
func (c *Client) Reconnect(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    c.cfg.ReconnectDelay,
		Max:    c.cfg.ReconnectDelay * 8,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		lastErr = c.Connect(ctx)
		if lastErr == nil {
			c.logger.Info(ctx, "Reconnected to Alpaca", map[string]interface{}{"attempt": attempt})
			return nil
		}

		wait := b.Duration()
		c.logger.Warn(ctx, "Reconnect attempt failed", map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": c.cfg.MaxReconnectAttempts,
			"retryIn":     wait.String(),
			"error":       lastErr.Error(),
		})

		select {
		case <-ctx.Done():
			return fmt.Errorf("reconnect aborted: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("reconnect failed after %d attempts: %w", c.cfg.MaxReconnectAttempts, lastErr)
}

// IsConnected reports whether the session is currently usable.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) requireConnected() error {
	if !c.IsConnected() {
		return ports.ErrNotConnected
	}
	return nil
}

// AccountSummary returns net liquidation value and buying power,
// fetched fresh from the broker on every call.
func (c *Client) AccountSummary(ctx context.Context) (*ports.AccountSummary, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	acct, err := c.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account summary: %w", err)
	}
	return &ports.AccountSummary{
		NetLiquidation: acct.Equity.InexactFloat64(),
		BuyingPower:    acct.BuyingPower.InexactFloat64(),
	}, nil
}

// Positions returns all current holdings reported by the broker.
func (c *Client) Positions(ctx context.Context) ([]ports.BrokerPosition, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	positions, err := c.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}

	out := make([]ports.BrokerPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, ports.BrokerPosition{
			Symbol:   p.Symbol,
			Quantity: int(p.Qty.IntPart()),
			AvgCost:  p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out, nil
}

// PlaceOrder submits an order and returns the broker-assigned order ID.
func (c *Client) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (string, error) {
	if err := c.requireConnected(); err != nil {
		return "", err
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          toAlpacaSide(req.Side),
		ClientOrderID: req.ClientOrderID,
	}

	switch req.Type {
	case domain.OrderTypeMarket:
		placeReq.Type = alpaca.Market
		placeReq.TimeInForce = alpaca.Day
	case domain.OrderTypeStop:
		if req.StopPrice == nil {
			return "", fmt.Errorf("stop order for %s is missing a stop price: %w", req.Symbol, ports.ErrInvalidInput)
		}
		stop := decimal.NewFromFloat(*req.StopPrice)
		placeReq.Type = alpaca.Stop
		placeReq.StopPrice = &stop
		placeReq.TimeInForce = alpaca.GTC
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil {
			return "", fmt.Errorf("limit order for %s is missing a limit price: %w", req.Symbol, ports.ErrInvalidInput)
		}
		limit := decimal.NewFromFloat(*req.LimitPrice)
		placeReq.Type = alpaca.Limit
		placeReq.LimitPrice = &limit
		placeReq.TimeInForce = alpaca.GTC
	default:
		return "", fmt.Errorf("unsupported order type %q: %w", req.Type, ports.ErrInvalidInput)
	}

	order, err := c.trading.PlaceOrder(placeReq)
	if err != nil {
		return "", fmt.Errorf("failed to place %s %s order for %s: %v: %w",
			req.Side, req.Type, req.Symbol, err, ports.ErrOrderPlacementFailed)
	}
	c.logger.Info(ctx, "Order placed at broker", map[string]interface{}{
		"symbol":        req.Symbol,
		"side":          req.Side,
		"type":          req.Type,
		"quantity":      req.Quantity,
		"brokerOrderID": order.ID,
	})
	return order.ID, nil
}

// OrderStatus returns the broker's current view of an order, normalized
// to the gateway vocabulary. Unknown broker statuses map to pending: a
// fill is only ever reported on the broker's explicit say-so.
func (c *Client) OrderStatus(ctx context.Context, brokerOrderID string) (*ports.BrokerOrderStatus, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	order, err := c.trading.GetOrder(brokerOrderID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("broker order %s: %w", brokerOrderID, ports.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", brokerOrderID, err)
	}

	status := &ports.BrokerOrderStatus{
		State:     normalizeStatus(order.Status),
		FilledQty: int(order.FilledQty.IntPart()),
	}
	if status.State == ports.BrokerOrderFilled && order.FilledAvgPrice != nil {
		price := order.FilledAvgPrice.InexactFloat64()
		status.AvgFillPrice = &price
	}
	return status, nil
}

// Quote returns a market data snapshot for the symbol. The latest trade
// price is preferred; bid/ask come from the latest quote.
func (c *Client) Quote(ctx context.Context, symbol string) (*ports.Quote, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	q := &ports.Quote{}
	trade, err := c.marketData.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err == nil && trade != nil {
		q.Last = trade.Price
	}
	quote, qErr := c.marketData.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if qErr == nil && quote != nil {
		q.Bid = quote.BidPrice
		q.Ask = quote.AskPrice
	}

	if q.Last <= 0 && q.Bid <= 0 && q.Ask <= 0 {
		if err == nil {
			err = qErr
		}
		return nil, fmt.Errorf("no market data for %s: %v: %w", symbol, err, ports.ErrQuoteUnavailable)
	}
	return q, nil
}

// --- Mapping Helpers ---

func toAlpacaSide(side domain.OrderSide) alpaca.Side {
	if side == domain.Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

// normalizeStatus maps Alpaca order statuses onto the three gateway
// states. Only a terminal broker status moves an order out of pending.
func normalizeStatus(status string) ports.BrokerOrderState {
	switch strings.ToLower(status) {
	case "filled":
		return ports.BrokerOrderFilled
	case "canceled", "cancelled", "expired", "rejected", "done_for_day":
		return ports.BrokerOrderCancelled
	default:
		// new, accepted, pending_new, partially_filled, replaced, ...
		return ports.BrokerOrderPending
	}
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden")
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
