package ports

import "errors"

// Standard application-level errors. Adapters wrap underlying
// infrastructure errors with these so callers can branch with errors.Is.
var (
	// General
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input parameters")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker
	ErrNotConnected         = errors.New("broker connection is not available")
	ErrConnectionFailed     = errors.New("failed to connect to the broker")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check API keys)")
	ErrOrderNotFound        = errors.New("order not found at the broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrQuoteUnavailable     = errors.New("no quote data available")

	// Risk / execution
	ErrInsufficientCapital = errors.New("insufficient buying power for position")
	ErrFillTimeout         = errors.New("order not confirmed filled within poll window")

	// Database
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
