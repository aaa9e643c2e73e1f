package domain

import "time"

// Trade represents one open-or-closed position taken by a strategy.
// Exactly one open trade may exist per (strategy, instrument) pair; the
// risk validator enforces this before entry.
type Trade struct {
	ID           int64
	StrategyID   int64
	InstrumentID int64
	EntryTime    time.Time
	EntryPrice   float64 // Realized fill price, not the signal reference price
	Quantity     int
	ExitTime     time.Time // Zero value while open
	ExitPrice    float64   // 0 while open
	Status       TradeStatus
	StopLoss     float64
	TakeProfit   float64
	ProfitLoss   *float64 // Set only at close; nil means not yet classifiable

	// Recovery metadata: trades synthesized or force-closed by the
	// reconciler are flagged so they are distinguishable from
	// organically-created ones.
	Recovered      bool
	RecoveryReason RecoveryReason

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOpen checks if the trade status is open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// EntryValue returns the dollar cost of the position at entry.
func (t *Trade) EntryValue() float64 {
	return t.EntryPrice * float64(t.Quantity)
}
