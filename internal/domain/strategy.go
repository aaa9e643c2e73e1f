package domain

import "time"

// Strategy represents a configured trading strategy and its risk state.
// Strategies are created by configuration and never deleted, only
// paused or errored.
type Strategy struct {
	ID                     int64
	Name                   string
	Status                 StrategyStatus
	ConsecutiveLossesToday int     // Reset externally at trading-day start
	StopLossPct            float64 // e.g. 0.05 for a 5% stop below entry
	TakeProfitPct          float64 // e.g. 0.10 for a 10% target above entry
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsPaused reports whether the strategy is currently paused.
func (s *Strategy) IsPaused() bool {
	return s.Status == StrategyPaused
}

// CanTrade reports whether the strategy may open new positions.
func (s *Strategy) CanTrade() bool {
	return s.Status == StrategyActive
}
