package domain

// Signal is an approved trading signal handed to the execution engine.
// De-duplication is the caller's responsibility; executing the same
// signal twice opens two positions.
type Signal struct {
	StrategyID    int64
	Symbol        string
	Type          SignalType
	TriggerReason string
}
