package domain

import "time"

// HeartbeatRecord is the single, continuously overwritten liveness row.
// A gap exceeding the crash timeout is the crash signal.
type HeartbeatRecord struct {
	ID            int64
	LastHeartbeat time.Time
	Status        string
}

// Heartbeat status labels.
const (
	HeartbeatRunning  = "running"
	HeartbeatStopping = "stopping"
)

// RecoveryEvent is an immutable audit record of one recovery run.
// Append-only.
type RecoveryEvent struct {
	ID                 int64
	OccurredAt         time.Time
	Success            bool
	DiscrepanciesFound int
	Message            string
	ActionsTaken       string // Newline-joined free text
}
