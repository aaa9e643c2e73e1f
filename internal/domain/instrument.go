package domain

import "time"

// Instrument is a tradable symbol. Immutable once created apart from
// metadata refresh.
type Instrument struct {
	ID        int64
	Symbol    string // Unique ticker (e.g. "AAPL")
	Name      string
	CreatedAt time.Time
}
