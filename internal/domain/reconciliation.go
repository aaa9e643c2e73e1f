package domain

import "github.com/shopspring/decimal"

// PositionDiscrepancy describes one divergence between the broker's
// reported holdings and the locally persisted open positions. It is
// derived fresh on every reconciliation run and never persisted as
// ground truth.
type PositionDiscrepancy struct {
	Symbol         string
	BrokerQuantity int
	LocalQuantity  int
	ValueDiff      decimal.Decimal // Dollar value of the divergence; signed broker-minus-local for quantity mismatches
	Kind           DiscrepancyKind
}
