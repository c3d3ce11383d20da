package marketsync

import (
	"github.com/shopspring/decimal"
)

// TickerSnapshot is a normalized, complete ticker state. Every update is a
// full replacement, never a delta. Fields the venue omitted or sent in a
// non-numeric form are zero.
type TickerSnapshot struct {
	Symbol    string
	LastPrice decimal.Decimal
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Volume    decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	Change24h decimal.Decimal
}

// OrderBookSnapshot is a normalized L2 order book. Bids are sorted descending
// by price, asks ascending. A new snapshot replaces the prior one wholesale.
type OrderBookSnapshot struct {
	Symbol string
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// PriceLevel is one side level. Depth is the cumulative quantity from the top
// of the book through this level.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Depth    decimal.Decimal
}

// parseDecimal converts an optional string to a decimal, substituting zero
// for anything absent or non-numeric.
func parseDecimal(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return parseDecimalString(*s)
}

func parseDecimalString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseFloat converts an optional float to a decimal, substituting zero when
// absent.
func parseFloat(f *float64) decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*f)
}
