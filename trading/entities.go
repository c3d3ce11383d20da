package trading

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "Sell"
	}
	return "Buy"
}

type OrderType int

const (
	Market OrderType = iota
	Limit
	StopMarket
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "Limit"
	case StopMarket:
		return "StopMarket"
	case StopLimit:
		return "StopLimit"
	default:
		return "Market"
	}
}

type OrderStatus int

const (
	StatusPending OrderStatus = iota
	StatusOpen
	StatusFilled
	StatusPartiallyFilled
	StatusCancelled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusFilled:
		return "Filled"
	case StatusPartiallyFilled:
		return "PartiallyFilled"
	case StatusCancelled:
		return "Cancelled"
	case StatusRejected:
		return "Rejected"
	default:
		return "Pending"
	}
}

// Order is a domain-level order. Orders are created client-side with a fresh
// ULID and StatusPending; the venue's response overwrites ID, Status and
// FilledQuantity on submission.
type Order struct {
	ID             string
	Symbol         string
	Side           Side
	Type           OrderType
	Quantity       decimal.Decimal
	Price          *decimal.Decimal
	StopPrice      *decimal.Decimal
	FilledQuantity decimal.Decimal
	Status         OrderStatus
	Timestamp      time.Time
}

// NewOrder creates a not-yet-submitted order with a client-assigned ID.
func NewOrder(symbol string, side Side, orderType OrderType, quantity decimal.Decimal, price *decimal.Decimal) Order {
	return Order{
		ID:        ulid.Make().String(),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Quantity:  quantity,
		Price:     price,
		Status:    StatusPending,
		Timestamp: time.Now(),
	}
}

// OrderModification carries the editable fields of an open order. Nil fields
// are left unchanged.
type OrderModification struct {
	Price    *decimal.Decimal
	Quantity *decimal.Decimal
}

// OptionType distinguishes calls ("CE") from puts ("PE").
type OptionType string

const (
	CallOption OptionType = "CE"
	PutOption  OptionType = "PE"
)

// OptionContract is one leg of an option chain on some underlying.
type OptionContract struct {
	Symbol     string
	Underlying string
	Strike     decimal.Decimal
	Expiry     string
	Type       OptionType
}

// Position is a venue-derived read-only view. Quantity is signed: positive
// long, negative short. Positions are never mutated locally, only re-fetched.
type Position struct {
	Symbol        string
	Quantity      decimal.Decimal
	AveragePrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	Timestamp     time.Time
}

// Account is the margin account summary.
type Account struct {
	ID              string
	Balance         decimal.Decimal
	AvailableMargin decimal.Decimal
	UsedMargin      decimal.Decimal
}

// DemoAccount is the fixed fallback account used when the caller is
// unauthenticated or account data cannot be fetched. Account views must never
// block the consumer.
func DemoAccount() *Account {
	return &Account{
		ID:              "demo",
		Balance:         decimal.NewFromInt(100000),
		AvailableMargin: decimal.NewFromInt(100000),
		UsedMargin:      decimal.Zero,
	}
}
