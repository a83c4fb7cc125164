package broker

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists ledger state. Every write made inside one Update call is a
// single atomic unit: either all of it is committed or none of it is.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// OrderFilter selects orders. Zero fields match everything. Results are in
// ascending ID order, which is creation order.
type OrderFilter struct {
	Owner  string
	Status OrderStatus
	Type   OrderType
}

// Tx is the view of the store inside a transaction. Getters return an error
// wrapping ErrNotFound when the row is missing.
type Tx interface {
	CountInstruments() (int, error)
	InsertInstrument(Instrument) error
	GetInstrument(symbol string) (Instrument, error)
	ListInstruments() ([]Instrument, error)
	SetPrice(symbol string, price decimal.Decimal) error

	InsertAccount(Account) error
	GetAccount(owner string) (Account, error)
	SetCash(owner string, cash decimal.Decimal) error

	// GetPosition reports false when the owner holds none of symbol.
	GetPosition(owner, symbol string) (Position, bool, error)
	PutPosition(Position) error
	DeletePosition(owner, symbol string) error
	ListPositions(owner string) ([]Position, error)

	InsertOrder(Order) error
	GetOrder(id string) (Order, error)
	UpdateOrder(Order) error
	ListOrders(OrderFilter) ([]Order, error)

	InsertTrade(Trade) error
	ListTrades(owner string) ([]Trade, error)

	InsertCashTransaction(CashTransaction) error
	UpdateCashTransaction(CashTransaction) error
	// ListCashTransactions returns the owner's entries ordered by
	// (ScheduledFor, ID). An empty status matches every status.
	ListCashTransactions(owner string, status CashStatus) ([]CashTransaction, error)

	// ResetOwner deletes the owner's orders, trades and positions.
	ResetOwner(owner string) error
}
