package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Broker is the narrow service surface the presentation layer talks to.
// Every call names its owner explicitly; nothing reads ambient session state.
type Broker interface {
	OpenAccount(ctx context.Context, owner string) (Account, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, owner, orderID string) (Order, error)
	TickMarket(ctx context.Context) error

	GetAccount(ctx context.Context, owner string) (Account, error)
	GetPositions(ctx context.Context, owner string) ([]Position, error)
	GetOrders(ctx context.Context, owner string) ([]Order, error)
	GetTrades(ctx context.Context, owner string) ([]Trade, error)

	ScheduleCashTransaction(ctx context.Context, owner string, typ CashType, amount decimal.Decimal, on time.Time) (CashTransaction, error)
	ApplyDue(ctx context.Context, owner string, asOf time.Time) error
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

func (t OrderType) Valid() bool { return t == Market || t == Limit }

// OrderStatus moves once, from Pending to one of the terminal states.
type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Filled    OrderStatus = "FILLED"
	Cancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Terminal() bool { return s == Filled || s == Cancelled }

// Reasons recorded on cancelled orders.
const (
	ReasonInsufficientFunds    = "insufficient funds"
	ReasonInsufficientHoldings = "insufficient holdings"
	ReasonNoPosition           = "no position"
	ReasonOwnerCancel          = "cancelled by owner"
)

type Instrument struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

type Account struct {
	Owner     string          `json:"owner"`
	Cash      decimal.Decimal `json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
}

// Position is the live holding of one instrument. A position with zero
// quantity does not exist; the row is removed instead.
type Position struct {
	Owner    string          `json:"owner"`
	Symbol   string          `json:"symbol"`
	Qty      int64           `json:"qty"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

type Order struct {
	ID         string           `json:"id"`
	Owner      string           `json:"owner"`
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Type       OrderType        `json:"type"`
	Qty        int64            `json:"qty"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Status     OrderStatus      `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Trade is the append-only record of one fill.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Owner      string          `json:"owner"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Qty        int64           `json:"qty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Value is the signed cash flow of the trade from the owner's point of view.
func (t Trade) Value() decimal.Decimal {
	v := t.Price.Mul(decimal.NewFromInt(t.Qty)).RoundBank(2)
	if t.Side == Buy {
		return v.Neg()
	}
	return v
}

type OrderRequest struct {
	Owner      string           `json:"owner"`
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Type       OrderType        `json:"type"`
	Qty        int64            `json:"qty"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

type OrderResult struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
}

type CashType string

const (
	Deposit  CashType = "DEPOSIT"
	Withdraw CashType = "WITHDRAW"
)

func (c CashType) Valid() bool { return c == Deposit || c == Withdraw }

type CashStatus string

const (
	CashPending   CashStatus = "PENDING"
	CashProcessed CashStatus = "PROCESSED"
	// CashRejected marks a withdrawal refused by the overdraft guard.
	CashRejected CashStatus = "REJECTED"
)

type CashTransaction struct {
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	Type         CashType        `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Status       CashStatus      `json:"status"`
	ProcessedOn  *time.Time      `json:"processed_on,omitempty"`
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
