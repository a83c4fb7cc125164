// journal/journal.go
package journal

import (
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/shopspring/decimal"
)

// TradeRecord is one fill as written to a journal sink. Value is the signed
// cash flow, negative for a buy.
type TradeRecord struct {
	TradeID    string          `json:"trade_id"`
	OrderID    string          `json:"order_id"`
	Owner      string          `json:"owner"`
	Symbol     string          `json:"symbol"`
	Side       broker.Side     `json:"side"`
	Qty        int64           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Value      decimal.Decimal `json:"value"`
	ExecutedAt time.Time       `json:"executed_at"`
}

func FromTrade(t broker.Trade) TradeRecord {
	return TradeRecord{
		TradeID:    t.ID,
		OrderID:    t.OrderID,
		Owner:      t.Owner,
		Symbol:     t.Symbol,
		Side:       t.Side,
		Qty:        t.Qty,
		Price:      t.Price,
		Value:      t.Value(),
		ExecutedAt: t.ExecutedAt,
	}
}

// EquitySnapshot is an owner's mark-to-market value at a point in time.
type EquitySnapshot struct {
	Time     time.Time       `json:"time"`
	Owner    string          `json:"owner"`
	Cash     decimal.Decimal `json:"cash"`
	Holdings decimal.Decimal `json:"holdings"`
	Equity   decimal.Decimal `json:"equity"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
