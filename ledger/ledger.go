// Package ledger applies fills to cash and positions. It never locks and
// never opens transactions; callers hold the owner lock and pass the open
// transaction in, so every write of a fill commits or aborts together.
package ledger

import (
	"fmt"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/market"
	"github.com/rustyeddy/paper/pkg/id"
	"github.com/shopspring/decimal"
)

// SellOverflow decides what a SELL for more than the held quantity does.
type SellOverflow string

const (
	// Clamp sells everything held and marks the order FILLED.
	Clamp SellOverflow = "clamp"
	// Reject cancels the order and sells nothing.
	Reject SellOverflow = "reject"
)

func (s SellOverflow) Valid() bool { return s == Clamp || s == Reject }

type Options struct {
	SellOverflow SellOverflow
	// NewID and Now default to pkg/id and time.Now.
	NewID func() string
	Now   func() time.Time
}

type Ledger struct {
	sellOverflow SellOverflow
	newID        func() string
	now          func() time.Time
}

func New(opts Options) *Ledger {
	l := &Ledger{
		sellOverflow: opts.SellOverflow,
		newID:        opts.NewID,
		now:          opts.Now,
	}
	if !l.sellOverflow.Valid() {
		l.sellOverflow = Clamp
	}
	if l.newID == nil {
		l.newID = id.New
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

func (l *Ledger) SellOverflow() SellOverflow { return l.sellOverflow }

// Execute fills o at price inside tx. On return o is terminal and stored.
// A nil Trade with a nil error means the order was cancelled; o.Reason says
// why. Errors leave tx dirty and the caller must abort it.
func (l *Ledger) Execute(tx broker.Tx, o *broker.Order, price decimal.Decimal) (*broker.Trade, error) {
	if o.Status != broker.Pending {
		return nil, broker.Invalid("status", "order %s is %s, not PENDING", o.ID, o.Status)
	}
	if !price.IsPositive() {
		return nil, broker.Invalid("price", "execution price must be positive, got %s", price)
	}
	if o.Qty <= 0 {
		return nil, broker.Invalid("qty", "must be positive, got %d", o.Qty)
	}
	price = market.Round(price)

	acct, err := tx.GetAccount(o.Owner)
	if err != nil {
		return nil, err
	}
	pos, held, err := tx.GetPosition(o.Owner, o.Symbol)
	if err != nil {
		return nil, err
	}

	switch o.Side {
	case broker.Buy:
		return l.buy(tx, o, acct, pos, held, price)
	case broker.Sell:
		return l.sell(tx, o, acct, pos, held, price)
	default:
		return nil, broker.Invalid("side", "unknown side %q", o.Side)
	}
}

func (l *Ledger) buy(tx broker.Tx, o *broker.Order, acct broker.Account, pos broker.Position, held bool, price decimal.Decimal) (*broker.Trade, error) {
	cost := market.Notional(price, o.Qty)
	if acct.Cash.LessThan(cost) {
		return nil, l.cancel(tx, o, broker.ReasonInsufficientFunds)
	}

	if !held {
		pos = broker.Position{Owner: o.Owner, Symbol: o.Symbol}
	}
	pos.AvgPrice = blend(pos.Qty, pos.AvgPrice, o.Qty, price)
	pos.Qty += o.Qty

	if err := tx.PutPosition(pos); err != nil {
		return nil, fmt.Errorf("buy %s: %w", o.ID, err)
	}
	if err := tx.SetCash(o.Owner, acct.Cash.Sub(cost)); err != nil {
		return nil, fmt.Errorf("buy %s: %w", o.ID, err)
	}
	return l.fill(tx, o, price, o.Qty)
}

func (l *Ledger) sell(tx broker.Tx, o *broker.Order, acct broker.Account, pos broker.Position, held bool, price decimal.Decimal) (*broker.Trade, error) {
	if !held || pos.Qty <= 0 {
		return nil, l.cancel(tx, o, broker.ReasonNoPosition)
	}

	qty := o.Qty
	if qty > pos.Qty {
		if l.sellOverflow == Reject {
			return nil, l.cancel(tx, o, broker.ReasonInsufficientHoldings)
		}
		qty = pos.Qty
	}

	// average cost is left alone on disposal
	pos.Qty -= qty
	if pos.Qty == 0 {
		if err := tx.DeletePosition(o.Owner, o.Symbol); err != nil {
			return nil, fmt.Errorf("sell %s: %w", o.ID, err)
		}
	} else if err := tx.PutPosition(pos); err != nil {
		return nil, fmt.Errorf("sell %s: %w", o.ID, err)
	}

	proceeds := market.Notional(price, qty)
	if err := tx.SetCash(o.Owner, acct.Cash.Add(proceeds)); err != nil {
		return nil, fmt.Errorf("sell %s: %w", o.ID, err)
	}
	return l.fill(tx, o, price, qty)
}

// blend is the quantity-weighted average of the old holding and the fill.
func blend(oldQty int64, oldAvg decimal.Decimal, qty int64, price decimal.Decimal) decimal.Decimal {
	if oldQty <= 0 {
		return price
	}
	total := market.Notional(oldAvg, oldQty).Add(market.Notional(price, qty))
	return market.Round(total.Div(decimal.NewFromInt(oldQty + qty)))
}

func (l *Ledger) fill(tx broker.Tx, o *broker.Order, price decimal.Decimal, qty int64) (*broker.Trade, error) {
	now := l.now().UTC()
	o.Status = broker.Filled
	o.Reason = ""
	o.UpdatedAt = now
	if err := tx.UpdateOrder(*o); err != nil {
		return nil, fmt.Errorf("fill %s: %w", o.ID, err)
	}

	t := &broker.Trade{
		ID:         l.newID(),
		OrderID:    o.ID,
		Owner:      o.Owner,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Price:      price,
		Qty:        qty,
		ExecutedAt: now,
	}
	if err := tx.InsertTrade(*t); err != nil {
		return nil, fmt.Errorf("fill %s: %w", o.ID, err)
	}
	return t, nil
}

func (l *Ledger) cancel(tx broker.Tx, o *broker.Order, reason string) error {
	o.Status = broker.Cancelled
	o.Reason = reason
	o.UpdatedAt = l.now().UTC()
	if err := tx.UpdateOrder(*o); err != nil {
		return fmt.Errorf("cancel %s: %w", o.ID, err)
	}
	return nil
}

// Cancel marks a PENDING order cancelled by its owner.
func (l *Ledger) Cancel(tx broker.Tx, o *broker.Order) error {
	if o.Status != broker.Pending {
		return broker.Invalid("status", "order %s is already %s", o.ID, o.Status)
	}
	return l.cancel(tx, o, broker.ReasonOwnerCancel)
}
