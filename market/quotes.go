package market

import (
	"sort"

	"github.com/rustyeddy/paper/broker"
	"github.com/shopspring/decimal"
)

// Quotes is an immutable price snapshot keyed by symbol. A sweep evaluates
// every order against one Quotes so each instrument has one price per tick.
type Quotes map[string]decimal.Decimal

func QuotesOf(instruments []broker.Instrument) Quotes {
	q := make(Quotes, len(instruments))
	for _, in := range instruments {
		q[in.Symbol] = in.Price
	}
	return q
}

func (q Quotes) Price(symbol string) (decimal.Decimal, bool) {
	p, ok := q[symbol]
	return p, ok
}

// Symbols returns the snapshot's symbols in ascending order.
func (q Quotes) Symbols() []string {
	out := make([]string, 0, len(q))
	for s := range q {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
