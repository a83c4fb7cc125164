// Package memory is an in-process broker.Store. Each Update works on a
// private copy of the state that replaces the live state only when the
// callback succeeds, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rustyeddy/paper/broker"
	"github.com/shopspring/decimal"
)

var errReadOnly = errors.New("write in read-only transaction")

type posKey struct{ owner, symbol string }

type state struct {
	instruments map[string]broker.Instrument
	accounts    map[string]broker.Account
	positions   map[posKey]broker.Position
	orders      map[string]broker.Order
	trades      []broker.Trade
	cash        map[string]broker.CashTransaction
}

func newState() *state {
	return &state{
		instruments: map[string]broker.Instrument{},
		accounts:    map[string]broker.Account{},
		positions:   map[posKey]broker.Position{},
		orders:      map[string]broker.Order{},
		cash:        map[string]broker.CashTransaction{},
	}
}

// clone copies the maps. Trades share their backing array, capped at the
// current length so an append in the copy reallocates.
func (s *state) clone() *state {
	n := len(s.trades)
	c := &state{
		instruments: make(map[string]broker.Instrument, len(s.instruments)),
		accounts:    make(map[string]broker.Account, len(s.accounts)),
		positions:   make(map[posKey]broker.Position, len(s.positions)),
		orders:      make(map[string]broker.Order, len(s.orders)),
		trades:      s.trades[:n:n],
		cash:        make(map[string]broker.CashTransaction, len(s.cash)),
	}
	for k, v := range s.instruments {
		c.instruments[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.cash {
		c.cash[k] = v
	}
	return c
}

type Store struct {
	mu     sync.Mutex
	st     *state
	closed bool
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Update(ctx context.Context, fn func(broker.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("memory store closed")
	}

	work := s.st.clone()
	if err := fn(&tx{st: work, write: true}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(broker.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("memory store closed")
	}
	return fn(&tx{st: s.st})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	st    *state
	write bool
}

func (t *tx) writable() error {
	if !t.write {
		return errReadOnly
	}
	return nil
}

func (t *tx) CountInstruments() (int, error) {
	return len(t.st.instruments), nil
}

func (t *tx) InsertInstrument(in broker.Instrument) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.instruments[in.Symbol]; ok {
		return fmt.Errorf("instrument %q: %w", in.Symbol, broker.ErrExists)
	}
	t.st.instruments[in.Symbol] = in
	return nil
}

func (t *tx) GetInstrument(symbol string) (broker.Instrument, error) {
	in, ok := t.st.instruments[symbol]
	if !ok {
		return broker.Instrument{}, fmt.Errorf("instrument %q: %w", symbol, broker.ErrNotFound)
	}
	return in, nil
}

func (t *tx) ListInstruments() ([]broker.Instrument, error) {
	out := make([]broker.Instrument, 0, len(t.st.instruments))
	for _, in := range t.st.instruments {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (t *tx) SetPrice(symbol string, price decimal.Decimal) error {
	if err := t.writable(); err != nil {
		return err
	}
	in, err := t.GetInstrument(symbol)
	if err != nil {
		return err
	}
	in.Price = price
	t.st.instruments[symbol] = in
	return nil
}

func (t *tx) InsertAccount(a broker.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.accounts[a.Owner]; ok {
		return fmt.Errorf("account %q: %w", a.Owner, broker.ErrExists)
	}
	t.st.accounts[a.Owner] = a
	return nil
}

func (t *tx) GetAccount(owner string) (broker.Account, error) {
	a, ok := t.st.accounts[owner]
	if !ok {
		return broker.Account{}, fmt.Errorf("account %q: %w", owner, broker.ErrNotFound)
	}
	return a, nil
}

func (t *tx) SetCash(owner string, cash decimal.Decimal) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, err := t.GetAccount(owner)
	if err != nil {
		return err
	}
	a.Cash = cash
	t.st.accounts[owner] = a
	return nil
}

func (t *tx) GetPosition(owner, symbol string) (broker.Position, bool, error) {
	p, ok := t.st.positions[posKey{owner, symbol}]
	return p, ok, nil
}

func (t *tx) PutPosition(p broker.Position) error {
	if err := t.writable(); err != nil {
		return err
	}
	if p.Qty <= 0 {
		return fmt.Errorf("position %s/%s: quantity %d must be positive", p.Owner, p.Symbol, p.Qty)
	}
	t.st.positions[posKey{p.Owner, p.Symbol}] = p
	return nil
}

func (t *tx) DeletePosition(owner, symbol string) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := posKey{owner, symbol}
	if _, ok := t.st.positions[k]; !ok {
		return fmt.Errorf("position %s/%s: %w", owner, symbol, broker.ErrNotFound)
	}
	delete(t.st.positions, k)
	return nil
}

func (t *tx) ListPositions(owner string) ([]broker.Position, error) {
	var out []broker.Position
	for k, p := range t.st.positions {
		if k.owner == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (t *tx) InsertOrder(o broker.Order) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("order %q: %w", o.ID, broker.ErrExists)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) GetOrder(id string) (broker.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return broker.Order{}, fmt.Errorf("order %q: %w", id, broker.ErrNotFound)
	}
	return o, nil
}

func (t *tx) UpdateOrder(o broker.Order) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.orders[o.ID]; !ok {
		return fmt.Errorf("order %q: %w", o.ID, broker.ErrNotFound)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) ListOrders(f broker.OrderFilter) ([]broker.Order, error) {
	var out []broker.Order
	for _, o := range t.st.orders {
		if f.Owner != "" && o.Owner != f.Owner {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertTrade(tr broker.Trade) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.trades = append(t.st.trades, tr)
	return nil
}

func (t *tx) ListTrades(owner string) ([]broker.Trade, error) {
	var out []broker.Trade
	for _, tr := range t.st.trades {
		if tr.Owner == owner {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertCashTransaction(c broker.CashTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.cash[c.ID]; ok {
		return fmt.Errorf("cash transaction %q: %w", c.ID, broker.ErrExists)
	}
	t.st.cash[c.ID] = c
	return nil
}

func (t *tx) UpdateCashTransaction(c broker.CashTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.cash[c.ID]; !ok {
		return fmt.Errorf("cash transaction %q: %w", c.ID, broker.ErrNotFound)
	}
	t.st.cash[c.ID] = c
	return nil
}

func (t *tx) ListCashTransactions(owner string, status broker.CashStatus) ([]broker.CashTransaction, error) {
	var out []broker.CashTransaction
	for _, c := range t.st.cash {
		if c.Owner != owner {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) ResetOwner(owner string) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, o := range t.st.orders {
		if o.Owner == owner {
			delete(t.st.orders, id)
		}
	}
	kept := t.st.trades[:0:0]
	for _, tr := range t.st.trades {
		if tr.Owner != owner {
			kept = append(kept, tr)
		}
	}
	t.st.trades = kept
	for k := range t.st.positions {
		if k.owner == owner {
			delete(t.st.positions, k)
		}
	}
	return nil
}
