// Package storetest holds the behaviour every broker.Store must share. Store
// packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. Run closes it.
type Factory func(t *testing.T) broker.Store

var created = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, broker.Store)
	}{
		{"Instruments", testInstruments},
		{"Accounts", testAccounts},
		{"Positions", testPositions},
		{"Orders", testOrders},
		{"Trades", testTrades},
		{"CashTransactions", testCashTransactions},
		{"RollbackOnError", testRollback},
		{"ResetOwner", testResetOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func update(t *testing.T, s broker.Store, fn func(broker.Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func view(t *testing.T, s broker.Store, fn func(broker.Tx) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), fn))
}

// fixture inserts two instruments and the accounts alice and bob.
func fixture(t *testing.T, s broker.Store) {
	t.Helper()
	update(t, s, func(tx broker.Tx) error {
		for _, in := range []broker.Instrument{
			{Symbol: "AAPL", Name: "Apple Inc.", Price: dec("100.00")},
			{Symbol: "MSFT", Name: "Microsoft Corp.", Price: dec("200.00")},
		} {
			if err := tx.InsertInstrument(in); err != nil {
				return err
			}
		}
		for _, owner := range []string{"alice", "bob"} {
			if err := tx.InsertAccount(broker.Account{Owner: owner, Cash: dec("1000.00"), CreatedAt: created}); err != nil {
				return err
			}
		}
		return nil
	})
}

func testInstruments(t *testing.T, s broker.Store) {
	view(t, s, func(tx broker.Tx) error {
		n, err := tx.CountInstruments()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		return nil
	})

	fixture(t, s)

	err := s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.InsertInstrument(broker.Instrument{Symbol: "AAPL", Name: "dup", Price: dec("1")})
	})
	assert.ErrorIs(t, err, broker.ErrExists)

	update(t, s, func(tx broker.Tx) error {
		return tx.SetPrice("MSFT", dec("201.37"))
	})

	err = s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.SetPrice("NOPE", dec("1"))
	})
	assert.ErrorIs(t, err, broker.ErrNotFound)

	view(t, s, func(tx broker.Tx) error {
		n, err := tx.CountInstruments()
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ins, err := tx.ListInstruments()
		require.NoError(t, err)
		require.Len(t, ins, 2)
		assert.Equal(t, "AAPL", ins[0].Symbol)
		assert.Equal(t, "Apple Inc.", ins[0].Name)
		assert.Equal(t, "MSFT", ins[1].Symbol)
		assert.True(t, ins[1].Price.Equal(dec("201.37")), "got %s", ins[1].Price)

		_, err = tx.GetInstrument("NOPE")
		assert.ErrorIs(t, err, broker.ErrNotFound)
		return nil
	})
}

func testAccounts(t *testing.T, s broker.Store) {
	fixture(t, s)

	err := s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.InsertAccount(broker.Account{Owner: "alice", Cash: dec("5"), CreatedAt: created})
	})
	assert.ErrorIs(t, err, broker.ErrExists)

	update(t, s, func(tx broker.Tx) error {
		return tx.SetCash("alice", dec("987.65"))
	})

	view(t, s, func(tx broker.Tx) error {
		a, err := tx.GetAccount("alice")
		require.NoError(t, err)
		assert.True(t, a.Cash.Equal(dec("987.65")))
		assert.True(t, a.CreatedAt.Equal(created), "created_at %s", a.CreatedAt)

		_, err = tx.GetAccount("carol")
		assert.ErrorIs(t, err, broker.ErrNotFound)
		return nil
	})

	err = s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.SetCash("carol", dec("1"))
	})
	assert.ErrorIs(t, err, broker.ErrNotFound)
}

func testPositions(t *testing.T, s broker.Store) {
	fixture(t, s)

	update(t, s, func(tx broker.Tx) error {
		if err := tx.PutPosition(broker.Position{Owner: "alice", Symbol: "MSFT", Qty: 3, AvgPrice: dec("199.50")}); err != nil {
			return err
		}
		return tx.PutPosition(broker.Position{Owner: "alice", Symbol: "AAPL", Qty: 10, AvgPrice: dec("100.00")})
	})
	// second put on the same pair replaces, never duplicates
	update(t, s, func(tx broker.Tx) error {
		return tx.PutPosition(broker.Position{Owner: "alice", Symbol: "AAPL", Qty: 20, AvgPrice: dec("150.00")})
	})

	view(t, s, func(tx broker.Tx) error {
		ps, err := tx.ListPositions("alice")
		require.NoError(t, err)
		require.Len(t, ps, 2)
		assert.Equal(t, "AAPL", ps[0].Symbol)
		assert.Equal(t, int64(20), ps[0].Qty)
		assert.True(t, ps[0].AvgPrice.Equal(dec("150")))
		assert.Equal(t, "MSFT", ps[1].Symbol)

		none, err := tx.ListPositions("bob")
		require.NoError(t, err)
		assert.Empty(t, none)

		_, ok, err := tx.GetPosition("bob", "AAPL")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})

	err := s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.PutPosition(broker.Position{Owner: "bob", Symbol: "AAPL", Qty: 0, AvgPrice: dec("1")})
	})
	assert.Error(t, err, "zero quantity rows are not stored")

	update(t, s, func(tx broker.Tx) error {
		return tx.DeletePosition("alice", "AAPL")
	})
	view(t, s, func(tx broker.Tx) error {
		_, ok, err := tx.GetPosition("alice", "AAPL")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})

	err = s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.DeletePosition("alice", "AAPL")
	})
	assert.ErrorIs(t, err, broker.ErrNotFound)
}

func order(id, owner string, side broker.Side, typ broker.OrderType, limit string) broker.Order {
	o := broker.Order{
		ID: id, Owner: owner, Symbol: "AAPL", Side: side, Type: typ, Qty: 5,
		Status: broker.Pending, CreatedAt: created, UpdatedAt: created,
	}
	if limit != "" {
		lp := dec(limit)
		o.LimitPrice = &lp
	}
	return o
}

func testOrders(t *testing.T, s broker.Store) {
	fixture(t, s)

	update(t, s, func(tx broker.Tx) error {
		for _, o := range []broker.Order{
			order("03", "alice", broker.Buy, broker.Limit, "90.00"),
			order("01", "alice", broker.Buy, broker.Market, ""),
			order("02", "bob", broker.Sell, broker.Limit, "110.25"),
		} {
			if err := tx.InsertOrder(o); err != nil {
				return err
			}
		}
		return nil
	})

	err := s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.InsertOrder(order("01", "alice", broker.Buy, broker.Market, ""))
	})
	assert.ErrorIs(t, err, broker.ErrExists)

	later := created.Add(time.Minute)
	update(t, s, func(tx broker.Tx) error {
		o, err := tx.GetOrder("01")
		if err != nil {
			return err
		}
		o.Status = broker.Cancelled
		o.Reason = broker.ReasonInsufficientFunds
		o.UpdatedAt = later
		return tx.UpdateOrder(o)
	})

	view(t, s, func(tx broker.Tx) error {
		o, err := tx.GetOrder("01")
		require.NoError(t, err)
		assert.Equal(t, broker.Cancelled, o.Status)
		assert.Equal(t, broker.ReasonInsufficientFunds, o.Reason)
		assert.Nil(t, o.LimitPrice)
		assert.True(t, o.UpdatedAt.Equal(later))

		o, err = tx.GetOrder("02")
		require.NoError(t, err)
		require.NotNil(t, o.LimitPrice)
		assert.True(t, o.LimitPrice.Equal(dec("110.25")))
		assert.Equal(t, broker.Sell, o.Side)
		assert.Equal(t, broker.Limit, o.Type)

		all, err := tx.ListOrders(broker.OrderFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"01", "02", "03"}, orderIDs(all))

		pending, err := tx.ListOrders(broker.OrderFilter{Status: broker.Pending, Type: broker.Limit})
		require.NoError(t, err)
		assert.Equal(t, []string{"02", "03"}, orderIDs(pending))

		mine, err := tx.ListOrders(broker.OrderFilter{Owner: "alice"})
		require.NoError(t, err)
		assert.Equal(t, []string{"01", "03"}, orderIDs(mine))

		_, err = tx.GetOrder("99")
		assert.ErrorIs(t, err, broker.ErrNotFound)
		return nil
	})

	err = s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.UpdateOrder(order("99", "alice", broker.Buy, broker.Market, ""))
	})
	assert.ErrorIs(t, err, broker.ErrNotFound)
}

func orderIDs(os []broker.Order) []string {
	out := make([]string, len(os))
	for i, o := range os {
		out[i] = o.ID
	}
	return out
}

func testTrades(t *testing.T, s broker.Store) {
	fixture(t, s)

	update(t, s, func(tx broker.Tx) error {
		for _, o := range []broker.Order{
			order("o1", "alice", broker.Buy, broker.Market, ""),
			order("o2", "bob", broker.Buy, broker.Market, ""),
			order("o3", "alice", broker.Sell, broker.Market, ""),
		} {
			if err := tx.InsertOrder(o); err != nil {
				return err
			}
		}
		for _, tr := range []broker.Trade{
			{ID: "t3", OrderID: "o3", Owner: "alice", Symbol: "AAPL", Side: broker.Sell, Price: dec("101.10"), Qty: 2, ExecutedAt: created},
			{ID: "t1", OrderID: "o1", Owner: "alice", Symbol: "AAPL", Side: broker.Buy, Price: dec("100.00"), Qty: 5, ExecutedAt: created},
			{ID: "t2", OrderID: "o2", Owner: "bob", Symbol: "AAPL", Side: broker.Buy, Price: dec("100.00"), Qty: 1, ExecutedAt: created},
		} {
			if err := tx.InsertTrade(tr); err != nil {
				return err
			}
		}
		return nil
	})

	view(t, s, func(tx broker.Tx) error {
		trades, err := tx.ListTrades("alice")
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Equal(t, "t1", trades[0].ID)
		assert.Equal(t, "t3", trades[1].ID)
		assert.Equal(t, broker.Sell, trades[1].Side)
		assert.True(t, trades[1].Price.Equal(dec("101.10")))
		assert.Equal(t, int64(2), trades[1].Qty)
		assert.True(t, trades[1].ExecutedAt.Equal(created))
		return nil
	})
}

func testCashTransactions(t *testing.T, s broker.Store) {
	fixture(t, s)

	d1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	update(t, s, func(tx broker.Tx) error {
		for _, c := range []broker.CashTransaction{
			{ID: "c2", Owner: "alice", Type: broker.Withdraw, Amount: dec("50.00"), ScheduledFor: d1, Status: broker.CashPending},
			{ID: "c3", Owner: "alice", Type: broker.Deposit, Amount: dec("75.25"), ScheduledFor: d2, Status: broker.CashPending},
			{ID: "c1", Owner: "alice", Type: broker.Deposit, Amount: dec("10.00"), ScheduledFor: d2, Status: broker.CashPending},
			{ID: "c4", Owner: "bob", Type: broker.Deposit, Amount: dec("1.00"), ScheduledFor: d1, Status: broker.CashPending},
		} {
			if err := tx.InsertCashTransaction(c); err != nil {
				return err
			}
		}
		return nil
	})

	update(t, s, func(tx broker.Tx) error {
		cs, err := tx.ListCashTransactions("alice", broker.CashPending)
		if err != nil {
			return err
		}
		c := cs[0]
		c.Status = broker.CashProcessed
		c.ProcessedOn = &d2
		return tx.UpdateCashTransaction(c)
	})

	view(t, s, func(tx broker.Tx) error {
		all, err := tx.ListCashTransactions("alice", "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "c2", all[0].ID, "earliest date first")
		assert.Equal(t, "c1", all[1].ID, "same date ordered by id")
		assert.Equal(t, "c3", all[2].ID)

		assert.Equal(t, broker.CashProcessed, all[0].Status)
		require.NotNil(t, all[0].ProcessedOn)
		assert.True(t, all[0].ProcessedOn.Equal(d2))
		assert.True(t, all[0].ScheduledFor.Equal(d1))
		assert.Equal(t, broker.Withdraw, all[0].Type)
		assert.Nil(t, all[1].ProcessedOn)
		assert.True(t, all[2].Amount.Equal(dec("75.25")))

		pending, err := tx.ListCashTransactions("alice", broker.CashPending)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
		return nil
	})

	err := s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.UpdateCashTransaction(broker.CashTransaction{ID: "nope", Status: broker.CashProcessed})
	})
	assert.ErrorIs(t, err, broker.ErrNotFound)
}

func testRollback(t *testing.T, s broker.Store) {
	fixture(t, s)

	boom := errors.New("boom")
	err := s.Update(context.Background(), func(tx broker.Tx) error {
		if err := tx.SetCash("alice", dec("1.00")); err != nil {
			return err
		}
		if err := tx.PutPosition(broker.Position{Owner: "alice", Symbol: "AAPL", Qty: 1, AvgPrice: dec("1")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	view(t, s, func(tx broker.Tx) error {
		a, err := tx.GetAccount("alice")
		require.NoError(t, err)
		assert.True(t, a.Cash.Equal(dec("1000.00")), "cash must be untouched, got %s", a.Cash)
		_, ok, err := tx.GetPosition("alice", "AAPL")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
}

func testResetOwner(t *testing.T, s broker.Store) {
	fixture(t, s)

	update(t, s, func(tx broker.Tx) error {
		for _, o := range []broker.Order{
			order("a1", "alice", broker.Buy, broker.Market, ""),
			order("b1", "bob", broker.Buy, broker.Market, ""),
		} {
			if err := tx.InsertOrder(o); err != nil {
				return err
			}
		}
		for _, tr := range []broker.Trade{
			{ID: "ta", OrderID: "a1", Owner: "alice", Symbol: "AAPL", Side: broker.Buy, Price: dec("100"), Qty: 5, ExecutedAt: created},
			{ID: "tb", OrderID: "b1", Owner: "bob", Symbol: "AAPL", Side: broker.Buy, Price: dec("100"), Qty: 5, ExecutedAt: created},
		} {
			if err := tx.InsertTrade(tr); err != nil {
				return err
			}
		}
		if err := tx.PutPosition(broker.Position{Owner: "alice", Symbol: "AAPL", Qty: 5, AvgPrice: dec("100")}); err != nil {
			return err
		}
		return tx.PutPosition(broker.Position{Owner: "bob", Symbol: "AAPL", Qty: 5, AvgPrice: dec("100")})
	})

	update(t, s, func(tx broker.Tx) error { return tx.ResetOwner("alice") })

	view(t, s, func(tx broker.Tx) error {
		os, err := tx.ListOrders(broker.OrderFilter{Owner: "alice"})
		require.NoError(t, err)
		assert.Empty(t, os)
		trades, err := tx.ListTrades("alice")
		require.NoError(t, err)
		assert.Empty(t, trades)
		ps, err := tx.ListPositions("alice")
		require.NoError(t, err)
		assert.Empty(t, ps)

		os, err = tx.ListOrders(broker.OrderFilter{Owner: "bob"})
		require.NoError(t, err)
		assert.Len(t, os, 1)
		trades, err = tx.ListTrades("bob")
		require.NoError(t, err)
		assert.Len(t, trades, 1)

		_, err = tx.GetAccount("alice")
		assert.NoError(t, err, "the account row survives a reset")
		return nil
	})
}
