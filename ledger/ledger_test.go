package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type harness struct {
	t     *testing.T
	store broker.Store
	l     *Ledger
	seq   int
}

func newHarness(t *testing.T, policy SellOverflow, cash string) *harness {
	t.Helper()
	h := &harness{t: t, store: memory.New()}
	n := 0
	h.l = New(Options{
		SellOverflow: policy,
		NewID:        func() string { n++; return fmt.Sprintf("T%04d", n) },
		Now:          func() time.Time { return clock },
	})
	require.NoError(t, h.store.Update(context.Background(), func(tx broker.Tx) error {
		if err := tx.InsertInstrument(broker.Instrument{Symbol: "AAPL", Name: "Apple", Price: dec("100.00")}); err != nil {
			return err
		}
		return tx.InsertAccount(broker.Account{Owner: "alice", Cash: dec(cash), CreatedAt: clock})
	}))
	return h
}

// exec inserts a PENDING order and executes it in the same transaction.
func (h *harness) exec(side broker.Side, qty int64, price string) (broker.Order, *broker.Trade) {
	h.t.Helper()
	h.seq++
	o := broker.Order{
		ID: fmt.Sprintf("O%04d", h.seq), Owner: "alice", Symbol: "AAPL",
		Side: side, Type: broker.Market, Qty: qty, Status: broker.Pending,
		CreatedAt: clock, UpdatedAt: clock,
	}
	var tr *broker.Trade
	require.NoError(h.t, h.store.Update(context.Background(), func(tx broker.Tx) error {
		if err := tx.InsertOrder(o); err != nil {
			return err
		}
		var err error
		tr, err = h.l.Execute(tx, &o, dec(price))
		return err
	}))
	return o, tr
}

func (h *harness) state() (broker.Account, []broker.Position, []broker.Trade) {
	h.t.Helper()
	var (
		a  broker.Account
		ps []broker.Position
		ts []broker.Trade
	)
	require.NoError(h.t, h.store.View(context.Background(), func(tx broker.Tx) error {
		var err error
		if a, err = tx.GetAccount("alice"); err != nil {
			return err
		}
		if ps, err = tx.ListPositions("alice"); err != nil {
			return err
		}
		ts, err = tx.ListTrades("alice")
		return err
	}))
	return a, ps, ts
}

func TestMarketBuyHappyPath(t *testing.T) {
	h := newHarness(t, Clamp, "100000.00")

	o, tr := h.exec(broker.Buy, 10, "100.00")
	require.NotNil(t, tr)
	assert.Equal(t, broker.Filled, o.Status)
	assert.Equal(t, int64(10), tr.Qty)
	assert.True(t, tr.Price.Equal(dec("100.00")))
	assert.Equal(t, o.ID, tr.OrderID)

	a, ps, ts := h.state()
	assert.Equal(t, "99000.00", a.Cash.StringFixed(2))
	require.Len(t, ps, 1)
	assert.Equal(t, int64(10), ps[0].Qty)
	assert.Equal(t, "100.00", ps[0].AvgPrice.StringFixed(2))
	assert.Len(t, ts, 1)
}

func TestAverageCostBlend(t *testing.T) {
	h := newHarness(t, Clamp, "100000.00")
	h.exec(broker.Buy, 10, "100")
	h.exec(broker.Buy, 10, "200")

	a, ps, _ := h.state()
	require.Len(t, ps, 1, "one row per owner and symbol")
	assert.Equal(t, int64(20), ps[0].Qty)
	assert.Equal(t, "150.00", ps[0].AvgPrice.StringFixed(2))
	assert.Equal(t, "97000.00", a.Cash.StringFixed(2))
}

func TestBlendRounds(t *testing.T) {
	// (3×10.00 + 1×10.01) / 4 = 10.0025 -> 10.00
	assert.Equal(t, "10.00", blend(3, dec("10.00"), 1, dec("10.01")).StringFixed(2))
	// (1×10.00 + 2×10.01) / 3 = 10.00666 -> 10.01
	assert.Equal(t, "10.01", blend(1, dec("10.00"), 2, dec("10.01")).StringFixed(2))
	assert.Equal(t, "7.77", blend(0, decimal.Zero, 5, dec("7.77")).StringFixed(2))
}

func TestInsufficientFunds(t *testing.T) {
	h := newHarness(t, Clamp, "500.00")

	o, tr := h.exec(broker.Buy, 10, "100.00")
	assert.Nil(t, tr)
	assert.Equal(t, broker.Cancelled, o.Status)
	assert.Equal(t, broker.ReasonInsufficientFunds, o.Reason)

	a, ps, ts := h.state()
	assert.Equal(t, "500.00", a.Cash.StringFixed(2))
	assert.Empty(t, ps)
	assert.Empty(t, ts)
}

func TestBuyExactCash(t *testing.T) {
	h := newHarness(t, Clamp, "1000.00")
	o, tr := h.exec(broker.Buy, 10, "100.00")
	require.NotNil(t, tr)
	assert.Equal(t, broker.Filled, o.Status)
	a, _, _ := h.state()
	assert.True(t, a.Cash.IsZero())
}

func TestPartialSellKeepsAverage(t *testing.T) {
	h := newHarness(t, Clamp, "100000.00")
	h.exec(broker.Buy, 10, "100")
	h.exec(broker.Buy, 10, "200")

	_, tr := h.exec(broker.Sell, 5, "180.00")
	require.NotNil(t, tr)

	a, ps, _ := h.state()
	require.Len(t, ps, 1)
	assert.Equal(t, int64(15), ps[0].Qty)
	assert.Equal(t, "150.00", ps[0].AvgPrice.StringFixed(2))
	assert.Equal(t, "97900.00", a.Cash.StringFixed(2))
}

func TestSellToZeroDeletesPosition(t *testing.T) {
	h := newHarness(t, Clamp, "100000.00")
	h.exec(broker.Buy, 10, "100")
	o, tr := h.exec(broker.Sell, 10, "110.00")
	require.NotNil(t, tr)
	assert.Equal(t, broker.Filled, o.Status)

	a, ps, ts := h.state()
	assert.Empty(t, ps)
	assert.Len(t, ts, 2)
	assert.Equal(t, "100100.00", a.Cash.StringFixed(2))

	// buying again creates exactly one fresh row
	h.exec(broker.Buy, 1, "50")
	_, ps, _ = h.state()
	require.Len(t, ps, 1)
	assert.Equal(t, "50.00", ps[0].AvgPrice.StringFixed(2))
}

func TestSellClamp(t *testing.T) {
	h := newHarness(t, Clamp, "100000.00")
	h.exec(broker.Buy, 4, "100")

	o, tr := h.exec(broker.Sell, 10, "100.00")
	require.NotNil(t, tr)
	assert.Equal(t, broker.Filled, o.Status)
	assert.Equal(t, int64(4), tr.Qty, "one trade for the held quantity")
	assert.Equal(t, int64(10), o.Qty, "requested quantity is kept on the order")

	a, ps, _ := h.state()
	assert.Empty(t, ps)
	assert.Equal(t, "100000.00", a.Cash.StringFixed(2))
}

func TestSellReject(t *testing.T) {
	h := newHarness(t, Reject, "100000.00")
	h.exec(broker.Buy, 4, "100")

	o, tr := h.exec(broker.Sell, 10, "100.00")
	assert.Nil(t, tr)
	assert.Equal(t, broker.Cancelled, o.Status)
	assert.Equal(t, broker.ReasonInsufficientHoldings, o.Reason)

	a, ps, ts := h.state()
	require.Len(t, ps, 1)
	assert.Equal(t, int64(4), ps[0].Qty)
	assert.Equal(t, "99600.00", a.Cash.StringFixed(2))
	assert.Len(t, ts, 1)
}

func TestSellWithoutPosition(t *testing.T) {
	for _, policy := range []SellOverflow{Clamp, Reject} {
		t.Run(string(policy), func(t *testing.T) {
			h := newHarness(t, policy, "100.00")
			o, tr := h.exec(broker.Sell, 1, "100.00")
			assert.Nil(t, tr)
			assert.Equal(t, broker.Cancelled, o.Status)
			assert.Equal(t, broker.ReasonNoPosition, o.Reason)
			a, _, ts := h.state()
			assert.Equal(t, "100.00", a.Cash.StringFixed(2))
			assert.Empty(t, ts)
		})
	}
}

func TestPreconditions(t *testing.T) {
	h := newHarness(t, Clamp, "100.00")
	tests := []struct {
		name  string
		order broker.Order
		price string
	}{
		{"not pending", broker.Order{ID: "x", Owner: "alice", Symbol: "AAPL", Side: broker.Buy, Qty: 1, Status: broker.Filled}, "1"},
		{"zero price", broker.Order{ID: "x", Owner: "alice", Symbol: "AAPL", Side: broker.Buy, Qty: 1, Status: broker.Pending}, "0"},
		{"zero qty", broker.Order{ID: "x", Owner: "alice", Symbol: "AAPL", Side: broker.Buy, Qty: 0, Status: broker.Pending}, "1"},
		{"bad side", broker.Order{ID: "x", Owner: "alice", Symbol: "AAPL", Side: "HOLD", Qty: 1, Status: broker.Pending}, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.store.Update(context.Background(), func(tx broker.Tx) error {
				o := tt.order
				_, err := h.l.Execute(tx, &o, dec(tt.price))
				return err
			})
			assert.ErrorIs(t, err, broker.ErrValidation)
		})
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t, Clamp, "100.00")
	o := broker.Order{ID: "O1", Owner: "alice", Symbol: "AAPL", Side: broker.Buy, Type: broker.Limit, Qty: 1, Status: broker.Pending}
	require.NoError(t, h.store.Update(context.Background(), func(tx broker.Tx) error {
		if err := tx.InsertOrder(o); err != nil {
			return err
		}
		return h.l.Cancel(tx, &o)
	}))
	assert.Equal(t, broker.Cancelled, o.Status)
	assert.Equal(t, broker.ReasonOwnerCancel, o.Reason)

	err := h.store.Update(context.Background(), func(tx broker.Tx) error {
		return h.l.Cancel(tx, &o)
	})
	assert.ErrorIs(t, err, broker.ErrValidation)
}

func TestDefaultPolicy(t *testing.T) {
	assert.Equal(t, Clamp, New(Options{}).SellOverflow())
	assert.Equal(t, Reject, New(Options{SellOverflow: Reject}).SellOverflow())
}
