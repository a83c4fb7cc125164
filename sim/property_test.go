package sim

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/ledger"
	"github.com/rustyeddy/paper/market"
	"github.com/rustyeddy/paper/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Any interleaving of orders, ticks, cancels and cash movements leaves cash
// equal to the start plus every recorded trade and settled cash flow, and
// never leaves a negative holding or negative cash.
func TestPropertyConservation(t *testing.T) {
	symbols := []string{"AAPL", "INTC", "TSLA"}

	rapid.Check(t, func(t *rapid.T) {
		feed := market.DefaultFeedConfig()
		feed.Seed = rapid.Int64Range(1, 1<<40).Draw(t, "seed")
		policy := rapid.SampledFrom([]ledger.SellOverflow{ledger.Clamp, ledger.Reject}).Draw(t, "policy")

		e, err := NewEngine(Options{
			Store:        memory.New(),
			Feed:         feed,
			SellOverflow: policy,
			StartingCash: dec("10000.00"),
		})
		require.NoError(t, err)
		defer e.Close()

		ctx := context.Background()
		_, err = e.OpenAccount(ctx, "alice")
		require.NoError(t, err)

		day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(t, "op") {
			case 0, 1:
				side := broker.Buy
				if rapid.Bool().Draw(t, "sell") {
					side = broker.Sell
				}
				_, err := e.SubmitOrder(ctx, broker.OrderRequest{
					Owner:  "alice",
					Symbol: rapid.SampledFrom(symbols).Draw(t, "symbol"),
					Side:   side,
					Type:   broker.Market,
					Qty:    rapid.Int64Range(1, 60).Draw(t, "qty"),
				})
				require.NoError(t, err)
			case 2:
				sym := rapid.SampledFrom(symbols).Draw(t, "symbol")
				q, err := e.feed.Snapshot(ctx)
				require.NoError(t, err)
				offset := decimal.New(rapid.Int64Range(-150, 150).Draw(t, "offset"), -2)
				limit := q[sym].Add(offset)
				if !limit.IsPositive() {
					limit = decimal.New(1, -2)
				}
				side := broker.Buy
				if rapid.Bool().Draw(t, "sell") {
					side = broker.Sell
				}
				_, err = e.SubmitOrder(ctx, broker.OrderRequest{
					Owner: "alice", Symbol: sym, Side: side, Type: broker.Limit,
					Qty: rapid.Int64Range(1, 30).Draw(t, "qty"), LimitPrice: &limit,
				})
				require.NoError(t, err)
			case 3:
				require.NoError(t, e.TickMarket(ctx))
			case 4:
				typ := rapid.SampledFrom([]broker.CashType{broker.Deposit, broker.Withdraw}).Draw(t, "cash")
				amount := decimal.New(rapid.Int64Range(1, 500000).Draw(t, "cents"), -2)
				_, err := e.ScheduleCashTransaction(ctx, "alice", typ, amount, day)
				require.NoError(t, err)
				require.NoError(t, e.ApplyDue(ctx, "alice", day))
				day = day.AddDate(0, 0, 1)
			case 5:
				orders, err := e.GetOrders(ctx, "alice")
				require.NoError(t, err)
				for _, o := range orders {
					if o.Status == broker.Pending {
						_, err := e.CancelOrder(ctx, "alice", o.ID)
						require.NoError(t, err)
						break
					}
				}
			}

			cs, err := e.CashTransactions(ctx, "alice")
			require.NoError(t, err)
			flows := decimal.Zero
			for _, c := range cs {
				if c.Status != broker.CashProcessed {
					continue
				}
				if c.Type == broker.Deposit {
					flows = flows.Add(c.Amount)
				} else {
					flows = flows.Sub(c.Amount)
				}
			}
			assertConserved(t, e, "alice", dec("10000.00"), flows)
		}

		// terminal orders stay terminal
		orders, err := e.GetOrders(ctx, "alice")
		require.NoError(t, err)
		trades, err := e.GetTrades(ctx, "alice")
		require.NoError(t, err)
		perOrder := map[string]int{}
		for _, tr := range trades {
			perOrder[tr.OrderID]++
		}
		for _, o := range orders {
			switch o.Status {
			case broker.Filled:
				require.Equal(t, 1, perOrder[o.ID], "order %s", o.ID)
			default:
				require.Zero(t, perOrder[o.ID], "order %s", o.ID)
			}
		}
	})
}

// A sweep over an unchanged snapshot never fills anything the first sweep
// did not.
func TestPropertySweepIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, err := NewEngine(Options{Store: memory.New(), Feed: flatFeed()})
		require.NoError(t, err)
		defer e.Close()
		ctx := context.Background()
		_, err = e.OpenAccount(ctx, "alice")
		require.NoError(t, err)

		n := rapid.IntRange(1, 10).Draw(t, "orders")
		for i := 0; i < n; i++ {
			lp := decimal.New(rapid.Int64Range(9000, 11000).Draw(t, "limit"), -2)
			_, err := e.SubmitOrder(ctx, broker.OrderRequest{
				Owner: "alice", Symbol: "AAPL", Side: broker.Buy, Type: broker.Limit, Qty: 1, LimitPrice: &lp,
			})
			require.NoError(t, err)
		}
		price := decimal.New(rapid.Int64Range(9000, 11000).Draw(t, "price"), -2)
		require.NoError(t, e.SetPrice(ctx, "AAPL", price))

		_, err = e.Tick(ctx)
		require.NoError(t, err)
		before, err := e.GetTrades(ctx, "alice")
		require.NoError(t, err)

		rep, err := e.Tick(ctx)
		require.NoError(t, err)
		require.Empty(t, rep.Filled)
		after, err := e.GetTrades(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, len(before), len(after))
	})
}
