package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) broker.Store { return New() })
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx broker.Tx) error {
		return tx.InsertInstrument(broker.Instrument{Symbol: "X", Price: decimal.NewFromInt(1)})
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestRolledBackTradeIsDiscarded(t *testing.T) {
	s := New()
	ctx := context.Background()
	insert := func(id string, fail error) error {
		return s.Update(ctx, func(tx broker.Tx) error {
			if err := tx.InsertTrade(broker.Trade{ID: id, Owner: "alice", Symbol: "AAPL", Qty: 1}); err != nil {
				return err
			}
			return fail
		})
	}
	ids := func() []string {
		var out []string
		require.NoError(t, s.View(ctx, func(tx broker.Tx) error {
			ts, err := tx.ListTrades("alice")
			for _, tr := range ts {
				out = append(out, tr.ID)
			}
			return err
		}))
		return out
	}

	require.NoError(t, insert("01", nil))
	require.NoError(t, insert("02", nil))
	assert.Error(t, insert("03", errors.New("rollback")))
	assert.Equal(t, []string{"01", "02"}, ids())

	require.NoError(t, insert("04", nil))
	assert.Equal(t, []string{"01", "02", "04"}, ids())
}

func TestClosed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	err := s.Update(context.Background(), func(broker.Tx) error { return nil })
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Update(ctx, func(broker.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
