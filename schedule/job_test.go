package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/market"
	"github.com/rustyeddy/paper/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newJob(t *testing.T, cash string, overdraft bool) (*Job, broker.Store) {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Update(context.Background(), func(tx broker.Tx) error {
		return tx.InsertAccount(broker.Account{Owner: "alice", Cash: dec(cash), CreatedAt: time.Now()})
	}))
	j, err := New(Config{Store: s, AllowOverdraft: overdraft})
	require.NoError(t, err)
	return j, s
}

func cashOf(t *testing.T, s broker.Store) string {
	t.Helper()
	var a broker.Account
	require.NoError(t, s.View(context.Background(), func(tx broker.Tx) error {
		var err error
		a, err = tx.GetAccount("alice")
		return err
	}))
	return market.Format(a.Cash)
}

func TestScheduleValidation(t *testing.T) {
	j, _ := newJob(t, "100", false)
	ctx := context.Background()
	on := day(2026, 5, 1)

	_, err := j.Schedule(ctx, "alice", "TRANSFER", dec("1"), on)
	assert.ErrorIs(t, err, broker.ErrValidation)
	_, err = j.Schedule(ctx, "alice", broker.Deposit, dec("0"), on)
	assert.ErrorIs(t, err, broker.ErrValidation)
	_, err = j.Schedule(ctx, "alice", broker.Deposit, dec("-5"), on)
	assert.ErrorIs(t, err, broker.ErrValidation)
	_, err = j.Schedule(ctx, "alice", broker.Deposit, dec("0.004"), on)
	assert.ErrorIs(t, err, broker.ErrValidation, "rounds to zero")
	_, err = j.Schedule(ctx, "", broker.Deposit, dec("1"), on)
	assert.ErrorIs(t, err, broker.ErrValidation)
	_, err = j.Schedule(ctx, "alice", broker.Deposit, dec("1"), time.Time{})
	assert.ErrorIs(t, err, broker.ErrValidation)
	_, err = j.Schedule(ctx, "nobody", broker.Deposit, dec("1"), on)
	assert.ErrorIs(t, err, broker.ErrNotFound)
}

func TestScheduleTruncatesToDay(t *testing.T) {
	j, _ := newJob(t, "100", false)
	c, err := j.Schedule(context.Background(), "alice", broker.Deposit, dec("10.555"), time.Date(2026, 5, 1, 17, 45, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, c.ScheduledFor.Equal(day(2026, 5, 1)))
	assert.Equal(t, "10.56", market.Format(c.Amount))
	assert.Equal(t, broker.CashPending, c.Status)
	assert.Nil(t, c.ProcessedOn)
}

func TestProcessDueIdempotent(t *testing.T) {
	j, s := newJob(t, "100.00", false)
	ctx := context.Background()

	_, err := j.Schedule(ctx, "alice", broker.Deposit, dec("50"), day(2026, 5, 1))
	require.NoError(t, err)
	_, err = j.Schedule(ctx, "alice", broker.Withdraw, dec("30"), day(2026, 5, 2))
	require.NoError(t, err)
	future, err := j.Schedule(ctx, "alice", broker.Deposit, dec("1000"), day(2026, 6, 1))
	require.NoError(t, err)

	asOf := day(2026, 5, 2)
	done, err := j.ProcessDue(ctx, "alice", asOf.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, done, 2)
	for _, c := range done {
		assert.Equal(t, broker.CashProcessed, c.Status)
		require.NotNil(t, c.ProcessedOn)
		assert.True(t, c.ProcessedOn.Equal(asOf))
	}
	assert.Equal(t, "120.00", cashOf(t, s))

	done, err = j.ProcessDue(ctx, "alice", asOf)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.Equal(t, "120.00", cashOf(t, s), "second run applies nothing")

	all, err := j.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, future.ID, all[2].ID)
	assert.Equal(t, broker.CashPending, all[2].Status)
}

func TestOverdraftGuard(t *testing.T) {
	j, s := newJob(t, "100.00", false)
	ctx := context.Background()

	big, err := j.Schedule(ctx, "alice", broker.Withdraw, dec("150"), day(2026, 5, 1))
	require.NoError(t, err)
	// deposit later the same day sorts after by id but is still applied
	_, err = j.Schedule(ctx, "alice", broker.Deposit, dec("25"), day(2026, 5, 1))
	require.NoError(t, err)

	done, err := j.ProcessDue(ctx, "alice", day(2026, 5, 1))
	require.NoError(t, err)
	require.Len(t, done, 2)
	assert.Equal(t, big.ID, done[0].ID)
	assert.Equal(t, broker.CashRejected, done[0].Status)
	assert.Equal(t, broker.CashProcessed, done[1].Status)
	assert.Equal(t, "125.00", cashOf(t, s))

	done, err = j.ProcessDue(ctx, "alice", day(2026, 5, 3))
	require.NoError(t, err)
	assert.Empty(t, done, "rejected entries are terminal")
}

func TestOverdraftAllowed(t *testing.T) {
	j, s := newJob(t, "100.00", true)
	ctx := context.Background()

	_, err := j.Schedule(ctx, "alice", broker.Withdraw, dec("150"), day(2026, 5, 1))
	require.NoError(t, err)
	_, err = j.ProcessDue(ctx, "alice", day(2026, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, "-50.00", cashOf(t, s))
}

func TestProcessDueConcurrent(t *testing.T) {
	j, s := newJob(t, "0.00", false)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := j.Schedule(ctx, "alice", broker.Deposit, dec("10"), day(2026, 5, 1))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := j.ProcessDue(ctx, "alice", day(2026, 5, 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, "100.00", cashOf(t, s))
}

func TestProcessDueUnknownOwner(t *testing.T) {
	j, _ := newJob(t, "0", false)
	_, err := j.ProcessDue(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, broker.ErrNotFound)
}
