package journal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testJournal struct {
	trades []TradeRecord
	equity []EquitySnapshot
	err    error
}

func (j *testJournal) RecordTrade(t TradeRecord) error {
	j.trades = append(j.trades, t)
	return j.err
}

func (j *testJournal) RecordEquity(e EquitySnapshot) error {
	j.equity = append(j.equity, e)
	return j.err
}

func (j *testJournal) Close() error { return nil }

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a, b := &testJournal{}, &testJournal{err: boom}
	m := Multi{a, b, Nop{}}

	err := m.RecordTrade(sampleTrade())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.trades, 1, "a failing sink does not starve the others")
	assert.Len(t, b.trades, 1)

	assert.ErrorIs(t, m.RecordEquity(sampleEquity()), boom)
	assert.Len(t, a.equity, 1)
	assert.NoError(t, m.Close())
}
