package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('journal_trades','journal_equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["journal_trades"])
	assert.True(t, found["journal_equity"])
}

func TestSQLiteRecordAndGetTrade(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	want := sampleTrade()
	require.NoError(t, j.RecordTrade(want))

	got, err := j.GetTrade(want.TradeID)
	require.NoError(t, err)
	assert.Equal(t, want.OrderID, got.OrderID)
	assert.Equal(t, want.Owner, got.Owner)
	assert.Equal(t, want.Side, got.Side)
	assert.Equal(t, want.Qty, got.Qty)
	assert.True(t, want.Price.Equal(got.Price))
	assert.True(t, want.Value.Equal(got.Value))
	assert.True(t, want.ExecutedAt.Equal(got.ExecutedAt))

	_, err = j.GetTrade("missing")
	assert.Error(t, err)

	// trade ids are unique
	assert.Error(t, j.RecordTrade(want))
}

func TestSQLiteListTradesBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	for i, id := range []string{"T1", "T2", "T3"} {
		tr := sampleTrade()
		tr.TradeID = id
		tr.ExecutedAt = executed.Add(time.Duration(i) * time.Hour)
		require.NoError(t, j.RecordTrade(tr))
	}

	got, err := j.ListTradesBetween(executed, executed.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "T1", got[0].TradeID)
	assert.Equal(t, "T2", got[1].TradeID)
}

func TestSQLiteListEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	e := sampleEquity()
	require.NoError(t, j.RecordEquity(e))
	other := sampleEquity()
	other.Owner = "bob"
	require.NoError(t, j.RecordEquity(other))

	got, err := j.ListEquity("alice", executed.Add(-time.Minute), executed.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equity.Equal(e.Equity))
	assert.True(t, got[0].Time.Equal(executed))
}
