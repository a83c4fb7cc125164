package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal keeps the journal in its own tables. It may share a file
// with the ledger store; the table names do not collide.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_loc=UTC")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO journal_trades
		(trade_id, order_id, owner, symbol, side, qty, price, value, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.OrderID, t.Owner, t.Symbol, string(t.Side), t.Qty,
		t.Price.String(), t.Value.String(), t.ExecutedAt.UTC(),
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO journal_equity
		(time, owner, cash, holdings, equity)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Owner, e.Cash.String(), e.Holdings.String(), e.Equity.String(),
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
