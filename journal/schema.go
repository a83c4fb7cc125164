// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS journal_trades (
	trade_id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	owner TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	price TEXT NOT NULL,
	value TEXT NOT NULL,
	executed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_trades_time ON journal_trades(executed_at);

CREATE TABLE IF NOT EXISTS journal_equity (
	time DATETIME NOT NULL,
	owner TEXT NOT NULL,
	cash TEXT NOT NULL,
	holdings TEXT NOT NULL,
	equity TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_equity_time ON journal_equity(owner, time);
`
