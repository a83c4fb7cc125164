// store/sqlite/schema.go
package sqlite

const Schema = `
CREATE TABLE IF NOT EXISTS instruments (
	symbol TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	owner TEXT PRIMARY KEY,
	cash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	owner TEXT NOT NULL REFERENCES accounts(owner),
	symbol TEXT NOT NULL REFERENCES instruments(symbol),
	qty INTEGER NOT NULL CHECK (qty > 0),
	avg_price TEXT NOT NULL,
	CONSTRAINT uix_owner_symbol UNIQUE (owner, symbol)
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL REFERENCES accounts(owner),
	symbol TEXT NOT NULL REFERENCES instruments(symbol),
	side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	type TEXT NOT NULL CHECK (type IN ('MARKET', 'LIMIT')),
	qty INTEGER NOT NULL CHECK (qty > 0),
	limit_price TEXT,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'FILLED', 'CANCELLED')),
	reason TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, type);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id),
	owner TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price TEXT NOT NULL,
	qty INTEGER NOT NULL CHECK (qty > 0),
	executed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_owner ON trades(owner);

CREATE TABLE IF NOT EXISTS cash_transactions (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL REFERENCES accounts(owner),
	type TEXT NOT NULL CHECK (type IN ('DEPOSIT', 'WITHDRAW')),
	amount TEXT NOT NULL,
	scheduled_for TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'PROCESSED', 'REJECTED')),
	processed_on TEXT
);

CREATE INDEX IF NOT EXISTS idx_cash_owner ON cash_transactions(owner, status, scheduled_for);
`
