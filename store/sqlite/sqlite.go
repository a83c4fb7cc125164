package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/paper/broker"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Store is a broker.Store on a SQLite file. It keeps a single connection so
// transactions never interleave inside the process; a second process on the
// same file waits up to the busy timeout and then surfaces ErrConflict.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Update(ctx context.Context, fn func(broker.Tx) error) error {
	return s.run(ctx, fn)
}

// View runs fn in a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(broker.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer sqlTx.Rollback()
	return fn(&tx{ctx: ctx, tx: sqlTx})
}

func (s *Store) run(ctx context.Context, fn func(broker.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return mapErr(sqlTx.Commit())
}

// mapErr translates driver errors into the broker taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", broker.ErrConflict, err)
		case sqlite3.ErrConstraint:
			if se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return fmt.Errorf("%w: %v", broker.ErrExists, err)
			}
		}
	}
	return err
}

type tx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *tx) exec(query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	return res, mapErr(err)
}

// mustAffect turns a zero-row update into ErrNotFound.
func mustAffect(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, broker.ErrNotFound)
	}
	return nil
}

func (t *tx) CountInstruments() (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM instruments`).Scan(&n)
	return n, mapErr(err)
}

func (t *tx) InsertInstrument(in broker.Instrument) error {
	_, err := t.exec(`INSERT INTO instruments (symbol, name, price) VALUES (?, ?, ?)`,
		in.Symbol, in.Name, in.Price.String())
	return err
}

func (t *tx) GetInstrument(symbol string) (broker.Instrument, error) {
	var in broker.Instrument
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT symbol, name, price FROM instruments WHERE symbol = ?`, symbol).
		Scan(&in.Symbol, &in.Name, &in.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.Instrument{}, fmt.Errorf("instrument %q: %w", symbol, broker.ErrNotFound)
	}
	return in, mapErr(err)
}

func (t *tx) ListInstruments() ([]broker.Instrument, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT symbol, name, price FROM instruments ORDER BY symbol ASC`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []broker.Instrument
	for rows.Next() {
		var in broker.Instrument
		if err := rows.Scan(&in.Symbol, &in.Name, &in.Price); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (t *tx) SetPrice(symbol string, price decimal.Decimal) error {
	res, err := t.exec(`UPDATE instruments SET price = ? WHERE symbol = ?`, price.String(), symbol)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("instrument %q", symbol))
}

func (t *tx) InsertAccount(a broker.Account) error {
	_, err := t.exec(`INSERT INTO accounts (owner, cash, created_at) VALUES (?, ?, ?)`,
		a.Owner, a.Cash.String(), a.CreatedAt.UTC())
	return err
}

func (t *tx) GetAccount(owner string) (broker.Account, error) {
	var a broker.Account
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT owner, cash, created_at FROM accounts WHERE owner = ?`, owner).
		Scan(&a.Owner, &a.Cash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.Account{}, fmt.Errorf("account %q: %w", owner, broker.ErrNotFound)
	}
	return a, mapErr(err)
}

func (t *tx) SetCash(owner string, cash decimal.Decimal) error {
	res, err := t.exec(`UPDATE accounts SET cash = ? WHERE owner = ?`, cash.String(), owner)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("account %q", owner))
}

func (t *tx) GetPosition(owner, symbol string) (broker.Position, bool, error) {
	p := broker.Position{Owner: owner, Symbol: symbol}
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT qty, avg_price FROM positions WHERE owner = ? AND symbol = ?`, owner, symbol).
		Scan(&p.Qty, &p.AvgPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.Position{}, false, nil
	}
	if err != nil {
		return broker.Position{}, false, mapErr(err)
	}
	return p, true, nil
}

func (t *tx) PutPosition(p broker.Position) error {
	_, err := t.exec(`
		INSERT INTO positions (owner, symbol, qty, avg_price) VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, symbol) DO UPDATE SET qty = excluded.qty, avg_price = excluded.avg_price`,
		p.Owner, p.Symbol, p.Qty, p.AvgPrice.String())
	return err
}

func (t *tx) DeletePosition(owner, symbol string) error {
	res, err := t.exec(`DELETE FROM positions WHERE owner = ? AND symbol = ?`, owner, symbol)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("position %s/%s", owner, symbol))
}

func (t *tx) ListPositions(owner string) ([]broker.Position, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT owner, symbol, qty, avg_price FROM positions
		WHERE owner = ? ORDER BY symbol ASC`, owner)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []broker.Position
	for rows.Next() {
		var p broker.Position
		if err := rows.Scan(&p.Owner, &p.Symbol, &p.Qty, &p.AvgPrice); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const orderColumns = `id, owner, symbol, side, type, qty, limit_price, status, reason, created_at, updated_at`

func limitArg(p *decimal.Decimal) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func (t *tx) InsertOrder(o broker.Order) error {
	_, err := t.exec(`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Owner, o.Symbol, string(o.Side), string(o.Type), o.Qty, limitArg(o.LimitPrice),
		string(o.Status), o.Reason, o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (broker.Order, error) {
	var (
		o     broker.Order
		side  string
		typ   string
		stat  string
		limit decimal.NullDecimal
	)
	if err := row.Scan(&o.ID, &o.Owner, &o.Symbol, &side, &typ, &o.Qty, &limit,
		&stat, &o.Reason, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return broker.Order{}, err
	}
	o.Side = broker.Side(side)
	o.Type = broker.OrderType(typ)
	o.Status = broker.OrderStatus(stat)
	if limit.Valid {
		lp := limit.Decimal
		o.LimitPrice = &lp
	}
	return o, nil
}

func (t *tx) GetOrder(id string) (broker.Order, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.Order{}, fmt.Errorf("order %q: %w", id, broker.ErrNotFound)
	}
	return o, mapErr(err)
}

func (t *tx) UpdateOrder(o broker.Order) error {
	res, err := t.exec(`
		UPDATE orders SET status = ?, reason = ?, updated_at = ?
		WHERE id = ?`,
		string(o.Status), o.Reason, o.UpdatedAt.UTC(), o.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("order %q", o.ID))
}

func (t *tx) ListOrders(f broker.OrderFilter) ([]broker.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id ASC`

	rows, err := t.tx.QueryContext(t.ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []broker.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *tx) InsertTrade(tr broker.Trade) error {
	_, err := t.exec(`
		INSERT INTO trades (id, order_id, owner, symbol, side, price, qty, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.OrderID, tr.Owner, tr.Symbol, string(tr.Side), tr.Price.String(), tr.Qty, tr.ExecutedAt.UTC())
	return err
}

func (t *tx) ListTrades(owner string) ([]broker.Trade, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, order_id, owner, symbol, side, price, qty, executed_at
		FROM trades WHERE owner = ? ORDER BY id ASC`, owner)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []broker.Trade
	for rows.Next() {
		var (
			tr   broker.Trade
			side string
		)
		if err := rows.Scan(&tr.ID, &tr.OrderID, &tr.Owner, &tr.Symbol, &side, &tr.Price, &tr.Qty, &tr.ExecutedAt); err != nil {
			return nil, err
		}
		tr.Side = broker.Side(side)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

func (t *tx) InsertCashTransaction(c broker.CashTransaction) error {
	_, err := t.exec(`
		INSERT INTO cash_transactions (id, owner, type, amount, scheduled_for, status, processed_on)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, string(c.Type), c.Amount.String(), dateArg(&c.ScheduledFor), string(c.Status), dateArg(c.ProcessedOn))
	return err
}

func (t *tx) UpdateCashTransaction(c broker.CashTransaction) error {
	res, err := t.exec(`UPDATE cash_transactions SET status = ?, processed_on = ? WHERE id = ?`,
		string(c.Status), dateArg(c.ProcessedOn), c.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("cash transaction %q", c.ID))
}

func (t *tx) ListCashTransactions(owner string, status broker.CashStatus) ([]broker.CashTransaction, error) {
	q := `SELECT id, owner, type, amount, scheduled_for, status, processed_on
		FROM cash_transactions WHERE owner = ?`
	args := []any{owner}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY scheduled_for ASC, id ASC`

	rows, err := t.tx.QueryContext(t.ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []broker.CashTransaction
	for rows.Next() {
		var (
			c         broker.CashTransaction
			typ, stat string
			sched     string
			processed sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Owner, &typ, &c.Amount, &sched, &stat, &processed); err != nil {
			return nil, err
		}
		c.Type = broker.CashType(typ)
		c.Status = broker.CashStatus(stat)
		if c.ScheduledFor, err = time.Parse(dateLayout, sched); err != nil {
			return nil, fmt.Errorf("cash transaction %s: %w", c.ID, err)
		}
		if processed.Valid {
			d, err := time.Parse(dateLayout, processed.String)
			if err != nil {
				return nil, fmt.Errorf("cash transaction %s: %w", c.ID, err)
			}
			c.ProcessedOn = &d
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) ResetOwner(owner string) error {
	for _, q := range []string{
		`DELETE FROM trades WHERE owner = ?`,
		`DELETE FROM orders WHERE owner = ?`,
		`DELETE FROM positions WHERE owner = ?`,
	} {
		if _, err := t.exec(q, owner); err != nil {
			return err
		}
	}
	return nil
}
